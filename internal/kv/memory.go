package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local
// development without a Redis instance. Expiry is checked lazily on
// access, which matches the observable behavior the components rely on.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]*memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	hash      map[string]string
	list      []string
	expiresAt time.Time // zero = no TTL
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*memoryEntry),
		now:  time.Now,
	}
}

// SetClock overrides the time source. Tests use this to step past TTLs
// without sleeping.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live returns the entry for key, dropping it first if its TTL has
// passed. Caller must hold the mutex.
func (s *MemoryStore) live(key string) *memoryEntry {
	e, ok := s.keys[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.keys, key)
		return nil
	}
	return e
}

func (s *MemoryStore) ensure(key string) *memoryEntry {
	if e := s.live(key); e != nil {
		return e
	}
	e := &memoryEntry{hash: make(map[string]string)}
	s.keys[key] = e
	return e
}

// HSet sets a hash field on key.
func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(key).hash[field] = value
	return nil
}

// HGet reads a hash field; absence is reported via the boolean.
func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return "", false, nil
	}
	value, ok := e.hash[field]
	return value, ok, nil
}

// Expire sets or resets the TTL on key.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return false, nil
	}
	e.expiresAt = s.now().Add(ttl)
	return true, nil
}

// Del removes keys and returns how many existed.
func (s *MemoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, key := range keys {
		if s.live(key) != nil {
			delete(s.keys, key)
			n++
		}
	}
	return n, nil
}

// RPush appends values to the list at key.
func (s *MemoryStore) RPush(_ context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	e.list = append(e.list, values...)
	return nil
}

// LRange returns the full list at key, oldest first.
func (s *MemoryStore) LRange(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil, nil
	}
	out := make([]string, len(e.list))
	copy(out, e.list)
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
