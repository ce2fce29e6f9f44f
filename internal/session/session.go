// Package session manages ephemeral chat sessions in the fast store.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/kv"
	"github.com/google/uuid"
)

const keyPrefix = "session:"

// Store creates, refreshes, and ends sessions. Each session is a hash
// in the fast store bound to a sliding TTL; once ended, a session
// identifier is never reused and operations on it report "already
// absent" rather than failing teardown.
type Store struct {
	kv  kv.Store
	ttl time.Duration
}

// New creates a session store with a fixed TTL applied to all sessions.
func New(kvStore kv.Store, ttl time.Duration) *Store {
	return &Store{kv: kvStore, ttl: ttl}
}

// TTL returns the fixed session time-to-live.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create mints a fresh session bound to customerID.
func (s *Store) Create(ctx context.Context, customerID string) (domain.Session, error) {
	sess := domain.Session{
		SessionID:  uuid.NewString(),
		CustomerID: customerID,
		CreatedAt:  time.Now().UTC(),
	}
	key := keyPrefix + sess.SessionID

	if err := s.kv.HSet(ctx, key, "customer_id", customerID); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	if _, err := s.kv.Expire(ctx, key, s.ttl); err != nil {
		return domain.Session{}, fmt.Errorf("set session ttl: %w", err)
	}

	slog.Info("Created new session", "session_id", sess.SessionID, "customer_id", customerID)
	return sess, nil
}

// Refresh slides the session TTL back to the full window. Returns
// false if the session no longer exists.
func (s *Store) Refresh(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.kv.Expire(ctx, keyPrefix+sessionID, s.ttl)
	if err != nil {
		return false, fmt.Errorf("refresh session: %w", err)
	}
	if !ok {
		slog.Warn("Tried to refresh non-existing session", "session_id", sessionID)
	}
	return ok, nil
}

// GetOwner returns the customer identifier bound to sessionID, or an
// empty string if the session is absent.
func (s *Store) GetOwner(ctx context.Context, sessionID string) (string, error) {
	customerID, ok, err := s.kv.HGet(ctx, keyPrefix+sessionID, "customer_id")
	if err != nil {
		return "", fmt.Errorf("get session owner: %w", err)
	}
	if !ok {
		return "", nil
	}
	return customerID, nil
}

// End removes the session. Returns true if it existed; ending an
// already-absent session is a normal no-op.
func (s *Store) End(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.kv.Del(ctx, keyPrefix+sessionID)
	if err != nil {
		return false, fmt.Errorf("end session: %w", err)
	}
	if n == 0 {
		slog.Warn("Tried to end non-existing session", "session_id", sessionID)
		return false, nil
	}
	slog.Info("Ended session", "session_id", sessionID)
	return true, nil
}
