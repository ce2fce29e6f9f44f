// Package kv provides the fast-store interface backing ephemeral
// session state, context logs, and the knowledge cache.
package kv

import (
	"context"
	"time"
)

// Store is the per-key fast-store contract. Keys carry hash fields or
// lists and may be bound to a TTL; all operations are atomic per key at
// the storage layer, which is what makes the single-writer session
// design safe without in-process locking.
type Store interface {
	// HSet sets a hash field on key.
	HSet(ctx context.Context, key, field, value string) error

	// HGet reads a hash field. The boolean is false when the key or
	// field is absent; absence is not an error.
	HGet(ctx context.Context, key, field string) (string, bool, error)

	// Expire sets or resets the TTL on key. Returns false if the key
	// does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// RPush appends values to the list at key, creating it if needed.
	RPush(ctx context.Context, key string, values ...string) error

	// LRange returns the full list at key, oldest first. A missing key
	// yields an empty slice.
	LRange(ctx context.Context, key string) ([]string, error)

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}
