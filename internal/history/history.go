// Package history accumulates per-session conversation context in the
// fast store and reconstructs ordered message history.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/kv"
)

const (
	contextPrefix   = "context:"
	knowledgePrefix = "kb:"
)

// storedEntry is the JSON shape of one context-log element.
type storedEntry struct {
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Accumulator appends role-tagged messages to a session's ordered
// context log. The log shares the session's sliding TTL: every append
// resets it, so an active conversation never expires mid-turn.
type Accumulator struct {
	kv  kv.Store
	ttl time.Duration
}

// New creates an accumulator whose logs expire after ttl of silence.
func New(kvStore kv.Store, ttl time.Duration) *Accumulator {
	return &Accumulator{kv: kvStore, ttl: ttl}
}

// Append adds a message to the session context and resets the log TTL.
func (a *Accumulator) Append(ctx context.Context, sessionID string, role domain.Role, message string) error {
	if !role.Valid() {
		return fmt.Errorf("append context entry: invalid role %q", role)
	}

	payload, err := json.Marshal(storedEntry{
		Role:      role.String(),
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal context entry: %w", err)
	}

	key := contextPrefix + sessionID
	if err := a.kv.RPush(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("append context entry: %w", err)
	}
	if _, err := a.kv.Expire(ctx, key, a.ttl); err != nil {
		return fmt.Errorf("reset context ttl: %w", err)
	}

	slog.Info("Added message to context", "session_id", sessionID, "role", role)
	return nil
}

// AppendKnowledge adds a knowledge snippet to the session. Snippets
// live in their own list so reconstruction can present them ahead of
// the turn-derived entries regardless of when they were injected.
func (a *Accumulator) AppendKnowledge(ctx context.Context, sessionID, snippet string) error {
	key := knowledgePrefix + sessionID
	if err := a.kv.RPush(ctx, key, snippet); err != nil {
		return fmt.Errorf("append knowledge entry: %w", err)
	}
	if _, err := a.kv.Expire(ctx, key, a.ttl); err != nil {
		return fmt.Errorf("reset knowledge ttl: %w", err)
	}

	slog.Info("Added knowledge entry to session", "session_id", sessionID)
	return nil
}

// GetHistory reconstructs the full ordered history for a session:
// knowledge-derived system entries first, then turn entries in
// insertion order. Individually malformed stored entries are logged
// and skipped rather than aborting the reconstruction.
func (a *Accumulator) GetHistory(ctx context.Context, sessionID string) ([]domain.ContextEntry, error) {
	snippets, err := a.kv.LRange(ctx, knowledgePrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("read knowledge entries: %w", err)
	}

	raw, err := a.kv.LRange(ctx, contextPrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("read context entries: %w", err)
	}

	entries := make([]domain.ContextEntry, 0, len(snippets)+len(raw))
	for _, snippet := range snippets {
		entries = append(entries, domain.ContextEntry{
			Role:    domain.RoleSystem,
			Message: snippet,
		})
	}

	for _, item := range raw {
		var stored storedEntry
		if err := json.Unmarshal([]byte(item), &stored); err != nil {
			slog.Warn("Malformed message in context, skipping", "session_id", sessionID, "error", err)
			continue
		}
		role, err := domain.ParseRole(stored.Role)
		if err != nil {
			slog.Warn("Unknown role in context, skipping", "session_id", sessionID, "role", stored.Role)
			continue
		}
		entries = append(entries, domain.ContextEntry{
			Role:      role,
			Message:   stored.Message,
			Timestamp: stored.Timestamp,
		})
	}

	slog.Info("Fetched session history", "session_id", sessionID, "entries", len(entries))
	return entries, nil
}

// Clear deletes the session's context and knowledge logs. Returns
// true if anything existed; clearing already-absent logs is a normal
// no-op.
func (a *Accumulator) Clear(ctx context.Context, sessionID string) (bool, error) {
	n, err := a.kv.Del(ctx, contextPrefix+sessionID, knowledgePrefix+sessionID)
	if err != nil {
		return false, fmt.Errorf("clear context: %w", err)
	}
	if n == 0 {
		slog.Warn("Tried to clear non-existing history", "session_id", sessionID)
		return false, nil
	}
	slog.Info("Cleared context history", "session_id", sessionID)
	return true, nil
}
