package history

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/kv"
)

func TestAppendAndGetHistoryOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := New(kv.NewMemory(), time.Minute)

	if err := a.Append(ctx, "s1", domain.RoleUser, "Hi"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := a.Append(ctx, "s1", domain.RoleAssistant, "Hello!"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	// Knowledge injected after the first turns must still sort first.
	if err := a.AppendKnowledge(ctx, "s1", "Opening hours: 9-5"); err != nil {
		t.Fatalf("AppendKnowledge failed: %v", err)
	}

	entries, err := a.GetHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Role != domain.RoleSystem || entries[0].Message != "Opening hours: 9-5" {
		t.Fatalf("knowledge entry should be first, got %+v", entries[0])
	}
	if entries[1].Role != domain.RoleUser || entries[1].Message != "Hi" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if entries[2].Role != domain.RoleAssistant || entries[2].Message != "Hello!" {
		t.Fatalf("unexpected third entry: %+v", entries[2])
	}
	if entries[1].Timestamp.IsZero() {
		t.Fatal("turn entries should carry timestamps")
	}
}

func TestAppendRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	a := New(kv.NewMemory(), time.Minute)
	if err := a.Append(context.Background(), "s1", domain.Role("bot"), "hi"); err == nil {
		t.Fatal("expected error for role outside the closed set")
	}
}

func TestGetHistorySkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := kv.NewMemory()
	a := New(mem, time.Minute)

	if err := a.Append(ctx, "s1", domain.RoleUser, "first"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	// Corrupt entries written directly to the store must not abort
	// reconstruction.
	if err := mem.RPush(ctx, "context:s1", "{not json"); err != nil {
		t.Fatalf("RPush failed: %v", err)
	}
	if err := mem.RPush(ctx, "context:s1", `{"role":"alien","message":"x","timestamp":"2026-01-01T00:00:00Z"}`); err != nil {
		t.Fatalf("RPush failed: %v", err)
	}
	if err := a.Append(ctx, "s1", domain.RoleAssistant, "last"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	entries, err := a.GetHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected malformed entries to be skipped, got %d entries", len(entries))
	}
	if entries[0].Message != "first" || entries[1].Message != "last" {
		t.Fatalf("unexpected surviving entries: %+v", entries)
	}
}

func TestAppendResetsTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := kv.NewMemory()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })
	a := New(mem, time.Minute)

	if err := a.Append(ctx, "s1", domain.RoleUser, "one"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Appends at intervals below the TTL keep the log alive past the
	// original deadline.
	now = now.Add(45 * time.Second)
	if err := a.Append(ctx, "s1", domain.RoleAssistant, "two"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	now = now.Add(45 * time.Second)

	entries, err := a.GetHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected the log to survive, got %d entries", len(entries))
	}

	// Silence beyond the TTL expires the whole log.
	now = now.Add(2 * time.Minute)
	entries, err = a.GetHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history after expiry, got %d entries", len(entries))
	}
}

func TestClearIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := New(kv.NewMemory(), time.Minute)

	if err := a.Append(ctx, "s1", domain.RoleUser, "hi"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := a.AppendKnowledge(ctx, "s1", "kb"); err != nil {
		t.Fatalf("AppendKnowledge failed: %v", err)
	}

	existed, err := a.Clear(ctx, "s1")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if !existed {
		t.Fatal("first Clear should report the logs existed")
	}

	existed, err = a.Clear(ctx, "s1")
	if err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}
	if existed {
		t.Fatal("second Clear should be a no-op")
	}
}
