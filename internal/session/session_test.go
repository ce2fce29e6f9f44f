package session

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/support-relay/internal/kv"
)

func TestCreateAndGetOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(kv.NewMemory(), time.Minute)

	sess, err := s.Create(ctx, "cust-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
	if sess.CustomerID != "cust-1" {
		t.Fatalf("expected customer cust-1, got %q", sess.CustomerID)
	}
	if sess.CreatedAt.Location() != time.UTC {
		t.Fatalf("creation time should be UTC, got %v", sess.CreatedAt.Location())
	}

	owner, err := s.GetOwner(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("GetOwner failed: %v", err)
	}
	if owner != "cust-1" {
		t.Fatalf("expected owner cust-1, got %q", owner)
	}

	owner, err = s.GetOwner(ctx, "no-such-session")
	if err != nil {
		t.Fatalf("GetOwner on absent session failed: %v", err)
	}
	if owner != "" {
		t.Fatalf("absent session should have no owner, got %q", owner)
	}
}

func TestRefreshSlidesTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := kv.NewMemory()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })
	s := New(mem, time.Minute)

	sess, err := s.Create(ctx, "cust-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Repeated refreshes at intervals below the TTL keep the session
	// alive well past the original deadline.
	for i := 0; i < 5; i++ {
		now = now.Add(45 * time.Second)
		ok, err := s.Refresh(ctx, sess.SessionID)
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if !ok {
			t.Fatalf("refresh %d should find the session", i)
		}
	}

	// One silent period beyond the TTL and the session is gone.
	now = now.Add(2 * time.Minute)
	ok, err := s.Refresh(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if ok {
		t.Fatal("refresh after expiry should report absent")
	}

	owner, err := s.GetOwner(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("GetOwner failed: %v", err)
	}
	if owner != "" {
		t.Fatal("expired session should have no owner")
	}
}

func TestEndIsTerminalAndIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(kv.NewMemory(), time.Minute)

	sess, err := s.Create(ctx, "cust-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	existed, err := s.End(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if !existed {
		t.Fatal("first End should report the session existed")
	}

	// Ending again is a no-op, never an error that could abort teardown.
	existed, err = s.End(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("second End failed: %v", err)
	}
	if existed {
		t.Fatal("second End should report already absent")
	}

	// A deleted session id is never refreshable again.
	ok, err := s.Refresh(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if ok {
		t.Fatal("deleted session must not be refreshable")
	}
}
