package knowledge

import (
	"context"
	"testing"

	"github.com/ashureev/support-relay/internal/kv"
	"github.com/ashureev/support-relay/internal/store"
)

func TestPutAndGetJoinsEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewCache(kv.NewMemory(), store.NewMemory())

	if err := c.Put(ctx, "acme", []string{"Opening hours: 9-5", "Returns within 30 days"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	text, ok, err := c.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected knowledge to exist")
	}
	want := "Opening hours: 9-5\nReturns within 30 days"
	if text != want {
		t.Fatalf("expected %q, got %q", want, text)
	}
}

func TestGetFallsBackToDurableStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := kv.NewMemory()
	c := NewCache(mem, store.NewMemory())

	if err := c.Put(ctx, "acme", []string{"Opening hours: 9-5"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Simulate a cache eviction. The durable record must still answer.
	if _, err := mem.Del(ctx, "kb:company:acme"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}

	text, ok, err := c.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected durable fallback to find the record")
	}
	if text != "Opening hours: 9-5" {
		t.Fatalf("unexpected text from durable fallback: %q", text)
	}

	// The fallback read does not warm the cache.
	entries, err := mem.LRange(ctx, "kb:company:acme")
	if err != nil {
		t.Fatalf("LRange failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("cache should stay cold after a fallback read, got %d entries", len(entries))
	}
}

func TestGetAbsentCompany(t *testing.T) {
	t.Parallel()

	c := NewCache(kv.NewMemory(), store.NewMemory())

	text, ok, err := c.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || text != "" {
		t.Fatalf("expected absent company to report no knowledge, got ok=%v text=%q", ok, text)
	}
}

func TestPutReplacesExistingKnowledge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewCache(kv.NewMemory(), store.NewMemory())

	if err := c.Put(ctx, "acme", []string{"old fact one", "old fact two"}); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	if err := c.Put(ctx, "acme", []string{"new fact"}); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	text, ok, err := c.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || text != "new fact" {
		t.Fatalf("expected replacement to win, got ok=%v text=%q", ok, text)
	}
}
