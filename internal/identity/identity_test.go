package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/store"
)

func TestResolveOrCreateIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewResolver(store.NewMemory())

	first, err := r.ResolveOrCreate(ctx, "+919876543210")
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if first == "" {
		t.Fatal("expected a customer identifier")
	}

	second, err := r.ResolveOrCreate(ctx, "+919876543210")
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if second != first {
		t.Fatalf("same number resolved to different customers: %q vs %q", first, second)
	}
}

func TestResolveOrCreateDistinctNumbers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewResolver(store.NewMemory())

	a, err := r.ResolveOrCreate(ctx, "+919876543210")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	b, err := r.ResolveOrCreate(ctx, "+918887776665")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if a == b {
		t.Fatal("distinct numbers must map to distinct customers")
	}
}

// racingRepo makes the lookup miss on first contact and the insert lose
// with a unique-constraint violation, mimicking a concurrent first
// contact that committed between the two calls.
type racingRepo struct {
	*store.MemoryStore
	raced bool
}

func (r *racingRepo) GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	if !r.raced {
		return nil, nil
	}
	return r.MemoryStore.GetCustomerByPhone(ctx, phone)
}

func (r *racingRepo) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	if !r.raced {
		r.raced = true
		winner := *customer
		winner.CustomerID = "winner-id"
		if err := r.MemoryStore.CreateCustomer(ctx, &winner); err != nil {
			return err
		}
		return errors.New("UNIQUE constraint failed: customers.phone_number")
	}
	return r.MemoryStore.CreateCustomer(ctx, customer)
}

func TestResolveOrCreateInsertRace(t *testing.T) {
	t.Parallel()

	r := NewResolver(&racingRepo{MemoryStore: store.NewMemory()})

	id, err := r.ResolveOrCreate(context.Background(), "+919876543210")
	if err != nil {
		t.Fatalf("resolve after lost race failed: %v", err)
	}
	if id != "winner-id" {
		t.Fatalf("expected the winning insert's identifier, got %q", id)
	}
}

// failingRepo rejects every insert with an unrelated error.
type failingRepo struct {
	*store.MemoryStore
}

func (r *failingRepo) CreateCustomer(context.Context, *domain.Customer) error {
	return errors.New("disk I/O error")
}

func TestResolveOrCreatePropagatesInsertErrors(t *testing.T) {
	t.Parallel()

	r := NewResolver(&failingRepo{MemoryStore: store.NewMemory()})

	if _, err := r.ResolveOrCreate(context.Background(), "+919876543210"); err == nil {
		t.Fatal("expected non-constraint insert errors to propagate")
	}
}
