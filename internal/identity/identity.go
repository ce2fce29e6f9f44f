// Package identity maps normalized phone numbers to stable customer
// identifiers.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/shared"
	"github.com/ashureev/support-relay/internal/store"
	"github.com/google/uuid"
)

// Resolver resolves phone numbers to customer identifiers, creating a
// customer record on first contact.
type Resolver struct {
	repo store.Repository
}

// NewResolver creates a Resolver backed by the durable store.
func NewResolver(repo store.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveOrCreate returns the customer identifier for a normalized
// phone number, inserting a fresh record with empty profile fields if
// none exists. The unique index on phone_number is the authority under
// concurrent first contact: if the insert loses the race, the winner's
// record is re-read and returned.
func (r *Resolver) ResolveOrCreate(ctx context.Context, normalizedPhone string) (string, error) {
	customer, err := r.repo.GetCustomerByPhone(ctx, normalizedPhone)
	if err != nil {
		return "", fmt.Errorf("lookup customer: %w", err)
	}
	if customer != nil {
		slog.Info("Found existing customer", "customer_id", customer.CustomerID)
		return customer.CustomerID, nil
	}

	now := time.Now()
	fresh := &domain.Customer{
		CustomerID:  uuid.NewString(),
		PhoneNumber: normalizedPhone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = r.repo.CreateCustomer(ctx, fresh)
	if err == nil {
		slog.Info("Created new customer", "customer_id", fresh.CustomerID)
		return fresh.CustomerID, nil
	}

	if !shared.IsSQLiteUniqueConstraintError(err) {
		return "", fmt.Errorf("create customer: %w", err)
	}

	// A concurrent first contact from the same number won the insert.
	customer, readErr := r.repo.GetCustomerByPhone(ctx, normalizedPhone)
	if readErr != nil {
		return "", fmt.Errorf("re-read customer after insert conflict: %w", readErr)
	}
	if customer == nil {
		return "", fmt.Errorf("customer vanished after insert conflict: %w", err)
	}
	slog.Info("Customer created concurrently, reusing", "customer_id", customer.CustomerID)
	return customer.CustomerID, nil
}
