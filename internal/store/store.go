// Package store provides durable persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/support-relay/internal/domain"
)

// Repository defines the interface for durable customer, transcript,
// and knowledge persistence.
type Repository interface {
	// CreateCustomer inserts a new customer record. The phone number
	// carries a uniqueness constraint; a violation surfaces as an error
	// the caller can classify with shared.IsSQLiteUniqueConstraintError.
	CreateCustomer(ctx context.Context, customer *domain.Customer) error

	// GetCustomerByPhone retrieves a customer by normalized phone
	// number. Returns (nil, nil) when absent.
	GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)

	// GetCustomer retrieves a customer by identifier. Returns (nil, nil)
	// when absent.
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)

	// UpdateCustomerProfile applies optional profile field updates.
	UpdateCustomerProfile(ctx context.Context, customerID string, update domain.CustomerUpdate) error

	// InsertConversation writes one immutable transcript document.
	InsertConversation(ctx context.Context, conv *domain.Conversation) error

	// ConversationsByCustomer returns the most recent transcripts for a
	// customer, newest first.
	ConversationsByCustomer(ctx context.Context, customerID string, limit int) ([]*domain.Conversation, error)

	// ConversationBySession retrieves the transcript written for a
	// session, or (nil, nil) when none exists.
	ConversationBySession(ctx context.Context, sessionID string) (*domain.Conversation, error)

	// UpsertKnowledge creates or replaces the durable knowledge record
	// for a company.
	UpsertKnowledge(ctx context.Context, kb *domain.CompanyKnowledge) error

	// GetKnowledge retrieves a company's knowledge record, or (nil, nil)
	// when absent.
	GetKnowledge(ctx context.Context, companyID string) (*domain.CompanyKnowledge, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
