package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
)

// MemoryStore is an in-process Repository used by tests and local
// development without a database file. It enforces the same phone
// uniqueness constraint as the SQLite schema, reporting violations
// with the same error text so callers classify them identically.
type MemoryStore struct {
	mu            sync.Mutex
	customers     map[string]*domain.Customer // by customer_id
	phones        map[string]string           // phone -> customer_id
	conversations map[string]*domain.Conversation
	knowledge     map[string]*domain.CompanyKnowledge
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		customers:     make(map[string]*domain.Customer),
		phones:        make(map[string]string),
		conversations: make(map[string]*domain.Conversation),
		knowledge:     make(map[string]*domain.CompanyKnowledge),
	}
}

// CreateCustomer inserts a new customer record.
func (s *MemoryStore) CreateCustomer(_ context.Context, customer *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.phones[customer.PhoneNumber]; exists {
		return fmt.Errorf("insert customer: UNIQUE constraint failed: customers.phone_number")
	}
	cp := *customer
	s.customers[customer.CustomerID] = &cp
	s.phones[customer.PhoneNumber] = customer.CustomerID
	return nil
}

// GetCustomerByPhone retrieves a customer by normalized phone number.
func (s *MemoryStore) GetCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.phones[phone]
	if !ok {
		return nil, nil
	}
	cp := *s.customers[id]
	return &cp, nil
}

// GetCustomer retrieves a customer by identifier.
func (s *MemoryStore) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[customerID]
	if !ok {
		return nil, nil
	}
	cp := *customer
	return &cp, nil
}

// UpdateCustomerProfile applies optional profile field updates.
func (s *MemoryStore) UpdateCustomerProfile(_ context.Context, customerID string, update domain.CustomerUpdate) error {
	if update.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[customerID]
	if !ok {
		return fmt.Errorf("customer not found")
	}
	if update.Name != nil {
		customer.Name = *update.Name
	}
	if update.Email != nil {
		customer.Email = *update.Email
	}
	if update.Address != nil {
		customer.Address = *update.Address
	}
	customer.UpdatedAt = time.Now()
	return nil
}

// InsertConversation writes one immutable transcript document.
func (s *MemoryStore) InsertConversation(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[conv.ConversationID]; exists {
		return fmt.Errorf("insert conversation: UNIQUE constraint failed: conversations.conversation_id")
	}
	cp := *conv
	cp.Messages = append([]domain.TranscriptMessage(nil), conv.Messages...)
	s.conversations[conv.ConversationID] = &cp
	return nil
}

// ConversationsByCustomer returns the most recent transcripts for a customer.
func (s *MemoryStore) ConversationsByCustomer(_ context.Context, customerID string, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Conversation
	for _, conv := range s.conversations {
		if conv.CustomerID == customerID {
			cp := *conv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ConversationBySession retrieves the transcript written for a session.
func (s *MemoryStore) ConversationBySession(_ context.Context, sessionID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.SessionID == sessionID {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, nil
}

// UpsertKnowledge creates or replaces the durable knowledge record for a company.
func (s *MemoryStore) UpsertKnowledge(_ context.Context, kb *domain.CompanyKnowledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *kb
	s.knowledge[kb.CompanyID] = &cp
	return nil
}

// GetKnowledge retrieves a company's knowledge record.
func (s *MemoryStore) GetKnowledge(_ context.Context, companyID string) (*domain.CompanyKnowledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb, ok := s.knowledge[companyID]
	if !ok {
		return nil, nil
	}
	cp := *kb
	return &cp, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
