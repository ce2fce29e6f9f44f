// Package transcript writes immutable conversation records at session
// end.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/history"
	"github.com/ashureev/support-relay/internal/store"
	"github.com/google/uuid"
)

// Finalizer reconstructs a session's message log and persists it as a
// single immutable conversation document. Transcript persistence and
// ephemeral cleanup are independent obligations: a failure here is
// reported to the caller but never blocks the teardown that follows.
type Finalizer struct {
	acc  *history.Accumulator
	repo store.Repository
}

// NewFinalizer creates a Finalizer over the accumulator and durable store.
func NewFinalizer(acc *history.Accumulator, repo store.Repository) *Finalizer {
	return &Finalizer{acc: acc, repo: repo}
}

// Input carries the session attributes captured by the protocol driver.
type Input struct {
	CompanyID   string
	CustomerID  string
	SessionID   string
	PhoneNumber string
	StartTime   time.Time
}

// Finalize builds and inserts the transcript, returning the freshly
// minted conversation identifier. Entries with an unusable role fall
// back to the user role and entries without a timestamp get the
// current time; this is deliberate lossy recovery, not a failure.
func (f *Finalizer) Finalize(ctx context.Context, in Input) (string, error) {
	entries, err := f.acc.GetHistory(ctx, in.SessionID)
	if err != nil {
		return "", fmt.Errorf("reconstruct history: %w", err)
	}

	now := time.Now().UTC()
	messages := make([]domain.TranscriptMessage, 0, len(entries))
	for _, entry := range entries {
		role := entry.Role
		if !role.Valid() {
			role = domain.RoleUser
		}
		ts := entry.Timestamp
		if ts.IsZero() {
			ts = now
		}
		messages = append(messages, domain.TranscriptMessage{
			Role:      role,
			Message:   entry.Message,
			Timestamp: ts,
		})
	}

	// Prefer the phone number on the stored customer record; the
	// normalized input is the fallback when the record is unreadable.
	phoneForRecord := in.PhoneNumber
	if customer, lookupErr := f.repo.GetCustomerByPhone(ctx, in.PhoneNumber); lookupErr == nil && customer != nil {
		phoneForRecord = customer.PhoneNumber
	}

	conv := &domain.Conversation{
		ConversationID: uuid.NewString(),
		CustomerID:     in.CustomerID,
		SessionID:      in.SessionID,
		CompanyID:      in.CompanyID,
		PhoneNumber:    phoneForRecord,
		Messages:       messages,
		StartTime:      in.StartTime,
		EndTime:        now,
		CreatedAt:      now,
	}

	if err := f.repo.InsertConversation(ctx, conv); err != nil {
		return "", fmt.Errorf("persist conversation: %w", err)
	}

	slog.Info("Saved conversation transcript",
		"conversation_id", conv.ConversationID,
		"session_id", in.SessionID,
		"customer_id", in.CustomerID,
		"company_id", in.CompanyID,
		"messages", len(messages),
	)
	return conv.ConversationID, nil
}
