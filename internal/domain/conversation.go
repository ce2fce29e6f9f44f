package domain

import (
	"time"
)

// TranscriptMessage is one finalized (role, message, timestamp) tuple in
// a conversation transcript.
type TranscriptMessage struct {
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the immutable durable record of one completed session.
// It is written exactly once, at session teardown, regardless of how the
// session ended.
type Conversation struct {
	ConversationID string              `json:"conversation_id"`
	CustomerID     string              `json:"customer_id"`
	SessionID      string              `json:"session_id"`
	CompanyID      string              `json:"company_id"`
	PhoneNumber    string              `json:"phone_number"`
	Messages       []TranscriptMessage `json:"messages"`
	StartTime      time.Time           `json:"start_time"`
	EndTime        time.Time           `json:"end_time"`
	CreatedAt      time.Time           `json:"created_at"`
}
