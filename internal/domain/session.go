package domain

import (
	"time"
)

// Session is the ephemeral binding between one websocket connection and
// one customer. It lives only in the fast store under a sliding TTL and
// is deleted exactly once at connection teardown.
type Session struct {
	SessionID  string    `json:"session_id"`
	CustomerID string    `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ContextEntry is a single role-tagged message in a session's ordered
// context log.
type ContextEntry struct {
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
