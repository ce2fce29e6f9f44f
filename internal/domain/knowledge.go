package domain

import (
	"time"
)

// CompanyKnowledge is the durable primary copy of a company's static
// knowledge text. The fast-store copy is a derived cache, cleared and
// repopulated on every update.
type CompanyKnowledge struct {
	CompanyID string    `json:"company_id"`
	Text      string    `json:"kb_text"`
	UpdatedAt time.Time `json:"updated_at"`
}
