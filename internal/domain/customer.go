// Package domain contains core domain types for the support relay.
package domain

import (
	"time"
)

// Customer is the durable identity record behind a phone number.
// One record exists per distinct normalized phone number; records are
// never deleted by this subsystem.
type Customer struct {
	CustomerID  string    `json:"customer_id"`
	PhoneNumber string    `json:"phone_number"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CustomerUpdate carries optional profile mutations. Nil fields are
// left untouched.
type CustomerUpdate struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u CustomerUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Address == nil
}
