// Package phone validates and normalizes customer phone numbers.
package phone

import (
	"errors"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidNumber reports a phone number that cannot be parsed or is
// not a valid number for its region. This is user-correctable input,
// not a system failure.
var ErrInvalidNumber = errors.New("invalid phone number format")

// Normalizer validates raw phone input and normalizes it to E.164.
type Normalizer struct {
	defaultRegion string
}

// NewNormalizer creates a Normalizer. Numbers without an explicit
// country prefix are interpreted against defaultRegion.
func NewNormalizer(defaultRegion string) *Normalizer {
	return &Normalizer{defaultRegion: defaultRegion}
}

// Normalize parses raw input and returns the E.164 representation
// (e.g. "+15551234567"). Returns ErrInvalidNumber for anything that is
// not a valid number.
func (n *Normalizer) Normalize(raw string) (string, error) {
	parsed, err := phonenumbers.Parse(raw, n.defaultRegion)
	if err != nil {
		return "", ErrInvalidNumber
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", ErrInvalidNumber
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
