// Package generator produces automated replies from conversation
// history via an external chat-completions service.
package generator

import (
	"context"

	"github.com/ashureev/support-relay/internal/domain"
)

// Generator turns an ordered conversation history into a reply. The
// protocol driver treats any returned error as a per-turn failure: the
// turn is aborted with an apology but the session continues.
type Generator interface {
	Generate(ctx context.Context, entries []domain.ContextEntry) (string, error)
}
