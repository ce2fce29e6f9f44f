// Package knowledge manages per-company static knowledge text with a
// fast-cache copy over a durable primary record.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/kv"
	"github.com/ashureev/support-relay/internal/store"
)

const cachePrefix = "kb:company:"

// Cache is the two-tier company knowledge lookup. The durable record
// is the source of truth; the fast-store list is a derived cache with
// no independent expiry, cleared and repopulated on every Put.
type Cache struct {
	kv   kv.Store
	repo store.Repository
}

// NewCache creates a knowledge cache over the fast and durable stores.
func NewCache(kvStore kv.Store, repo store.Repository) *Cache {
	return &Cache{kv: kvStore, repo: repo}
}

// Put joins the entries, upserts the durable record, then invalidates
// and repopulates the cache list for the company.
func (c *Cache) Put(ctx context.Context, companyID string, entries []string) error {
	kb := &domain.CompanyKnowledge{
		CompanyID: companyID,
		Text:      strings.Join(entries, "\n"),
		UpdatedAt: time.Now().UTC(),
	}
	if err := c.repo.UpsertKnowledge(ctx, kb); err != nil {
		return fmt.Errorf("store knowledge: %w", err)
	}
	slog.Info("Company knowledge stored", "company_id", companyID, "entries", len(entries))

	key := cachePrefix + companyID
	if _, err := c.kv.Del(ctx, key); err != nil {
		return fmt.Errorf("invalidate knowledge cache: %w", err)
	}
	if len(entries) > 0 {
		if err := c.kv.RPush(ctx, key, entries...); err != nil {
			return fmt.Errorf("repopulate knowledge cache: %w", err)
		}
	}
	slog.Info("Company knowledge cache repopulated", "company_id", companyID)
	return nil
}

// Get returns the knowledge text for a company. The cache list is
// consulted first; on a miss the durable record is read directly
// without repopulating the cache, since repopulation only happens via Put.
// The boolean is false when the company has no knowledge anywhere.
func (c *Cache) Get(ctx context.Context, companyID string) (string, bool, error) {
	entries, err := c.kv.LRange(ctx, cachePrefix+companyID)
	if err != nil {
		return "", false, fmt.Errorf("read knowledge cache: %w", err)
	}
	if len(entries) > 0 {
		slog.Info("Fetched company knowledge from cache", "company_id", companyID)
		return strings.Join(entries, "\n"), true, nil
	}

	kb, err := c.repo.GetKnowledge(ctx, companyID)
	if err != nil {
		return "", false, fmt.Errorf("read knowledge record: %w", err)
	}
	if kb == nil {
		return "", false, nil
	}
	slog.Info("Fetched company knowledge from durable store", "company_id", companyID)
	return kb.Text, true, nil
}
