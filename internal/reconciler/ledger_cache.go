package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/logger"
)

// DefaultLedgerCacheTTL is how long fetched ledger entries are reused
const DefaultLedgerCacheTTL = 10 * time.Minute

// LedgerProvider loads the unreconciled ledger entries of a subsidiary for a period
type LedgerProvider interface {
	LedgerEntries(ctx context.Context, subsidiaryID string, start, end time.Time) ([]models.LedgerEntry, error)
}

// CachedLedgerProvider serves repeated requests for the same subsidiary and
// period from memory. Empty results are not cached.
type CachedLedgerProvider struct {
	next   LedgerProvider
	cache  *cache.Cache
	logger logger.Logger
}

// NewCachedLedgerProvider wraps next with a TTL cache; a non-positive ttl
// selects DefaultLedgerCacheTTL
func NewCachedLedgerProvider(next LedgerProvider, ttl time.Duration) *CachedLedgerProvider {
	if ttl <= 0 {
		ttl = DefaultLedgerCacheTTL
	}
	return &CachedLedgerProvider{
		next:   next,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger.GetGlobalLogger().WithComponent("ledger_cache"),
	}
}

// LedgerEntries returns cached entries when present, otherwise loads and caches them
func (c *CachedLedgerProvider) LedgerEntries(ctx context.Context, subsidiaryID string, start, end time.Time) ([]models.LedgerEntry, error) {
	key := ledgerCacheKey(subsidiaryID, start, end)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.WithField("key", key).Debug("Ledger cache hit")
		return cached.([]models.LedgerEntry), nil
	}

	entries, err := c.next.LedgerEntries(ctx, subsidiaryID, start, end)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		c.cache.Set(key, entries, cache.DefaultExpiration)
	}
	return entries, nil
}

func ledgerCacheKey(subsidiaryID string, start, end time.Time) string {
	return fmt.Sprintf("gl_entries:%s:%s:%s", subsidiaryID, start.Format("2006-01-02"), end.Format("2006-01-02"))
}
