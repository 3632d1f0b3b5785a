package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
)

// Clock returns the current time
type Clock func() time.Time

// syncedIDEntry is one immutable snapshot of the cached id set
type syncedIDEntry struct {
	ids      integration.IDSet
	storedAt time.Time
}

// InMemorySyncedIDCache implements integration.SyncedIDCache for a single
// process. The entry is replaced as a whole through an atomic pointer, so
// readers see either the previous or the new set.
type InMemorySyncedIDCache struct {
	entry  atomic.Pointer[syncedIDEntry]
	ttl    time.Duration
	now    Clock
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// SyncedIDCacheOption configures an InMemorySyncedIDCache
type SyncedIDCacheOption func(*InMemorySyncedIDCache)

// WithClock replaces time.Now
func WithClock(now Clock) SyncedIDCacheOption {
	return func(c *InMemorySyncedIDCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheLogger sets the logger
func WithCacheLogger(logger *zap.Logger) SyncedIDCacheOption {
	return func(c *InMemorySyncedIDCache) {
		c.logger = logger
	}
}

// NewInMemorySyncedIDCache creates a cache whose entry expires after ttl.
// A non-positive ttl uses integration.DefaultSyncedIDCacheTTL.
func NewInMemorySyncedIDCache(ttl time.Duration, opts ...SyncedIDCacheOption) *InMemorySyncedIDCache {
	if ttl <= 0 {
		ttl = integration.DefaultSyncedIDCacheTTL
	}
	c := &InMemorySyncedIDCache{
		ttl:    ttl,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached set. The entry is absent once strictly
// more than the TTL has elapsed since it was stored.
func (c *InMemorySyncedIDCache) Get(_ context.Context) (integration.IDSet, bool, error) {
	e := c.entry.Load()
	if e == nil || c.now().Sub(e.storedAt) > c.ttl {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return e.ids.Clone(), true, nil
}

// Set replaces the cached set
func (c *InMemorySyncedIDCache) Set(_ context.Context, ids integration.IDSet) error {
	c.entry.Store(&syncedIDEntry{ids: ids.Clone(), storedAt: c.now()})
	c.logger.Debug("synced id cache populated", zap.Int("ids", len(ids)))
	return nil
}

// Invalidate drops the cached set
func (c *InMemorySyncedIDCache) Invalidate(_ context.Context) error {
	c.entry.Store(nil)
	c.logger.Debug("synced id cache invalidated")
	return nil
}

// Stats returns the hit and miss counters
func (c *InMemorySyncedIDCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Ensure InMemorySyncedIDCache implements SyncedIDCache
var _ integration.SyncedIDCache = (*InMemorySyncedIDCache)(nil)
