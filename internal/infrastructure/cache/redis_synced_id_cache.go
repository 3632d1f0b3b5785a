package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
)

const defaultSyncedIDKey = "lacabrade:erp:synced-ids"

// RedisSyncedIDCache implements integration.SyncedIDCache in Redis so every
// process shares one entry. The set is stored as a JSON array under one key
// with the TTL as expiry; SET replaces it atomically.
type RedisSyncedIDCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisSyncedIDCache creates a cache on an existing client.
// An empty key uses the default key; a non-positive ttl the default TTL.
func NewRedisSyncedIDCache(client redis.UniversalClient, key string, ttl time.Duration) *RedisSyncedIDCache {
	if key == "" {
		key = defaultSyncedIDKey
	}
	if ttl <= 0 {
		ttl = integration.DefaultSyncedIDCacheTTL
	}
	return &RedisSyncedIDCache{client: client, key: key, ttl: ttl}
}

// Get returns the cached set, absent when the key expired or was deleted
func (c *RedisSyncedIDCache) Get(ctx context.Context) (integration.IDSet, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read synced ids: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		// A corrupt entry is treated as absent; the next Set overwrites it
		return nil, false, nil
	}
	return integration.NewIDSet(ids...), true, nil
}

// Set replaces the cached set
func (c *RedisSyncedIDCache) Set(ctx context.Context, ids integration.IDSet) error {
	raw, err := json.Marshal(ids.Slice())
	if err != nil {
		return fmt.Errorf("failed to encode synced ids: %w", err)
	}
	if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store synced ids: %w", err)
	}
	return nil
}

// Invalidate deletes the cached set
func (c *RedisSyncedIDCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate synced ids: %w", err)
	}
	return nil
}

// Ensure RedisSyncedIDCache implements SyncedIDCache
var _ integration.SyncedIDCache = (*RedisSyncedIDCache)(nil)
