package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/cache"
)

func TestRedisSyncedIDCache(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := NewTestRedis(t)
	ctx := context.Background()

	t.Run("absent until set", func(t *testing.T) {
		c := cache.NewRedisSyncedIDCache(client, "test:synced-ids:absent", time.Minute)
		_, ok, err := c.Get(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set get invalidate", func(t *testing.T) {
		c := cache.NewRedisSyncedIDCache(client, "test:synced-ids:roundtrip", time.Minute)
		require.NoError(t, c.Set(ctx, integration.NewIDSet("1", "2", "3")))

		ids, ok, err := c.Get(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, ids.Has("2"))
		assert.Len(t, ids, 3)

		require.NoError(t, c.Invalidate(ctx))
		_, ok, err = c.Get(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("entry carries the ttl", func(t *testing.T) {
		c := cache.NewRedisSyncedIDCache(client, "test:synced-ids:ttl", 30*time.Second)
		require.NoError(t, c.Set(ctx, integration.NewIDSet("9")))

		ttl, err := client.TTL(ctx, "test:synced-ids:ttl").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, 30*time.Second)
	})

	t.Run("corrupt entry reads as absent", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "test:synced-ids:corrupt", "not json", time.Minute).Err())
		c := cache.NewRedisSyncedIDCache(client, "test:synced-ids:corrupt", time.Minute)
		_, ok, err := c.Get(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRedisIdempotencyStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := NewTestRedis(t)
	store := cache.NewRedisIdempotencyStore(client, "test:processed:")
	ctx := context.Background()

	processed, err := store.IsProcessed(ctx, "event-1")
	require.NoError(t, err)
	assert.False(t, processed)

	first, err := store.MarkProcessed(ctx, "event-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkProcessed(ctx, "event-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	processed, err = store.IsProcessed(ctx, "event-1")
	require.NoError(t, err)
	assert.True(t, processed)
	require.NoError(t, store.Close())
}
