package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/config"
)

const (
	redisPingTimeout           = 5 * time.Second
	idempotencyCleanupInterval = 5 * time.Minute
)

// Factory builds the synced-id cache and the idempotency store. Redis is
// used when enabled and reachable; otherwise both fall back to in-memory
// implementations unless fallback is disabled.
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	dial                  func(config.RedisConfig) redis.UniversalClient

	client redis.UniversalClient
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// in-memory implementations. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		dial: func(c config.RedisConfig) redis.UniversalClient {
			return redis.NewClient(&redis.Options{
				Addr:     c.Addr(),
				Password: c.Password,
				DB:       c.DB,
			})
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect opens and pings the Redis client. It returns a nil client and no
// error when Redis is disabled, and a nil client and the ping error when
// Redis is unreachable and fallback is allowed.
func (f *Factory) Connect(ctx context.Context) (redis.UniversalClient, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("redis disabled, using in-memory caches")
		return nil, nil
	}
	if f.client != nil {
		return f.client, nil
	}

	client := f.dial(f.redisConfig)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis required but unavailable at %s: %w", f.redisConfig.Addr(), err)
		}
		f.logger.Warn("redis unavailable, falling back to in-memory caches. "+
			"Processes will not share the synced id cache or event deduplication.",
			zap.String("addr", f.redisConfig.Addr()),
			zap.Error(err),
		)
		return nil, nil
	}

	f.logger.Info("connected to redis", zap.String("addr", f.redisConfig.Addr()))
	f.client = client
	return client, nil
}

// SyncedIDCache creates the synced-id cache with the given TTL
func (f *Factory) SyncedIDCache(ctx context.Context, ttl time.Duration) (integration.SyncedIDCache, error) {
	client, err := f.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if client != nil {
		return NewRedisSyncedIDCache(client, "", ttl), nil
	}
	return NewInMemorySyncedIDCache(ttl, WithCacheLogger(f.logger.Named("synced_ids"))), nil
}

// IdempotencyStore creates the event idempotency store
func (f *Factory) IdempotencyStore(ctx context.Context) (shared.IdempotencyStore, error) {
	client, err := f.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if client != nil {
		return NewRedisIdempotencyStore(client, ""), nil
	}
	return NewInMemoryIdempotencyStore(idempotencyCleanupInterval, nil), nil
}

// Client returns the connected Redis client, nil when none is in use
func (f *Factory) Client() redis.UniversalClient {
	return f.client
}

// Close closes the Redis client if one was opened
func (f *Factory) Close() error {
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}
