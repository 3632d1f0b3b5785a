package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed delivery keys to prevent duplicate processing
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyKeyer is implemented by events whose duplicates are recognized
// by business identity rather than by event id, e.g. an order redelivered
// by the storefront under a fresh event.
type IdempotencyKeyer interface {
	IdempotencyKey() string
}

// IdempotencyKeyOf returns the key used to deduplicate deliveries of event
func IdempotencyKeyOf(event DomainEvent) string {
	if keyer, ok := event.(IdempotencyKeyer); ok {
		if key := keyer.IdempotencyKey(); key != "" {
			return key
		}
	}
	return event.EventType() + ":" + event.EventID().String()
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a processed key is remembered. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled. Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
