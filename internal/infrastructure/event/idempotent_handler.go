package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
)

// Delivery outcomes reported to a DeliveryObserver
const (
	OutcomeHandled   = "handled"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// DeliveryObserver is told how each delivery of an event type ended
type DeliveryObserver interface {
	ObserveEventDelivery(eventType, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveEventDelivery(string, string) {}

// IdempotentHandler wraps a subscriber so a delivery key is handled at most
// once per TTL. The key comes from shared.IdempotencyKeyOf, so a storefront
// order redelivered under a new event id is still recognized.
//
// A key is claimed before the wrapped handler runs and stays claimed when
// the handler fails; the failure is logged by the bus and not retried.
type IdempotentHandler struct {
	next     shared.EventHandler
	store    shared.IdempotencyStore
	config   shared.IdempotencyConfig
	logger   *zap.Logger
	observer DeliveryObserver
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets the TTL and the on/off switch
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithDeliveryObserver reports every delivery outcome to observer
func WithDeliveryObserver(observer DeliveryObserver) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if observer != nil {
			h.observer = observer
		}
	}
}

// NewIdempotentHandler wraps next. A nil store disables deduplication.
func NewIdempotentHandler(
	next shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &IdempotentHandler{
		next:     next,
		store:    store,
		config:   shared.DefaultIdempotencyConfig(),
		logger:   logger,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the wrapped handler's event types
func (h *IdempotentHandler) EventTypes() []string {
	return h.next.EventTypes()
}

// Handle claims the delivery key and runs the wrapped handler when the
// claim is new. A failing store lets the event through.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.config.Enabled && h.store != nil && !h.claim(ctx, event) {
		h.observer.ObserveEventDelivery(event.EventType(), OutcomeDuplicate)
		return nil
	}

	if err := h.next.Handle(ctx, event); err != nil {
		h.observer.ObserveEventDelivery(event.EventType(), OutcomeFailed)
		return err
	}
	h.observer.ObserveEventDelivery(event.EventType(), OutcomeHandled)
	return nil
}

// claim reports whether this delivery should be handled
func (h *IdempotentHandler) claim(ctx context.Context, event shared.DomainEvent) bool {
	key := shared.IdempotencyKeyOf(event)

	fresh, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	if err != nil {
		h.logger.Warn("idempotency store unavailable, handling event anyway",
			zap.String("key", key),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return true
	}
	if !fresh {
		h.logger.Info("duplicate delivery skipped",
			zap.String("key", key),
			zap.String("event_id", event.EventID().String()),
		)
	}
	return fresh
}

// Ensure IdempotentHandler implements EventHandler
var _ shared.EventHandler = (*IdempotentHandler)(nil)
