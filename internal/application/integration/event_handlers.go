package integration

import (
	"context"
	"fmt"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// ProductDeletedHandler
// ---------------------------------------------------------------------------

// ProductDeletedHandler drops the synced-id cache when a local product is deleted
type ProductDeletedHandler struct {
	cache  integration.SyncedIDCache
	logger *zap.Logger
}

// NewProductDeletedHandler creates a new ProductDeletedHandler
func NewProductDeletedHandler(cache integration.SyncedIDCache, logger *zap.Logger) *ProductDeletedHandler {
	return &ProductDeletedHandler{
		cache:  cache,
		logger: logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ProductDeletedHandler) EventTypes() []string {
	return []string{integration.EventTypeProductDeleted}
}

// Handle processes a ProductDeletedEvent
func (h *ProductDeletedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	deleted, ok := event.(*integration.ProductDeletedEvent)
	if !ok {
		return unexpectedEvent(h.logger, integration.EventTypeProductDeleted, event)
	}

	if deleted.ExternalID == "" {
		// Not an imported product, the cached set is unaffected
		return nil
	}

	if err := h.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate synced id cache: %w", err)
	}
	h.logger.Info("synced id cache invalidated after product deletion",
		zap.String("product_id", deleted.ProductID.String()),
		zap.String("external_id", deleted.ExternalID),
	)
	return nil
}

// ---------------------------------------------------------------------------
// OrderPlacedHandler
// ---------------------------------------------------------------------------

// OrderPlacedHandler forwards placed orders to the ERP as sale orders
type OrderPlacedHandler struct {
	erp    integration.ERPSystem
	logger *zap.Logger
}

// NewOrderPlacedHandler creates a new OrderPlacedHandler
func NewOrderPlacedHandler(erp integration.ERPSystem, logger *zap.Logger) *OrderPlacedHandler {
	return &OrderPlacedHandler{
		erp:    erp,
		logger: logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *OrderPlacedHandler) EventTypes() []string {
	return []string{integration.EventTypeOrderPlaced}
}

// Handle processes an OrderPlacedEvent
func (h *OrderPlacedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	placed, ok := event.(*integration.OrderPlacedEvent)
	if !ok {
		return unexpectedEvent(h.logger, integration.EventTypeOrderPlaced, event)
	}
	if h.erp == nil {
		h.logger.Warn("erp not configured, order not forwarded",
			zap.String("order_reference", placed.Order.Reference),
		)
		return integration.ErrERPNotConfigured
	}

	if err := placed.Order.Validate(); err != nil {
		return err
	}

	orderID, err := h.erp.CreateOrder(ctx, placed.Order)
	if err != nil {
		return fmt.Errorf("create erp order %s: %w", placed.Order.Reference, err)
	}

	h.logger.Info("order forwarded to erp",
		zap.String("order_reference", placed.Order.Reference),
		zap.Int64("erp_order_id", orderID),
		zap.Int("lines", len(placed.Order.Lines)),
	)
	return nil
}

// ---------------------------------------------------------------------------
// InventoryUpdatedHandler
// ---------------------------------------------------------------------------

// InventoryUpdatedHandler pushes local stock changes to the ERP
type InventoryUpdatedHandler struct {
	stock  *StockService
	logger *zap.Logger
}

// NewInventoryUpdatedHandler creates a new InventoryUpdatedHandler
func NewInventoryUpdatedHandler(stock *StockService, logger *zap.Logger) *InventoryUpdatedHandler {
	return &InventoryUpdatedHandler{
		stock:  stock,
		logger: logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *InventoryUpdatedHandler) EventTypes() []string {
	return []string{integration.EventTypeInventoryUpdated}
}

// Handle processes an InventoryUpdatedEvent
func (h *InventoryUpdatedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	updated, ok := event.(*integration.InventoryUpdatedEvent)
	if !ok {
		return unexpectedEvent(h.logger, integration.EventTypeInventoryUpdated, event)
	}
	return h.stock.PushStock(ctx, updated.SKU, updated.Quantity)
}

func unexpectedEvent(logger *zap.Logger, expected string, event shared.DomainEvent) error {
	logger.Error("unexpected event type",
		zap.String("expected", expected),
		zap.String("actual", event.EventType()),
	)
	return fmt.Errorf("unexpected event type: expected %s, got %s", expected, event.EventType())
}

var (
	_ shared.EventHandler = (*ProductDeletedHandler)(nil)
	_ shared.EventHandler = (*OrderPlacedHandler)(nil)
	_ shared.EventHandler = (*InventoryUpdatedHandler)(nil)
)
