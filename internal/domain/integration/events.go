package integration

import (
	"github.com/google/uuid"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
)

// Event types published by the local catalog
const (
	EventTypeProductDeleted   = "product.deleted"
	EventTypeOrderPlaced      = "order.placed"
	EventTypeInventoryUpdated = "inventory.updated"
)

// Aggregate types
const (
	AggregateTypeProduct       = "Product"
	AggregateTypeOrder         = "Order"
	AggregateTypeInventoryItem = "InventoryItem"
)

// ProductDeletedEvent is published when a local product is deleted
type ProductDeletedEvent struct {
	shared.BaseDomainEvent
	ProductID  uuid.UUID `json:"product_id"`
	ExternalID string    `json:"external_id,omitempty"`
}

// NewProductDeletedEvent creates a ProductDeletedEvent
func NewProductDeletedEvent(productID uuid.UUID, externalID string) *ProductDeletedEvent {
	return &ProductDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductDeleted, AggregateTypeProduct, productID.String()),
		ProductID:       productID,
		ExternalID:      externalID,
	}
}

// OrderPlacedEvent is published when a local order is placed
type OrderPlacedEvent struct {
	shared.BaseDomainEvent
	Order SaleOrder `json:"order"`
}

// NewOrderPlacedEvent creates an OrderPlacedEvent
func NewOrderPlacedEvent(order SaleOrder) *OrderPlacedEvent {
	return &OrderPlacedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderPlaced, AggregateTypeOrder, order.Reference),
		Order:           order,
	}
}

// IdempotencyKey identifies the order, so a redelivered order is sent to the
// ERP once
func (e *OrderPlacedEvent) IdempotencyKey() string {
	return EventTypeOrderPlaced + ":" + e.Order.Reference
}

// InventoryUpdatedEvent is published when a local stocked quantity changes
// outside of an ERP-driven sync
type InventoryUpdatedEvent struct {
	shared.BaseDomainEvent
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// NewInventoryUpdatedEvent creates an InventoryUpdatedEvent
func NewInventoryUpdatedEvent(sku string, quantity int) *InventoryUpdatedEvent {
	return &InventoryUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInventoryUpdated, AggregateTypeInventoryItem, sku),
		SKU:             sku,
		Quantity:        quantity,
	}
}
