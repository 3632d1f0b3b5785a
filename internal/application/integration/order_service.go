package integration

import (
	"context"
	"errors"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
	"go.uber.org/zap"
)

// OrderService announces locally placed orders. OrderPlacedHandler forwards
// them to the ERP.
type OrderService struct {
	publisher shared.EventPublisher
	catalog   integration.ProductReader
	logger    *zap.Logger
}

// OrderServiceOption configures an OrderService
type OrderServiceOption func(*OrderService)

// WithOrderCatalog sets the catalog used to resolve the ERP product of each
// order line. Without it every SKU is sent as an ERP code.
func WithOrderCatalog(catalog integration.ProductReader) OrderServiceOption {
	return func(s *OrderService) {
		s.catalog = catalog
	}
}

// NewOrderService creates a new OrderService
func NewOrderService(publisher shared.EventPublisher, logger *zap.Logger, opts ...OrderServiceOption) *OrderService {
	s := &OrderService{
		publisher: publisher,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OrderPlaced validates the order and publishes OrderPlacedEvent
func (s *OrderService) OrderPlaced(ctx context.Context, order integration.SaleOrder) error {
	if err := order.Validate(); err != nil {
		return err
	}
	s.resolveLines(ctx, &order)

	s.logger.Info("order placed",
		zap.String("order_reference", order.Reference),
		zap.Int("lines", len(order.Lines)),
	)
	return s.publisher.Publish(ctx, integration.NewOrderPlacedEvent(order))
}

// resolveLines sets the ERP reference of lines whose SKU belongs to an
// imported variant. Unknown SKUs keep a zero reference.
func (s *OrderService) resolveLines(ctx context.Context, order *integration.SaleOrder) {
	if s.catalog == nil {
		return
	}
	lines := make([]integration.SaleOrderLine, len(order.Lines))
	copy(lines, order.Lines)
	for i := range lines {
		if !lines[i].Ref.IsZero() {
			continue
		}
		product, err := s.catalog.FindProductBySKU(ctx, lines[i].SKU)
		if err != nil {
			if !errors.Is(err, integration.ErrLocalProductNotFound) {
				s.logger.Warn("failed to resolve order line",
					zap.String("sku", lines[i].SKU),
					zap.Error(err),
				)
			}
			continue
		}
		if variant := product.VariantBySKU(lines[i].SKU); variant != nil {
			lines[i].Ref = integration.StockRefOf(product, variant)
		}
	}
	order.Lines = lines
}
