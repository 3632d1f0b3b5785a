package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
	"go.uber.org/zap"
)

var (
	// ErrMissingSKU is returned when a stock notification carries no SKU
	ErrMissingSKU = errors.New("integration: sku is required")
	// ErrNegativeQuantity rejects a local stock change below zero
	ErrNegativeQuantity = shared.NewDomainError("INVALID_QUANTITY", "quantity cannot be negative")
)

// StockPullStats contains statistics about a stock pull run
type StockPullStats struct {
	Checked   int       `json:"checked"`
	Updated   int       `json:"updated"`
	Unchanged int       `json:"unchanged"`
	Skipped   int       `json:"skipped"`
	NotFound  int       `json:"not_found"`
	Errors    int       `json:"errors"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

// ModifiedSyncStats contains statistics about a modified-since run
type ModifiedSyncStats struct {
	Checked      int      `json:"checked"`
	Changed      int      `json:"changed"`
	FailedChunks int      `json:"failed_chunks"`
	Run          RunStats `json:"run"`
}

// stockTarget is an imported variant checked by a stock pull
type stockTarget struct {
	variant *integration.LocalVariant
	ref     integration.StockRef
}

// StockService reconciles stock levels between the ERP and the local catalog
type StockService struct {
	erp        integration.ERPSystem
	store      integration.CatalogStore
	controller *BatchController
	publisher  shared.EventPublisher
	metrics    SyncMetrics
	logger     *zap.Logger
}

// StockServiceOption configures a StockService
type StockServiceOption func(*StockService)

// WithStockEventPublisher sets where local inventory changes are published
func WithStockEventPublisher(publisher shared.EventPublisher) StockServiceOption {
	return func(s *StockService) {
		s.publisher = publisher
	}
}

// WithStockMetrics sets the metrics sink
func WithStockMetrics(metrics SyncMetrics) StockServiceOption {
	return func(s *StockService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithStockLogger sets the logger
func WithStockLogger(logger *zap.Logger) StockServiceOption {
	return func(s *StockService) {
		s.logger = logger
	}
}

// NewStockService creates a new StockService
func NewStockService(
	erp integration.ERPSystem,
	store integration.CatalogStore,
	controller *BatchController,
	opts ...StockServiceOption,
) *StockService {
	s := &StockService{
		erp:        erp,
		store:      store,
		controller: controller,
		metrics:    NopMetrics{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StockService) ready(ctx context.Context) error {
	if s.erp == nil {
		return integration.ErrERPNotConfigured
	}
	return s.erp.Authenticate(ctx)
}

// ---------------------------------------------------------------------------
// ERP -> local
// ---------------------------------------------------------------------------

// PullStock reads the ERP stock of every imported variant and writes the
// local level when it differs. Per-variant failures are counted and the run
// goes on.
func (s *StockService) PullStock(ctx context.Context) (*StockPullStats, error) {
	stats := &StockPullStats{StartedAt: time.Now()}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	products, err := s.store.ListImportedProducts(ctx)
	if err != nil {
		s.metrics.ObserveRun("stock_pull", time.Since(stats.StartedAt), err)
		return nil, fmt.Errorf("list imported products: %w", err)
	}

	var targets []stockTarget
	var skus []string
	for i := range products {
		p := &products[i]
		for j := range p.Variants {
			v := &p.Variants[j]
			if strings.TrimSpace(v.SKU) == "" {
				stats.Skipped++
				continue
			}
			targets = append(targets, stockTarget{variant: v, ref: integration.StockRefOf(p, v)})
			skus = append(skus, v.SKU)
		}
	}
	if len(targets) == 0 {
		s.logger.Debug("no imported variant with a sku")
		stats.Duration = time.Since(stats.StartedAt).String()
		return stats, nil
	}

	items, err := s.store.ListInventoryItemsBySKU(ctx, skus)
	if err != nil {
		s.metrics.ObserveRun("stock_pull", time.Since(stats.StartedAt), err)
		return nil, fmt.Errorf("list inventory items: %w", err)
	}
	byVariant := make(map[uuid.UUID]*integration.InventoryItem, len(items))
	for i := range items {
		byVariant[items[i].VariantID] = &items[i]
	}

	for _, target := range targets {
		stats.Checked++
		sku := target.variant.SKU

		item, ok := byVariant[target.variant.ID]
		if !ok || len(item.Levels) == 0 {
			s.logger.Debug("no inventory level for sku", zap.String("sku", sku))
			stats.Skipped++
			continue
		}

		erpQty, err := s.erp.ReadStock(ctx, target.ref)
		if errors.Is(err, integration.ErrStockNotFound) {
			s.logger.Debug("sku not found in erp",
				zap.String("sku", sku),
				zap.Stringer("ref", target.ref),
			)
			stats.NotFound++
			continue
		}
		if err != nil {
			s.logger.Error("failed to read erp stock",
				zap.String("sku", sku),
				zap.Stringer("ref", target.ref),
				zap.Error(err),
			)
			stats.Errors++
			continue
		}

		level := item.Levels[0]
		want := integration.LocalQuantity(erpQty)
		if level.StockedQuantity == want {
			stats.Unchanged++
			continue
		}

		if err := s.store.UpsertInventoryLevel(ctx, item.ID, level.LocationID, want); err != nil {
			s.logger.Error("failed to update inventory level",
				zap.String("sku", sku),
				zap.Int("from", level.StockedQuantity),
				zap.Int("to", want),
				zap.Error(err),
			)
			stats.Errors++
			continue
		}
		s.logger.Debug("stock updated",
			zap.String("sku", sku),
			zap.Int("from", level.StockedQuantity),
			zap.Int("to", want),
		)
		stats.Updated++
	}

	stats.Duration = time.Since(stats.StartedAt).String()
	s.metrics.ObserveStock(stats.Updated, stats.Unchanged, stats.NotFound, stats.Errors)
	s.metrics.ObserveRun("stock_pull", time.Since(stats.StartedAt), nil)

	s.logger.Info("stock pull complete",
		zap.Int("checked", stats.Checked),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("skipped", stats.Skipped),
		zap.Int("not_found", stats.NotFound),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

// SyncModified re-syncs the imported products modified in the ERP since
// their last local update. It is a no-op when nothing changed.
func (s *StockService) SyncModified(ctx context.Context) (*ModifiedSyncStats, error) {
	start := time.Now()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	products, err := s.store.ListImportedProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list imported products: %w", err)
	}

	// With duplicate tags the most recent local update counts
	localUpdatedAt := make(map[int64]time.Time, len(products))
	for _, p := range products {
		id, err := integration.ParseExternalID(p.ExternalID)
		if err != nil {
			continue
		}
		if current, ok := localUpdatedAt[id]; !ok || p.UpdatedAt.After(current) {
			localUpdatedAt[id] = p.UpdatedAt
		}
	}
	ids := externalIDsOf(products, s.logger)

	stats := &ModifiedSyncStats{Checked: len(ids)}

	var changed []int64
	var lastErr error
	chunks := integration.SplitBatches(ids, s.controller.BatchSize())
	for _, chunk := range chunks {
		stamps, err := s.erp.ReadModificationTimes(ctx, chunk)
		if err != nil {
			s.logger.Error("failed to read modification times",
				zap.Int64s("product_ids", chunk),
				zap.Error(err),
			)
			stats.FailedChunks++
			lastErr = err
			continue
		}
		for _, stamp := range stamps {
			local, ok := localUpdatedAt[stamp.ID]
			if ok && stamp.ModifiedAt.After(local) {
				changed = append(changed, stamp.ID)
			}
		}
	}

	stats.Changed = len(changed)
	if len(chunks) > 0 && stats.FailedChunks == len(chunks) {
		err := fmt.Errorf("read modification times: all %d chunk(s) failed: %w", len(chunks), lastErr)
		s.metrics.ObserveRun("sync_modified", time.Since(start), err)
		return stats, err
	}
	if len(changed) == 0 {
		s.logger.Debug("no product modified in erp", zap.Int("checked", stats.Checked))
		s.metrics.ObserveRun("sync_modified", time.Since(start), nil)
		return stats, nil
	}

	s.logger.Info("products modified in erp",
		zap.Int("count", len(changed)),
		zap.Int("failed_chunks", stats.FailedChunks),
	)
	stats.Run = s.controller.Run(ctx, changed, nil)
	s.metrics.ObserveRun("sync_modified", time.Since(start), nil)
	return stats, nil
}

// HandleStockWebhook applies a stock change pushed by the ERP to the local
// level of the SKU. An item without level gets one at the default location.
func (s *StockService) HandleStockWebhook(ctx context.Context, req StockWebhookRequest) (*StockWebhookResult, error) {
	sku := strings.TrimSpace(req.SKU)
	if sku == "" {
		return nil, ErrMissingSKU
	}

	item, err := s.findItem(ctx, sku)
	if err != nil {
		return nil, err
	}

	target := integration.LocalQuantity(req.QtyAvailable)
	result := &StockWebhookResult{SKU: sku, Quantity: target}

	if len(item.Levels) > 0 {
		level := item.Levels[0]
		result.PreviousQuantity = level.StockedQuantity
		if level.StockedQuantity == target {
			return result, nil
		}
		if err := s.store.UpsertInventoryLevel(ctx, item.ID, level.LocationID, target); err != nil {
			return nil, fmt.Errorf("update inventory level: %w", err)
		}
	} else {
		locations, err := s.store.ListStockLocations(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stock locations: %w", err)
		}
		location, err := integration.DefaultStockLocation(locations)
		if err != nil {
			return nil, err
		}
		if err := s.store.UpsertInventoryLevel(ctx, item.ID, location.ID, target); err != nil {
			return nil, fmt.Errorf("create inventory level: %w", err)
		}
	}

	result.Changed = true
	s.logger.Info("stock updated from erp webhook",
		zap.Int64("erp_product_id", req.ProductID),
		zap.String("sku", sku),
		zap.Int("from", result.PreviousQuantity),
		zap.Int("to", target),
	)
	return result, nil
}

// ---------------------------------------------------------------------------
// local -> ERP
// ---------------------------------------------------------------------------

// SetLocalStock sets the local stocked quantity of a SKU and publishes
// InventoryUpdatedEvent so the change reaches the ERP
func (s *StockService) SetLocalStock(ctx context.Context, sku string, quantity int) error {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return ErrMissingSKU
	}
	if quantity < 0 {
		return ErrNegativeQuantity
	}

	item, err := s.findItem(ctx, sku)
	if err != nil {
		return err
	}

	var locationID uuid.UUID
	if len(item.Levels) > 0 {
		locationID = item.Levels[0].LocationID
	} else {
		locations, err := s.store.ListStockLocations(ctx)
		if err != nil {
			return fmt.Errorf("list stock locations: %w", err)
		}
		location, err := integration.DefaultStockLocation(locations)
		if err != nil {
			return err
		}
		locationID = location.ID
	}

	if err := s.store.UpsertInventoryLevel(ctx, item.ID, locationID, quantity); err != nil {
		return fmt.Errorf("update inventory level: %w", err)
	}

	if s.publisher == nil {
		return s.PushStock(ctx, sku, quantity)
	}
	return s.publisher.Publish(ctx, integration.NewInventoryUpdatedEvent(sku, quantity))
}

// PushStock writes a local quantity to the ERP
func (s *StockService) PushStock(ctx context.Context, sku string, quantity int) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	ref := s.stockRef(ctx, sku)
	if err := s.erp.WriteStock(ctx, ref, float64(quantity)); err != nil {
		return fmt.Errorf("write erp stock for %s: %w", sku, err)
	}
	s.logger.Info("stock pushed to erp",
		zap.String("sku", sku),
		zap.Stringer("ref", ref),
		zap.Int("quantity", quantity),
	)
	return nil
}

// stockRef resolves the ERP reference of a SKU through the live variant
// carrying it. A SKU unknown locally is taken as an ERP code.
func (s *StockService) stockRef(ctx context.Context, sku string) integration.StockRef {
	product, err := s.store.FindProductBySKU(ctx, sku)
	if err != nil {
		if !errors.Is(err, integration.ErrLocalProductNotFound) {
			s.logger.Warn("failed to resolve sku, using it as erp code",
				zap.String("sku", sku),
				zap.Error(err),
			)
		}
		return integration.CodeRef(sku)
	}
	variant := product.VariantBySKU(sku)
	if variant == nil {
		return integration.CodeRef(sku)
	}
	return integration.StockRefOf(product, variant)
}

func (s *StockService) findItem(ctx context.Context, sku string) (*integration.InventoryItem, error) {
	items, err := s.store.ListInventoryItemsBySKU(ctx, []string{sku})
	if err != nil {
		return nil, fmt.Errorf("list inventory items: %w", err)
	}
	for i := range items {
		if items[i].SKU == sku {
			return &items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", integration.ErrInventoryItemMissing, sku)
}
