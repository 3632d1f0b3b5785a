package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
	"go.uber.org/zap"
)

// Listing limits
const (
	DefaultListLimit = 25
	MaxListLimit     = 100
	// catalogPageSize is the page size used to enumerate the whole ERP catalog
	catalogPageSize = 100
)

// SyncService is the entry point of catalog synchronization.
// erp is nil when ERP credentials are not configured; every operation that
// needs it then fails with integration.ErrERPNotConfigured.
type SyncService struct {
	erp             integration.ERPSystem
	store           integration.CatalogStore
	cache           integration.SyncedIDCache
	controller      *BatchController
	defaultCurrency string
	publisher       shared.EventPublisher
	metrics         SyncMetrics
	logger          *zap.Logger
}

// SyncServiceOption configures a SyncService
type SyncServiceOption func(*SyncService)

// WithDefaultCurrency sets the currency shown for products without one
func WithDefaultCurrency(code string) SyncServiceOption {
	return func(s *SyncService) {
		if code != "" {
			s.defaultCurrency = code
		}
	}
}

// WithSyncMetrics sets the metrics sink
func WithSyncMetrics(metrics SyncMetrics) SyncServiceOption {
	return func(s *SyncService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithEventPublisher sets where local catalog events are published
func WithEventPublisher(publisher shared.EventPublisher) SyncServiceOption {
	return func(s *SyncService) {
		s.publisher = publisher
	}
}

// WithSyncLogger sets the logger
func WithSyncLogger(logger *zap.Logger) SyncServiceOption {
	return func(s *SyncService) {
		s.logger = logger
	}
}

// NewSyncService creates a new SyncService
func NewSyncService(
	erp integration.ERPSystem,
	store integration.CatalogStore,
	cache integration.SyncedIDCache,
	controller *BatchController,
	opts ...SyncServiceOption,
) *SyncService {
	s := &SyncService{
		erp:             erp,
		store:           store,
		cache:           cache,
		controller:      controller,
		defaultCurrency: "EUR",
		metrics:         NopMetrics{},
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether an ERP is available
func (s *SyncService) Configured() bool {
	return s.erp != nil
}

func (s *SyncService) ready(ctx context.Context) error {
	if s.erp == nil {
		return integration.ErrERPNotConfigured
	}
	return s.erp.Authenticate(ctx)
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// ListProducts returns a page of ERP products, each flagged with whether it
// is already imported locally
func (s *SyncService) ListProducts(ctx context.Context, query ListProductsQuery) (*ProductListResult, error) {
	if query.Limit == 0 {
		query.Limit = DefaultListLimit
	}
	if query.Limit < 0 || query.Offset < 0 {
		return nil, fmt.Errorf("%w: limit %d offset %d", integration.ErrInvalidPageRequest, query.Limit, query.Offset)
	}
	if query.Limit > MaxListLimit {
		query.Limit = MaxListLimit
	}

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	products, total, err := s.erp.ListProducts(ctx, query.Offset, query.Limit, query.Query)
	if err != nil {
		return nil, err
	}

	synced, err := s.SyncedIDs(ctx)
	if err != nil {
		// The listing stays usable without the flags
		s.logger.Warn("failed to load synced ids", zap.Error(err))
		synced = integration.NewIDSet()
	}

	items := make([]ProductListItem, 0, len(products))
	for i := range products {
		items = append(items, toProductListItem(&products[i], synced, s.defaultCurrency))
	}

	return &ProductListResult{
		Products: items,
		Total:    total,
		Count:    len(items),
		Limit:    query.Limit,
		Offset:   query.Offset,
		Query:    query.Query,
	}, nil
}

// SyncedIDs returns the external ids imported locally, through the cache
func (s *SyncService) SyncedIDs(ctx context.Context) (integration.IDSet, error) {
	if s.cache != nil {
		ids, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("synced id cache read failed", zap.Error(err))
		} else if ok {
			s.metrics.ObserveCacheLookup(true)
			return ids, nil
		}
	}
	s.metrics.ObserveCacheLookup(false)

	products, err := s.store.ListImportedProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list imported products: %w", err)
	}
	ids := make(integration.IDSet, len(products))
	for _, p := range products {
		ids[p.ExternalID] = struct{}{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, ids); err != nil {
			s.logger.Warn("synced id cache write failed", zap.Error(err))
		}
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Synchronous syncs
// ---------------------------------------------------------------------------

// SyncProducts syncs one page of the ERP catalog
func (s *SyncService) SyncProducts(ctx context.Context, req SyncRequest) (*integration.SyncResult, error) {
	start := time.Now()
	if req.Limit <= 0 {
		req.Limit = s.controller.BatchSize()
	}
	if req.Limit > MaxListLimit {
		req.Limit = MaxListLimit
	}
	if req.Offset < 0 {
		return nil, fmt.Errorf("%w: offset %d", integration.ErrInvalidPageRequest, req.Offset)
	}

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	page, _, err := s.erp.ListProducts(ctx, req.Offset, req.Limit, "")
	if err != nil {
		s.metrics.ObserveRun("sync", time.Since(start), err)
		return nil, err
	}
	ids := make([]int64, 0, len(page))
	for _, p := range page {
		ids = append(ids, p.ID)
	}

	result, err := s.syncIDs(ctx, ids, req.DryRun)
	s.metrics.ObserveRun("sync", time.Since(start), err)
	return result, err
}

// SyncSelected syncs the given ERP product ids in one pass
func (s *SyncService) SyncSelected(ctx context.Context, ids []int64) (*integration.SyncResult, error) {
	start := time.Now()
	if len(ids) == 0 {
		return nil, integration.ErrEmptyProductSelection
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	result, err := s.syncIDs(ctx, ids, false)
	s.metrics.ObserveRun("sync_selected", time.Since(start), err)
	return result, err
}

func (s *SyncService) syncIDs(ctx context.Context, ids []int64, dryRun bool) (*integration.SyncResult, error) {
	if len(ids) == 0 {
		result := &integration.SyncResult{DryRun: dryRun}
		result.Finalize(time.Now())
		return result, nil
	}

	result, err := s.controller.SyncIDs(ctx, ids, dryRun)
	if err != nil {
		s.logger.Error("sync failed", zap.Int64s("product_ids", ids), zap.Error(err))
		return nil, err
	}

	if !dryRun && result.SuccessCount() > 0 {
		s.invalidateCache(ctx)
	}
	s.metrics.ObserveProducts("sync", result.CreatedCount, result.UpdatedCount, result.FailedCount)

	s.logger.Info("sync complete",
		zap.String("status", result.Status.String()),
		zap.Int("total", result.TotalCount),
		zap.Int("created", result.CreatedCount),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("failed", result.FailedCount),
		zap.Bool("dry_run", dryRun),
	)
	return result, nil
}

// ---------------------------------------------------------------------------
// Batched syncs
// ---------------------------------------------------------------------------

// SyncBatched runs a batched sync of ids and streams its progress to emit.
// A failure before the first batch is emitted as an error event.
func (s *SyncService) SyncBatched(ctx context.Context, ids []int64, emit integration.ProgressFunc) (RunStats, error) {
	start := time.Now()
	if emit == nil {
		emit = func(integration.ProgressEvent) {}
	}

	if len(ids) == 0 {
		emit(integration.NewErrorEvent(integration.ErrEmptyProductSelection))
		return RunStats{}, integration.ErrEmptyProductSelection
	}
	if err := s.ready(ctx); err != nil {
		s.logger.Error("batched sync cannot start", zap.Error(err))
		emit(integration.NewErrorEvent(err))
		return RunStats{}, err
	}

	stats := s.controller.Run(ctx, ids, emit)
	s.metrics.ObserveRun("sync_batch", time.Since(start), nil)
	return stats, nil
}

// Resync re-imports every product already imported locally
func (s *SyncService) Resync(ctx context.Context) (RunStats, error) {
	start := time.Now()
	if err := s.ready(ctx); err != nil {
		return RunStats{}, err
	}

	products, err := s.store.ListImportedProducts(ctx)
	if err != nil {
		return RunStats{}, fmt.Errorf("list imported products: %w", err)
	}
	ids := externalIDsOf(products, s.logger)

	s.logger.Info("resyncing imported products", zap.Int("count", len(ids)))
	stats := s.controller.Run(ctx, ids, nil)
	s.metrics.ObserveRun("resync", time.Since(start), nil)
	return stats, nil
}

// SyncAll pages through the whole ERP catalog and syncs every product.
// It backs the daily full catalog job.
func (s *SyncService) SyncAll(ctx context.Context) (RunStats, error) {
	start := time.Now()
	if err := s.ready(ctx); err != nil {
		return RunStats{}, err
	}

	var ids []int64
	for offset := 0; ; offset += catalogPageSize {
		page, total, err := s.erp.ListProducts(ctx, offset, catalogPageSize, "")
		if err != nil {
			s.metrics.ObserveRun("sync_all", time.Since(start), err)
			return RunStats{}, fmt.Errorf("list erp products at offset %d: %w", offset, err)
		}
		for _, p := range page {
			ids = append(ids, p.ID)
		}
		if len(page) < catalogPageSize || offset+len(page) >= total {
			break
		}
	}

	s.logger.Info("syncing full erp catalog", zap.Int("count", len(ids)))
	stats := s.controller.Run(ctx, ids, nil)
	s.metrics.ObserveRun("sync_all", time.Since(start), nil)
	return stats, nil
}

// ---------------------------------------------------------------------------
// Local catalog changes
// ---------------------------------------------------------------------------

// DeleteProduct soft-deletes a local product and publishes ProductDeletedEvent
func (s *SyncService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	product, err := s.store.FindProductByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.logger.Info("product deleted",
		zap.String("product_id", id.String()),
		zap.String("external_id", product.ExternalID),
	)

	if s.publisher == nil {
		s.invalidateCache(ctx)
		return nil
	}
	return s.publisher.Publish(ctx, integration.NewProductDeletedEvent(id, product.ExternalID))
}

// InvalidateSyncedIDs drops the synced-id cache
func (s *SyncService) InvalidateSyncedIDs(ctx context.Context) {
	s.invalidateCache(ctx)
}

func (s *SyncService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate synced id cache", zap.Error(err))
	}
}

// externalIDsOf parses the external ids of imported products. Malformed tags
// are logged and skipped.
func externalIDsOf(products []integration.LocalProduct, logger *zap.Logger) []int64 {
	ids := make([]int64, 0, len(products))
	seen := make(map[int64]struct{}, len(products))
	for _, p := range products {
		id, err := integration.ParseExternalID(p.ExternalID)
		if err != nil {
			logger.Warn("skipping product with malformed external id",
				zap.String("product_id", p.ID.String()),
				zap.String("external_id", p.ExternalID),
			)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// IsConfigurationError reports whether err means the ERP is not configured
func IsConfigurationError(err error) bool {
	return errors.Is(err, integration.ErrERPNotConfigured)
}
