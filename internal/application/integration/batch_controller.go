package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"go.uber.org/zap"
)

// RunStats aggregates the counters of a batched run
type RunStats struct {
	Total     int                       `json:"total"`
	Batches   int                       `json:"batches"`
	Created   int                       `json:"created"`
	Updated   int                       `json:"updated"`
	Errors    int                       `json:"errors"`
	Processed int                       `json:"processed"`
	Failures  []integration.SyncFailure `json:"failures,omitempty"`
}

// Success reports whether at least one product went through, matching the
// success flag of the complete event
func (s *RunStats) Success() bool {
	return s.Errors < s.Total || s.Total == 0
}

// BatchController runs reconciliation over id sets in fixed-size batches.
// Batches run one after the other and never overlap within a run.
type BatchController struct {
	erp       integration.ERPSystem
	store     integration.ProductReader
	executor  *UpsertExecutor
	cache     integration.SyncedIDCache
	batchSize int
	metrics   SyncMetrics
	logger    *zap.Logger
}

// BatchOption configures a BatchController
type BatchOption func(*BatchController)

// WithBatchSize sets the number of products per batch
func WithBatchSize(size int) BatchOption {
	return func(c *BatchController) {
		if size > 0 {
			c.batchSize = size
		}
	}
}

// WithBatchMetrics sets the metrics sink
func WithBatchMetrics(metrics SyncMetrics) BatchOption {
	return func(c *BatchController) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

// WithBatchLogger sets the logger
func WithBatchLogger(logger *zap.Logger) BatchOption {
	return func(c *BatchController) {
		c.logger = logger
	}
}

// NewBatchController creates a new BatchController
func NewBatchController(
	erp integration.ERPSystem,
	store integration.ProductReader,
	executor *UpsertExecutor,
	cache integration.SyncedIDCache,
	opts ...BatchOption,
) *BatchController {
	c := &BatchController{
		erp:       erp,
		store:     store,
		executor:  executor,
		cache:     cache,
		batchSize: integration.DefaultBatchSize,
		metrics:   NopMetrics{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BatchSize returns the configured batch size
func (c *BatchController) BatchSize() int {
	return c.batchSize
}

// Run syncs ids batch by batch and reports progress through emit, which may
// be nil. A batch that fails as a whole counts all its ids as errors and the
// run continues. The synced-id cache is invalidated once at the end when
// anything was written.
func (c *BatchController) Run(ctx context.Context, ids []int64, emit integration.ProgressFunc) RunStats {
	if emit == nil {
		emit = func(integration.ProgressEvent) {}
	}

	batches := integration.SplitBatches(ids, c.batchSize)
	stats := RunStats{Total: len(ids), Batches: len(batches)}

	c.logger.Info("starting batched sync",
		zap.Int("total", stats.Total),
		zap.Int("batches", stats.Batches),
		zap.Int("batch_size", c.batchSize),
	)
	emit(integration.NewStartEvent(stats.Total, stats.Batches))

	for i, chunk := range batches {
		batchNum := i + 1
		emit(integration.NewBatchStartEvent(batchNum, stats.Batches, chunk))

		result, err := c.SyncIDs(ctx, chunk, false)
		stats.Processed += len(chunk)

		if err != nil {
			stats.Errors += len(chunk)
			for _, id := range chunk {
				stats.Failures = append(stats.Failures, integration.NewSyncFailure(integration.ExternalIDString(id), err))
			}
			c.metrics.ObserveBatch("error")
			c.logger.Error("batch failed",
				zap.Int("batch", batchNum),
				zap.Int("batches", stats.Batches),
				zap.Int64s("product_ids", chunk),
				zap.Error(err),
			)
			emit(integration.NewBatchErrorEvent(batchNum, err, stats.Processed, stats.Total))
			continue
		}

		stats.Created += result.CreatedCount
		stats.Updated += result.UpdatedCount
		stats.Errors += result.FailedCount
		stats.Failures = append(stats.Failures, result.FailedItems...)
		c.metrics.ObserveBatch("complete")

		c.logger.Info("batch complete",
			zap.Int("batch", batchNum),
			zap.Int("batches", stats.Batches),
			zap.Int("created", result.CreatedCount),
			zap.Int("updated", result.UpdatedCount),
			zap.Int("failed", result.FailedCount),
		)
		emit(integration.NewBatchCompleteEvent(batchNum, result.CreatedCount, result.UpdatedCount, stats.Processed, stats.Total))
	}

	if stats.Created+stats.Updated > 0 {
		c.invalidateCache(ctx)
	}
	c.metrics.ObserveProducts("batch", stats.Created, stats.Updated, stats.Errors)

	c.logger.Info("batched sync complete",
		zap.Int("total", stats.Total),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", stats.Errors),
	)
	emit(integration.NewCompleteEvent(stats.Total, stats.Created, stats.Updated, stats.Errors))

	return stats
}

// SyncIDs reads ids from the ERP and reconciles them. Ids the ERP no longer
// returns are reported as failures. The cache is left untouched.
func (c *BatchController) SyncIDs(ctx context.Context, ids []int64, dryRun bool) (*integration.SyncResult, error) {
	products, err := c.erp.ReadProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read products: %w", err)
	}

	result, err := c.SyncProducts(ctx, products, dryRun)
	if err != nil {
		return nil, err
	}

	returned := make(map[int64]struct{}, len(products))
	for _, p := range products {
		returned[p.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := returned[id]; ok {
			continue
		}
		c.logger.Warn("product not returned by erp", zap.Int64("product_id", id))
		result.TotalCount++
		result.FailedItems = append(result.FailedItems, integration.NewSyncFailure(
			integration.ExternalIDString(id),
			fmt.Errorf("%w: product %d not found", integration.ErrERPInvalidResponse, id),
		))
	}
	result.Finalize(time.Now())
	return result, nil
}

// SyncProducts reconciles ERP products already read against the local
// catalog and applies the resulting plan
func (c *BatchController) SyncProducts(ctx context.Context, products []integration.ExternalProduct, dryRun bool) (*integration.SyncResult, error) {
	result := &integration.SyncResult{
		Status:     integration.SyncStatusInProgress,
		TotalCount: len(products),
		DryRun:     dryRun,
	}
	if len(products) == 0 {
		result.Finalize(time.Now())
		return result, nil
	}

	externalIDs := make([]string, 0, len(products))
	for i := range products {
		externalIDs = append(externalIDs, products[i].ExternalIDString())
	}

	locals, err := c.store.ListProductsByExternalIDs(ctx, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("list local products: %w", err)
	}

	index := integration.NewExternalRefIndex(locals)
	for _, dup := range index.Duplicates() {
		c.logger.Warn("external id tagged on several local products, keeping the first",
			zap.String("external_id", dup.ExternalID),
			zap.String("kept_product_id", dup.KeptID.String()),
			zap.String("ignored_product_id", dup.IgnoredID.String()),
		)
	}

	plan := integration.Reconcile(products, index)
	for _, f := range plan.Failures {
		c.logger.Error("failed to normalize product",
			zap.String("external_id", f.ItemID),
			zap.String("code", f.ErrorCode),
			zap.String("error", f.ErrorMessage),
		)
	}

	c.logger.Debug("reconciliation plan",
		zap.Int("to_create", len(plan.ToCreate)),
		zap.Int("to_update", len(plan.ToUpdate)),
		zap.Int("failed", len(plan.Failures)),
		zap.Bool("dry_run", dryRun),
	)

	outcome := c.executor.Apply(ctx, plan, dryRun)

	result.CreatedCount = outcome.Created
	result.UpdatedCount = outcome.Updated
	result.FailedItems = append(append(result.FailedItems, plan.Failures...), outcome.Failures...)
	result.Finalize(time.Now())
	return result, nil
}

func (c *BatchController) invalidateCache(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx); err != nil {
		c.logger.Warn("failed to invalidate synced id cache", zap.Error(err))
	}
}
