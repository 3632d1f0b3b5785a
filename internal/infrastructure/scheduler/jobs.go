package scheduler

import (
	"context"
	"fmt"

	appintegration "github.com/mendlyio/LaCabrade-V4/internal/application/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/config"
)

// Catalog job names
const (
	JobStockPull    = "stock_pull"
	JobSyncModified = "sync_modified"
	JobFullSync     = "full_sync"
)

// CatalogSyncer runs the full catalog sync
type CatalogSyncer interface {
	SyncAll(ctx context.Context) (appintegration.RunStats, error)
}

// StockReconciler runs the stock and modified-since jobs
type StockReconciler interface {
	PullStock(ctx context.Context) (*appintegration.StockPullStats, error)
	SyncModified(ctx context.Context) (*appintegration.ModifiedSyncStats, error)
}

// CatalogJobs builds the stock pull, modified-since and daily full sync jobs
func CatalogJobs(cfg config.SchedulerConfig, syncer CatalogSyncer, stock StockReconciler) ([]Job, error) {
	daily, err := ParseDailySchedule(cfg.FullSyncSchedule)
	if err != nil {
		return nil, fmt.Errorf("scheduler.full_sync_schedule: %w", err)
	}
	if cfg.StockInterval <= 0 || cfg.ModifiedInterval <= 0 {
		return nil, fmt.Errorf("%w: job intervals must be positive", ErrInvalidSchedule)
	}

	return []Job{
		{
			Name:    JobStockPull,
			Trigger: Every(cfg.StockInterval),
			Run: func(ctx context.Context) error {
				_, err := stock.PullStock(ctx)
				return err
			},
		},
		{
			Name:    JobSyncModified,
			Trigger: Every(cfg.ModifiedInterval),
			Run: func(ctx context.Context) error {
				_, err := stock.SyncModified(ctx)
				return err
			},
		},
		{
			Name:    JobFullSync,
			Trigger: daily,
			Run: func(ctx context.Context) error {
				stats, err := syncer.SyncAll(ctx)
				if err != nil {
					return err
				}
				if !stats.Success() {
					return fmt.Errorf("full sync finished with %d errors over %d products", stats.Errors, stats.Total)
				}
				return nil
			},
		},
	}, nil
}
