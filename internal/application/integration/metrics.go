package integration

import "time"

// SyncMetrics records sync outcomes. Implementations must be safe for
// concurrent use since scheduled jobs and HTTP-triggered runs overlap.
type SyncMetrics interface {
	// ObserveProducts counts products written or failed by an operation
	ObserveProducts(operation string, created, updated, failed int)
	// ObserveBatch counts one batch by outcome ("complete" or "error")
	ObserveBatch(outcome string)
	// ObserveRun records how long a job or request run took
	ObserveRun(job string, d time.Duration, err error)
	// ObserveStock counts the outcome of stock reconciliation
	ObserveStock(updated, unchanged, notFound, failed int)
	// ObserveCacheLookup counts synced-id cache hits and misses
	ObserveCacheLookup(hit bool)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) ObserveProducts(string, int, int, int) {}
func (NopMetrics) ObserveBatch(string) {}
func (NopMetrics) ObserveRun(string, time.Duration, error) {}
func (NopMetrics) ObserveStock(int, int, int, int) {}
func (NopMetrics) ObserveCacheLookup(bool) {}

var _ SyncMetrics = NopMetrics{}
