// Package telemetry exposes Prometheus metrics for sync runs, HTTP requests
// and the database
package telemetry

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appintegration "github.com/mendlyio/LaCabrade-V4/internal/application/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/event"
)

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Metrics struct {
	registry *prometheus.Registry

	productsTotal   *prometheus.CounterVec
	batchesTotal    *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	stockTotal      *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	eventDeliveries *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	dbQueries       *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector under namespace
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		productsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "products_total",
			Help:      "Products processed by sync operations, by result.",
		}, []string{"operation", "result"}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "batches_total",
			Help:      "Sync batches by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of sync jobs and requests.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"job", "status"}),
		stockTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "items_total",
			Help:      "Inventory items visited by stock reconciliation, by result.",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cache_lookups_total",
			Help:      "Synced id cache lookups by result.",
		}, []string{"result"}),
		eventDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "deliveries_total",
			Help:      "Event deliveries to subscribers by type and outcome.",
		}, []string{"event_type", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request durations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		dbQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "queries_total",
			Help:      "Database queries by operation and result.",
		}, []string{"operation", "result"}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query durations by operation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.2, 0.5, 1, 5},
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.productsTotal,
		m.batchesTotal,
		m.runDuration,
		m.stockTotal,
		m.cacheLookups,
		m.eventDeliveries,
		m.httpRequests,
		m.httpDuration,
		m.dbQueries,
		m.dbQueryDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterDBStats exports the connection pool statistics of db
func (m *Metrics) RegisterDBStats(db *sql.DB, name string) error {
	err := m.registry.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// ---------------------------------------------------------------------------
// SyncMetrics
// ---------------------------------------------------------------------------

// ObserveProducts counts products written or failed by an operation
func (m *Metrics) ObserveProducts(operation string, created, updated, failed int) {
	m.productsTotal.WithLabelValues(operation, "created").Add(float64(created))
	m.productsTotal.WithLabelValues(operation, "updated").Add(float64(updated))
	m.productsTotal.WithLabelValues(operation, "failed").Add(float64(failed))
}

// ObserveBatch counts one batch by outcome
func (m *Metrics) ObserveBatch(outcome string) {
	m.batchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records how long a job or request run took
func (m *Metrics) ObserveRun(job string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.runDuration.WithLabelValues(job, status).Observe(d.Seconds())
}

// ObserveStock counts the outcome of stock reconciliation
func (m *Metrics) ObserveStock(updated, unchanged, notFound, failed int) {
	m.stockTotal.WithLabelValues("updated").Add(float64(updated))
	m.stockTotal.WithLabelValues("unchanged").Add(float64(unchanged))
	m.stockTotal.WithLabelValues("not_found").Add(float64(notFound))
	m.stockTotal.WithLabelValues("failed").Add(float64(failed))
}

// ObserveCacheLookup counts synced-id cache hits and misses
func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveEventDelivery counts one event delivery by outcome
func (m *Metrics) ObserveEventDelivery(eventType, outcome string) {
	m.eventDeliveries.WithLabelValues(eventType, outcome).Inc()
}

// ObserveHTTPRequest records one served request
func (m *Metrics) ObserveHTTPRequest(method, route string, statusCode int, d time.Duration) {
	status := classifyStatus(statusCode)
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// classifyStatus groups status codes by class
func classifyStatus(statusCode int) string {
	if statusCode < 100 || statusCode > 599 {
		return "unknown"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}

var (
	_ appintegration.SyncMetrics = (*Metrics)(nil)
	_ event.DeliveryObserver     = (*Metrics)(nil)
)
