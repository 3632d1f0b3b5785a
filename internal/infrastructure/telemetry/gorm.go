package telemetry

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

const startTimeKey = "telemetry:start"

// GormPlugin counts and times GORM operations
type GormPlugin struct {
	metrics *Metrics
}

// NewGormPlugin creates a plugin recording into metrics
func NewGormPlugin(metrics *Metrics) *GormPlugin {
	return &GormPlugin{metrics: metrics}
}

// Name returns the plugin name
func (p *GormPlugin) Name() string {
	return "telemetry:db_metrics"
}

// Initialize registers before/after callbacks on every operation type
func (p *GormPlugin) Initialize(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startTimeKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			p.record(tx, operation)
		}
	}

	cb := db.Callback()
	registrations := []struct {
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
		op     string
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register, "INSERT"},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register, "SELECT"},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register, "UPDATE"},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register, "DELETE"},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register, ""},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register, ""},
	}
	for _, r := range registrations {
		if err := r.before("telemetry:before_"+r.name, before); err != nil {
			return err
		}
		if err := r.after("telemetry:after_"+r.name, after(r.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *GormPlugin) record(tx *gorm.DB, operation string) {
	if operation == "" {
		operation = detectOperation(tx.Statement.SQL.String())
	}
	result := "success"
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		result = "error"
	}
	p.metrics.dbQueries.WithLabelValues(operation, result).Inc()

	if v, ok := tx.InstanceGet(startTimeKey); ok {
		if start, ok := v.(time.Time); ok {
			p.metrics.dbQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		}
	}
}

// detectOperation reads the leading SQL keyword of raw statements
func detectOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	switch op := strings.ToUpper(fields[0]); op {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return op
	case "WITH":
		return "SELECT"
	default:
		return "OTHER"
	}
}

// Ensure GormPlugin implements gorm.Plugin
var _ gorm.Plugin = (*GormPlugin)(nil)
