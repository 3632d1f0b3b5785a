package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type widget struct {
	ID   uint
	Name string
}

func TestGormPlugin(t *testing.T) {
	m := NewMetrics("test")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&widget{}))
	require.NoError(t, db.Use(NewGormPlugin(m)))

	require.NoError(t, db.Create(&widget{Name: "a"}).Error)
	var found widget
	require.NoError(t, db.First(&found).Error)
	err = db.First(&found, 999).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, db.Exec("DELETE FROM widgets").Error)
	require.Error(t, db.Exec("SELECT * FROM missing_table").Error)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbQueries.WithLabelValues("INSERT", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dbQueries.WithLabelValues("SELECT", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbQueries.WithLabelValues("DELETE", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbQueries.WithLabelValues("SELECT", "error")))

	require.NoError(t, m.RegisterDBStats(sqlDB, "test"))
	require.NoError(t, m.RegisterDBStats(sqlDB, "test"))
}

func TestDetectOperation(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT 1", "SELECT"},
		{"  insert into x values(1)", "INSERT"},
		{"WITH t AS (SELECT 1) SELECT * FROM t", "SELECT"},
		{"VACUUM", "OTHER"},
		{"", "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectOperation(tt.sql), tt.sql)
	}
}
