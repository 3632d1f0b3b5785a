package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "lacabrade", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, DriverPostgres, cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
		assert.False(t, cfg.Redis.Enabled)

		assert.Equal(t, 10, cfg.Sync.BatchSize)
		assert.Equal(t, 30*time.Second, cfg.Sync.CacheTTL)
		assert.Equal(t, "eur", cfg.Sync.DefaultCurrency)
		assert.False(t, cfg.Sync.ReplaceVariantPrices)
		assert.Equal(t, 15*time.Minute, cfg.Scheduler.StockInterval)
		assert.Equal(t, 2*time.Hour, cfg.Scheduler.ModifiedInterval)
		assert.Equal(t, "0 3 * * *", cfg.Scheduler.FullSyncSchedule)
		assert.Equal(t, 30*time.Second, cfg.ERP.Timeout)
		assert.False(t, cfg.ERP.Configured())
		assert.Equal(t, "/metrics", cfg.Metrics.Path)
		assert.Equal(t, 15*time.Second, cfg.HTTP.SSEHeartbeat)
	})

	t.Run("loads values from environment variables with LACABRADE prefix", func(t *testing.T) {
		t.Setenv("LACABRADE_APP_PORT", "9000")
		t.Setenv("LACABRADE_DATABASE_DRIVER", "sqlite")
		t.Setenv("LACABRADE_DATABASE_PATH", ":memory:")
		t.Setenv("LACABRADE_ERP_URL", "https://erp.example.com")
		t.Setenv("LACABRADE_ERP_DATABASE", "shop")
		t.Setenv("LACABRADE_ERP_USERNAME", "sync@example.com")
		t.Setenv("LACABRADE_ERP_API_KEY", "secret")
		t.Setenv("LACABRADE_ERP_RATE_LIMIT", "2.5")
		t.Setenv("LACABRADE_SYNC_BATCH_SIZE", "25")
		t.Setenv("LACABRADE_SYNC_CACHE_TTL", "1m")
		t.Setenv("LACABRADE_SYNC_REPLACE_VARIANT_PRICES", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, DriverSQLite, cfg.Database.Driver)
		assert.Equal(t, ":memory:", cfg.Database.DSN())
		assert.True(t, cfg.ERP.Configured())
		assert.Equal(t, 2.5, cfg.ERP.RateLimit)
		assert.Equal(t, 25, cfg.Sync.BatchSize)
		assert.Equal(t, time.Minute, cfg.Sync.CacheTTL)
		assert.True(t, cfg.Sync.ReplaceVariantPrices)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("LACABRADE_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("LACABRADE_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown driver",
			env:     map[string]string{"LACABRADE_DATABASE_DRIVER": "mysql"},
			wantErr: "database.driver",
		},
		{
			name:    "negative idle conns",
			env:     map[string]string{"LACABRADE_DATABASE_MAX_IDLE_CONNS": "-1"},
			wantErr: "cannot be negative",
		},
		{
			name:    "negative batch size",
			env:     map[string]string{"LACABRADE_SYNC_BATCH_SIZE": "-5"},
			wantErr: "sync.batch_size",
		},
		{
			name:    "invalid erp url",
			env:     map[string]string{"LACABRADE_ERP_URL": "not a url"},
			wantErr: "erp.url",
		},
		{
			name:    "storage without bucket",
			env:     map[string]string{"LACABRADE_STORAGE_ENABLED": "true"},
			wantErr: "storage.bucket",
		},
		{
			name:    "bad cron schedule",
			env:     map[string]string{"LACABRADE_SCHEDULER_FULL_SYNC_SCHEDULE": "daily"},
			wantErr: "full_sync_schedule",
		},
		{
			name:    "production requires database password",
			env:     map[string]string{"LACABRADE_APP_ENV": "production"},
			wantErr: "database.password",
		},
		{
			name: "production rejects wildcard cors",
			env: map[string]string{
				"LACABRADE_APP_ENV":                 "production",
				"LACABRADE_DATABASE_PASSWORD":       "pw",
				"LACABRADE_DATABASE_SSLMODE":        "require",
				"LACABRADE_HTTP_CORS_ALLOW_ORIGINS": "*",
			},
			wantErr: "cors_allow_origins",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[erp]
url = "https://erp.example.com"
database = "shop"
username = "sync"
api_key = "k"

[sync]
batch_size = 5
default_currency = "usd"

[scheduler]
enabled = true
full_sync_schedule = "30 4 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.ERP.Configured())
	assert.Equal(t, 5, cfg.Sync.BatchSize)
	assert.Equal(t, "usd", cfg.Sync.DefaultCurrency)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "30 4 * * *", cfg.Scheduler.FullSyncSchedule)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     "db",
		Port:     5432,
		User:     "app",
		Password: "p@ss word",
		DBName:   "lacabrade",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://app:p%40ss%20word@db:5432/lacabrade?sslmode=disable", d.DSN())
}
