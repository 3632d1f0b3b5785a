package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantLevel zapcore.Level
	}{
		{name: "default config", cfg: DefaultConfig(), wantLevel: zapcore.InfoLevel},
		{name: "production config", cfg: ProductionConfig(), wantLevel: zapcore.InfoLevel},
		{name: "nil config", cfg: nil, wantLevel: zapcore.InfoLevel},
		{name: "debug level", cfg: &Config{Level: "debug", Format: "json", Output: "stderr"}, wantLevel: zapcore.DebugLevel},
		{name: "warning alias", cfg: &Config{Level: "WARNING", Format: "console"}, wantLevel: zapcore.WarnLevel},
		{name: "unknown level", cfg: &Config{Level: "verbose"}, wantLevel: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			if tt.wantLevel > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("sync finished", zap.Int("created", 3))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"sync finished"`)
	assert.Contains(t, string(data), `"created":3`)

	_, err = New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "app.log")})
	assert.Error(t, err)
}

func TestNewForEnvironment(t *testing.T) {
	logger, err := NewForEnvironment("production", "error", "", "stderr")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestContextLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	t.Run("no logger in context", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
		assert.Empty(t, GetRequestID(context.Background()))
		assert.Empty(t, GetRunID(context.Background()))
	})

	t.Run("request and run ids", func(t *testing.T) {
		ctx, _ := WithRequestID(context.Background(), base, "req-1")
		ctx, _ = WithRunID(ctx, FromContext(ctx), "run-7")

		assert.Equal(t, "req-1", GetRequestID(ctx))
		assert.Equal(t, "run-7", GetRunID(ctx))

		L(ctx).Info("batch complete")
		entries := recorded.TakeAll()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "run-7", fields["run_id"])
		assert.NotContains(t, fields, "trace_id")
	})

	t.Run("trace correlation", func(t *testing.T) {
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(WithContext(context.Background(), base), spanCtx)

		L(ctx).Info("traced")
		entries := recorded.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entries[0].ContextMap()["trace_id"])
		assert.Equal(t, "00f067aa0ba902b7", entries[0].ContextMap()["span_id"])
	})
}
