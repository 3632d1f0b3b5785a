package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/dto"
)

func newTestLimiter(t *testing.T, perSecond float64, burst int) (*RateLimiter, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(perSecond, burst, time.Hour)
	rl.now = func() time.Time { return now }
	t.Cleanup(rl.Stop)
	return rl, &now
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows the burst then blocks", func(t *testing.T) {
		rl, _ := newTestLimiter(t, 1, 3)

		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow("client1"), "request %d should be allowed", i+1)
		}
		assert.False(t, rl.Allow("client1"))
	})

	t.Run("separate buckets per client", func(t *testing.T) {
		rl, _ := newTestLimiter(t, 1, 1)

		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("refills over time", func(t *testing.T) {
		rl, now := newTestLimiter(t, 2, 1)

		assert.True(t, rl.Allow("c"))
		assert.False(t, rl.Allow("c"))

		*now = now.Add(500 * time.Millisecond)
		assert.True(t, rl.Allow("c"))
	})

	t.Run("forgets idle clients", func(t *testing.T) {
		rl, now := newTestLimiter(t, 1, 1)

		rl.Allow("old")
		*now = now.Add(2 * time.Hour)
		rl.Allow("fresh")
		rl.cleanup()

		assert.Equal(t, 1, rl.size())
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		rl := NewRateLimiter(1, 1, time.Hour)
		rl.Stop()
		rl.Stop()
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, _ := newTestLimiter(t, 1, 2)

	router := gin.New()
	router.Use(RateLimit(rl))
	router.GET("/api/v1/erp/products", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/products", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do().Code)
	w := do()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))

	w = do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeRateLimited, resp.Error.Code)
}
