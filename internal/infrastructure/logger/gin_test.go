package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newLoggedRouter(logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), GinMiddleware(logger), Recovery(logger))
	return router
}

func findEntry(entries []observer.LoggedEntry, msg string) *observer.LoggedEntry {
	for i := range entries {
		if entries[i].Message == msg {
			return &entries[i]
		}
	}
	return nil
}

func TestGinMiddleware(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	router := newLoggedRouter(zap.New(core))

	var handlerRequestID string
	router.GET("/api/v1/erp/products", func(c *gin.Context) {
		handlerRequestID = GetRequestID(c.Request.Context())
		GetGinLogger(c).Info("listing")
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	router.GET("/missing", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/erp/products?limit=5", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-abc", handlerRequestID)

	entries := recorded.TakeAll()
	listing := findEntry(entries, "listing")
	require.NotNil(t, listing)
	assert.Equal(t, "req-abc", listing.ContextMap()["request_id"])

	access := findEntry(entries, "HTTP Request")
	require.NotNil(t, access)
	assert.Equal(t, zapcore.InfoLevel, access.Level)
	assert.Equal(t, "limit=5", access.ContextMap()["query"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	access = findEntry(recorded.TakeAll(), "HTTP Request")
	require.NotNil(t, access)
	assert.Equal(t, zapcore.WarnLevel, access.Level)
}

func TestRecovery(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	router := newLoggedRouter(zap.New(core))
	router.POST("/api/v1/erp/sync", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/erp/sync", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success": false, "error": {"code": "INTERNAL_ERROR", "message": "internal server error"}}`, w.Body.String())
	assert.NotNil(t, findEntry(recorded.All(), "Panic recovered"))
}

func TestGetGinLogger_Default(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}
