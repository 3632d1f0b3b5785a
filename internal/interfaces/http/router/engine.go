package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/config"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/logger"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/telemetry"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/handler"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/middleware"
)

// Handlers bundles the handlers mounted by NewEngine
type Handlers struct {
	ERP    *handler.ERPHandler
	System *handler.SystemHandler
}

type engineOptions struct {
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	metricsPath string
	rateLimiter *middleware.RateLimiter
}

// EngineOption configures NewEngine
type EngineOption func(*engineOptions)

// WithLogger sets the request logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithMetrics records request metrics and serves them on path
func WithMetrics(metrics *telemetry.Metrics, path string) EngineOption {
	return func(o *engineOptions) {
		o.metrics = metrics
		o.metricsPath = path
	}
}

// WithRateLimiter limits API requests per client IP. Health and metrics
// endpoints are not limited.
func WithRateLimiter(limiter *middleware.RateLimiter) EngineOption {
	return func(o *engineOptions) {
		o.rateLimiter = limiter
	}
}

// NewEngine builds the gin engine with the middleware stack and every route.
//
// Middleware order:
//  1. RequestID - generate or propagate the request id
//  2. Recovery - catch panics
//  3. Logger - log requests with a request-scoped logger
//  4. Metrics - request counts and durations (if enabled)
//  5. Security headers
//  6. CORS
//  7. BodyLimit
func NewEngine(cfg config.HTTPConfig, h Handlers, opts ...EngineOption) *gin.Engine {
	o := &engineOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			o.logger.Warn("failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(logger.RequestID())
	engine.Use(logger.Recovery(o.logger))
	engine.Use(logger.GinMiddleware(o.logger))
	if o.metrics != nil {
		engine.Use(o.metrics.GinMiddleware())
	}
	engine.Use(middleware.Secure())

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORSAllowOrigins
	engine.Use(middleware.CORSWithConfig(cors))
	engine.Use(middleware.BodyLimit(cfg.MaxBodySize))

	engine.GET("/health", h.System.Health)
	if o.metrics != nil {
		engine.GET(o.metricsPath, gin.WrapH(o.metrics.Handler()))
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	if o.rateLimiter != nil {
		r.Use(middleware.RateLimit(o.rateLimiter))
	}
	r.Register(ERPRoutes(h))
	r.Setup()

	return engine
}

// ERPRoutes groups the admin ERP endpoints under /erp
func ERPRoutes(h Handlers) *DomainGroup {
	erp := NewDomainGroup("erp", "/erp")

	erp.GET("/products", h.ERP.ListProducts)
	erp.DELETE("/products/:id", h.ERP.DeleteProduct)

	erp.POST("/sync", h.ERP.Sync)
	erp.POST("/sync-selected", h.ERP.SyncSelected)
	erp.POST("/sync-batch", h.ERP.SyncBatch)
	erp.POST("/sync-progress", h.ERP.SyncProgress)
	erp.POST("/resync", h.ERP.Resync)
	erp.POST("/sync-modified", h.ERP.SyncModified)

	erp.POST("/webhook/stock", h.ERP.StockWebhook)
	erp.PUT("/inventory/:sku", h.ERP.SetStock)
	erp.POST("/orders", h.ERP.PlaceOrder)

	jobs := erp.Group("jobs", "/jobs")
	jobs.GET("", h.System.ListJobs)
	jobs.POST("/:name/run", h.System.RunJob)

	return erp
}
