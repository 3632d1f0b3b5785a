package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	appintegration "github.com/mendlyio/LaCabrade-V4/internal/application/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/cache"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/config"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/erp"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/event"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/logger"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/migration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/persistence"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/scheduler"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/storage"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/telemetry"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/handler"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/middleware"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	log.Info("Starting LaCabrade",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.Bool("erp_configured", cfg.ERP.Configured()),
	)

	ctx := context.Background()

	var metrics *telemetry.Metrics
	var syncMetrics appintegration.SyncMetrics = appintegration.NopMetrics{}
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics(cfg.Metrics.Namespace)
		syncMetrics = metrics
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", db.Driver()))

	if err := migrateSchema(cfg, db, log); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	if metrics != nil {
		if err := db.DB.Use(telemetry.NewGormPlugin(metrics)); err != nil {
			log.Warn("Failed to install query metrics", zap.Error(err))
		}
		if sqlDB, err := db.DB.DB(); err == nil {
			if err := metrics.RegisterDBStats(sqlDB, cfg.Database.DBName); err != nil {
				log.Warn("Failed to register connection pool metrics", zap.Error(err))
			}
		}
	}

	store := persistence.NewGormCatalogStore(db.DB)
	location, err := store.EnsureDefaultLocation(ctx, cfg.Sync.DefaultLocation)
	if err != nil {
		log.Fatal("Failed to prepare stock location", zap.Error(err))
	}
	log.Info("Stock location ready", zap.String("location", location.Name))

	// Caches
	cacheFactory := cache.NewFactory(cfg.Redis, cache.WithLogger(log.Named("cache")))
	defer func() {
		if err := cacheFactory.Close(); err != nil {
			log.Error("Error closing redis", zap.Error(err))
		}
	}()
	syncedIDs, err := cacheFactory.SyncedIDCache(ctx, cfg.Sync.CacheTTL)
	if err != nil {
		log.Fatal("Failed to create synced id cache", zap.Error(err))
	}
	idempotencyStore, err := cacheFactory.IdempotencyStore(ctx)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() { _ = idempotencyStore.Close() }()

	// ERP
	var erpSystem integration.ERPSystem
	if cfg.ERP.Configured() {
		adapter, err := newERPAdapter(cfg.ERP, log)
		if err != nil {
			log.Fatal("Failed to create ERP adapter", zap.Error(err))
		}
		erpSystem = adapter
	} else {
		log.Warn("ERP credentials missing, ERP endpoints and jobs answer not configured")
	}

	// Images
	upsertOpts := []appintegration.UpsertOption{
		appintegration.WithPriceReplacement(cfg.Sync.ReplaceVariantPrices),
		appintegration.WithUpsertLogger(log.Named("upsert")),
	}
	if cfg.Storage.Enabled {
		images, err := storage.NewS3ImageStore(&cfg.Storage, storage.WithLogger(log.Named("storage")))
		if err != nil {
			log.Fatal("Failed to create image store", zap.Error(err))
		}
		if err := images.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare image bucket", zap.Error(err))
		}
		upsertOpts = append(upsertOpts, appintegration.WithImageStore(images))
	}

	// Events
	var busOpts []event.BusOption
	if cfg.Event.Async {
		busOpts = append(busOpts, event.WithAsyncDispatch())
	}
	bus := event.NewInMemoryEventBus(log.Named("events"), busOpts...)

	// Services
	executor := appintegration.NewUpsertExecutor(store, upsertOpts...)
	controller := appintegration.NewBatchController(erpSystem, store, executor, syncedIDs,
		appintegration.WithBatchSize(cfg.Sync.BatchSize),
		appintegration.WithBatchMetrics(syncMetrics),
		appintegration.WithBatchLogger(log.Named("batch")),
	)
	syncService := appintegration.NewSyncService(erpSystem, store, syncedIDs, controller,
		appintegration.WithDefaultCurrency(strings.ToUpper(cfg.Sync.DefaultCurrency)),
		appintegration.WithSyncMetrics(syncMetrics),
		appintegration.WithEventPublisher(bus),
		appintegration.WithSyncLogger(log.Named("sync")),
	)
	stockService := appintegration.NewStockService(erpSystem, store, controller,
		appintegration.WithStockEventPublisher(bus),
		appintegration.WithStockMetrics(syncMetrics),
		appintegration.WithStockLogger(log.Named("stock")),
	)
	orderService := appintegration.NewOrderService(bus, log.Named("orders"),
		appintegration.WithOrderCatalog(store),
	)

	handlerOpts := []event.IdempotentHandlerOption{
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true}),
	}
	if metrics != nil {
		handlerOpts = append(handlerOpts, event.WithDeliveryObserver(metrics))
	}
	subscribe := func(h shared.EventHandler) {
		bus.Subscribe(event.NewIdempotentHandler(h, idempotencyStore, log.Named("events"), handlerOpts...), h.EventTypes()...)
	}
	subscribe(appintegration.NewProductDeletedHandler(syncedIDs, log.Named("events")))
	subscribe(appintegration.NewOrderPlacedHandler(erpSystem, log.Named("events")))
	subscribe(appintegration.NewInventoryUpdatedHandler(stockService, log.Named("events")))

	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Scheduler
	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		catalogJobs, err := scheduler.CatalogJobs(cfg.Scheduler, syncService, stockService)
		if err != nil {
			log.Fatal("Invalid scheduler configuration", zap.Error(err))
		}
		jobs, err = scheduler.New(scheduler.Config{JobTimeout: cfg.Scheduler.JobTimeout}, catalogJobs,
			scheduler.WithLogger(log.Named("scheduler")),
		)
		if err != nil {
			log.Fatal("Failed to create scheduler", zap.Error(err))
		}
		if err := jobs.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	systemOpts := []handler.SystemHandlerOption{
		handler.WithERPConfigured(erpSystem != nil),
		handler.WithHealthCheck("database", func(context.Context) error { return db.Ping() }),
	}
	if client := cacheFactory.Client(); client != nil {
		systemOpts = append(systemOpts, handler.WithHealthCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	if jobs != nil {
		systemOpts = append(systemOpts, handler.WithJobs(jobs))
	}

	engineOpts := []router.EngineOption{router.WithLogger(log)}
	if metrics != nil {
		engineOpts = append(engineOpts, router.WithMetrics(metrics, cfg.Metrics.Path))
	}
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitPerSecond, cfg.HTTP.RateLimitBurst, 10*time.Minute)
		defer limiter.Stop()
		engineOpts = append(engineOpts, router.WithRateLimiter(limiter))
		log.Info("Rate limiting enabled",
			zap.Float64("per_second", cfg.HTTP.RateLimitPerSecond),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
		)
	}

	engine := router.NewEngine(cfg.HTTP, router.Handlers{
		ERP: handler.NewERPHandler(syncService, stockService, orderService,
			handler.WithSSEHeartbeat(cfg.HTTP.SSEHeartbeat),
		),
		System: handler.NewSystemHandler(version, systemOpts...),
	}, engineOpts...)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if jobs != nil {
		if err := jobs.Stop(shutdownCtx); err != nil {
			log.Error("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus did not stop cleanly", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func newERPAdapter(cfg config.ERPConfig, log *zap.Logger) (*erp.OdooAdapter, error) {
	odooConfig := erp.NewOdooConfig(cfg.URL, cfg.Database, cfg.Username, cfg.APIKey)
	odooConfig.TimeoutSeconds = int(cfg.Timeout / time.Second)
	odooConfig.RateLimit = cfg.RateLimit
	odooConfig.RateBurst = cfg.RateBurst
	return erp.NewOdooAdapter(odooConfig, erp.WithOdooLogger(log.Named("erp")))
}

// migrateSchema applies the SQL migrations on Postgres and auto-migrates the
// models on sqlite. The migrator runs on its own connection since closing it
// closes the connection it was given.
func migrateSchema(cfg *config.Config, db *persistence.Database, log *zap.Logger) error {
	if db.Driver() == config.DriverSQLite {
		return db.AutoMigrate()
	}

	conn, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	m, err := migration.New(conn, migration.WithLogger(log.Named("migrate")))
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}
