package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appintegration "github.com/mendlyio/LaCabrade-V4/internal/application/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/cache"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/config"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/event"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/persistence"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/handler"
	"github.com/mendlyio/LaCabrade-V4/internal/interfaces/http/router"
)

// stubERP serves a fixed catalog and records stock writes
type stubERP struct {
	mu       sync.Mutex
	products map[int64]integration.ExternalProduct
	writes   map[string]float64
}

func newStubERP(products ...integration.ExternalProduct) *stubERP {
	s := &stubERP{
		products: make(map[int64]integration.ExternalProduct),
		writes:   make(map[string]float64),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *stubERP) Authenticate(context.Context) error { return nil }

func (s *stubERP) ListProducts(_ context.Context, offset, limit int, _ string) ([]integration.ExternalProduct, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var page []integration.ExternalProduct
	for i := offset; i < len(ids) && i < offset+limit; i++ {
		page = append(page, s.products[ids[i]])
	}
	return page, len(ids), nil
}

func (s *stubERP) ReadProducts(_ context.Context, ids []int64) ([]integration.ExternalProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []integration.ExternalProduct
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubERP) ReadModificationTimes(_ context.Context, ids []int64) ([]integration.ModificationStamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []integration.ModificationStamp
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, integration.ModificationStamp{ID: id, ModifiedAt: p.ModifiedAt})
		}
	}
	return out, nil
}

// ReadStock matches single-variant products the way the ERP does: by
// default_code, or by template id for a product without a code
func (s *stubERP) ReadStock(_ context.Context, ref integration.StockRef) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		switch {
		case ref.Code != "" && p.DefaultCode == ref.Code:
			return p.QtyAvailable, nil
		case ref.TemplateID > 0 && p.ID == ref.TemplateID:
			return p.QtyAvailable, nil
		}
	}
	return 0, integration.ErrStockNotFound
}

func (s *stubERP) WriteStock(_ context.Context, ref integration.StockRef, quantity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[ref.String()] = quantity
	return nil
}

func (s *stubERP) CreateOrder(context.Context, integration.SaleOrder) (int64, error) {
	return 1, nil
}

func (s *stubERP) setPrice(id int64, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.ListPrice = decimal.RequireFromString(price)
	s.products[id] = p
}

func (s *stubERP) setStock(id int64, qty float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.QtyAvailable = qty
	s.products[id] = p
}

// written returns the quantity written under a StockRef string
func (s *stubERP) written(ref string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.writes[ref]
	return q, ok
}

func simpleProduct(id int64, code, name, price string, qty float64) integration.ExternalProduct {
	return integration.ExternalProduct{
		ID:           id,
		Name:         name,
		DisplayName:  name,
		ListPrice:    decimal.RequireFromString(price),
		Currency:     integration.Reference{ID: 1, Name: "EUR"},
		DefaultCode:  code,
		QtyAvailable: qty,
		VariantCount: 1,
		ModifiedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type flowEnv struct {
	engine *gin.Engine
	erp    *stubERP
	store  *persistence.GormCatalogStore
	stock  *appintegration.StockService
}

// newFlowEnv serves products from the stub ERP, FLOW-1 and FLOW-2 when none
// are given
func newFlowEnv(t *testing.T, products ...integration.ExternalProduct) *flowEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDB := NewSharedTestDB(t)
	testDB.CleanTables()

	store := persistence.NewGormCatalogStore(testDB.DB)
	_, err := store.EnsureDefaultLocation(context.Background(), "Main warehouse")
	require.NoError(t, err)

	if len(products) == 0 {
		products = []integration.ExternalProduct{
			simpleProduct(101, "FLOW-1", "Mug", "12.50", 2),
			simpleProduct(102, "FLOW-2", "Cap", "18.00", 5),
		}
	}
	erp := newStubERP(products...)

	log := zap.NewNop()
	syncedIDs := cache.NewInMemorySyncedIDCache(time.Minute)
	bus := event.NewInMemoryEventBus(log)

	executor := appintegration.NewUpsertExecutor(store, appintegration.WithPriceReplacement(true))
	controller := appintegration.NewBatchController(erp, store, executor, syncedIDs)
	syncService := appintegration.NewSyncService(erp, store, syncedIDs, controller,
		appintegration.WithEventPublisher(bus),
	)
	stockService := appintegration.NewStockService(erp, store, controller,
		appintegration.WithStockEventPublisher(bus),
	)
	orderService := appintegration.NewOrderService(bus, log, appintegration.WithOrderCatalog(store))

	productDeleted := appintegration.NewProductDeletedHandler(syncedIDs, log)
	inventoryUpdated := appintegration.NewInventoryUpdatedHandler(stockService, log)
	bus.Subscribe(productDeleted, productDeleted.EventTypes()...)
	bus.Subscribe(inventoryUpdated, inventoryUpdated.EventTypes()...)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	engine := router.NewEngine(config.HTTPConfig{MaxBodySize: 1 << 20}, router.Handlers{
		ERP:    handler.NewERPHandler(syncService, stockService, orderService),
		System: handler.NewSystemHandler("test", handler.WithERPConfigured(true)),
	})

	return &flowEnv{engine: engine, erp: erp, store: store, stock: stockService}
}

func (e *flowEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var envelope map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	}
	return w.Code, envelope
}

func syncedFlags(t *testing.T, envelope map[string]any) map[string]bool {
	t.Helper()
	data, ok := envelope["data"].(map[string]any)
	require.True(t, ok)
	products, ok := data["products"].([]any)
	require.True(t, ok)

	flags := make(map[string]bool)
	for _, raw := range products {
		p := raw.(map[string]any)
		flags[p["default_code"].(string)] = p["synced"].(bool)
	}
	return flags
}

func TestSyncFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newFlowEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/v1/erp/products", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]bool{"FLOW-1": false, "FLOW-2": false}, syncedFlags(t, body))

	code, body = env.do(t, http.MethodPost, "/api/v1/erp/sync-selected", map[string]any{"product_ids": []int64{101}})
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "SUCCESS", data["status"])
	assert.EqualValues(t, 1, data["created"])

	code, body = env.do(t, http.MethodGet, "/api/v1/erp/products", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]bool{"FLOW-1": true, "FLOW-2": false}, syncedFlags(t, body))

	t.Run("stock webhook updates the local level", func(t *testing.T) {
		code, body := env.do(t, http.MethodPost, "/api/v1/erp/webhook/stock", map[string]any{
			"product_id":    101,
			"sku":           "FLOW-1",
			"qty_available": 9,
		})
		require.Equal(t, http.StatusOK, code)
		data := body["data"].(map[string]any)
		assert.Equal(t, true, data["changed"])
		assert.EqualValues(t, 9, data["quantity"])

		items, err := env.store.ListInventoryItemsBySKU(context.Background(), []string{"FLOW-1"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Len(t, items[0].Levels, 1)
		assert.Equal(t, 9, items[0].Levels[0].StockedQuantity)
	})

	t.Run("local stock change reaches the erp", func(t *testing.T) {
		code, _ := env.do(t, http.MethodPut, "/api/v1/erp/inventory/FLOW-1", map[string]any{"quantity": 4})
		require.Equal(t, http.StatusOK, code)

		written, ok := env.erp.written("FLOW-1")
		require.True(t, ok)
		assert.Equal(t, 4.0, written)
	})

	t.Run("resync applies erp price changes", func(t *testing.T) {
		env.erp.setPrice(101, "14.00")

		code, body := env.do(t, http.MethodPost, "/api/v1/erp/resync", nil)
		require.Equal(t, http.StatusOK, code)
		data := body["data"].(map[string]any)
		assert.EqualValues(t, 1, data["updated"])

		imported, err := env.store.ListImportedProducts(context.Background())
		require.NoError(t, err)
		require.Len(t, imported, 1)
		variant := imported[0].VariantBySKU("FLOW-1")
		require.NotNil(t, variant)
		require.NotEmpty(t, variant.Prices)
		assert.True(t, decimal.RequireFromString("14").Equal(variant.Prices[0].Amount))
	})

	t.Run("deleting the product clears the synced flag", func(t *testing.T) {
		imported, err := env.store.ListImportedProducts(context.Background())
		require.NoError(t, err)
		require.Len(t, imported, 1)

		code, _ := env.do(t, http.MethodDelete, "/api/v1/erp/products/"+imported[0].ID.String(), nil)
		require.Equal(t, http.StatusNoContent, code)

		code, body := env.do(t, http.MethodGet, "/api/v1/erp/products", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, map[string]bool{"FLOW-1": false, "FLOW-2": false}, syncedFlags(t, body))
	})
}

func TestSyncFlow_ReimportedGeneratedSKU(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newFlowEnv(t, simpleProduct(103, "", "Scarf", "9.00", 3))
	ctx := context.Background()

	syncScarf := func() {
		code, body := env.do(t, http.MethodPost, "/api/v1/erp/sync-selected", map[string]any{"product_ids": []int64{103}})
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 1, body["data"].(map[string]any)["created"])
	}

	syncScarf()
	first, err := env.store.FindProductBySKU(ctx, "EXT-103")
	require.NoError(t, err)
	code, _ := env.do(t, http.MethodDelete, "/api/v1/erp/products/"+first.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, code)
	syncScarf()

	live, err := env.store.FindProductBySKU(ctx, "EXT-103")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, live.ID)
	liveVariant := live.VariantBySKU("EXT-103")
	require.NotNil(t, liveVariant)

	t.Run("webhook updates the live item", func(t *testing.T) {
		code, body := env.do(t, http.MethodPost, "/api/v1/erp/webhook/stock", map[string]any{
			"product_id":    103,
			"sku":           "EXT-103",
			"qty_available": 7,
		})
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 3, body["data"].(map[string]any)["previous_quantity"])

		items, err := env.store.ListInventoryItemsBySKU(ctx, []string{"EXT-103"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, liveVariant.ID, items[0].VariantID)
		require.Len(t, items[0].Levels, 1)
		assert.Equal(t, 7, items[0].Levels[0].StockedQuantity)
	})

	t.Run("local stock change is written by template", func(t *testing.T) {
		code, _ := env.do(t, http.MethodPut, "/api/v1/erp/inventory/EXT-103", map[string]any{"quantity": 5})
		require.Equal(t, http.StatusOK, code)

		require.Eventually(t, func() bool {
			q, ok := env.erp.written("template:103")
			return ok && q == 5
		}, 2*time.Second, 20*time.Millisecond)
		_, byCode := env.erp.written("EXT-103")
		assert.False(t, byCode)
	})

	t.Run("stock pull reads the template", func(t *testing.T) {
		env.erp.setStock(103, 11)

		stats, err := env.stock.PullStock(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Checked)
		assert.Equal(t, 1, stats.Updated)
		assert.Equal(t, 0, stats.NotFound)

		items, err := env.store.ListInventoryItemsBySKU(ctx, []string{"EXT-103"})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 11, items[0].Levels[0].StockedQuantity)
	})
}
