package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/mendlyio/LaCabrade-V4/internal/application/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/logger"
)

// CatalogSyncService is the catalog side of the ERP integration
type CatalogSyncService interface {
	ListProducts(ctx context.Context, query appintegration.ListProductsQuery) (*appintegration.ProductListResult, error)
	SyncProducts(ctx context.Context, req appintegration.SyncRequest) (*integration.SyncResult, error)
	SyncSelected(ctx context.Context, ids []int64) (*integration.SyncResult, error)
	SyncBatched(ctx context.Context, ids []int64, emit integration.ProgressFunc) (appintegration.RunStats, error)
	Resync(ctx context.Context) (appintegration.RunStats, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

// StockSyncService is the stock side of the ERP integration
type StockSyncService interface {
	SyncModified(ctx context.Context) (*appintegration.ModifiedSyncStats, error)
	HandleStockWebhook(ctx context.Context, req appintegration.StockWebhookRequest) (*appintegration.StockWebhookResult, error)
	SetLocalStock(ctx context.Context, sku string, quantity int) error
}

// OrderIntake accepts orders placed locally
type OrderIntake interface {
	OrderPlaced(ctx context.Context, order integration.SaleOrder) error
}

// ERPHandler serves the admin ERP endpoints
type ERPHandler struct {
	BaseHandler
	sync      CatalogSyncService
	stock     StockSyncService
	orders    OrderIntake
	heartbeat time.Duration
}

// ERPHandlerOption configures an ERPHandler
type ERPHandlerOption func(*ERPHandler)

// WithSSEHeartbeat sets the interval of keep-alive comments on progress streams
func WithSSEHeartbeat(interval time.Duration) ERPHandlerOption {
	return func(h *ERPHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// NewERPHandler creates a new ERPHandler
func NewERPHandler(sync CatalogSyncService, stock StockSyncService, orders OrderIntake, opts ...ERPHandlerOption) *ERPHandler {
	h := &ERPHandler{
		sync:      sync,
		stock:     stock,
		orders:    orders,
		heartbeat: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ListProducts returns a page of ERP products flagged with their sync state
// GET /erp/products?limit=&offset=&q=
func (h *ERPHandler) ListProducts(c *gin.Context) {
	var query appintegration.ListProductsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.sync.ListProducts(c.Request.Context(), query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Sync syncs one page of the ERP catalog
// POST /erp/sync
func (h *ERPHandler) Sync(c *gin.Context) {
	var req appintegration.SyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}

	result, err := h.sync.SyncProducts(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToSyncResponse(result))
}

// SyncSelected syncs the given ERP product ids in one pass
// POST /erp/sync-selected
func (h *ERPHandler) SyncSelected(c *gin.Context) {
	var req appintegration.SyncSelectedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.sync.SyncSelected(c.Request.Context(), req.ProductIDs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToSyncResponse(result))
}

// SyncBatch syncs the given ids in batches and answers the totals
// POST /erp/sync-batch
func (h *ERPHandler) SyncBatch(c *gin.Context) {
	var req appintegration.SyncSelectedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	stats, err := h.sync.SyncBatched(c.Request.Context(), req.ProductIDs, nil)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.RunStatsResponse(stats, ""))
}

// SyncProgress syncs the given ids in batches and streams the progress
// events over SSE. The run is detached from the request: it completes even
// if the client goes away.
// POST /erp/sync-progress
func (h *ERPHandler) SyncProgress(c *gin.Context) {
	var req appintegration.SyncSelectedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	stream := newProgressStream(c, h.heartbeat)
	runCtx := context.WithoutCancel(c.Request.Context())
	go func() {
		defer stream.close()
		if _, err := h.sync.SyncBatched(runCtx, req.ProductIDs, stream.emit); err != nil {
			logger.L(runCtx).Warn("streamed sync ended with error", zap.Error(err))
		}
	}()
	stream.serve()
}

// Resync re-imports every product already imported
// POST /erp/resync
func (h *ERPHandler) Resync(c *gin.Context) {
	stats, err := h.sync.Resync(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	message := "Imported products resynchronized"
	if stats.Total == 0 {
		message = "No imported product to resynchronize"
	}
	h.Success(c, appintegration.RunStatsResponse(stats, message))
}

// SyncModified runs the modified-since job now
// POST /erp/sync-modified
func (h *ERPHandler) SyncModified(c *gin.Context) {
	stats, err := h.stock.SyncModified(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// StockWebhook applies a stock change pushed by the ERP
// POST /erp/webhook/stock
func (h *ERPHandler) StockWebhook(c *gin.Context) {
	var req appintegration.StockWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.stock.HandleStockWebhook(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// SetStock sets the local stock of a SKU; the change is pushed to the ERP
// PUT /erp/inventory/:sku
func (h *ERPHandler) SetStock(c *gin.Context) {
	var req appintegration.SetLocalStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	sku := c.Param("sku")
	if err := h.stock.SetLocalStock(c.Request.Context(), sku, req.Quantity); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"sku": sku, "quantity": req.Quantity})
}

// DeleteProduct soft-deletes an imported product
// DELETE /erp/products/:id
func (h *ERPHandler) DeleteProduct(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}

	if err := h.sync.DeleteProduct(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// PlaceOrder accepts a placed order; it is forwarded to the ERP
// asynchronously
// POST /erp/orders
func (h *ERPHandler) PlaceOrder(c *gin.Context) {
	var req appintegration.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	if err := h.orders.OrderPlaced(c.Request.Context(), req.ToSaleOrder()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, gin.H{"reference": req.Reference})
}
