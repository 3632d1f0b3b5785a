package integration

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Product listing DTOs
// ---------------------------------------------------------------------------

// ListProductsQuery is a page request over the ERP catalog
type ListProductsQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Query  string `form:"q" binding:"omitempty,max=200"`
}

// ProductListItem is one ERP product in the admin listing
type ProductListItem struct {
	ID           int64   `json:"id"`
	DisplayName  string  `json:"display_name"`
	DefaultCode  string  `json:"default_code,omitempty"`
	ListPrice    float64 `json:"list_price"`
	QtyAvailable float64 `json:"qty_available"`
	Synced       bool    `json:"synced"`
	Currency     string  `json:"currency"`
	ImageURL     string  `json:"image_url,omitempty"`
}

// ProductListResult is a page of the ERP catalog
type ProductListResult struct {
	Products []ProductListItem `json:"products"`
	Total    int               `json:"total"`
	Count    int               `json:"count"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
	Query    string            `json:"q,omitempty"`
}

func toProductListItem(p *integration.ExternalProduct, synced integration.IDSet, defaultCurrency string) ProductListItem {
	name := p.DisplayName
	if name == "" {
		name = p.Name
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency.Name))
	if currency == "" {
		currency = defaultCurrency
	}
	return ProductListItem{
		ID:           p.ID,
		DisplayName:  name,
		DefaultCode:  p.DefaultCode,
		ListPrice:    p.ListPrice.InexactFloat64(),
		QtyAvailable: p.QtyAvailable,
		Synced:       synced.Has(p.ExternalIDString()),
		Currency:     currency,
		ImageURL:     imageDataURL(p.Image),
	}
}

// imageDataURL turns a base64 image into a data URL the admin can display
func imageDataURL(encoded string) string {
	if encoded == "" {
		return ""
	}
	if strings.HasPrefix(encoded, "data:") {
		return encoded
	}
	contentType := "image/png"
	if head, err := base64.StdEncoding.DecodeString(encoded[:min(len(encoded), 64)&^3]); err == nil && len(head) > 0 {
		if detected := http.DetectContentType(head); strings.HasPrefix(detected, "image/") {
			contentType = detected
		}
	}
	return "data:" + contentType + ";base64," + encoded
}

// ---------------------------------------------------------------------------
// Sync request DTOs
// ---------------------------------------------------------------------------

// SyncRequest syncs one page of the ERP catalog
type SyncRequest struct {
	Limit  int  `json:"limit" binding:"omitempty,min=1,max=100"`
	Offset int  `json:"offset" binding:"omitempty,min=0"`
	DryRun bool `json:"dry_run"`
}

// SyncSelectedRequest syncs the listed ERP product ids
type SyncSelectedRequest struct {
	ProductIDs []int64 `json:"product_ids" binding:"required,min=1,dive,gt=0"`
}

// SyncResponse is the synchronous summary of a sync
type SyncResponse struct {
	Success     bool                      `json:"success"`
	Message     string                    `json:"message,omitempty"`
	Status      integration.SyncStatus    `json:"status"`
	Total       int                       `json:"total"`
	Created     int                       `json:"created"`
	Updated     int                       `json:"updated"`
	Synced      int                       `json:"synced"`
	Errors      int                       `json:"errors"`
	DryRun      bool                      `json:"dry_run,omitempty"`
	FailedItems []integration.SyncFailure `json:"errorDetails,omitempty"`
}

// ToSyncResponse converts a SyncResult to its response
func ToSyncResponse(r *integration.SyncResult) SyncResponse {
	summary := r.Summary()
	return SyncResponse{
		Success:     summary.Success,
		Status:      r.Status,
		Total:       r.TotalCount,
		Created:     summary.Created,
		Updated:     summary.Updated,
		Synced:      summary.Synced,
		Errors:      r.FailedCount,
		DryRun:      r.DryRun,
		FailedItems: r.FailedItems,
	}
}

// RunStatsResponse converts batched run counters to a sync response
func RunStatsResponse(stats RunStats, message string) SyncResponse {
	status := integration.StatusFor(stats.Total, stats.Errors)
	return SyncResponse{
		Success:     stats.Success(),
		Message:     message,
		Status:      status,
		Total:       stats.Total,
		Created:     stats.Created,
		Updated:     stats.Updated,
		Synced:      stats.Created + stats.Updated,
		Errors:      stats.Errors,
		FailedItems: stats.Failures,
	}
}

// ---------------------------------------------------------------------------
// Stock DTOs
// ---------------------------------------------------------------------------

// StockWebhookRequest is the stock change notification sent by the ERP
type StockWebhookRequest struct {
	ProductID    int64   `json:"product_id"`
	SKU          string  `json:"sku" binding:"required"`
	QtyAvailable float64 `json:"qty_available"`
}

// StockWebhookResult reports what the webhook changed
type StockWebhookResult struct {
	SKU              string `json:"sku"`
	PreviousQuantity int    `json:"previous_quantity"`
	Quantity         int    `json:"quantity"`
	Changed          bool   `json:"changed"`
}

// SetLocalStockRequest sets the local stocked quantity of a SKU
type SetLocalStockRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

// ---------------------------------------------------------------------------
// Order DTOs
// ---------------------------------------------------------------------------

// OrderLineRequest is one line of a placed order
type OrderLineRequest struct {
	SKU       string  `json:"sku" binding:"required"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" binding:"min=0"`
}

// PlaceOrderRequest notifies that a local order was placed
type PlaceOrderRequest struct {
	Reference     string             `json:"reference" binding:"required"`
	CustomerEmail string             `json:"customer_email" binding:"required,email"`
	CustomerName  string             `json:"customer_name"`
	CurrencyCode  string             `json:"currency_code" binding:"omitempty,len=3"`
	Lines         []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToSaleOrder converts the request to the order forwarded to the ERP
func (r *PlaceOrderRequest) ToSaleOrder() integration.SaleOrder {
	lines := make([]integration.SaleOrderLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, integration.SaleOrderLine{
			SKU:       l.SKU,
			Title:     l.Title,
			Quantity:  l.Quantity,
			UnitPrice: decimal.NewFromFloat(l.UnitPrice),
		})
	}
	return integration.SaleOrder{
		Reference:     r.Reference,
		CustomerEmail: r.CustomerEmail,
		CustomerName:  r.CustomerName,
		CurrencyCode:  strings.ToUpper(r.CurrencyCode),
		Lines:         lines,
	}
}
