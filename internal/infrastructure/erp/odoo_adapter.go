package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from Odoo (32MB, images included)
const maxResponseSize = 32 * 1024 * 1024

// OdooAdapter implements integration.ERPSystem over Odoo's JSON-RPC API
type OdooAdapter struct {
	config     *OdooConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	requestID atomic.Int64

	mu  sync.Mutex // Protects uid and serializes logins
	uid int64
}

// OdooOption configures an OdooAdapter
type OdooOption func(*OdooAdapter)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) OdooOption {
	return func(a *OdooAdapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithOdooLogger sets the logger
func WithOdooLogger(logger *zap.Logger) OdooOption {
	return func(a *OdooAdapter) {
		a.logger = logger
	}
}

// NewOdooAdapter creates a new Odoo adapter with the given configuration
func NewOdooAdapter(config *OdooConfig, opts ...OdooOption) (*OdooAdapter, error) {
	if config == nil {
		return nil, integration.ErrERPNotConfigured
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &OdooAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: zap.NewNop(),
	}
	if config.RateLimit > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Authenticate logs in unless a session uid is already held
func (a *OdooAdapter) Authenticate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uid != 0 {
		return nil
	}
	return a.login(ctx)
}

// login must be called with mu held
func (a *OdooAdapter) login(ctx context.Context) error {
	var uid odooUID
	err := a.call(ctx, "common", "authenticate", []any{
		a.config.Database, a.config.Username, a.config.APIKey, map[string]any{},
	}, &uid)
	if err != nil {
		if errors.Is(err, integration.ErrERPSessionExpired) {
			return fmt.Errorf("%w: %v", integration.ErrERPAuthFailed, err)
		}
		return err
	}
	if uid == 0 {
		return fmt.Errorf("%w: invalid credentials for %s on %s",
			integration.ErrERPAuthFailed, a.config.Username, a.config.Database)
	}
	a.uid = int64(uid)
	a.logger.Info("authenticated with odoo",
		zap.String("database", a.config.Database),
		zap.Int64("uid", a.uid),
	)
	return nil
}

func (a *OdooAdapter) session(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uid == 0 {
		if err := a.login(ctx); err != nil {
			return 0, err
		}
	}
	return a.uid, nil
}

// relogin drops the session held as staleUID and logs in again. A session
// already renewed by a concurrent caller is reused.
func (a *OdooAdapter) relogin(ctx context.Context, staleUID int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uid != 0 && a.uid != staleUID {
		return a.uid, nil
	}
	a.uid = 0
	if err := a.login(ctx); err != nil {
		return 0, err
	}
	return a.uid, nil
}

// executeKw calls model.method through object.execute_kw. A session error
// triggers one re-authentication and one retry.
func (a *OdooAdapter) executeKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	uid, err := a.session(ctx)
	if err != nil {
		return err
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	callArgs := func(uid int64) []any {
		return []any{a.config.Database, uid, a.config.APIKey, model, method, args, kwargs}
	}

	err = a.call(ctx, "object", "execute_kw", callArgs(uid), out)
	if err == nil || !errors.Is(err, integration.ErrERPSessionExpired) {
		return err
	}

	a.logger.Warn("odoo session rejected, re-authenticating",
		zap.String("model", model),
		zap.String("method", method),
		zap.Error(err),
	)
	uid, err = a.relogin(ctx, uid)
	if err != nil {
		return err
	}

	err = a.call(ctx, "object", "execute_kw", callArgs(uid), out)
	if errors.Is(err, integration.ErrERPSessionExpired) {
		return fmt.Errorf("%w: %v", integration.ErrERPAuthFailed, err)
	}
	return err
}

// call performs one JSON-RPC request
func (a *OdooAdapter) call(ctx context.Context, service, method string, args []any, out any) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", integration.ErrERPUnavailable, err)
		}
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      a.requestID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("odoo: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("odoo: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrERPUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", integration.ErrERPUnavailable, err)
	}

	a.logger.Debug("odoo call",
		zap.String("service", service),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", integration.ErrERPUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: HTTP %d", integration.ErrERPRequestFailed, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", integration.ErrERPInvalidResponse, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("%w: %s.%s result: %v", integration.ErrERPInvalidResponse, service, method, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// ListProducts returns one page of product templates and the total count.
// A non-empty query matches name or internal reference.
func (a *OdooAdapter) ListProducts(ctx context.Context, offset, limit int, query string) ([]integration.ExternalProduct, int, error) {
	domain := []any{}
	if q := strings.TrimSpace(query); q != "" {
		domain = []any{"|", []any{"name", "ilike", q}, []any{"default_code", "ilike", q}}
	}

	var total int
	if err := a.executeKw(ctx, "product.template", "search_count", []any{domain}, nil, &total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []integration.ExternalProduct{}, 0, nil
	}

	var templates []odooTemplate
	err := a.executeKw(ctx, "product.template", "search_read", []any{domain}, map[string]any{
		"fields": templateListFields,
		"offset": offset,
		"limit":  limit,
		"order":  "id asc",
	}, &templates)
	if err != nil {
		return nil, 0, err
	}

	products := make([]integration.ExternalProduct, 0, len(templates))
	for i := range templates {
		t := &templates[i]
		products = append(products, integration.ExternalProduct{
			ID:           t.ID,
			Name:         string(t.Name),
			DisplayName:  string(t.DisplayName),
			ListPrice:    t.ListPrice,
			Currency:     t.CurrencyID,
			DefaultCode:  string(t.DefaultCode),
			QtyAvailable: t.QtyAvailable,
			Image:        string(t.Image128),
			VariantCount: t.ProductVariantCount,
		})
	}
	return products, total, nil
}

// ReadProducts reads product templates with their variants and attribute
// lines. Nested records are read in one call per model for the whole set.
func (a *OdooAdapter) ReadProducts(ctx context.Context, ids []int64) ([]integration.ExternalProduct, error) {
	if len(ids) == 0 {
		return []integration.ExternalProduct{}, nil
	}

	var templates []odooTemplate
	if err := a.read(ctx, "product.template", ids, templateReadFields, &templates); err != nil {
		return nil, err
	}

	var variantIDs, lineIDs []int64
	for i := range templates {
		if templates[i].ProductVariantCount > 1 {
			variantIDs = append(variantIDs, templates[i].ProductVariantIDs...)
		}
		lineIDs = append(lineIDs, templates[i].AttributeLineIDs...)
	}

	variants := make(map[int64]odooVariant, len(variantIDs))
	var ptavIDs []int64
	if len(variantIDs) > 0 {
		var records []odooVariant
		if err := a.read(ctx, "product.product", variantIDs, variantReadFields, &records); err != nil {
			return nil, err
		}
		for _, v := range records {
			variants[v.ID] = v
			ptavIDs = append(ptavIDs, v.ProductTemplateVariantValueIDs...)
		}
	}

	lines := make(map[int64]odooAttributeLine, len(lineIDs))
	var valueIDs []int64
	if len(lineIDs) > 0 {
		var records []odooAttributeLine
		if err := a.read(ctx, "product.template.attribute.line", lineIDs, []string{"id", "attribute_id", "value_ids"}, &records); err != nil {
			return nil, err
		}
		for _, l := range records {
			lines[l.ID] = l
			valueIDs = append(valueIDs, l.ValueIDs...)
		}
	}

	valueNames := make(map[int64]string, len(valueIDs))
	if len(valueIDs) > 0 {
		var records []odooAttributeValue
		if err := a.read(ctx, "product.attribute.value", dedupe(valueIDs), []string{"id", "name"}, &records); err != nil {
			return nil, err
		}
		for _, v := range records {
			valueNames[v.ID] = string(v.Name)
		}
	}

	ptavs := make(map[int64]odooTemplateAttributeValue, len(ptavIDs))
	if len(ptavIDs) > 0 {
		var records []odooTemplateAttributeValue
		if err := a.read(ctx, "product.template.attribute.value", dedupe(ptavIDs), []string{"id", "name", "attribute_id"}, &records); err != nil {
			return nil, err
		}
		for _, v := range records {
			ptavs[v.ID] = v
		}
	}

	products := make([]integration.ExternalProduct, 0, len(templates))
	for i := range templates {
		products = append(products, a.toExternalProduct(&templates[i], variants, lines, valueNames, ptavs))
	}
	return products, nil
}

func (a *OdooAdapter) toExternalProduct(
	t *odooTemplate,
	variants map[int64]odooVariant,
	lines map[int64]odooAttributeLine,
	valueNames map[int64]string,
	ptavs map[int64]odooTemplateAttributeValue,
) integration.ExternalProduct {
	product := integration.ExternalProduct{
		ID:           t.ID,
		Name:         string(t.Name),
		DisplayName:  string(t.DisplayName),
		Description:  string(t.DescriptionSale),
		ListPrice:    t.ListPrice,
		Currency:     t.CurrencyID,
		DefaultCode:  string(t.DefaultCode),
		QtyAvailable: t.QtyAvailable,
		WeightKg:     optionalFloat(t.Weight),
		VolumeM3:     optionalFloat(t.Volume),
		Image:        string(t.Image1920),
		VariantIDs:   t.ProductVariantIDs,
		VariantCount: t.ProductVariantCount,
		ModifiedAt:   a.parseWriteDate(t.ID, string(t.WriteDate)),
	}

	for _, lineID := range t.AttributeLineIDs {
		line, ok := lines[lineID]
		if !ok {
			continue
		}
		values := make([]string, 0, len(line.ValueIDs))
		for _, id := range line.ValueIDs {
			if name, ok := valueNames[id]; ok {
				values = append(values, name)
			}
		}
		product.AttributeLines = append(product.AttributeLines, integration.AttributeLine{
			ID:            line.ID,
			AttributeName: line.AttributeID.Name,
			Values:        values,
		})
	}

	if t.ProductVariantCount <= 1 {
		return product
	}
	for _, id := range t.ProductVariantIDs {
		v, ok := variants[id]
		if !ok {
			continue
		}
		variant := integration.ExternalVariant{
			ID:           v.ID,
			DisplayName:  string(v.DisplayName),
			Code:         string(v.DefaultCode),
			Price:        v.LstPrice,
			Currency:     v.CurrencyID,
			WeightKg:     optionalFloat(v.Weight),
			QtyAvailable: v.QtyAvailable,
		}
		for _, ptavID := range v.ProductTemplateVariantValueIDs {
			if ptav, ok := ptavs[ptavID]; ok {
				variant.Values = append(variant.Values, integration.AttributeValue{
					ID:            ptav.ID,
					AttributeName: ptav.AttributeID.Name,
					Name:          string(ptav.Name),
				})
			}
		}
		product.Variants = append(product.Variants, variant)
	}
	return product
}

// ReadModificationTimes returns write_date for each product template
func (a *OdooAdapter) ReadModificationTimes(ctx context.Context, ids []int64) ([]integration.ModificationStamp, error) {
	if len(ids) == 0 {
		return []integration.ModificationStamp{}, nil
	}

	var records []struct {
		ID        int64      `json:"id"`
		WriteDate odooString `json:"write_date"`
	}
	if err := a.read(ctx, "product.template", ids, []string{"id", "write_date"}, &records); err != nil {
		return nil, err
	}

	stamps := make([]integration.ModificationStamp, 0, len(records))
	for _, r := range records {
		ts := a.parseWriteDate(r.ID, string(r.WriteDate))
		if ts.IsZero() {
			continue
		}
		stamps = append(stamps, integration.ModificationStamp{ID: r.ID, ModifiedAt: ts})
	}
	return stamps, nil
}

func (a *OdooAdapter) parseWriteDate(id int64, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.ParseInLocation(odooWriteDateLayout, value, time.UTC)
	if err != nil {
		a.logger.Warn("unparseable odoo write_date",
			zap.Int64("product_id", id),
			zap.String("write_date", value),
		)
		return time.Time{}
	}
	return ts
}

func (a *OdooAdapter) read(ctx context.Context, model string, ids []int64, fields []string, out any) error {
	return a.executeKw(ctx, model, "read", []any{ids}, map[string]any{"fields": fields}, out)
}

// ---------------------------------------------------------------------------
// Stock
// ---------------------------------------------------------------------------

// ReadStock returns the on-hand quantity of the referenced product
func (a *OdooAdapter) ReadStock(ctx context.Context, ref integration.StockRef) (float64, error) {
	product, err := a.findProduct(ctx, ref)
	if err != nil {
		return 0, err
	}
	return product.QtyAvailable, nil
}

// WriteStock sets the on-hand quantity through the stock.change.product.qty wizard
func (a *OdooAdapter) WriteStock(ctx context.Context, ref integration.StockRef, quantity float64) error {
	product, err := a.findProduct(ctx, ref)
	if err != nil {
		return err
	}

	var wizardID odooID
	err = a.executeKw(ctx, "stock.change.product.qty", "create", []any{map[string]any{
		"product_id":      product.ID,
		"product_tmpl_id": product.ProductTmplID.ID,
		"new_quantity":    quantity,
	}}, nil, &wizardID)
	if err != nil {
		return err
	}

	if err := a.executeKw(ctx, "stock.change.product.qty", "change_product_qty", []any{[]int64{int64(wizardID)}}, nil, nil); err != nil {
		return err
	}

	a.logger.Info("odoo stock updated",
		zap.Stringer("ref", ref),
		zap.Int64("product_id", product.ID),
		zap.Float64("quantity", quantity),
	)
	return nil
}

// findProduct resolves a stock reference to a product.product record.
// A code is matched on default_code, a variant on its id and a template on
// product_tmpl_id.
func (a *OdooAdapter) findProduct(ctx context.Context, ref integration.StockRef) (*odooProductRef, error) {
	var domain []any
	switch {
	case strings.TrimSpace(ref.Code) != "":
		domain = []any{[]any{"default_code", "=", strings.TrimSpace(ref.Code)}}
	case ref.VariantID > 0:
		domain = []any{[]any{"id", "=", ref.VariantID}}
	case ref.TemplateID > 0:
		domain = []any{[]any{"product_tmpl_id", "=", ref.TemplateID}}
	default:
		return nil, fmt.Errorf("%w: empty reference", integration.ErrStockNotFound)
	}

	var records []odooProductRef
	err := a.executeKw(ctx, "product.product", "search_read",
		[]any{domain},
		map[string]any{"fields": []string{"id", "product_tmpl_id", "qty_available"}, "limit": 1},
		&records)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", integration.ErrStockNotFound, ref)
	}
	return &records[0], nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// CreateOrder creates a draft sale order for the customer, creating the
// partner when no partner has the email
func (a *OdooAdapter) CreateOrder(ctx context.Context, order integration.SaleOrder) (int64, error) {
	if err := order.Validate(); err != nil {
		return 0, err
	}

	partnerID, err := a.findOrCreatePartner(ctx, order.CustomerEmail, order.CustomerName)
	if err != nil {
		return 0, err
	}

	lines := make([]any, 0, len(order.Lines))
	for _, line := range order.Lines {
		product, err := a.findProduct(ctx, line.StockRef())
		if err != nil {
			if errors.Is(err, integration.ErrStockNotFound) {
				return 0, fmt.Errorf("%w: unknown sku %s", integration.ErrInvalidOrder, line.SKU)
			}
			return 0, err
		}
		values := map[string]any{
			"product_id":      product.ID,
			"product_uom_qty": line.Quantity,
			"price_unit":      line.UnitPrice.InexactFloat64(),
		}
		if line.Title != "" {
			values["name"] = line.Title
		}
		lines = append(lines, []any{0, 0, values})
	}

	var orderID odooID
	err = a.executeKw(ctx, "sale.order", "create", []any{map[string]any{
		"partner_id":       partnerID,
		"client_order_ref": order.Reference,
		"order_line":       lines,
	}}, nil, &orderID)
	if err != nil {
		return 0, err
	}
	return int64(orderID), nil
}

func (a *OdooAdapter) findOrCreatePartner(ctx context.Context, email, name string) (int64, error) {
	var partners []odooPartner
	err := a.executeKw(ctx, "res.partner", "search_read",
		[]any{[]any{[]any{"email", "=ilike", email}}},
		map[string]any{"fields": []string{"id"}, "limit": 1},
		&partners)
	if err != nil {
		return 0, err
	}
	if len(partners) > 0 {
		return partners[0].ID, nil
	}

	if name == "" {
		name = email
	}
	var partnerID odooID
	err = a.executeKw(ctx, "res.partner", "create", []any{map[string]any{
		"name":  name,
		"email": email,
	}}, nil, &partnerID)
	if err != nil {
		return 0, err
	}
	a.logger.Info("odoo partner created", zap.String("email", email), zap.Int64("partner_id", int64(partnerID)))
	return int64(partnerID), nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Ensure OdooAdapter implements ERPSystem
var _ integration.ERPSystem = (*OdooAdapter)(nil)
