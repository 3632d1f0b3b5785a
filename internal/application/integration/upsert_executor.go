package integration

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"go.uber.org/zap"
)

// UpsertOutcome aggregates the result of applying create or update payloads
type UpsertOutcome struct {
	Created  int
	Updated  int
	Failures []integration.SyncFailure
}

// Written returns the number of products created or updated
func (o *UpsertOutcome) Written() int {
	return o.Created + o.Updated
}

func (o *UpsertOutcome) merge(other UpsertOutcome) {
	o.Created += other.Created
	o.Updated += other.Updated
	o.Failures = append(o.Failures, other.Failures...)
}

// UpsertExecutor applies reconciliation plans to the local catalog.
// Every payload is applied on its own: a failing item is logged, reported
// in Failures and the next item is processed.
type UpsertExecutor struct {
	store         integration.CatalogStore
	images        integration.ImageStore
	replacePrices bool
	logger        *zap.Logger
}

// UpsertOption configures an UpsertExecutor
type UpsertOption func(*UpsertExecutor)

// WithImageStore sets where captured product images are uploaded
func WithImageStore(images integration.ImageStore) UpsertOption {
	return func(e *UpsertExecutor) {
		e.images = images
	}
}

// WithPriceReplacement makes updates replace the prices of existing variants.
// Off by default: updates leave existing variant prices untouched.
func WithPriceReplacement(enabled bool) UpsertOption {
	return func(e *UpsertExecutor) {
		e.replacePrices = enabled
	}
}

// WithUpsertLogger sets the logger
func WithUpsertLogger(logger *zap.Logger) UpsertOption {
	return func(e *UpsertExecutor) {
		e.logger = logger
	}
}

// NewUpsertExecutor creates a new UpsertExecutor
func NewUpsertExecutor(store integration.CatalogStore, opts ...UpsertOption) *UpsertExecutor {
	e := &UpsertExecutor{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs Create then Update for a plan
func (e *UpsertExecutor) Apply(ctx context.Context, plan *integration.Plan, dryRun bool) UpsertOutcome {
	var out UpsertOutcome
	out.merge(e.Create(ctx, plan.ToCreate, dryRun))
	out.merge(e.Update(ctx, plan.ToUpdate, dryRun))
	return out
}

// Create creates one local product per payload, seeds its inventory levels
// and attaches its image. In dry-run mode nothing is written and every
// payload is counted as it would have been.
func (e *UpsertExecutor) Create(ctx context.Context, payloads []integration.ProductPayload, dryRun bool) UpsertOutcome {
	var out UpsertOutcome
	if len(payloads) == 0 {
		return out
	}
	if dryRun {
		out.Created = len(payloads)
		return out
	}

	location := e.defaultLocation(ctx)

	for i := range payloads {
		p := &payloads[i]

		product, err := e.store.CreateProduct(ctx, p)
		if err != nil {
			e.logger.Error("failed to create product",
				zap.String("external_id", p.ExternalID),
				zap.String("handle", p.Handle),
				zap.Error(err),
			)
			out.Failures = append(out.Failures, storeFailure(p.ExternalID, err))
			continue
		}
		out.Created++

		e.logger.Debug("product created",
			zap.String("external_id", p.ExternalID),
			zap.String("product_id", product.ID.String()),
			zap.Int("variants", len(p.Variants)),
		)

		if location != nil {
			e.seedInventory(ctx, location, seedsOf(product, p.Variants))
		}
		if p.Image != "" {
			e.attachImage(ctx, product.ID, p)
		}
	}

	return out
}

// Update updates each matched product and its variants. Variants matched by
// SKU are updated in place; the others are created on the product. The
// product row, options included, is written last and only when every variant
// write succeeded, so a partly failed product keeps its previous update time
// and is picked up again by the modified-since job.
func (e *UpsertExecutor) Update(ctx context.Context, payloads []integration.ProductPayload, dryRun bool) UpsertOutcome {
	var out UpsertOutcome
	if len(payloads) == 0 {
		return out
	}
	if dryRun {
		out.Updated = len(payloads)
		return out
	}

	var location *integration.StockLocation
	locationLoaded := false

	for i := range payloads {
		p := &payloads[i]

		var added []inventorySeed
		var variantErrs []string
		for j := range p.Variants {
			v := &p.Variants[j]
			if v.IsUpdate() {
				if err := e.store.UpdateVariant(ctx, p.LocalID, v.LocalID, v, e.replacePrices); err != nil {
					variantErrs = append(variantErrs, fmt.Sprintf("%s: %v", v.SKU, err))
				}
				continue
			}
			created, err := e.store.CreateVariant(ctx, p.LocalID, v)
			if err != nil {
				variantErrs = append(variantErrs, fmt.Sprintf("%s: %v", v.SKU, err))
				continue
			}
			if v.ManageInventory {
				added = append(added, inventorySeed{variantID: created.ID, sku: v.SKU, quantity: v.SourceQuantity})
			}
		}

		if len(added) > 0 {
			if !locationLoaded {
				location = e.defaultLocation(ctx)
				locationLoaded = true
			}
			if location != nil {
				e.seedInventory(ctx, location, added)
			}
		}

		if len(variantErrs) > 0 {
			err := fmt.Errorf("%w: %d variant(s) failed: %s",
				integration.ErrVariantWriteFailed, len(variantErrs), strings.Join(variantErrs, "; "))
			e.logger.Error("failed to update product variants",
				zap.String("external_id", p.ExternalID),
				zap.String("product_id", p.LocalID.String()),
				zap.Strings("variant_errors", variantErrs),
			)
			out.Failures = append(out.Failures, storeFailure(p.ExternalID, err))
			continue
		}

		if err := e.store.UpdateProduct(ctx, p.LocalID, p); err != nil {
			e.logger.Error("failed to update product",
				zap.String("external_id", p.ExternalID),
				zap.String("product_id", p.LocalID.String()),
				zap.Error(err),
			)
			out.Failures = append(out.Failures, storeFailure(p.ExternalID, err))
			continue
		}
		out.Updated++
	}

	return out
}

// defaultLocation returns nil when no location can be used; inventory
// seeding is then skipped but products are still written.
func (e *UpsertExecutor) defaultLocation(ctx context.Context) *integration.StockLocation {
	locations, err := e.store.ListStockLocations(ctx)
	if err != nil {
		e.logger.Warn("failed to list stock locations, inventory will not be seeded", zap.Error(err))
		return nil
	}
	location, err := integration.DefaultStockLocation(locations)
	if err != nil {
		e.logger.Warn("no stock location, inventory will not be seeded")
		return nil
	}
	return location
}

// inventorySeed is the source quantity of a freshly written variant
type inventorySeed struct {
	variantID uuid.UUID
	sku       string
	quantity  float64
}

// seedsOf pairs the inventory-managed payload variants with the variants
// created for them
func seedsOf(product *integration.LocalProduct, variants []integration.VariantPayload) []inventorySeed {
	seeds := make([]inventorySeed, 0, len(variants))
	for _, v := range variants {
		if !v.ManageInventory || v.SKU == "" {
			continue
		}
		if local := product.VariantBySKU(v.SKU); local != nil {
			seeds = append(seeds, inventorySeed{variantID: local.ID, sku: v.SKU, quantity: v.SourceQuantity})
		}
	}
	return seeds
}

// seedInventory writes the source quantities at location. Items are matched
// by variant so another product sharing a SKU is never touched.
func (e *UpsertExecutor) seedInventory(ctx context.Context, location *integration.StockLocation, seeds []inventorySeed) {
	if len(seeds) == 0 {
		return
	}
	byVariant := make(map[uuid.UUID]inventorySeed, len(seeds))
	skus := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		if seed.sku == "" {
			continue
		}
		byVariant[seed.variantID] = seed
		skus = append(skus, seed.sku)
	}
	if len(skus) == 0 {
		return
	}

	items, err := e.store.ListInventoryItemsBySKU(ctx, skus)
	if err != nil {
		e.logger.Warn("failed to list inventory items for seeding",
			zap.Strings("skus", skus),
			zap.Error(err),
		)
		return
	}

	for _, item := range items {
		seed, ok := byVariant[item.VariantID]
		if !ok {
			continue
		}
		if err := e.store.UpsertInventoryLevel(ctx, item.ID, location.ID, integration.LocalQuantity(seed.quantity)); err != nil {
			e.logger.Warn("failed to seed inventory level",
				zap.String("sku", item.SKU),
				zap.String("location_id", location.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// attachImage uploads the captured image and sets it as thumbnail.
// Failures are logged only; the product itself was written.
func (e *UpsertExecutor) attachImage(ctx context.Context, productID uuid.UUID, p *integration.ProductPayload) {
	if e.images == nil {
		return
	}

	data, err := decodeImage(p.Image)
	if err != nil {
		e.logger.Warn("invalid product image",
			zap.String("external_id", p.ExternalID),
			zap.Error(err),
		)
		return
	}

	contentType := http.DetectContentType(data)
	key := ImageKey(p.ExternalID, contentType)

	url, err := e.images.UploadImage(ctx, key, data, contentType)
	if err != nil {
		e.logger.Warn("failed to upload product image",
			zap.String("external_id", p.ExternalID),
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	if err := e.store.SetThumbnail(ctx, productID, url); err != nil {
		e.logger.Warn("failed to set product thumbnail",
			zap.String("external_id", p.ExternalID),
			zap.String("url", url),
			zap.Error(err),
		)
	}
}

// ImageKey returns the object key of a product thumbnail
func ImageKey(externalID, contentType string) string {
	return fmt.Sprintf("products/%s/thumbnail.%s", externalID, imageExtension(contentType))
}

func imageExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/bmp":
		return "bmp"
	default:
		return "bin"
	}
}

func decodeImage(encoded string) ([]byte, error) {
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

func storeFailure(externalID string, err error) integration.SyncFailure {
	f := integration.NewSyncFailure(externalID, err)
	if f.ErrorCode == integration.FailureCodeUnknown {
		f.ErrorCode = integration.FailureCodeStore
	}
	return f
}
