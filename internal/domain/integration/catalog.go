package integration

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	ErrLocalProductNotFound = errors.New("integration: local product not found")
	ErrLocalVariantNotFound = errors.New("integration: local variant not found")
	ErrNoStockLocation      = errors.New("integration: no stock location configured")
	ErrInventoryItemMissing = errors.New("integration: inventory item not found for sku")
	ErrVariantWriteFailed   = errors.New("integration: variant write failed")
)

// Metadata keys written on local products and variants
const (
	MetadataExternalID     = "external_id"
	MetadataGeneratedSKU   = "generated_sku"
	MetadataSourceQuantity = "erp_quantity"
)

// LocalProduct is a product of the local catalog
type LocalProduct struct {
	ID          uuid.UUID
	Handle      string
	Title       string
	Description string
	Thumbnail   string
	// ExternalID is metadata.external_id; empty when the product was not imported
	ExternalID string
	Options    []OptionPayload
	Variants   []LocalVariant
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// IsImported returns true if the product carries an external reference
func (p *LocalProduct) IsImported() bool {
	return p.ExternalID != ""
}

// IsDeleted returns true if the product was soft-deleted
func (p *LocalProduct) IsDeleted() bool {
	return p.DeletedAt != nil
}

// VariantBySKU finds a variant by SKU equality
func (p *LocalProduct) VariantBySKU(sku string) *LocalVariant {
	if sku == "" {
		return nil
	}
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i]
		}
	}
	return nil
}

// LocalVariant is a variant of a LocalProduct
type LocalVariant struct {
	ID           uuid.UUID
	ProductID    uuid.UUID
	Title        string
	SKU          string
	ExternalID   string
	GeneratedSKU bool
	WeightGrams  *int
	Prices       []Price
	Options      map[string]string
}

// StockRefOf returns the ERP stock reference of a variant of an imported
// product. Variants with an ERP code are matched by code; generated SKUs by
// id. A single variant recorded under the template id resolves through its
// template.
func StockRefOf(product *LocalProduct, variant *LocalVariant) StockRef {
	if !variant.GeneratedSKU {
		return CodeRef(variant.SKU)
	}
	variantID, err := ParseExternalID(variant.ExternalID)
	if err == nil && (variant.ExternalID != product.ExternalID || len(product.Variants) > 1) {
		return StockRef{VariantID: variantID}
	}
	templateID, err := ParseExternalID(product.ExternalID)
	if err != nil {
		return StockRef{}
	}
	return StockRef{TemplateID: templateID}
}

// StockLocation is a place stock is held
type StockLocation struct {
	ID        uuid.UUID
	Name      string
	IsDefault bool
}

// DefaultStockLocation picks the location flagged default, else the first one
func DefaultStockLocation(locations []StockLocation) (*StockLocation, error) {
	if len(locations) == 0 {
		return nil, ErrNoStockLocation
	}
	for i := range locations {
		if locations[i].IsDefault {
			return &locations[i], nil
		}
	}
	return &locations[0], nil
}

// LocalQuantity converts an ERP quantity to a local stocked quantity.
// The ERP allows fractional and negative on-hand quantities; the local
// catalog stores whole units and never goes below zero.
func LocalQuantity(erpQuantity float64) int {
	if math.IsNaN(erpQuantity) || erpQuantity <= 0 {
		return 0
	}
	return int(math.Round(erpQuantity))
}

// InventoryLevel is the stocked quantity of an item at a location
type InventoryLevel struct {
	InventoryItemID uuid.UUID
	LocationID      uuid.UUID
	StockedQuantity int
	UpdatedAt       time.Time
}

// InventoryItem is the stock-keeping record behind a variant
type InventoryItem struct {
	ID        uuid.UUID
	SKU       string
	VariantID uuid.UUID
	Levels    []InventoryLevel
}

// ---------------------------------------------------------------------------
// CatalogStore Port Interfaces
// ---------------------------------------------------------------------------

// ProductReader reads local products
type ProductReader interface {
	// ListProductsByExternalIDs returns products (soft-deleted included) whose
	// metadata.external_id is one of externalIDs, in storage order
	ListProductsByExternalIDs(ctx context.Context, externalIDs []string) ([]LocalProduct, error)
	// ListImportedProducts returns every live product carrying an external reference
	ListImportedProducts(ctx context.Context) ([]LocalProduct, error)
	// FindProductByID finds a live product by id
	FindProductByID(ctx context.Context, id uuid.UUID) (*LocalProduct, error)
	// FindProductBySKU finds the oldest live product with a variant carrying sku
	FindProductBySKU(ctx context.Context, sku string) (*LocalProduct, error)
}

// ProductWriter mutates local products and variants
type ProductWriter interface {
	// CreateProduct creates the product with its options, variants and prices.
	// An inventory item is created for every variant managing inventory.
	CreateProduct(ctx context.Context, payload *ProductPayload) (*LocalProduct, error)
	// UpdateProduct updates the top-level product fields and replaces its options
	UpdateProduct(ctx context.Context, id uuid.UUID, payload *ProductPayload) error
	// UpdateVariant updates a variant in place. Prices are only replaced when replacePrices is set.
	UpdateVariant(ctx context.Context, productID, variantID uuid.UUID, variant *VariantPayload, replacePrices bool) error
	// CreateVariant adds a variant to an existing product
	CreateVariant(ctx context.Context, productID uuid.UUID, variant *VariantPayload) (*LocalVariant, error)
	// SetThumbnail sets the product thumbnail URL
	SetThumbnail(ctx context.Context, productID uuid.UUID, url string) error
	// DeleteProduct soft-deletes a product
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

// InventoryStore manages stock locations and inventory levels
type InventoryStore interface {
	ListStockLocations(ctx context.Context) ([]StockLocation, error)
	// ListInventoryItemsBySKU returns the items of live variants carrying
	// one of the SKUs, with their levels, oldest first
	ListInventoryItemsBySKU(ctx context.Context, skus []string) ([]InventoryItem, error)
	// UpsertInventoryLevel creates or updates the level of an item at a location
	UpsertInventoryLevel(ctx context.Context, itemID, locationID uuid.UUID, quantity int) error
}

// CatalogStore is the local catalog the ERP is synchronized into
type CatalogStore interface {
	ProductReader
	ProductWriter
	InventoryStore
}

// ImageStore uploads binary images and returns their public URL
type ImageStore interface {
	UploadImage(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
