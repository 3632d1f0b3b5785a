package integration

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultOptionTitle names the implicit option of single-variant products
const DefaultOptionTitle = "Default"

// Price is an amount in the source's native unit and its currency
type Price struct {
	Amount       decimal.Decimal
	CurrencyCode string
}

// OptionPayload is a product option and its allowed values
type OptionPayload struct {
	Title  string
	Values []string
}

// VariantPayload is the canonical form of one variant to create or update
type VariantPayload struct {
	// LocalID is set when a local variant with the same SKU exists
	LocalID      uuid.UUID
	ExternalID   string
	Title        string
	SKU          string
	GeneratedSKU bool
	Options      map[string]string
	Prices       []Price
	// WeightGrams is nil when the source has no weight
	WeightGrams     *int
	ManageInventory bool
	// SourceQuantity is the raw ERP quantity used to seed inventory levels
	SourceQuantity float64
}

// IsUpdate returns true if the variant matched an existing local variant
func (v *VariantPayload) IsUpdate() bool {
	return v.LocalID != uuid.Nil
}

// Metadata returns the metadata map stored on the local variant
func (v *VariantPayload) Metadata() map[string]any {
	return map[string]any{
		MetadataExternalID:     v.ExternalID,
		MetadataGeneratedSKU:   v.GeneratedSKU,
		MetadataSourceQuantity: v.SourceQuantity,
	}
}

// ProductPayload is the canonical local form of one ERP product
type ProductPayload struct {
	// LocalID is set when the product already exists locally
	LocalID     uuid.UUID
	ExternalID  string
	Title       string
	Handle      string
	Description string
	Options     []OptionPayload
	Variants    []VariantPayload
	// Image is the base64 encoded source image, empty when none was captured
	Image          string
	WeightGrams    *int
	SourceQuantity float64
}

// IsUpdate returns true if the payload targets an existing local product
func (p *ProductPayload) IsUpdate() bool {
	return p.LocalID != uuid.Nil
}

// Metadata returns the metadata map stored on the local product
func (p *ProductPayload) Metadata() map[string]any {
	return map[string]any{
		MetadataExternalID:     p.ExternalID,
		MetadataSourceQuantity: p.SourceQuantity,
	}
}

// SKUs returns the SKUs of all variants in order
func (p *ProductPayload) SKUs() []string {
	skus := make([]string, 0, len(p.Variants))
	for _, v := range p.Variants {
		if v.SKU != "" {
			skus = append(skus, v.SKU)
		}
	}
	return skus
}
