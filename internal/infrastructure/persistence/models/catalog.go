package models

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
)

// ProductModel is the persistence model for a local product
type ProductModel struct {
	BaseModel
	Handle      string         `gorm:"type:varchar(255);not null;index"`
	Title       string         `gorm:"type:varchar(255);not null"`
	Description string         `gorm:"type:text"`
	Thumbnail   string         `gorm:"type:text"`
	ExternalID  string         `gorm:"type:varchar(64);index"`
	Metadata    string         `gorm:"type:text"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`

	Options  []ProductOptionModel  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Variants []ProductVariantModel `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain LocalProduct
func (m *ProductModel) ToDomain() integration.LocalProduct {
	p := integration.LocalProduct{
		ID:          m.ID,
		Handle:      m.Handle,
		Title:       m.Title,
		Description: m.Description,
		Thumbnail:   m.Thumbnail,
		ExternalID:  m.ExternalID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.DeletedAt.Valid {
		deletedAt := m.DeletedAt.Time
		p.DeletedAt = &deletedAt
	}
	for i := range m.Options {
		p.Options = append(p.Options, m.Options[i].ToDomain())
	}
	for i := range m.Variants {
		p.Variants = append(p.Variants, m.Variants[i].ToDomain())
	}
	return p
}

// ProductModelFromPayload builds a product with its options, variants and prices
func ProductModelFromPayload(payload *integration.ProductPayload) *ProductModel {
	m := &ProductModel{
		BaseModel:   BaseModel{ID: uuid.New()},
		Handle:      payload.Handle,
		Title:       payload.Title,
		Description: payload.Description,
		ExternalID:  payload.ExternalID,
		Metadata:    JSONColumn(payload.Metadata()),
	}
	m.Options = OptionModels(m.ID, payload.Options)
	for i := range payload.Variants {
		m.Variants = append(m.Variants, *VariantModelFromPayload(m.ID, &payload.Variants[i], i))
	}
	return m
}

// OptionModels builds the option rows of a product in payload order
func OptionModels(productID uuid.UUID, options []integration.OptionPayload) []ProductOptionModel {
	out := make([]ProductOptionModel, 0, len(options))
	for i, o := range options {
		out = append(out, ProductOptionModel{
			BaseModel: BaseModel{ID: uuid.New()},
			ProductID: productID,
			Title:     o.Title,
			Values:    JSONColumn(o.Values),
			Position:  i,
		})
	}
	return out
}

// ProductOptionModel is a product option and its allowed values
type ProductOptionModel struct {
	BaseModel
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	Title     string    `gorm:"type:varchar(255);not null"`
	Values    string    `gorm:"column:option_values;type:text"`
	Position  int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductOptionModel) TableName() string {
	return "product_options"
}

// ToDomain converts the persistence model to a domain OptionPayload
func (m *ProductOptionModel) ToDomain() integration.OptionPayload {
	o := integration.OptionPayload{Title: m.Title}
	decodeJSON("product_options.option_values", m.Values, &o.Values)
	return o
}

// ProductVariantModel is the persistence model for a product variant
type ProductVariantModel struct {
	BaseModel
	ProductID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Title           string    `gorm:"type:varchar(255);not null"`
	SKU             string    `gorm:"column:sku;type:varchar(100);index"`
	ExternalID      string    `gorm:"type:varchar(64)"`
	GeneratedSKU    bool      `gorm:"column:generated_sku;not null;default:false"`
	WeightGrams     *int
	ManageInventory bool   `gorm:"not null;default:true"`
	Options         string `gorm:"type:text"`
	Metadata        string `gorm:"type:text"`
	Position        int    `gorm:"not null;default:0"`

	Prices []VariantPriceModel `gorm:"foreignKey:VariantID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ProductVariantModel) TableName() string {
	return "product_variants"
}

// ToDomain converts the persistence model to a domain LocalVariant
func (m *ProductVariantModel) ToDomain() integration.LocalVariant {
	v := integration.LocalVariant{
		ID:           m.ID,
		ProductID:    m.ProductID,
		Title:        m.Title,
		SKU:          m.SKU,
		ExternalID:   m.ExternalID,
		GeneratedSKU: m.GeneratedSKU,
		WeightGrams:  m.WeightGrams,
	}
	decodeJSON("product_variants.options", m.Options, &v.Options)
	for _, price := range m.Prices {
		v.Prices = append(v.Prices, integration.Price{Amount: price.Amount, CurrencyCode: price.CurrencyCode})
	}
	return v
}

// VariantModelFromPayload builds a variant and its prices at the given position
func VariantModelFromPayload(productID uuid.UUID, payload *integration.VariantPayload, position int) *ProductVariantModel {
	m := &ProductVariantModel{
		BaseModel:       BaseModel{ID: uuid.New()},
		ProductID:       productID,
		Title:           payload.Title,
		SKU:             payload.SKU,
		ExternalID:      payload.ExternalID,
		GeneratedSKU:    payload.GeneratedSKU,
		WeightGrams:     payload.WeightGrams,
		ManageInventory: payload.ManageInventory,
		Options:         JSONColumn(payload.Options),
		Metadata:        JSONColumn(payload.Metadata()),
		Position:        position,
	}
	m.Prices = PriceModels(m.ID, payload.Prices)
	return m
}

// VariantPriceModel is one price of a variant
type VariantPriceModel struct {
	BaseModel
	VariantID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CurrencyCode string          `gorm:"type:varchar(3);not null"`
}

// TableName returns the table name for GORM
func (VariantPriceModel) TableName() string {
	return "variant_prices"
}

// PriceModels builds the price rows of a variant
func PriceModels(variantID uuid.UUID, prices []integration.Price) []VariantPriceModel {
	out := make([]VariantPriceModel, 0, len(prices))
	for _, p := range prices {
		out = append(out, VariantPriceModel{
			BaseModel:    BaseModel{ID: uuid.New()},
			VariantID:    variantID,
			Amount:       p.Amount,
			CurrencyCode: p.CurrencyCode,
		})
	}
	return out
}

// JSONColumn marshals a value stored in a text column. The values are maps
// and slices of plain types so marshalling cannot fail.
func JSONColumn(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// decodeJSON leaves dst untouched when the column is empty or malformed.
// A malformed column is logged and otherwise ignored.
func decodeJSON(column, raw string, dst any) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		zap.L().Named("catalog.models").Warn("failed to decode json column",
			zap.String("column", column),
			zap.String("raw_json", raw),
			zap.Error(err),
		)
	}
}

// MetadataOf decodes a metadata column
func MetadataOf(raw string) map[string]any {
	out := map[string]any{}
	decodeJSON("metadata", raw, &out)
	return out
}
