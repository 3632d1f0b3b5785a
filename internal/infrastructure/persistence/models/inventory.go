package models

import (
	"github.com/google/uuid"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
)

// StockLocationModel is a place stock is held
type StockLocationModel struct {
	BaseModel
	Name      string `gorm:"type:varchar(255);not null"`
	IsDefault bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (StockLocationModel) TableName() string {
	return "stock_locations"
}

// ToDomain converts the persistence model to a domain StockLocation
func (m *StockLocationModel) ToDomain() integration.StockLocation {
	return integration.StockLocation{ID: m.ID, Name: m.Name, IsDefault: m.IsDefault}
}

// InventoryItemModel is the stock-keeping record behind a variant
type InventoryItemModel struct {
	BaseModel
	SKU       string    `gorm:"column:sku;type:varchar(100);index"`
	VariantID uuid.UUID `gorm:"type:uuid;not null;index"`

	Levels []InventoryLevelModel `gorm:"foreignKey:InventoryItemID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (InventoryItemModel) TableName() string {
	return "inventory_items"
}

// ToDomain converts the persistence model to a domain InventoryItem
func (m *InventoryItemModel) ToDomain() integration.InventoryItem {
	item := integration.InventoryItem{ID: m.ID, SKU: m.SKU, VariantID: m.VariantID}
	for i := range m.Levels {
		item.Levels = append(item.Levels, m.Levels[i].ToDomain())
	}
	return item
}

// InventoryLevelModel is the stocked quantity of an item at a location
type InventoryLevelModel struct {
	BaseModel
	InventoryItemID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_level_item_location,priority:1"`
	LocationID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_level_item_location,priority:2"`
	StockedQuantity int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (InventoryLevelModel) TableName() string {
	return "inventory_levels"
}

// ToDomain converts the persistence model to a domain InventoryLevel
func (m *InventoryLevelModel) ToDomain() integration.InventoryLevel {
	return integration.InventoryLevel{
		InventoryItemID: m.InventoryItemID,
		LocationID:      m.LocationID,
		StockedQuantity: m.StockedQuantity,
		UpdatedAt:       m.UpdatedAt,
	}
}

// CatalogModels lists every model of the local catalog in creation order
func CatalogModels() []any {
	return []any{
		&ProductModel{},
		&ProductOptionModel{},
		&ProductVariantModel{},
		&VariantPriceModel{},
		&StockLocationModel{},
		&InventoryItemModel{},
		&InventoryLevelModel{},
	}
}
