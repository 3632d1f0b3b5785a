package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/persistence/models"
)

// GormCatalogStore implements integration.CatalogStore using GORM
type GormCatalogStore struct {
	db *gorm.DB
}

// NewGormCatalogStore creates a new GormCatalogStore
func NewGormCatalogStore(db *gorm.DB) *GormCatalogStore {
	return &GormCatalogStore{db: db}
}

// productGraph preloads options, variants and prices in position order
func productGraph(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Options", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Preload("Variants", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Preload("Variants.Prices")
}

func toDomainProducts(rows []models.ProductModel) []integration.LocalProduct {
	out := make([]integration.LocalProduct, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

// ---------------------------------------------------------------------------
// ProductReader
// ---------------------------------------------------------------------------

// ListProductsByExternalIDs returns products, soft-deleted included, carrying
// one of the external ids, oldest first
func (s *GormCatalogStore) ListProductsByExternalIDs(ctx context.Context, externalIDs []string) ([]integration.LocalProduct, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	var rows []models.ProductModel
	if err := productGraph(s.db.WithContext(ctx).Unscoped()).
		Where("external_id IN ?", externalIDs).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list products by external id: %w", err)
	}
	return toDomainProducts(rows), nil
}

// ListImportedProducts returns every live product carrying an external id
func (s *GormCatalogStore) ListImportedProducts(ctx context.Context) ([]integration.LocalProduct, error) {
	var rows []models.ProductModel
	if err := productGraph(s.db.WithContext(ctx)).
		Where("external_id <> ''").
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list imported products: %w", err)
	}
	return toDomainProducts(rows), nil
}

// FindProductByID finds a live product by id
func (s *GormCatalogStore) FindProductByID(ctx context.Context, id uuid.UUID) (*integration.LocalProduct, error) {
	var row models.ProductModel
	if err := productGraph(s.db.WithContext(ctx)).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", integration.ErrLocalProductNotFound, id)
		}
		return nil, err
	}
	p := row.ToDomain()
	return &p, nil
}

// FindProductBySKU finds the oldest live product with a variant carrying sku
func (s *GormCatalogStore) FindProductBySKU(ctx context.Context, sku string) (*integration.LocalProduct, error) {
	var variant models.ProductVariantModel
	err := s.db.WithContext(ctx).
		Select("product_variants.product_id").
		Joins("JOIN products ON products.id = product_variants.product_id AND products.deleted_at IS NULL").
		Where("product_variants.sku = ?", sku).
		Order("products.created_at ASC").
		Take(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: sku %s", integration.ErrLocalProductNotFound, sku)
		}
		return nil, fmt.Errorf("failed to find product by sku %s: %w", sku, err)
	}
	return s.FindProductByID(ctx, variant.ProductID)
}

// ---------------------------------------------------------------------------
// ProductWriter
// ---------------------------------------------------------------------------

// CreateProduct creates the product graph and one inventory item per variant
// managing inventory, in one transaction
func (s *GormCatalogStore) CreateProduct(ctx context.Context, payload *integration.ProductPayload) (*integration.LocalProduct, error) {
	row := models.ProductModelFromPayload(payload)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create product %s: %w", payload.ExternalID, err)
		}
		for i := range row.Variants {
			if err := createInventoryItem(tx, &row.Variants[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p := row.ToDomain()
	return &p, nil
}

func createInventoryItem(tx *gorm.DB, variant *models.ProductVariantModel) error {
	if !variant.ManageInventory {
		return nil
	}
	item := &models.InventoryItemModel{SKU: variant.SKU, VariantID: variant.ID}
	if err := tx.Create(item).Error; err != nil {
		return fmt.Errorf("failed to create inventory item for %s: %w", variant.SKU, err)
	}
	return nil
}

// UpdateProduct updates title, description and metadata of a live product
// and replaces its options
func (s *GormCatalogStore) UpdateProduct(ctx context.Context, id uuid.UUID, payload *integration.ProductPayload) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ProductModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"title":       payload.Title,
				"description": payload.Description,
				"metadata":    models.JSONColumn(payload.Metadata()),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update product %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", integration.ErrLocalProductNotFound, id)
		}

		if err := tx.Where("product_id = ?", id).Delete(&models.ProductOptionModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear options of %s: %w", id, err)
		}
		options := models.OptionModels(id, payload.Options)
		if len(options) == 0 {
			return nil
		}
		if err := tx.Create(&options).Error; err != nil {
			return fmt.Errorf("failed to write options of %s: %w", id, err)
		}
		return nil
	})
}

// UpdateVariant updates a variant in place, replacing its prices only when asked
func (s *GormCatalogStore) UpdateVariant(ctx context.Context, productID, variantID uuid.UUID, variant *integration.VariantPayload, replacePrices bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ProductVariantModel{}).
			Where("id = ? AND product_id = ?", variantID, productID).
			Updates(map[string]any{
				"title":        variant.Title,
				"weight_grams": variant.WeightGrams,
				"options":      models.JSONColumn(variant.Options),
				"metadata":     models.JSONColumn(variant.Metadata()),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update variant %s: %w", variantID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", integration.ErrLocalVariantNotFound, variantID)
		}
		if !replacePrices {
			return nil
		}
		if err := tx.Where("variant_id = ?", variantID).Delete(&models.VariantPriceModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear prices of %s: %w", variantID, err)
		}
		prices := models.PriceModels(variantID, variant.Prices)
		if len(prices) == 0 {
			return nil
		}
		if err := tx.Create(&prices).Error; err != nil {
			return fmt.Errorf("failed to write prices of %s: %w", variantID, err)
		}
		return nil
	})
}

// CreateVariant appends a variant to a live product
func (s *GormCatalogStore) CreateVariant(ctx context.Context, productID uuid.UUID, variant *integration.VariantPayload) (*integration.LocalVariant, error) {
	var row *models.ProductVariantModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.ProductModel
		if err := tx.Select("id").First(&product, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", integration.ErrLocalProductNotFound, productID)
			}
			return err
		}
		var position int64
		if err := tx.Model(&models.ProductVariantModel{}).Where("product_id = ?", productID).Count(&position).Error; err != nil {
			return err
		}
		row = models.VariantModelFromPayload(productID, variant, int(position))
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create variant %s: %w", variant.SKU, err)
		}
		return createInventoryItem(tx, row)
	})
	if err != nil {
		return nil, err
	}
	v := row.ToDomain()
	return &v, nil
}

// SetThumbnail sets the product thumbnail URL
func (s *GormCatalogStore) SetThumbnail(ctx context.Context, productID uuid.UUID, url string) error {
	result := s.db.WithContext(ctx).Model(&models.ProductModel{}).
		Where("id = ?", productID).
		Update("thumbnail", url)
	if result.Error != nil {
		return fmt.Errorf("failed to set thumbnail of %s: %w", productID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", integration.ErrLocalProductNotFound, productID)
	}
	return nil
}

// DeleteProduct soft-deletes a product. Its handle stays taken.
func (s *GormCatalogStore) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.ProductModel{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", integration.ErrLocalProductNotFound, id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// InventoryStore
// ---------------------------------------------------------------------------

// ListStockLocations returns every stock location, oldest first
func (s *GormCatalogStore) ListStockLocations(ctx context.Context) ([]integration.StockLocation, error) {
	var rows []models.StockLocationModel
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stock locations: %w", err)
	}
	out := make([]integration.StockLocation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// EnsureDefaultLocation creates a default location named name when no
// location exists yet and returns the default one
func (s *GormCatalogStore) EnsureDefaultLocation(ctx context.Context, name string) (*integration.StockLocation, error) {
	locations, err := s.ListStockLocations(ctx)
	if err != nil {
		return nil, err
	}
	if len(locations) > 0 {
		return integration.DefaultStockLocation(locations)
	}
	row := &models.StockLocationModel{Name: name, IsDefault: true}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create stock location: %w", err)
	}
	location := row.ToDomain()
	return &location, nil
}

// ListInventoryItemsBySKU returns the items of live variants carrying one of
// the SKUs, with their levels, oldest first. Items left behind by a
// soft-deleted product are skipped so a re-import owns its SKUs.
func (s *GormCatalogStore) ListInventoryItemsBySKU(ctx context.Context, skus []string) ([]integration.InventoryItem, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	var rows []models.InventoryItemModel
	if err := s.db.WithContext(ctx).
		Select("inventory_items.*").
		Joins("JOIN product_variants ON product_variants.id = inventory_items.variant_id").
		Joins("JOIN products ON products.id = product_variants.product_id AND products.deleted_at IS NULL").
		Preload("Levels", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Where("inventory_items.sku IN ?", skus).
		Order("inventory_items.created_at ASC, inventory_items.id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list inventory items: %w", err)
	}
	out := make([]integration.InventoryItem, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// UpsertInventoryLevel creates or updates the level of an item at a location
func (s *GormCatalogStore) UpsertInventoryLevel(ctx context.Context, itemID, locationID uuid.UUID, quantity int) error {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.InventoryItemModel{}).Where("id = ?", itemID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: item %s", integration.ErrInventoryItemMissing, itemID)
	}

	level := &models.InventoryLevelModel{
		InventoryItemID: itemID,
		LocationID:      locationID,
		StockedQuantity: quantity,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "inventory_item_id"}, {Name: "location_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stocked_quantity", "updated_at"}),
	}).Create(level).Error
	if err != nil {
		return fmt.Errorf("failed to upsert inventory level: %w", err)
	}
	return nil
}

// Ensure GormCatalogStore implements CatalogStore
var _ integration.CatalogStore = (*GormCatalogStore)(nil)
