package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/persistence"
)

func hoodiePayload(externalID string) *integration.ProductPayload {
	return &integration.ProductPayload{
		ExternalID: externalID,
		Title:      "Hoodie",
		Handle:     "hoodie-" + externalID,
		Options:    []integration.OptionPayload{{Title: "Color", Values: []string{"Red", "Blue"}}},
		Variants: []integration.VariantPayload{
			{
				ExternalID:      "1" + externalID,
				Title:           "Hoodie (Red)",
				SKU:             "HD-RED-" + externalID,
				Options:         map[string]string{"Color": "Red"},
				Prices:          []integration.Price{{Amount: decimal.RequireFromString("49.90"), CurrencyCode: "eur"}},
				ManageInventory: true,
				SourceQuantity:  3,
			},
			{
				ExternalID:      "2" + externalID,
				Title:           "Hoodie (Blue)",
				SKU:             "HD-BLUE-" + externalID,
				Options:         map[string]string{"Color": "Blue"},
				Prices:          []integration.Price{{Amount: decimal.RequireFromString("49.90"), CurrencyCode: "eur"}},
				ManageInventory: true,
			},
		},
	}
}

func TestGormCatalogStore_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := NewSharedTestDB(t)
	testDB.CleanTables()
	store := persistence.NewGormCatalogStore(testDB.DB)
	ctx := context.Background()

	location, err := store.EnsureDefaultLocation(ctx, "Main warehouse")
	require.NoError(t, err)

	created, err := store.CreateProduct(ctx, hoodiePayload("42"))
	require.NoError(t, err)

	t.Run("round trips the product", func(t *testing.T) {
		found, err := store.FindProductByID(ctx, created.ID)
		require.NoError(t, err)

		assert.Equal(t, "42", found.ExternalID)
		require.Len(t, found.Options, 1)
		assert.Equal(t, []string{"Red", "Blue"}, found.Options[0].Values)
		require.Len(t, found.Variants, 2)
		red := found.VariantBySKU("HD-RED-42")
		require.NotNil(t, red)
		require.Len(t, red.Prices, 1)
		assert.True(t, decimal.RequireFromString("49.9").Equal(red.Prices[0].Amount))
	})

	t.Run("updates a variant and replaces prices", func(t *testing.T) {
		found, err := store.FindProductByID(ctx, created.ID)
		require.NoError(t, err)
		red := found.VariantBySKU("HD-RED-42")

		err = store.UpdateVariant(ctx, created.ID, red.ID, &integration.VariantPayload{
			ExternalID: red.ExternalID,
			Title:      "Hoodie (Red)",
			SKU:        red.SKU,
			Options:    map[string]string{"Color": "Red"},
			Prices:     []integration.Price{{Amount: decimal.RequireFromString("39.90"), CurrencyCode: "eur"}},
		}, true)
		require.NoError(t, err)

		found, err = store.FindProductByID(ctx, created.ID)
		require.NoError(t, err)
		red = found.VariantBySKU("HD-RED-42")
		require.Len(t, red.Prices, 1)
		assert.True(t, decimal.RequireFromString("39.9").Equal(red.Prices[0].Amount))
	})

	t.Run("inventory levels upsert", func(t *testing.T) {
		items, err := store.ListInventoryItemsBySKU(ctx, []string{"HD-RED-42", "HD-BLUE-42"})
		require.NoError(t, err)
		require.Len(t, items, 2)

		for _, item := range items {
			require.NoError(t, store.UpsertInventoryLevel(ctx, item.ID, location.ID, 5))
			require.NoError(t, store.UpsertInventoryLevel(ctx, item.ID, location.ID, 7))
		}

		items, err = store.ListInventoryItemsBySKU(ctx, []string{"HD-RED-42"})
		require.NoError(t, err)
		require.Len(t, items[0].Levels, 1)
		assert.Equal(t, 7, items[0].Levels[0].StockedQuantity)

		err = store.UpsertInventoryLevel(ctx, uuid.New(), location.ID, 1)
		assert.ErrorIs(t, err, integration.ErrInventoryItemMissing)
	})

	t.Run("soft delete", func(t *testing.T) {
		other, err := store.CreateProduct(ctx, hoodiePayload("43"))
		require.NoError(t, err)
		require.NoError(t, store.DeleteProduct(ctx, other.ID))

		_, err = store.FindProductByID(ctx, other.ID)
		assert.ErrorIs(t, err, integration.ErrLocalProductNotFound)

		imported, err := store.ListImportedProducts(ctx)
		require.NoError(t, err)
		require.Len(t, imported, 1)
		assert.Equal(t, "42", imported[0].ExternalID)

		byExternal, err := store.ListProductsByExternalIDs(ctx, []string{"42", "43"})
		require.NoError(t, err)
		require.Len(t, byExternal, 2)
		deleted := 0
		for _, p := range byExternal {
			if p.IsDeleted() {
				deleted++
			}
		}
		assert.Equal(t, 1, deleted)
	})
}
