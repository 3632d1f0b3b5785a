// Package models contains GORM persistence models for the local catalog.
// Domain types in internal/domain/integration carry no ORM tags; each model
// converts to its domain type with ToDomain.
//
// Tables:
//   - products, product_options, product_variants, variant_prices
//   - stock_locations, inventory_items, inventory_levels
package models
