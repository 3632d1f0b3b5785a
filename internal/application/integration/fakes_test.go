package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// ---------------------------------------------------------------------------
// MockERPSystem
// ---------------------------------------------------------------------------

// MockERPSystem is a mock implementation of integration.ERPSystem
type MockERPSystem struct {
	mock.Mock
}

func (m *MockERPSystem) Authenticate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockERPSystem) ListProducts(ctx context.Context, offset, limit int, query string) ([]integration.ExternalProduct, int, error) {
	args := m.Called(ctx, offset, limit, query)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]integration.ExternalProduct), args.Int(1), args.Error(2)
}

func (m *MockERPSystem) ReadProducts(ctx context.Context, ids []int64) ([]integration.ExternalProduct, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.ExternalProduct), args.Error(1)
}

func (m *MockERPSystem) ReadModificationTimes(ctx context.Context, ids []int64) ([]integration.ModificationStamp, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.ModificationStamp), args.Error(1)
}

func (m *MockERPSystem) ReadStock(ctx context.Context, ref integration.StockRef) (float64, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockERPSystem) WriteStock(ctx context.Context, ref integration.StockRef, quantity float64) error {
	args := m.Called(ctx, ref, quantity)
	return args.Error(0)
}

func (m *MockERPSystem) CreateOrder(ctx context.Context, order integration.SaleOrder) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

// ---------------------------------------------------------------------------
// fakeERP serves a fixed catalog. Stock is held per lookup kind so a
// generated SKU asked for as a code is never found.
// ---------------------------------------------------------------------------

type fakeERP struct {
	mu            sync.Mutex
	products      map[int64]integration.ExternalProduct
	stock         map[string]float64 // by default_code
	variantStock  map[int64]float64
	templateStock map[int64]float64
	stockReads    []integration.StockRef
	modified      map[int64]time.Time
	modifiedErr   error
	failBatch     map[int64]error // ReadProducts fails for any batch containing the id
	readCalls     [][]int64
	writes        map[string]float64 // by StockRef.String()
	authErr       error
}

func newFakeERP(products ...integration.ExternalProduct) *fakeERP {
	f := &fakeERP{
		products:      make(map[int64]integration.ExternalProduct),
		stock:         make(map[string]float64),
		variantStock:  make(map[int64]float64),
		templateStock: make(map[int64]float64),
		modified:      make(map[int64]time.Time),
		failBatch:     make(map[int64]error),
		writes:        make(map[string]float64),
	}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeERP) Authenticate(context.Context) error { return f.authErr }

func (f *fakeERP) ListProducts(_ context.Context, offset, limit int, _ string) ([]integration.ExternalProduct, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.products))
	for id := range f.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var page []integration.ExternalProduct
	for i := offset; i < len(ids) && i < offset+limit; i++ {
		page = append(page, f.products[ids[i]])
	}
	return page, len(ids), nil
}

func (f *fakeERP) ReadProducts(_ context.Context, ids []int64) ([]integration.ExternalProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls = append(f.readCalls, append([]int64(nil), ids...))
	for _, id := range ids {
		if err, ok := f.failBatch[id]; ok {
			return nil, err
		}
	}
	var out []integration.ExternalProduct
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeERP) ReadModificationTimes(_ context.Context, ids []int64) ([]integration.ModificationStamp, error) {
	if f.modifiedErr != nil {
		return nil, f.modifiedErr
	}
	var out []integration.ModificationStamp
	for _, id := range ids {
		if ts, ok := f.modified[id]; ok {
			out = append(out, integration.ModificationStamp{ID: id, ModifiedAt: ts})
		}
	}
	return out, nil
}

func (f *fakeERP) ReadStock(_ context.Context, ref integration.StockRef) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stockReads = append(f.stockReads, ref)
	var (
		qty float64
		ok  bool
	)
	switch {
	case ref.Code != "":
		qty, ok = f.stock[ref.Code]
	case ref.VariantID > 0:
		qty, ok = f.variantStock[ref.VariantID]
	case ref.TemplateID > 0:
		qty, ok = f.templateStock[ref.TemplateID]
	}
	if !ok {
		return 0, integration.ErrStockNotFound
	}
	return qty, nil
}

func (f *fakeERP) WriteStock(_ context.Context, ref integration.StockRef, quantity float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref.IsZero() {
		return integration.ErrStockNotFound
	}
	f.writes[ref.String()] = quantity
	return nil
}

// codeReads returns the codes asked for by default_code
func (f *fakeERP) codeReads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var codes []string
	for _, ref := range f.stockReads {
		if ref.Code != "" {
			codes = append(codes, ref.Code)
		}
	}
	return codes
}

func (f *fakeERP) CreateOrder(context.Context, integration.SaleOrder) (int64, error) {
	return 1, nil
}

// ---------------------------------------------------------------------------
// memoryStore is an in-memory CatalogStore
// ---------------------------------------------------------------------------

type memoryStore struct {
	mu                sync.Mutex
	products          []integration.LocalProduct
	items             []integration.InventoryItem
	locations         []integration.StockLocation
	thumbnails        map[uuid.UUID]string
	createErr         map[string]error
	variantErr        map[string]error // by SKU
	writes            int
	levelWrites       int
	priceReplacements int
	now               time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		locations:  []integration.StockLocation{{ID: uuid.New(), Name: "Warehouse", IsDefault: true}},
		thumbnails: make(map[uuid.UUID]string),
		createErr:  make(map[string]error),
		variantErr: make(map[string]error),
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memoryStore) ListProductsByExternalIDs(_ context.Context, externalIDs []string) ([]integration.LocalProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := integration.NewIDSet(externalIDs...)
	var out []integration.LocalProduct
	for _, p := range s.products {
		if wanted.Has(p.ExternalID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memoryStore) ListImportedProducts(context.Context) ([]integration.LocalProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []integration.LocalProduct
	for _, p := range s.products {
		if p.IsImported() && !p.IsDeleted() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memoryStore) FindProductByID(_ context.Context, id uuid.UUID) (*integration.LocalProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 || s.products[idx].IsDeleted() {
		return nil, integration.ErrLocalProductNotFound
	}
	p := s.products[idx]
	return &p, nil
}

func (s *memoryStore) FindProductBySKU(_ context.Context, sku string) (*integration.LocalProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if !p.IsDeleted() && p.VariantBySKU(sku) != nil {
			return &p, nil
		}
	}
	return nil, integration.ErrLocalProductNotFound
}

func (s *memoryStore) CreateProduct(_ context.Context, payload *integration.ProductPayload) (*integration.LocalProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[payload.ExternalID]; err != nil {
		return nil, err
	}
	s.writes++

	product := integration.LocalProduct{
		ID:          uuid.New(),
		Handle:      payload.Handle,
		Title:       payload.Title,
		Description: payload.Description,
		ExternalID:  payload.ExternalID,
		Options:     payload.Options,
		CreatedAt:   s.now,
		UpdatedAt:   s.now,
	}
	for i := range payload.Variants {
		product.Variants = append(product.Variants, s.newVariant(product.ID, &payload.Variants[i]))
	}
	s.products = append(s.products, product)
	return &product, nil
}

func (s *memoryStore) newVariant(productID uuid.UUID, v *integration.VariantPayload) integration.LocalVariant {
	variant := integration.LocalVariant{
		ID:           uuid.New(),
		ProductID:    productID,
		Title:        v.Title,
		SKU:          v.SKU,
		ExternalID:   v.ExternalID,
		GeneratedSKU: v.GeneratedSKU,
		WeightGrams:  v.WeightGrams,
		Prices:       v.Prices,
		Options:      v.Options,
	}
	if v.ManageInventory {
		s.items = append(s.items, integration.InventoryItem{ID: uuid.New(), SKU: v.SKU, VariantID: variant.ID})
	}
	return variant
}

func (s *memoryStore) UpdateProduct(_ context.Context, id uuid.UUID, payload *integration.ProductPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return integration.ErrLocalProductNotFound
	}
	s.writes++
	s.products[idx].Title = payload.Title
	s.products[idx].Description = payload.Description
	s.products[idx].Options = payload.Options
	s.products[idx].UpdatedAt = s.now
	return nil
}

func (s *memoryStore) UpdateVariant(_ context.Context, productID, variantID uuid.UUID, variant *integration.VariantPayload, replacePrices bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.variantErr[variant.SKU]; err != nil {
		return err
	}
	idx := s.indexOf(productID)
	if idx < 0 {
		return integration.ErrLocalProductNotFound
	}
	for i := range s.products[idx].Variants {
		v := &s.products[idx].Variants[i]
		if v.ID != variantID {
			continue
		}
		s.writes++
		v.Title = variant.Title
		v.WeightGrams = variant.WeightGrams
		if replacePrices {
			v.Prices = variant.Prices
			s.priceReplacements++
		}
		return nil
	}
	return integration.ErrLocalVariantNotFound
}

func (s *memoryStore) CreateVariant(_ context.Context, productID uuid.UUID, variant *integration.VariantPayload) (*integration.LocalVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.variantErr[variant.SKU]; err != nil {
		return nil, err
	}
	idx := s.indexOf(productID)
	if idx < 0 {
		return nil, integration.ErrLocalProductNotFound
	}
	s.writes++
	v := s.newVariant(productID, variant)
	s.products[idx].Variants = append(s.products[idx].Variants, v)
	return &v, nil
}

func (s *memoryStore) SetThumbnail(_ context.Context, productID uuid.UUID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbnails[productID] = url
	return nil
}

func (s *memoryStore) DeleteProduct(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return integration.ErrLocalProductNotFound
	}
	deletedAt := s.now
	s.products[idx].DeletedAt = &deletedAt
	return nil
}

func (s *memoryStore) ListStockLocations(context.Context) ([]integration.StockLocation, error) {
	return s.locations, nil
}

func (s *memoryStore) ListInventoryItemsBySKU(_ context.Context, skus []string) ([]integration.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := integration.NewIDSet(skus...)
	var out []integration.InventoryItem
	for _, item := range s.items {
		if wanted.Has(item.SKU) && s.liveVariant(item.VariantID) {
			item.Levels = append([]integration.InventoryLevel(nil), item.Levels...)
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memoryStore) UpsertInventoryLevel(_ context.Context, itemID, locationID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID != itemID {
			continue
		}
		s.levelWrites++
		for j := range s.items[i].Levels {
			if s.items[i].Levels[j].LocationID == locationID {
				s.items[i].Levels[j].StockedQuantity = quantity
				return nil
			}
		}
		s.items[i].Levels = append(s.items[i].Levels, integration.InventoryLevel{
			InventoryItemID: itemID,
			LocationID:      locationID,
			StockedQuantity: quantity,
		})
		return nil
	}
	return fmt.Errorf("%w: item %s", integration.ErrInventoryItemMissing, itemID)
}

func (s *memoryStore) liveVariant(variantID uuid.UUID) bool {
	for _, p := range s.products {
		if p.IsDeleted() {
			continue
		}
		for _, v := range p.Variants {
			if v.ID == variantID {
				return true
			}
		}
	}
	return false
}

func (s *memoryStore) indexOf(id uuid.UUID) int {
	for i := range s.products {
		if s.products[i].ID == id {
			return i
		}
	}
	return -1
}

// level returns the stocked quantity of the live item of sku at its first
// level, -1 when none
func (s *memoryStore) level(sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.SKU == sku && s.liveVariant(item.VariantID) && len(item.Levels) > 0 {
			return item.Levels[0].StockedQuantity
		}
	}
	return -1
}

var _ integration.CatalogStore = (*memoryStore)(nil)

// ---------------------------------------------------------------------------
// fakeCache, fakeImages, recordingPublisher
// ---------------------------------------------------------------------------

type fakeCache struct {
	mu            sync.Mutex
	ids           integration.IDSet
	present       bool
	invalidations int
	sets          int
}

func (c *fakeCache) Get(context.Context) (integration.IDSet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids, c.present, nil
}

func (c *fakeCache) Set(_ context.Context, ids integration.IDSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids, c.present = ids, true
	c.sets++
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids, c.present = nil, false
	c.invalidations++
	return nil
}

type fakeImages struct {
	keys []string
	err  error
}

func (f *fakeImages) UploadImage(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type recordingPublisher struct {
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.events = append(p.events, events...)
	return nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var eur = integration.Reference{ID: 1, Name: "EUR"}

func erpProduct(id int64, name string, qty float64) integration.ExternalProduct {
	return integration.ExternalProduct{
		ID:           id,
		Name:         name,
		DisplayName:  name,
		ListPrice:    decimal.NewFromInt(10),
		Currency:     eur,
		QtyAvailable: qty,
		VariantCount: 1,
	}
}

func erpCatalog(n int) []integration.ExternalProduct {
	products := make([]integration.ExternalProduct, 0, n)
	for i := 1; i <= n; i++ {
		products = append(products, erpProduct(int64(i), fmt.Sprintf("Product %d", i), float64(i)))
	}
	return products
}

func idRange(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

// tshirtProduct is a template 7 with generated-SKU variants 70 (S) and 71 (M)
func tshirtProduct() integration.ExternalProduct {
	return integration.ExternalProduct{
		ID:           7,
		DisplayName:  "T-Shirt",
		ListPrice:    decimal.NewFromInt(15),
		Currency:     eur,
		VariantCount: 2,
		AttributeLines: []integration.AttributeLine{
			{ID: 1, AttributeName: "Size", Values: []string{"S", "M"}},
		},
		Variants: []integration.ExternalVariant{
			{ID: 70, QtyAvailable: 3, Values: []integration.AttributeValue{{AttributeName: "Size", Name: "S"}}},
			{ID: 71, QtyAvailable: 4, Values: []integration.AttributeValue{{AttributeName: "Size", Name: "M"}}},
		},
	}
}
