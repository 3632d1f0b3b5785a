package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	appintegration "github.com/mendlyio/LaCabrade-V4/internal/application/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/scheduler"
)

type mockCatalogSync struct {
	mock.Mock
	// events is replayed to the emit callback of SyncBatched
	events []integration.ProgressEvent
}

func (m *mockCatalogSync) ListProducts(ctx context.Context, query appintegration.ListProductsQuery) (*appintegration.ProductListResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.ProductListResult), args.Error(1)
}

func (m *mockCatalogSync) SyncProducts(ctx context.Context, req appintegration.SyncRequest) (*integration.SyncResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncResult), args.Error(1)
}

func (m *mockCatalogSync) SyncSelected(ctx context.Context, ids []int64) (*integration.SyncResult, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncResult), args.Error(1)
}

func (m *mockCatalogSync) SyncBatched(ctx context.Context, ids []int64, emit integration.ProgressFunc) (appintegration.RunStats, error) {
	args := m.Called(ctx, ids)
	if emit != nil {
		for _, e := range m.events {
			emit(e)
		}
	}
	return args.Get(0).(appintegration.RunStats), args.Error(1)
}

func (m *mockCatalogSync) Resync(ctx context.Context) (appintegration.RunStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(appintegration.RunStats), args.Error(1)
}

func (m *mockCatalogSync) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type mockStockSync struct {
	mock.Mock
}

func (m *mockStockSync) SyncModified(ctx context.Context) (*appintegration.ModifiedSyncStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.ModifiedSyncStats), args.Error(1)
}

func (m *mockStockSync) HandleStockWebhook(ctx context.Context, req appintegration.StockWebhookRequest) (*appintegration.StockWebhookResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.StockWebhookResult), args.Error(1)
}

func (m *mockStockSync) SetLocalStock(ctx context.Context, sku string, quantity int) error {
	return m.Called(ctx, sku, quantity).Error(0)
}

type mockOrderIntake struct {
	mock.Mock
}

func (m *mockOrderIntake) OrderPlaced(ctx context.Context, order integration.SaleOrder) error {
	return m.Called(ctx, order).Error(0)
}

type mockJobRunner struct {
	mock.Mock
}

func (m *mockJobRunner) States() []scheduler.JobState {
	return m.Called().Get(0).([]scheduler.JobState)
}

func (m *mockJobRunner) RunNow(name string) error {
	return m.Called(name).Error(0)
}
