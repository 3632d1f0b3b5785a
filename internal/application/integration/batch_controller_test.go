package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(erp integration.ERPSystem, store *memoryStore, cache integration.SyncedIDCache, opts ...BatchOption) *BatchController {
	return NewBatchController(erp, store, NewUpsertExecutor(store), cache, opts...)
}

func TestBatchController_Run_Accounting(t *testing.T) {
	erp := newFakeERP(erpCatalog(25)...)
	store := newMemoryStore()
	cache := &fakeCache{present: true, ids: integration.NewIDSet()}
	controller := newController(erp, store, cache, WithBatchSize(10))

	var events []integration.ProgressEvent
	stats := controller.Run(context.Background(), idRange(25), func(e integration.ProgressEvent) {
		events = append(events, e)
	})

	assert.Equal(t, 25, stats.Total)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 25, stats.Processed)
	assert.Equal(t, 25, stats.Created)
	assert.Equal(t, 0, stats.Errors)
	assert.Len(t, erp.readCalls, 3)

	// start, 3 x (batch_start, batch_complete), complete
	require.Len(t, events, 8)
	assert.Equal(t, integration.NewStartEvent(25, 3), events[0])

	processed := 0
	for i := 0; i < 3; i++ {
		start, ok := events[1+2*i].(integration.BatchStartEvent)
		require.True(t, ok)
		assert.Equal(t, i+1, start.BatchNum)
		assert.Equal(t, 3, start.TotalBatches)

		done, ok := events[2+2*i].(integration.BatchCompleteEvent)
		require.True(t, ok)
		processed = done.Processed
	}
	assert.Equal(t, 25, processed)

	last := events[len(events)-1].(integration.CompleteEvent)
	assert.Equal(t, 25, last.Created)
	assert.True(t, last.Success)

	assert.Equal(t, 1, cache.invalidations)
}

func TestBatchController_Run_BatchErrorContinues(t *testing.T) {
	erp := newFakeERP(erpCatalog(25)...)
	erp.failBatch[15] = integration.ErrERPUnavailable
	store := newMemoryStore()
	controller := newController(erp, store, &fakeCache{}, WithBatchSize(10))

	var events []integration.ProgressEvent
	stats := controller.Run(context.Background(), idRange(25), func(e integration.ProgressEvent) {
		events = append(events, e)
	})

	assert.Equal(t, 25, stats.Processed)
	assert.Equal(t, 15, stats.Created)
	assert.Equal(t, 10, stats.Errors)
	assert.Len(t, stats.Failures, 10)
	assert.Equal(t, integration.FailureCodeUnavailable, stats.Failures[0].ErrorCode)

	batchErr, ok := events[4].(integration.BatchErrorEvent)
	require.True(t, ok, "second batch should report an error, got %T", events[4])
	assert.Equal(t, 2, batchErr.BatchNum)
	assert.Equal(t, 20, batchErr.Processed)
	assert.Contains(t, batchErr.Error, "temporarily unavailable")

	_, ok = events[6].(integration.BatchCompleteEvent)
	assert.True(t, ok, "run continues after a failed batch")
}

func TestBatchController_Run_NoWritesKeepsCache(t *testing.T) {
	erp := newFakeERP()
	cache := &fakeCache{}
	controller := newController(erp, newMemoryStore(), cache)

	stats := controller.Run(context.Background(), []int64{404}, nil)

	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, cache.invalidations)
}

func TestBatchController_Run_AllFailed(t *testing.T) {
	erp := newFakeERP(erpCatalog(3)...)
	store := newMemoryStore()
	for _, id := range []string{"1", "2", "3"} {
		store.createErr[id] = errors.New("database is locked")
	}
	controller := newController(erp, store, &fakeCache{})

	var complete integration.CompleteEvent
	controller.Run(context.Background(), idRange(3), func(e integration.ProgressEvent) {
		if c, ok := e.(integration.CompleteEvent); ok {
			complete = c
		}
	})

	assert.Equal(t, 3, complete.Errors)
	assert.False(t, complete.Success)
}

func TestBatchController_Idempotence(t *testing.T) {
	catalog := erpCatalog(4)
	erp := newFakeERP(catalog...)
	store := newMemoryStore()
	controller := newController(erp, store, &fakeCache{})
	ctx := context.Background()

	first, err := controller.SyncIDs(ctx, idRange(4), false)
	require.NoError(t, err)
	assert.Equal(t, 4, first.CreatedCount)

	second, err := controller.SyncIDs(ctx, idRange(4), false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreatedCount)
	assert.Equal(t, 4, second.UpdatedCount)

	imported, err := store.ListImportedProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, imported, 4)
}

func TestBatchController_SyncIDs_DuplicateTagsUpdateFirst(t *testing.T) {
	erp := newFakeERP(erpProduct(5, "Shoe", 1))
	store := newMemoryStore()
	controller := newController(erp, store, &fakeCache{})
	ctx := context.Background()

	_, err := controller.SyncIDs(ctx, []int64{5}, false)
	require.NoError(t, err)
	// A second product carrying the same tag
	dup := store.products[0]
	dup.ID = [16]byte{1}
	store.products = append(store.products, dup)

	result, err := controller.SyncIDs(ctx, []int64{5}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, 0, result.CreatedCount)
}
