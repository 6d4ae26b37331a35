package fulfillment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackline/inventory-engine/fulfillment"
	"github.com/trackline/inventory-engine/ledger"
	"github.com/trackline/inventory-engine/store/memory"
)

func createDemo(t *testing.T, svc *fulfillment.DemoService, serials ...string) *fulfillment.Demo {
	t.Helper()
	demo, err := svc.CreateDemo(testCtx(), fulfillment.CreateDemoInput{
		DemoNumber: "DEMO-7",
		Dealer:     "Acme Dealer",
		Location:   "Trade Fair",
		Serials:    serials,
	})
	require.NoError(t, err)
	return demo
}

// =============================================================================
// DEMO CREATION
// =============================================================================

func TestCreateDemo_LoansItemsOut(t *testing.T) {
	// GIVEN: Three active assets
	// WHEN: Creating a demo loan
	// THEN: Three Demo entries, assets flipped to Demo at the fair location

	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2", "SN-3")
	svc := fulfillment.NewDemoService(store, nil)

	demo := createDemo(t, svc, "SN-1", "SN-2", "SN-3")

	assert.Equal(t, fulfillment.DemoActive, demo.Status)
	assert.False(t, demo.PartiallyReturned)
	assert.Equal(t, 0, demo.ItemsReturned)
	assert.Equal(t, 3, demo.ItemsRemaining)
	assert.Equal(t, []int64{1, 2, 3}, demo.TransactionIDs)

	entries, err := store.EntriesByTransactionIDs(context.Background(), demo.TransactionIDs)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, ledger.EntryDemo, e.Type)
		assert.Equal(t, ledger.StatusDemo, e.Status)
		assert.False(t, e.ReturnedFromDemo)
	}

	a := mustAsset(t, store, "SN-1")
	assert.Equal(t, ledger.StatusDemo, a.Status)
	assert.Equal(t, "Trade Fair", a.Location)
}

func TestCreateDemo_RejectsUnavailableItem(t *testing.T) {
	store := memory.New()
	stockAssets(t, store, "SN-1")
	require.NoError(t, store.UpdateAssetStatus(context.Background(), "SN-1", ledger.StatusDelivered, ""))
	svc := fulfillment.NewDemoService(store, nil)

	_, err := svc.CreateDemo(testCtx(), fulfillment.CreateDemoInput{
		DemoNumber: "DEMO-7",
		Serials:    []string{"SN-1"},
	})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
	assert.Contains(t, err.Error(), "Delivered")
}

// =============================================================================
// PARTIAL RETURNS
// =============================================================================

func TestReturnItems_PartialReturn(t *testing.T) {
	// GIVEN: A three-item demo
	// WHEN: Returning one item
	// THEN: Demo stays Active with PartiallyReturned set, the item is
	//       Active again with a restoring Stock_In entry referencing the
	//       original Demo transaction, and the original entry is marked
	//       returned-from

	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2", "SN-3")
	svc := fulfillment.NewDemoService(store, nil)
	created := createDemo(t, svc, "SN-1", "SN-2", "SN-3")

	demo, err := svc.ReturnItems(testCtx(), "DEMO-7", []string{"SN-2"})
	require.NoError(t, err)

	assert.Equal(t, fulfillment.DemoActive, demo.Status)
	assert.True(t, demo.PartiallyReturned)
	assert.Equal(t, 1, demo.ItemsReturned)
	assert.Equal(t, 2, demo.ItemsRemaining)
	require.Len(t, demo.ReturnedTransactionIDs, 1)

	originalID := demo.ReturnedTransactionIDs[0]
	assert.Contains(t, created.TransactionIDs, originalID)

	// Returned item back in stock; the others still out.
	assert.Equal(t, ledger.StatusActive, mustAsset(t, store, "SN-2").Status)
	assert.Equal(t, ledger.StatusDemo, mustAsset(t, store, "SN-1").Status)

	history, err := store.EntriesBySerial(context.Background(), "SN-2")
	require.NoError(t, err)
	require.Len(t, history, 2)

	original, restoring := history[0], history[1]
	assert.Equal(t, ledger.EntryDemo, original.Type)
	assert.True(t, original.ReturnedFromDemo)
	assert.Equal(t, ledger.EntryStockIn, restoring.Type)
	require.NotNil(t, restoring.OriginalDemoTransactionID)
	assert.Equal(t, originalID, *restoring.OriginalDemoTransactionID)
}

func TestReturnItems_FinalReturnClosesDemo(t *testing.T) {
	// GIVEN: A two-item demo with one item already back
	// WHEN: Returning the last item
	// THEN: Status Returned, PartiallyReturned cleared

	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2")
	svc := fulfillment.NewDemoService(store, nil)
	createDemo(t, svc, "SN-1", "SN-2")

	_, err := svc.ReturnItems(testCtx(), "DEMO-7", []string{"SN-1"})
	require.NoError(t, err)

	demo, err := svc.ReturnItems(testCtx(), "DEMO-7", []string{"SN-2"})
	require.NoError(t, err)

	assert.Equal(t, fulfillment.DemoReturned, demo.Status)
	assert.False(t, demo.PartiallyReturned)
	assert.Equal(t, 2, demo.ItemsReturned)
	assert.Equal(t, 0, demo.ItemsRemaining)

	// Ledger-derived status agrees: both items are back in stock.
	for _, serial := range []string{"SN-1", "SN-2"} {
		history, err := store.EntriesBySerial(context.Background(), serial)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusActive, ledger.DeriveStatus(serial, history).Status)
	}
}

func TestReturnItems_RejectsForeignAndRepeatedSerials(t *testing.T) {
	// GIVEN: A demo holding SN-1 with SN-1 already returned
	// WHEN: Returning a foreign serial, then SN-1 again
	// THEN: Both rejected with serial-specific messages

	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2", "SN-9")
	svc := fulfillment.NewDemoService(store, nil)
	createDemo(t, svc, "SN-1", "SN-2")

	_, err := svc.ReturnItems(testCtx(), "DEMO-7", []string{"SN-9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not part of this demo")

	_, err = svc.ReturnItems(testCtx(), "DEMO-7", []string{"SN-1"})
	require.NoError(t, err)

	_, err = svc.ReturnItems(testCtx(), "DEMO-7", []string{"SN-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already returned")
}

func TestReturnItems_RejectsDuplicateSerialInRequest(t *testing.T) {
	// GIVEN: A two-item demo
	// WHEN: Returning the same serial twice in one request
	// THEN: Validation error naming the serial, not a concurrency conflict,
	//       and nothing is returned

	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2")
	svc := fulfillment.NewDemoService(store, nil)
	createDemo(t, svc, "SN-1", "SN-2")

	_, err := svc.ReturnItems(testCtx(), "DEMO-7", []string{"SN-1", "sn-1"})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
	assert.NotErrorIs(t, err, ledger.ErrConcurrencyConflict)
	assert.Contains(t, err.Error(), "sn-1")

	assert.Equal(t, ledger.StatusDemo, mustAsset(t, store, "SN-1").Status)
	demo, err := store.GetDemo(context.Background(), "DEMO-7")
	require.NoError(t, err)
	require.NotNil(t, demo)
	assert.Empty(t, demo.ReturnedTransactionIDs)
}

func TestReturnItems_FullyReturnedDemoRejectsFurtherReturns(t *testing.T) {
	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewDemoService(store, nil)
	createDemo(t, svc, "SN-1")

	_, err := svc.ReturnItems(testCtx(), "DEMO-7", []string{"SN-1"})
	require.NoError(t, err)

	_, err = svc.ReturnItems(testCtx(), "DEMO-7", []string{"SN-1"})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
}
