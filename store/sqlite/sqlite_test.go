package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackline/inventory-engine/fulfillment"
	"github.com/trackline/inventory-engine/ledger"
	"github.com/trackline/inventory-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testAsset(serial string) ledger.Asset {
	now := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	return ledger.Asset{
		SerialNumber: serial,
		Category:     "Widget",
		Model:        "W-200",
		Status:       ledger.StatusActive,
		Location:     "Warehouse A",
		UnitValue:    decimal.RequireFromString("149.50"),
		CreatedBy:    "tester",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// =============================================================================
// ASSETS
// =============================================================================

func TestAssets_RoundTripAndNormalizedLookup(t *testing.T) {
	// GIVEN: An asset stored with mixed-case serial
	// WHEN: Reading it back with different casing and whitespace
	// THEN: The same row comes back, fields intact

	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.PutAsset(ctx, testAsset("Sn-001")))

	got, err := store.GetAsset(ctx, "  sn-001 ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sn-001", got.SerialNumber)
	assert.Equal(t, ledger.StatusActive, got.Status)
	assert.True(t, got.UnitValue.Equal(decimal.RequireFromString("149.50")))
	assert.Equal(t, "tester", got.CreatedBy)
}

func TestAssets_GetMissingReturnsNil(t *testing.T) {
	got, err := newStore(t).GetAsset(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateAssetStatusIf_ConditionalFlip(t *testing.T) {
	// GIVEN: An Active asset
	// WHEN: Flipping Active->Reserved, then Active->Reserved again
	// THEN: First succeeds, second loses with a ConflictError naming the
	//       actual status

	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.PutAsset(ctx, testAsset("SN-001")))

	require.NoError(t, store.UpdateAssetStatusIf(ctx, "SN-001", ledger.StatusActive, ledger.StatusReserved, "Showroom"))

	got, err := store.GetAsset(ctx, "SN-001")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReserved, got.Status)
	assert.Equal(t, "Showroom", got.Location)

	err = store.UpdateAssetStatusIf(ctx, "SN-001", ledger.StatusActive, ledger.StatusReserved, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrConcurrencyConflict)
	var conflict *ledger.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, ledger.StatusReserved, conflict.Actual)
}

func TestUpdateAssetStatusIf_MissingSerialIsNotFound(t *testing.T) {
	err := newStore(t).UpdateAssetStatusIf(context.Background(), "NOPE", ledger.StatusActive, ledger.StatusReserved, "")
	assert.True(t, ledger.IsNotFound(err))
}

func TestUpdateAssetStatus_EmptyLocationKeepsExisting(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.PutAsset(ctx, testAsset("SN-001")))

	require.NoError(t, store.UpdateAssetStatus(ctx, "SN-001", ledger.StatusDemo, ""))

	got, err := store.GetAsset(ctx, "SN-001")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDemo, got.Status)
	assert.Equal(t, "Warehouse A", got.Location)
}

// =============================================================================
// SEQUENCES
// =============================================================================

func TestNextSequence_DenseAndDisjoint(t *testing.T) {
	// GIVEN: A fresh store
	// WHEN: Reserving 1, then 5, then 1 ids
	// THEN: Ranges 1, 2-6, 7 with no gaps or overlap

	ctx := context.Background()
	store := newStore(t)

	first, err := store.NextSequence(ctx, ledger.SeqTransactionID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	block, err := store.NextSequence(ctx, ledger.SeqTransactionID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), block)

	next, err := store.NextSequence(ctx, ledger.SeqTransactionID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), next)

	// Independent counter.
	entryNo, err := store.NextSequence(ctx, ledger.SeqEntryNo, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), entryNo)
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestEntries_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	no := int64(4)
	recorded := time.Date(2025, time.March, 2, 9, 30, 0, 0, time.UTC)
	entry := ledger.Entry{
		TransactionID:  11,
		Type:           ledger.EntryStockOut,
		Status:         ledger.StatusReserved,
		SerialNumber:   "SN-001",
		Location:       "Showroom",
		Counterparty:   "Acme Dealer",
		EntryNo:        &no,
		WarrantyType:   "standard",
		WarrantyPeriod: "24m",
		RecordedAt:     recorded,
		CreatedBy:      "tester",
		CreatedAt:      recorded,
	}
	require.NoError(t, store.AppendEntry(ctx, entry))

	bySerial, err := store.EntriesBySerial(ctx, "sn-001")
	require.NoError(t, err)
	require.Len(t, bySerial, 1)
	got := bySerial[0]
	assert.NotEmpty(t, got.Key)
	assert.Equal(t, int64(11), got.TransactionID)
	assert.Equal(t, ledger.EntryStockOut, got.Type)
	assert.Equal(t, ledger.StatusReserved, got.Status)
	require.NotNil(t, got.EntryNo)
	assert.Equal(t, int64(4), *got.EntryNo)
	assert.True(t, got.RecordedAt.Equal(recorded))

	byID, err := store.EntriesByTransactionIDs(ctx, []int64{11, 999})
	require.NoError(t, err)
	assert.Len(t, byID, 1, "missing ids are skipped")
}

func TestEntries_DuplicateTransactionID(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	e := ledger.Entry{TransactionID: 1, Type: ledger.EntryStockIn, Status: ledger.StatusActive, SerialNumber: "SN-001", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.AppendEntry(ctx, e))

	err := store.AppendEntry(ctx, e)
	assert.ErrorIs(t, err, ledger.ErrDuplicateTransactionID)
}

func TestAttachEntryMetadata_PartialUpdates(t *testing.T) {
	// GIVEN: A stored reservation entry
	// WHEN: Attaching an invoice number, then a returned-from flag
	// THEN: Each attachment changes only its own field

	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.AppendEntry(ctx, ledger.Entry{
		TransactionID: 1, Type: ledger.EntryDemo, Status: ledger.StatusDemo,
		SerialNumber: "SN-001", CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, store.AttachEntryMetadata(ctx, 1, ledger.EntryMetadata{InvoiceNumber: "INV-7"}))
	marked := true
	require.NoError(t, store.AttachEntryMetadata(ctx, 1, ledger.EntryMetadata{ReturnedFromDemo: &marked}))

	got, err := store.EntriesByTransactionIDs(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "INV-7", got[0].InvoiceNumber)
	assert.True(t, got[0].ReturnedFromDemo)

	err = store.AttachEntryMetadata(ctx, 42, ledger.EntryMetadata{InvoiceNumber: "X"})
	assert.True(t, ledger.IsNotFound(err))
}

func TestEntries_LegacyRawTimestampSurvivesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.AppendEntry(ctx, ledger.Entry{
		TransactionID: 1, Type: ledger.EntryStockIn, Status: ledger.StatusActive,
		SerialNumber: "SN-001", RecordedAtRaw: "13/05/2019", CreatedAt: time.Now().UTC(),
	}))

	got, err := store.EntriesBySerial(ctx, "SN-001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "13/05/2019", got[0].RecordedAtRaw)
	assert.True(t, got[0].RecordedAt.IsZero())

	_, ok := got[0].EffectiveTime()
	assert.True(t, ok, "dd/mm/yyyy is a known legacy layout")
}

// =============================================================================
// ORDERS AND DEMOS
// =============================================================================

func TestOrders_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)

	order := fulfillment.Order{
		OrderNumber:    "ORD-100",
		Dealer:         "Acme Dealer",
		Client:         "Globex",
		Location:       "Showroom",
		TransactionIDs: []int64{1, 2, 3},
		TotalItems:     3,
		EntryNo:        1,
		InvoiceStatus:  fulfillment.InvoiceInvoiced,
		DeliveryStatus: fulfillment.DeliveryIssued,
		InvoiceNumber:  "INV-7",
		InvoiceDocument: &fulfillment.DocumentRef{
			FileID: "f1", UploadedAt: now,
		},
		CreatedBy: "tester",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.PutOrder(ctx, order))

	got, err := store.GetOrder(ctx, "ORD-100")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []int64{1, 2, 3}, got.TransactionIDs)
	assert.Equal(t, fulfillment.InvoiceInvoiced, got.InvoiceStatus)
	assert.Equal(t, fulfillment.DeliveryIssued, got.DeliveryStatus)
	require.NotNil(t, got.InvoiceDocument)
	assert.Equal(t, "f1", got.InvoiceDocument.FileID)
	assert.Nil(t, got.DeliveryDocument)

	// Upsert replaces in place.
	got.DeliveryStatus = fulfillment.DeliveryDelivered
	require.NoError(t, store.PutOrder(ctx, *got))
	again, err := store.GetOrder(ctx, "ORD-100")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.DeliveryDelivered, again.DeliveryStatus)

	require.NoError(t, store.DeleteOrder(ctx, "ORD-100"))
	gone, err := store.GetOrder(ctx, "ORD-100")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDemos_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)

	demo := fulfillment.Demo{
		DemoNumber:     "DEMO-7",
		Dealer:         "Acme Dealer",
		Location:       "Trade Fair",
		TransactionIDs: []int64{5, 6},
		Status:         fulfillment.DemoActive,
		ItemsRemaining: 2,
		CreatedBy:      "tester",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, store.PutDemo(ctx, demo))

	got, err := store.GetDemo(ctx, "DEMO-7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []int64{5, 6}, got.TransactionIDs)
	assert.Empty(t, got.ReturnedTransactionIDs)
	assert.Equal(t, fulfillment.DemoActive, got.Status)

	got.ReturnedTransactionIDs = []int64{5}
	got.PartiallyReturned = true
	got.ItemsReturned = 1
	got.ItemsRemaining = 1
	require.NoError(t, store.PutDemo(ctx, *got))

	again, err := store.GetDemo(ctx, "DEMO-7")
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, again.ReturnedTransactionIDs)
	assert.True(t, again.PartiallyReturned)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A batch that writes an asset and an entry, then fails
	// WHEN: The batch returns an error
	// THEN: Nothing it wrote is visible afterwards

	ctx := context.Background()
	store := newStore(t)

	failure := errors.New("boom")
	err := store.WithTx(ctx, func(tx fulfillment.Store) error {
		if err := tx.PutAsset(ctx, testAsset("SN-001")); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, ledger.Entry{
			TransactionID: 1, Type: ledger.EntryStockIn, Status: ledger.StatusActive,
			SerialNumber: "SN-001", CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return failure
	})
	assert.ErrorIs(t, err, failure)

	asset, err := store.GetAsset(ctx, "SN-001")
	require.NoError(t, err)
	assert.Nil(t, asset)
	entries, err := store.ListEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	err := store.WithTx(ctx, func(tx fulfillment.Store) error {
		return tx.PutAsset(ctx, testAsset("SN-001"))
	})
	require.NoError(t, err)

	asset, err := store.GetAsset(ctx, "SN-001")
	require.NoError(t, err)
	require.NotNil(t, asset)
}
