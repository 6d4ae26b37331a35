package fulfillment_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackline/inventory-engine/auth"
	"github.com/trackline/inventory-engine/fulfillment"
	"github.com/trackline/inventory-engine/ledger"
	"github.com/trackline/inventory-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func testCtx() context.Context {
	return auth.WithUserID(context.Background(), "tester")
}

func stockAssets(t *testing.T, store *memory.Store, serials ...string) {
	t.Helper()
	for _, serial := range serials {
		require.NoError(t, store.PutAsset(context.Background(), ledger.Asset{
			SerialNumber: serial,
			Category:     "Widget",
			Status:       ledger.StatusActive,
			Location:     "Warehouse A",
		}))
	}
}

func mustAsset(t *testing.T, store *memory.Store, serial string) ledger.Asset {
	t.Helper()
	a, err := store.GetAsset(context.Background(), serial)
	require.NoError(t, err)
	require.NotNil(t, a)
	return *a
}

// failingDocs refuses every deletion, to exercise the warnings path.
type failingDocs struct{}

func (failingDocs) DeleteDocument(context.Context, string) error {
	return errors.New("file service unavailable")
}

// =============================================================================
// ORDER CREATION
// =============================================================================

func TestCreateOrder_ReservesItemsAtomically(t *testing.T) {
	// GIVEN: Three active assets
	// WHEN: Creating a three-item order
	// THEN: Three distinct sequential transaction ids, one shared entry_no,
	//       three Reserved entries, three Reserved assets, order at
	//       (Reserved, Pending)

	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2", "SN-3")
	svc := fulfillment.NewOrderService(store, nil, nil)

	order, err := svc.CreateOrder(testCtx(), fulfillment.CreateOrderInput{
		OrderNumber: "ORD-100",
		Dealer:      "Acme Dealer",
		Location:    "Showroom",
		Serials:     []string{"SN-1", "SN-2", "SN-3"},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, order.TransactionIDs)
	assert.Equal(t, int64(1), order.EntryNo)
	assert.Equal(t, 3, order.TotalItems)
	assert.Equal(t, fulfillment.InvoiceReserved, order.InvoiceStatus)
	assert.Equal(t, fulfillment.DeliveryPending, order.DeliveryStatus)

	entries, err := store.EntriesByTransactionIDs(testCtx(), order.TransactionIDs)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, ledger.EntryStockOut, e.Type)
		assert.Equal(t, ledger.StatusReserved, e.Status)
		require.NotNil(t, e.EntryNo)
		assert.Equal(t, int64(1), *e.EntryNo)
	}

	for _, serial := range []string{"SN-1", "SN-2", "SN-3"} {
		assert.Equal(t, ledger.StatusReserved, mustAsset(t, store, serial).Status)
	}
}

func TestCreateOrder_RequiresAuthenticatedCaller(t *testing.T) {
	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)

	_, err := svc.CreateOrder(context.Background(), fulfillment.CreateOrderInput{
		OrderNumber: "ORD-100",
		Serials:     []string{"SN-1"},
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthenticated)
}

func TestCreateOrder_RejectsDuplicateSerialInRequest(t *testing.T) {
	// GIVEN: A request listing the same serial twice (different casing)
	// WHEN: Creating the order
	// THEN: Validation error naming the serial, nothing written

	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)

	_, err := svc.CreateOrder(testCtx(), fulfillment.CreateOrderInput{
		OrderNumber: "ORD-100",
		Serials:     []string{"SN-1", "sn-1"},
	})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
	assert.Contains(t, err.Error(), "sn-1")

	entries, err := store.ListEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateOrder_RejectsUnavailableItem(t *testing.T) {
	// GIVEN: One active and one already reserved asset
	// WHEN: Ordering both
	// THEN: Validation error citing the reserved serial and its status

	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2")
	require.NoError(t, store.UpdateAssetStatus(context.Background(), "SN-2", ledger.StatusReserved, ""))
	svc := fulfillment.NewOrderService(store, nil, nil)

	_, err := svc.CreateOrder(testCtx(), fulfillment.CreateOrderInput{
		OrderNumber: "ORD-100",
		Serials:     []string{"SN-1", "SN-2"},
	})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
	assert.Contains(t, err.Error(), "SN-2")
	assert.Contains(t, err.Error(), "Reserved")

	// The first asset was never flipped.
	assert.Equal(t, ledger.StatusActive, mustAsset(t, store, "SN-1").Status)
}

func TestCreateOrder_RejectsDuplicateOrderNumber(t *testing.T) {
	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2")
	svc := fulfillment.NewOrderService(store, nil, nil)

	_, err := svc.CreateOrder(testCtx(), fulfillment.CreateOrderInput{
		OrderNumber: "ORD-100", Serials: []string{"SN-1"},
	})
	require.NoError(t, err)

	_, err = svc.CreateOrder(testCtx(), fulfillment.CreateOrderInput{
		OrderNumber: "ORD-100", Serials: []string{"SN-2"},
	})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
}

// racingStore reports assets as Active in the read phase even after they
// were reserved, simulating a reservation that lands between the service's
// read and write phases.
type racingStore struct {
	*memory.Store
}

func (r racingStore) GetAsset(ctx context.Context, serial string) (*ledger.Asset, error) {
	a, err := r.Store.GetAsset(ctx, serial)
	if err != nil || a == nil {
		return a, err
	}
	a.Status = ledger.StatusActive
	return a, nil
}

func TestCreateOrder_LostRace_SurfacesConflictAndRollsBack(t *testing.T) {
	// GIVEN: A read phase that saw SN-2 as Active while it is Reserved
	// WHEN: The atomic batch runs its conditional flips
	// THEN: ErrConcurrencyConflict, and SN-1's tentative flip is rolled back

	inner := memory.New()
	stockAssets(t, inner, "SN-1", "SN-2")
	require.NoError(t, inner.UpdateAssetStatus(context.Background(), "SN-2", ledger.StatusReserved, ""))
	svc := fulfillment.NewOrderService(racingStore{inner}, nil, nil)

	_, err := svc.CreateOrder(testCtx(), fulfillment.CreateOrderInput{
		OrderNumber: "ORD-100",
		Serials:     []string{"SN-1", "SN-2"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrConcurrencyConflict)

	assert.Equal(t, ledger.StatusActive, mustAsset(t, inner, "SN-1").Status)
	entries, err := inner.ListEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	order, err := inner.GetOrder(context.Background(), "ORD-100")
	require.NoError(t, err)
	assert.Nil(t, order)
}

// =============================================================================
// DOCUMENT-DRIVEN TRANSITIONS
// =============================================================================

func createOrder(t *testing.T, svc *fulfillment.OrderService, serials ...string) *fulfillment.Order {
	t.Helper()
	order, err := svc.CreateOrder(testCtx(), fulfillment.CreateOrderInput{
		OrderNumber: "ORD-100",
		Dealer:      "Acme Dealer",
		Location:    "Showroom",
		Serials:     serials,
	})
	require.NoError(t, err)
	return order
}

func applyEvent(t *testing.T, svc *fulfillment.OrderService, ev fulfillment.DocumentEvent) *fulfillment.Order {
	t.Helper()
	ev.OrderNumber = "ORD-100"
	order, err := svc.ApplyDocumentEvent(testCtx(), ev)
	require.NoError(t, err)
	return order
}

func TestInvoiceUpload_MovesToInvoicedAndStampsEntries(t *testing.T) {
	// GIVEN: A fresh order
	// WHEN: An invoice with a number is uploaded
	// THEN: (Invoiced, Pending), and the invoice number lands on the
	//       existing Stock_Out entries without creating new ones

	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2")
	svc := fulfillment.NewOrderService(store, nil, nil)
	createOrder(t, svc, "SN-1", "SN-2")

	order := applyEvent(t, svc, fulfillment.DocumentEvent{
		FileType:      fulfillment.FileInvoice,
		FileID:        "file-inv-1",
		InvoiceNumber: "INV-2025-042",
	})

	assert.Equal(t, fulfillment.InvoiceInvoiced, order.InvoiceStatus)
	assert.Equal(t, fulfillment.DeliveryPending, order.DeliveryStatus)
	assert.Equal(t, "INV-2025-042", order.InvoiceNumber)
	require.NotNil(t, order.InvoiceDocument)

	entries, err := store.ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "INV-2025-042", e.InvoiceNumber)
		assert.Equal(t, ledger.StatusReserved, e.Status)
	}
}

func TestInvoiceUpload_RejectedOnceInvoiced(t *testing.T) {
	// GIVEN: An order that already carries an invoice
	// WHEN: A second invoice is uploaded without detaching the first
	// THEN: Rejected, and the original document and number are untouched

	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)
	createOrder(t, svc, "SN-1")
	applyEvent(t, svc, fulfillment.DocumentEvent{
		FileType: fulfillment.FileInvoice, FileID: "f1", InvoiceNumber: "INV-1",
	})

	_, err := svc.ApplyDocumentEvent(testCtx(), fulfillment.DocumentEvent{
		OrderNumber: "ORD-100", FileType: fulfillment.FileInvoice,
		FileID: "f9", InvoiceNumber: "INV-9",
	})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))

	order, err := store.GetOrder(context.Background(), "ORD-100")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "INV-1", order.InvoiceNumber)
	require.NotNil(t, order.InvoiceDocument)
	assert.Equal(t, "f1", order.InvoiceDocument.FileID)
}

func TestDeliveryOrderUpload_RequiresInvoice(t *testing.T) {
	// GIVEN: An order that has not been invoiced
	// WHEN: A delivery order is uploaded
	// THEN: Rejected

	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)
	createOrder(t, svc, "SN-1")

	_, err := svc.ApplyDocumentEvent(testCtx(), fulfillment.DocumentEvent{
		OrderNumber: "ORD-100",
		FileType:    fulfillment.FileDeliveryOrder,
		FileID:      "file-do-1",
	})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
}

func TestInvoiceDeletion_OnlyWhileDeliveryPending(t *testing.T) {
	// GIVEN: An invoiced order with an issued delivery order
	// WHEN: Deleting the invoice
	// THEN: Rejected; after detaching the delivery order first it succeeds

	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)
	createOrder(t, svc, "SN-1")
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileInvoice, FileID: "f1"})
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileDeliveryOrder, FileID: "f2"})

	_, err := svc.ApplyDocumentEvent(testCtx(), fulfillment.DocumentEvent{
		OrderNumber: "ORD-100", FileType: fulfillment.FileInvoice, Deleted: true,
	})
	require.Error(t, err)

	order := applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileDeliveryOrder, Deleted: true})
	assert.Equal(t, fulfillment.DeliveryPending, order.DeliveryStatus)
	assert.Nil(t, order.DeliveryDocument)

	order = applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileInvoice, Deleted: true})
	assert.Equal(t, fulfillment.InvoiceReserved, order.InvoiceStatus)
	assert.Nil(t, order.InvoiceDocument)
}

func TestSignedDeliveryUpload_SynthesizesDeliveryPreservingHistory(t *testing.T) {
	// GIVEN: A single-item order at (Invoiced, Issued)
	// WHEN: The signed delivery order arrives
	// THEN: Exactly one new Delivered entry appears, the original Reserved
	//       entry is byte-for-byte unchanged, and the asset is Delivered

	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)
	created := createOrder(t, svc, "SN-1")
	originalID := created.TransactionIDs[0]

	applyEvent(t, svc, fulfillment.DocumentEvent{
		FileType: fulfillment.FileInvoice, FileID: "f1", InvoiceNumber: "INV-7",
	})
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileDeliveryOrder, FileID: "f2"})

	before, err := store.EntriesByTransactionIDs(context.Background(), []int64{originalID})
	require.NoError(t, err)
	require.Len(t, before, 1)

	order := applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileSignedDeliveryOrder, FileID: "f3"})

	assert.Equal(t, fulfillment.DeliveryDelivered, order.DeliveryStatus)
	require.Len(t, order.TransactionIDs, 2)

	entries, err := store.ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var delivered []ledger.Entry
	for _, e := range entries {
		if e.Status == ledger.StatusDelivered {
			delivered = append(delivered, e)
		}
	}
	require.Len(t, delivered, 1, "exactly one Delivered entry")
	assert.Equal(t, "INV-7", delivered[0].InvoiceNumber)
	require.NotNil(t, delivered[0].EntryNo)
	assert.Equal(t, order.EntryNo, *delivered[0].EntryNo)
	require.NotNil(t, delivered[0].DeliveryDate)

	after, err := store.EntriesByTransactionIDs(context.Background(), []int64{originalID})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0], after[0], "original reservation entry must not change")

	assert.Equal(t, ledger.StatusDelivered, mustAsset(t, store, "SN-1").Status)
}

func TestSignedDeliveryUpload_RequiresIssuedState(t *testing.T) {
	// GIVEN: An invoiced order whose delivery order was never issued
	// WHEN: A signed delivery order arrives
	// THEN: Rejected with the current state in the message

	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)
	createOrder(t, svc, "SN-1")
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileInvoice, FileID: "f1"})

	_, err := svc.ApplyDocumentEvent(testCtx(), fulfillment.DocumentEvent{
		OrderNumber: "ORD-100", FileType: fulfillment.FileSignedDeliveryOrder, FileID: "f3",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pending")
}

func TestUnknownFileType_Rejected(t *testing.T) {
	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)
	createOrder(t, svc, "SN-1")

	_, err := svc.ApplyDocumentEvent(testCtx(), fulfillment.DocumentEvent{
		OrderNumber: "ORD-100", FileType: "warranty_card",
	})
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
}

// =============================================================================
// DELETION
// =============================================================================

func TestDeleteOrder_ReleasesItemsAndEntries(t *testing.T) {
	// GIVEN: An invoiced, undelivered order
	// WHEN: Deleting it
	// THEN: Assets back to Active, entries and the record gone

	store := memory.New()
	stockAssets(t, store, "SN-1", "SN-2")
	svc := fulfillment.NewOrderService(store, nil, nil)
	createOrder(t, svc, "SN-1", "SN-2")
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileInvoice, FileID: "f1"})

	warnings, err := svc.DeleteOrder(testCtx(), "ORD-100")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, ledger.StatusActive, mustAsset(t, store, "SN-1").Status)
	assert.Equal(t, ledger.StatusActive, mustAsset(t, store, "SN-2").Status)

	entries, err := store.ListEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	order, err := store.GetOrder(context.Background(), "ORD-100")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestDeleteOrder_SucceedsWhileIssued(t *testing.T) {
	// GIVEN: An order at (Invoiced, Issued) — the last state before delivery
	// WHEN: Deleting it
	// THEN: Allowed; the item is released and the record removed

	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)
	createOrder(t, svc, "SN-1")
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileInvoice, FileID: "f1"})
	issued := applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileDeliveryOrder, FileID: "f2"})
	require.Equal(t, fulfillment.DeliveryIssued, issued.DeliveryStatus)

	warnings, err := svc.DeleteOrder(testCtx(), "ORD-100")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, ledger.StatusActive, mustAsset(t, store, "SN-1").Status)
	order, err := store.GetOrder(context.Background(), "ORD-100")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestDeleteOrder_BlockedOnceDelivered(t *testing.T) {
	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, nil, nil)
	createOrder(t, svc, "SN-1")
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileInvoice, FileID: "f1"})
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileDeliveryOrder, FileID: "f2"})
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileSignedDeliveryOrder, FileID: "f3"})

	_, err := svc.DeleteOrder(testCtx(), "ORD-100")
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))
}

func TestDeleteOrder_DocumentCleanupFailure_IsAWarningNotAnError(t *testing.T) {
	// GIVEN: A file collaborator that refuses deletions
	// WHEN: Deleting an order with an uploaded invoice
	// THEN: The delete succeeds and the failure comes back as a warning

	store := memory.New()
	stockAssets(t, store, "SN-1")
	svc := fulfillment.NewOrderService(store, failingDocs{}, nil)
	createOrder(t, svc, "SN-1")
	applyEvent(t, svc, fulfillment.DocumentEvent{FileType: fulfillment.FileInvoice, FileID: "f1"})

	warnings, err := svc.DeleteOrder(testCtx(), "ORD-100")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "f1")

	order, err := store.GetOrder(context.Background(), "ORD-100")
	require.NoError(t, err)
	assert.Nil(t, order, fmt.Sprintf("order must be gone despite warnings %v", warnings))
}
