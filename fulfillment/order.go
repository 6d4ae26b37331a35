/*
order.go - Sales order fulfillment state machine

PURPOSE:

	Orchestrates multi-item sales orders through the dual-axis status:

	  (Reserved,Pending) -> (Invoiced,Pending) -> (Invoiced,Issued) -> (Invoiced,Delivered)

	Status never moves by direct assignment. Transitions are driven by
	document events from the file collaborator:
	  invoice upload            Reserved -> Invoiced
	  delivery order upload     Pending  -> Issued   (requires Invoiced)
	  signed delivery upload    Issued   -> Delivered

DELIVERY PRESERVES HISTORY:

	Confirming delivery does NOT mutate the original Reserved entries.
	It synthesizes new Stock_Out entries with local status Delivered, one
	per item, so the per-serial derived status agrees with the registry.
	The original reservation entries remain untouched forever.

CREATION:

	One order creation allocates one entry_no shared by all of its
	Stock_Out entries plus N transaction ids, writes N Reserved entries,
	the order record, and N registry flips Active -> Reserved, all in one
	atomic batch. Each flip is conditional on the asset still being Active,
	so a racing reservation surfaces as ErrConcurrencyConflict instead of
	a double-booking.

DELETION:

	Permitted until the order is Delivered. Reverts assets to Active,
	removes the order's ledger entries and the record itself in one batch,
	then asks the file collaborator to drop uploaded documents. Document
	cleanup is secondary: failures are logged and returned as Warnings.

SEE ALSO:
  - types.go: Order and DocumentEvent shapes
  - demo.go:  The sibling state machine for loans
*/
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackline/inventory-engine/auth"
	"github.com/trackline/inventory-engine/ledger"
)

// =============================================================================
// SERVICE
// =============================================================================

// OrderService drives the order fulfillment state machine.
type OrderService struct {
	Store     TxStore
	Documents DocumentStore
	Log       *logrus.Logger
}

func NewOrderService(store TxStore, docs DocumentStore, log *logrus.Logger) *OrderService {
	if docs == nil {
		docs = NopDocuments{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OrderService{Store: store, Documents: docs, Log: log}
}

// CreateOrderInput is the payload for CreateOrder.
type CreateOrderInput struct {
	OrderNumber string
	Dealer      string
	Client      string
	Location    string
	Serials     []string

	WarrantyType   string
	WarrantyPeriod string
}

// CreateOrder reserves the given serials against a new order.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	caller, ok := auth.UserID(ctx)
	if !ok {
		return nil, ledger.ErrUnauthenticated
	}

	if in.OrderNumber == "" {
		return nil, &ledger.ValidationError{Field: "order_number", Message: "required"}
	}
	if len(in.Serials) == 0 {
		return nil, &ledger.ValidationError{Field: "items", Message: "at least one serial is required"}
	}

	// Read phase: order number unused, every item currently Active.
	// The registry status is the fast path here; the derivation engine is
	// the independent audit path, not the hot path.
	existing, err := s.Store.GetOrder(ctx, in.OrderNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ledger.ValidationError{Field: "order_number", Message: "already exists"}
	}

	seen := make(map[string]bool, len(in.Serials))
	for _, serial := range in.Serials {
		key := ledger.NormalizeSerial(serial)
		if seen[key] {
			return nil, &ledger.ValidationError{Field: "items", Serial: serial, Message: "listed more than once"}
		}
		seen[key] = true

		asset, err := s.Store.GetAsset(ctx, serial)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, &ledger.NotFoundError{Kind: "asset", Key: serial}
		}
		if asset.Status != ledger.StatusActive {
			return nil, &ledger.ValidationError{
				Field:   "items",
				Serial:  serial,
				Message: fmt.Sprintf("not available (status %s)", asset.Status),
			}
		}
	}

	alloc := ledger.NewAllocator(s.Store)
	entryNo, err := alloc.Next(ctx, ledger.SeqEntryNo)
	if err != nil {
		return nil, err
	}
	txIDs, err := alloc.NextBatch(ctx, ledger.SeqTransactionID, len(in.Serials))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := Order{
		OrderNumber:    in.OrderNumber,
		Dealer:         in.Dealer,
		Client:         in.Client,
		Location:       in.Location,
		TransactionIDs: txIDs,
		TotalItems:     len(in.Serials),
		EntryNo:        entryNo,
		InvoiceStatus:  InvoiceReserved,
		DeliveryStatus: DeliveryPending,
		CreatedBy:      caller,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Write phase: one atomic batch. Asset flips are conditional so a
	// reservation that raced us since the read phase turns into a
	// detectable conflict.
	err = s.Store.WithTx(ctx, func(tx Store) error {
		entries := make([]ledger.Entry, len(in.Serials))
		for i, serial := range in.Serials {
			if err := tx.UpdateAssetStatusIf(ctx, serial, ledger.StatusActive, ledger.StatusReserved, in.Location); err != nil {
				return err
			}
			no := entryNo
			entries[i] = ledger.Entry{
				TransactionID:  txIDs[i],
				Type:           ledger.EntryStockOut,
				Status:         ledger.StatusReserved,
				SerialNumber:   serial,
				Location:       in.Location,
				Counterparty:   in.Dealer,
				EntryNo:        &no,
				WarrantyType:   in.WarrantyType,
				WarrantyPeriod: in.WarrantyPeriod,
				RecordedAt:     now,
				CreatedBy:      caller,
				CreatedAt:      now,
			}
		}
		if err := tx.AppendEntries(ctx, entries); err != nil {
			return err
		}
		return tx.PutOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"order":    order.OrderNumber,
		"items":    order.TotalItems,
		"entry_no": order.EntryNo,
	}).Info("order created")

	return &order, nil
}

// GetOrder returns an order by number.
func (s *OrderService) GetOrder(ctx context.Context, orderNumber string) (*Order, error) {
	order, err := s.Store.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &ledger.NotFoundError{Kind: "order", Key: orderNumber}
	}
	return order, nil
}

// ListOrders returns all orders.
func (s *OrderService) ListOrders(ctx context.Context) ([]Order, error) {
	return s.Store.ListOrders(ctx)
}

// =============================================================================
// DOCUMENT-DRIVEN TRANSITIONS
// =============================================================================

// ApplyDocumentEvent advances (or, for deletions, rewinds) the order state
// machine in response to a file collaborator notification.
func (s *OrderService) ApplyDocumentEvent(ctx context.Context, ev DocumentEvent) (*Order, error) {
	if _, ok := auth.UserID(ctx); !ok {
		return nil, ledger.ErrUnauthenticated
	}
	order, err := s.GetOrder(ctx, ev.OrderNumber)
	if err != nil {
		return nil, err
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	switch ev.FileType {
	case FileInvoice:
		if ev.Deleted {
			return s.detachInvoice(ctx, order)
		}
		return s.attachInvoice(ctx, order, ev, at)
	case FileDeliveryOrder:
		if ev.Deleted {
			return s.detachDeliveryOrder(ctx, order)
		}
		return s.attachDeliveryOrder(ctx, order, ev, at)
	case FileSignedDeliveryOrder:
		if ev.Deleted {
			return nil, &ledger.ValidationError{Field: "file_type", Message: "signed delivery order cannot be detached once delivered"}
		}
		return s.confirmDelivery(ctx, order, ev, at)
	default:
		return nil, &ledger.ValidationError{Field: "file_type", Message: fmt.Sprintf("unknown file type %q", ev.FileType)}
	}
}

// attachInvoice moves Reserved -> Invoiced and stamps the invoice number
// onto the order's Stock_Out entries (metadata attachment, not new entries).
// Correcting a wrong invoice means detaching it first.
func (s *OrderService) attachInvoice(ctx context.Context, order *Order, ev DocumentEvent, at time.Time) (*Order, error) {
	if order.InvoiceStatus != InvoiceReserved {
		return nil, &ledger.ValidationError{Field: "invoice_status", Message: "order is already invoiced"}
	}
	order.InvoiceStatus = InvoiceInvoiced
	order.InvoiceDocument = &DocumentRef{FileID: ev.FileID, UploadedAt: at}
	if ev.InvoiceNumber != "" {
		order.InvoiceNumber = ev.InvoiceNumber
	}
	order.UpdatedAt = at

	err := s.Store.WithTx(ctx, func(tx Store) error {
		if order.InvoiceNumber != "" {
			for _, id := range order.TransactionIDs {
				if err := tx.AttachEntryMetadata(ctx, id, ledger.EntryMetadata{InvoiceNumber: order.InvoiceNumber}); err != nil {
					return err
				}
			}
		}
		return tx.PutOrder(ctx, *order)
	})
	if err != nil {
		return nil, err
	}
	s.Log.WithField("order", order.OrderNumber).Info("order invoiced")
	return order, nil
}

// detachInvoice rewinds Invoiced -> Reserved, legal only before issuing.
func (s *OrderService) detachInvoice(ctx context.Context, order *Order) (*Order, error) {
	if order.InvoiceStatus != InvoiceInvoiced || order.DeliveryStatus != DeliveryPending {
		return nil, &ledger.ValidationError{Field: "invoice_status", Message: "invoice can only be detached while delivery is pending"}
	}
	order.InvoiceStatus = InvoiceReserved
	order.InvoiceDocument = nil
	order.UpdatedAt = time.Now().UTC()

	if err := s.Store.WithTx(ctx, func(tx Store) error { return tx.PutOrder(ctx, *order) }); err != nil {
		return nil, err
	}
	return order, nil
}

// attachDeliveryOrder moves Pending -> Issued, only once invoiced.
func (s *OrderService) attachDeliveryOrder(ctx context.Context, order *Order, ev DocumentEvent, at time.Time) (*Order, error) {
	if order.InvoiceStatus != InvoiceInvoiced {
		return nil, &ledger.ValidationError{Field: "delivery_status", Message: "order must be invoiced before a delivery order is issued"}
	}
	if order.DeliveryStatus != DeliveryPending {
		return nil, &ledger.ValidationError{Field: "delivery_status", Message: fmt.Sprintf("delivery already %s", order.DeliveryStatus)}
	}
	order.DeliveryStatus = DeliveryIssued
	order.DeliveryDocument = &DocumentRef{FileID: ev.FileID, UploadedAt: at}
	order.UpdatedAt = at

	if err := s.Store.WithTx(ctx, func(tx Store) error { return tx.PutOrder(ctx, *order) }); err != nil {
		return nil, err
	}
	s.Log.WithField("order", order.OrderNumber).Info("delivery order issued")
	return order, nil
}

// detachDeliveryOrder rewinds Issued -> Pending.
func (s *OrderService) detachDeliveryOrder(ctx context.Context, order *Order) (*Order, error) {
	if order.DeliveryStatus != DeliveryIssued {
		return nil, &ledger.ValidationError{Field: "delivery_status", Message: "no issued delivery order to detach"}
	}
	order.DeliveryStatus = DeliveryPending
	order.DeliveryDocument = nil
	order.UpdatedAt = time.Now().UTC()

	if err := s.Store.WithTx(ctx, func(tx Store) error { return tx.PutOrder(ctx, *order) }); err != nil {
		return nil, err
	}
	return order, nil
}

// confirmDelivery moves (Invoiced,Issued) -> (Invoiced,Delivered).
// Synthesizes one new Stock_Out/Delivered entry per item and flips each
// asset Reserved -> Delivered, leaving the original entries unchanged.
func (s *OrderService) confirmDelivery(ctx context.Context, order *Order, ev DocumentEvent, at time.Time) (*Order, error) {
	caller, _ := auth.UserID(ctx)

	if order.InvoiceStatus != InvoiceInvoiced || order.DeliveryStatus != DeliveryIssued {
		return nil, &ledger.ValidationError{
			Field:   "delivery_status",
			Message: fmt.Sprintf("signed delivery requires (Invoiced, Issued), order is (%s, %s)", order.InvoiceStatus, order.DeliveryStatus),
		}
	}

	originals, err := s.Store.EntriesByTransactionIDs(ctx, order.TransactionIDs)
	if err != nil {
		return nil, err
	}
	// Only the reservation entries map to items; previously synthesized
	// delivery entries (re-runs) never qualify because the state machine
	// forbids delivering twice.
	var items []ledger.Entry
	for _, e := range originals {
		if e.Type == ledger.EntryStockOut && e.Status == ledger.StatusReserved {
			items = append(items, e)
		}
	}
	if len(items) == 0 {
		return nil, &ledger.ValidationError{Field: "items", Message: "order has no reserved entries to deliver"}
	}

	alloc := ledger.NewAllocator(s.Store)
	newIDs, err := alloc.NextBatch(ctx, ledger.SeqTransactionID, len(items))
	if err != nil {
		return nil, err
	}

	deliveryDate := at
	order.DeliveryStatus = DeliveryDelivered
	order.SignedDeliveryDocument = &DocumentRef{FileID: ev.FileID, UploadedAt: at}
	order.UpdatedAt = at

	err = s.Store.WithTx(ctx, func(tx Store) error {
		synthesized := make([]ledger.Entry, len(items))
		for i, original := range items {
			if err := tx.UpdateAssetStatusIf(ctx, original.SerialNumber, ledger.StatusReserved, ledger.StatusDelivered, order.Location); err != nil {
				return err
			}
			no := order.EntryNo
			synthesized[i] = ledger.Entry{
				TransactionID: newIDs[i],
				Type:          ledger.EntryStockOut,
				Status:        ledger.StatusDelivered,
				SerialNumber:  original.SerialNumber,
				Location:      order.Location,
				Counterparty:  original.Counterparty,
				EntryNo:       &no,
				InvoiceNumber: order.InvoiceNumber,
				DeliveryDate:  &deliveryDate,
				RecordedAt:    at,
				CreatedBy:     caller,
				CreatedAt:     at,
			}
		}
		if err := tx.AppendEntries(ctx, synthesized); err != nil {
			return err
		}
		order.TransactionIDs = append(order.TransactionIDs, newIDs...)
		return tx.PutOrder(ctx, *order)
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"order": order.OrderNumber,
		"items": len(items),
	}).Info("order delivered")

	return order, nil
}

// =============================================================================
// DELETION
// =============================================================================

// DeleteOrder removes an undelivered order, reverting its items to Active
// and deleting its ledger entries. Document cleanup happens after the
// batch commits; its failures come back as Warnings, not errors.
func (s *OrderService) DeleteOrder(ctx context.Context, orderNumber string) (Warnings, error) {
	if _, ok := auth.UserID(ctx); !ok {
		return nil, ledger.ErrUnauthenticated
	}
	order, err := s.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !order.Deletable() {
		return nil, &ledger.ValidationError{Field: "delivery_status", Message: "delivered orders cannot be deleted"}
	}

	entries, err := s.Store.EntriesByTransactionIDs(ctx, order.TransactionIDs)
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx Store) error {
		reverted := make(map[string]bool)
		for _, e := range entries {
			key := ledger.NormalizeSerial(e.SerialNumber)
			if reverted[key] {
				continue
			}
			reverted[key] = true
			if err := tx.UpdateAssetStatus(ctx, e.SerialNumber, ledger.StatusActive, ""); err != nil {
				return err
			}
		}
		if err := tx.DeleteEntries(ctx, order.TransactionIDs); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, order.OrderNumber)
	})
	if err != nil {
		return nil, err
	}

	var warnings Warnings
	for _, doc := range []*DocumentRef{order.InvoiceDocument, order.DeliveryDocument, order.SignedDeliveryDocument} {
		if doc == nil {
			continue
		}
		if err := s.Documents.DeleteDocument(ctx, doc.FileID); err != nil {
			s.Log.WithFields(logrus.Fields{
				"order": order.OrderNumber,
				"file":  doc.FileID,
			}).WithError(err).Warn("order deleted but document cleanup failed")
			warnings = append(warnings, fmt.Sprintf("document %s not deleted: %v", doc.FileID, err))
		}
	}

	s.Log.WithField("order", order.OrderNumber).Info("order deleted")
	return warnings, nil
}
