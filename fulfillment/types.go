/*
Package fulfillment contains the two workflow state machines that produce
ledger entries: sales-order fulfillment and demo loans.

PURPOSE:

	Workflows orchestrate multi-record operations over the three record
	collections (asset registry, transaction ledger, order/demo records).
	Each operation is a read phase validating preconditions, followed by one
	atomic multi-record write. Workflow status fields are materialized
	caches of what the ledger implies, refreshed in that same write.

KEY CONCEPTS IN THIS FILE (types.go):
  - Order: dual-axis status (invoice side x delivery side)
  - Demo:  loan with item-level partial returns
  - DocumentEvent: upload/deletion notifications from the file collaborator

ORDER STATE MACHINE:

	(Reserved,Pending) -> (Invoiced,Pending) -> (Invoiced,Issued) -> (Invoiced,Delivered)
	Transitions are driven by document uploads, not by direct status writes.

SEE ALSO:
  - order.go: Order fulfillment service
  - demo.go:  Demo loan service
  - store.go: Workflow record persistence + WithTx batching
*/
package fulfillment

import (
	"time"
)

// =============================================================================
// ORDER - Sales order with dual-axis status
// =============================================================================

// InvoiceStatus is the invoice-side progress track of an order.
type InvoiceStatus string

const (
	InvoiceReserved InvoiceStatus = "Reserved"
	InvoiceInvoiced InvoiceStatus = "Invoiced"
)

// DeliveryStatus is the delivery-side progress track of an order.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "Pending"
	DeliveryIssued    DeliveryStatus = "Issued"
	DeliveryDelivered DeliveryStatus = "Delivered"
)

// DocumentRef records one uploaded document attached to an order.
type DocumentRef struct {
	FileID     string
	UploadedAt time.Time
}

// Order owns its ledger entries by transaction-id membership, not by a
// foreign key on the entries. Every id in TransactionIDs must resolve to a
// Stock_Out entry.
type Order struct {
	OrderNumber string
	Dealer      string
	Client      string
	Location    string

	TransactionIDs []int64
	TotalItems     int

	// EntryNo shared by all Stock_Out entries this order created.
	EntryNo int64

	InvoiceStatus  InvoiceStatus
	DeliveryStatus DeliveryStatus

	InvoiceNumber string

	InvoiceDocument        *DocumentRef
	DeliveryDocument       *DocumentRef
	SignedDeliveryDocument *DocumentRef

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deletable reports whether the order may still be deleted.
// Orders are soft-blocked from deletion once delivered.
func (o *Order) Deletable() bool {
	return o.DeliveryStatus != DeliveryDelivered
}

// =============================================================================
// DEMO - Loan with item-level partial returns
// =============================================================================

// DemoStatus is the overall loan state. Partial return is an orthogonal
// flag, not a state: a demo stays Active until every item is back.
type DemoStatus string

const (
	DemoActive   DemoStatus = "Active"
	DemoReturned DemoStatus = "Returned"
)

// Demo owns Demo-type ledger entries by transaction-id membership.
type Demo struct {
	DemoNumber string
	Dealer     string
	Location   string

	TransactionIDs         []int64
	ReturnedTransactionIDs []int64

	Status            DemoStatus
	PartiallyReturned bool
	ItemsReturned     int
	ItemsRemaining    int

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// DOCUMENT EVENTS - Upload/deletion notifications from the file collaborator
// =============================================================================

// FileType classifies the documents the order state machine reacts to.
type FileType string

const (
	FileInvoice             FileType = "invoice"
	FileDeliveryOrder       FileType = "delivery_order"
	FileSignedDeliveryOrder FileType = "signed_delivery_order"
)

// DocumentEvent is the notification payload from the file collaborator.
// InvoiceNumber rides along on invoice uploads when the extraction
// collaborator has already pulled it from the document.
type DocumentEvent struct {
	OrderNumber   string
	FileType      FileType
	FileID        string
	InvoiceNumber string
	Deleted       bool
	At            time.Time
}

// =============================================================================
// PARTIAL SUCCESS
// =============================================================================

// Warnings collects non-critical secondary failures. A populated Warnings
// with a nil error means "succeeded, but a secondary update failed";
// nothing is rolled back in that case.
type Warnings []string
