/*
store.go - Workflow record persistence and atomic batching

PURPOSE:

	Extends the ledger store with the order/demo record collections and the
	WithTx primitive that makes one logical operation a single atomic
	multi-record write.

CONSISTENCY DISCIPLINE:

	Every multi-record operation is:
	  (a) a read phase validating preconditions against current state,
	  (b) one WithTx batch containing all resulting mutations.
	The two phases are NOT one atomic unit. The write phase re-asserts asset
	availability with conditional updates (UpdateAssetStatusIf), so a caller
	that lost the race between (a) and (b) gets ErrConcurrencyConflict
	instead of silently double-reserving an item.

	Failures inside the batch abort the whole write. Failures after a
	committed batch (document collaborator notifications) are logged and
	surfaced as Warnings, never rolled back.

SEE ALSO:
  - ledger/store.go: Registry + ledger interfaces this embeds
  - store/memory, store/sqlite: Implementations
*/
package fulfillment

import (
	"context"

	"github.com/trackline/inventory-engine/ledger"
)

// Store is the full persistence surface a workflow operates on.
type Store interface {
	ledger.Store
	OrderStore
	DemoStore
}

// TxStore adds atomic multi-record batching.
type TxStore interface {
	Store

	// WithTx executes fn as one atomic batch. If fn returns an error the
	// batch is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// OrderStore persists order records, keyed by order number.
type OrderStore interface {
	// GetOrder returns the order, or nil when absent.
	GetOrder(ctx context.Context, orderNumber string) (*Order, error)

	// PutOrder inserts or replaces the order.
	PutOrder(ctx context.Context, o Order) error

	// DeleteOrder removes the order record only.
	DeleteOrder(ctx context.Context, orderNumber string) error

	// ListOrders returns every order record.
	ListOrders(ctx context.Context) ([]Order, error)
}

// DemoStore persists demo loan records, keyed by demo number.
type DemoStore interface {
	// GetDemo returns the demo, or nil when absent.
	GetDemo(ctx context.Context, demoNumber string) (*Demo, error)

	// PutDemo inserts or replaces the demo.
	PutDemo(ctx context.Context, d Demo) error

	// ListDemos returns every demo record.
	ListDemos(ctx context.Context) ([]Demo, error)
}

// DocumentStore is the external file collaborator. The engine never moves
// bytes itself; it only asks the collaborator to drop documents when their
// owning order goes away. Failures here are secondary (Warnings).
type DocumentStore interface {
	// DeleteDocument removes a stored document by id.
	DeleteDocument(ctx context.Context, fileID string) error
}

// NopDocuments is a DocumentStore that does nothing. Used in tests and
// when no file collaborator is wired.
type NopDocuments struct{}

func (NopDocuments) DeleteDocument(context.Context, string) error { return nil }
