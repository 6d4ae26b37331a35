/*
store.go - Persistence interfaces for the asset registry and ledger

PURPOSE:

	Defines the interface between the engine and the database. Three record
	collections exist: the asset registry (one row per serial), the
	transaction ledger (entries), and the workflow records (orders/demos,
	declared in the fulfillment package). This file covers the first two
	plus the sequence counter primitive.

MUTATION DISCIPLINE:

	Entries are created once. The only permitted update is
	AttachEntryMetadata, which fills later-known fields (invoice number,
	delivery date, returned-from-demo mark). Entry deletion exists solely
	for order deletion and administrative purge, both of which remove the
	owning record in the same atomic write.

CONDITIONAL WRITES:

	UpdateAssetStatusIf is the compare-and-swap that converts the
	check-then-act availability race into a detectable ConflictError.
	Workflows validate availability in their read phase, then re-assert it
	inside the atomic write through this call.

IMPLEMENTATIONS:
  - store/memory:  In-memory, for tests and development
  - store/sqlite:  SQLite via database/sql; same SQL works on PostgreSQL

SEE ALSO:
  - fulfillment/store.go: workflow records + WithTx batching
*/
package ledger

import "context"

// Store handles persistence of assets, ledger entries, and sequences.
type Store interface {
	AssetStore
	EntryStore
	SequenceStore
}

// AssetStore is the registry: one record per serial number.
type AssetStore interface {
	// GetAsset returns the asset for a serial (case-insensitive),
	// or nil when absent.
	GetAsset(ctx context.Context, serial string) (*Asset, error)

	// PutAsset inserts or replaces the asset keyed by its serial.
	PutAsset(ctx context.Context, a Asset) error

	// UpdateAssetStatus unconditionally sets status (and location when
	// non-empty) on an existing asset. Returns NotFoundError when the
	// serial is unknown.
	UpdateAssetStatus(ctx context.Context, serial string, status AssetStatus, location string) error

	// UpdateAssetStatusIf sets status only when the current status equals
	// expect. Returns ConflictError otherwise, NotFoundError when the
	// serial is unknown.
	UpdateAssetStatusIf(ctx context.Context, serial string, expect, next AssetStatus, location string) error

	// ListAssets returns every registry record.
	ListAssets(ctx context.Context) ([]Asset, error)

	// DeleteAsset removes a registry record. Ledger entries are NOT
	// cascaded here; administrative purge deletes them in the same batch.
	DeleteAsset(ctx context.Context, serial string) error
}

// EntryStore is the transaction ledger.
type EntryStore interface {
	// AppendEntry persists one entry. Fails with ErrDuplicateTransactionID
	// when the transaction id is already present.
	AppendEntry(ctx context.Context, e Entry) error

	// AppendEntries persists several entries. Within a WithTx batch this
	// is all-or-nothing.
	AppendEntries(ctx context.Context, es []Entry) error

	// EntriesBySerial returns all entries for a serial (case-insensitive),
	// in store order.
	EntriesBySerial(ctx context.Context, serial string) ([]Entry, error)

	// EntriesByTransactionIDs resolves entries by their transaction ids.
	// Missing ids are skipped, not an error.
	EntriesByTransactionIDs(ctx context.Context, ids []int64) ([]Entry, error)

	// ListEntries returns the full ledger.
	ListEntries(ctx context.Context) ([]Entry, error)

	// AttachEntryMetadata fills later-known fields on an existing entry.
	// Zero-valued metadata members are left untouched.
	AttachEntryMetadata(ctx context.Context, transactionID int64, meta EntryMetadata) error

	// DeleteEntries removes entries by transaction id. Used only by order
	// deletion and administrative purge.
	DeleteEntries(ctx context.Context, ids []int64) error
}
