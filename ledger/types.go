/*
Package ledger provides the core inventory ledger engine.

PURPOSE:

	This package contains the domain types and algorithms for tracking
	serialized physical assets through their lifecycle: stock intake,
	reservation, demo loan, delivery, and return. The ledger is the source
	of truth; the asset registry carries a denormalized status that the
	derivation engine can independently verify.

KEY CONCEPTS IN THIS FILE (types.go):
  - Asset: The registry record for one serialized item
  - Entry: One recorded movement event (the ledger)
  - EntryType / AssetStatus: The lifecycle vocabulary
  - DerivedState: Status reconstructed from the ledger alone

DESIGN PRINCIPLES:
 1. Single source of truth: the ledger. Registry/order/demo status
    fields are materialized caches refreshed by the same write that
    appends the causing entry.
 2. Entries are created once and never mutated, except to attach
    later-known metadata (invoice number, delivery date).
 3. Serial numbers compare case-insensitively everywhere.
 4. Monetary values use decimal.Decimal, never float64.

SEE ALSO:
  - derive.go: Status derivation from ledger entries
  - sequence.go: Monotonic ID allocation
  - store.go: Persistence interfaces
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS VOCABULARY
// =============================================================================

// AssetStatus is the denormalized lifecycle status carried on the registry
// record. The same values appear as entry-local statuses on ledger entries.
type AssetStatus string

const (
	StatusActive    AssetStatus = "Active"
	StatusReserved  AssetStatus = "Reserved"
	StatusDemo      AssetStatus = "Demo"
	StatusDelivered AssetStatus = "Delivered"
	StatusReturned  AssetStatus = "Returned"
)

// LocationUnknown is the sentinel location used when no entry carries a
// usable location for a serial.
const LocationUnknown = "Unknown"

// EntryType identifies what kind of movement a ledger entry records.
type EntryType string

const (
	EntryStockIn  EntryType = "Stock_In"  // intake into the warehouse
	EntryStockOut EntryType = "Stock_Out" // reservation or delivery against an order
	EntryDemo     EntryType = "Demo"      // loaned out for demonstration
	EntryReturned EntryType = "Returned"  // returned by a dealer/client after delivery
)

// =============================================================================
// SERIAL NUMBERS
// =============================================================================

// NormalizeSerial returns the canonical form of a serial number used for
// keying and comparison. Serial numbers are case-insensitive; the original
// casing is preserved on the Asset for display.
func NormalizeSerial(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// =============================================================================
// ASSET - Registry record for one serialized item
// =============================================================================

// Asset is one serialized physical item. Status and Location are
// denormalized copies of what the ledger implies; DeriveStatus is the
// independent verification path.
type Asset struct {
	SerialNumber string // display casing; keyed by NormalizeSerial
	Category     string
	Model        string
	Size         string
	Batch        string
	Remark       string

	Status   AssetStatus
	Location string

	UnitValue decimal.Decimal

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the normalized serial used as the registry key.
func (a Asset) Key() string { return NormalizeSerial(a.SerialNumber) }

// =============================================================================
// ENTRY - One ledger event
// =============================================================================

// Entry is one recorded movement event for an Asset.
//
// Identity is twofold: Key is the store-generated UUID, TransactionID is
// the process-wide dense integer allocated by the sequence allocator.
// TransactionID is strictly increasing in allocation order, which is not
// necessarily store iteration order.
type Entry struct {
	Key           string // store-generated UUID
	TransactionID int64

	Type   EntryType
	Status AssetStatus // entry-local status, e.g. Stock_Out carries Reserved/Delivered

	SerialNumber string
	Location     string
	Counterparty string // dealer or client name

	// EntryNo is a second sequence scoped to Stock_Out entries only.
	// All Stock_Out entries created by one order share the same EntryNo.
	EntryNo *int64

	// Later-known metadata. These are the only fields mutated after creation.
	InvoiceNumber string
	DeliveryDate  *time.Time

	WarrantyType   string
	WarrantyPeriod string

	// Demo linkage. ReturnedFromDemo is set on the original Demo entry when
	// its item comes back; OriginalDemoTransactionID is set on the restoring
	// Stock_In entry and points at that Demo entry.
	OriginalDemoTransactionID *int64
	ReturnedFromDemo          bool

	// RecordedAt is the structured event timestamp. Backfilled legacy rows
	// may carry only RecordedAtRaw, a string-encoded date that might not
	// parse; see EffectiveTime.
	RecordedAt    time.Time
	RecordedAtRaw string

	CreatedBy string
	CreatedAt time.Time
}

// legacyTimeLayouts are the string date encodings observed in backfilled
// ledger rows, tried in order.
var legacyTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// ParseLegacyTime tries the known legacy layouts against a raw
// timestamp string.
func ParseLegacyTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EffectiveTime resolves the timestamp used for ordering entries.
// Returns ok=false when the entry carries only a legacy string timestamp
// that does not parse; such entries are excluded from recency ordering
// but still count for existence checks.
func (e Entry) EffectiveTime() (time.Time, bool) {
	if !e.RecordedAt.IsZero() {
		return e.RecordedAt, true
	}
	if t, ok := ParseLegacyTime(e.RecordedAtRaw); ok {
		return t, ok
	}
	return time.Time{}, false
}

// EntryMetadata is the set of later-known fields that may be attached to an
// existing entry. Nil/empty members are left untouched.
type EntryMetadata struct {
	InvoiceNumber    string
	DeliveryDate     *time.Time
	ReturnedFromDemo *bool
}

// =============================================================================
// DERIVED STATE - Output of the status derivation engine
// =============================================================================

// DerivedState is a serial's status reconstructed purely from its ledger
// entries, independent of the denormalized registry field.
type DerivedState struct {
	Status       AssetStatus
	Location     string
	LastActivity *time.Time
}

// =============================================================================
// SEQUENCE NAMES
// =============================================================================

const (
	// SeqTransactionID is the global sequence backing Entry.TransactionID.
	SeqTransactionID = "transaction_id"

	// SeqEntryNo is the independent sequence backing Entry.EntryNo,
	// scoped to Stock_Out entries.
	SeqEntryNo = "entry_no"
)
