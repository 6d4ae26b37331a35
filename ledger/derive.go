/*
derive.go - Status derivation from ledger entries

PURPOSE:

	Reconstructs a serial's current status purely from its ledger entries,
	independent of the denormalized registry field. Read paths that do not
	trust the registry (reports, discrepancy audits) call this instead.

CANONICAL RULE (recency-based):

	Sort entries by effective timestamp descending; on equal timestamps the
	entry with the larger transaction_id wins. Decide on the most recent:
	  - no entries                       -> Active, location Unknown
	  - Stock_Out(Reserved|Delivered)    -> that status
	  - Stock_Out(anything else)         -> Reserved (fail-safe default)
	  - Stock_In                         -> Active
	  - Demo, not yet returned           -> Demo
	  - Demo, returned-from              -> Active (the item came back)
	  - Returned                         -> Returned

	Location is taken from the most recent entry carrying a non-empty,
	non-"Unknown" location; if none, Unknown.

LEGACY TIMESTAMPS:

	Backfilled rows may carry only a string-encoded date. Rows whose string
	fails to parse are excluded from recency ordering but still count for
	existence; if NO entry is orderable, the entry with the largest
	transaction_id decides (allocation order approximates event order).

	The original system carried several mutually inconsistent derivation
	heuristics, including count-based ones (comparing Stock_In/Stock_Out
	occurrence counts). The recency rule above is the single canonical rule;
	the count heuristic survives only in the discrepancy analyzer, labelled
	as legacy.

PURITY:

	No I/O. Deterministic for a given entry set, including under reordering
	of the input slice.

SEE ALSO:
  - discrepancy.go: Uses derivation to audit the registry
*/
package ledger

import "sort"

// DeriveStatus computes the ledger-implied state for one serial.
// entries must all belong to the serial; the input slice is not modified.
func DeriveStatus(serial string, entries []Entry) DerivedState {
	if len(entries) == 0 {
		return DerivedState{Status: StatusActive, Location: LocationUnknown}
	}

	ordered := orderByRecency(entries)

	latest := ordered[0]
	state := DerivedState{
		Status:   statusOf(latest),
		Location: LocationUnknown,
	}
	if t, ok := latest.EffectiveTime(); ok {
		state.LastActivity = &t
	}

	for _, e := range ordered {
		if usableLocation(e.Location) {
			state.Location = e.Location
			break
		}
	}
	return state
}

// orderByRecency returns a copy of entries sorted most-recent-first.
// Orderable entries (those with a resolvable timestamp) come before
// unorderable ones; within each group larger transaction_id wins ties.
func orderByRecency(entries []Entry) []Entry {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)

	sort.SliceStable(ordered, func(i, j int) bool {
		ti, oki := ordered[i].EffectiveTime()
		tj, okj := ordered[j].EffectiveTime()
		if oki != okj {
			return oki // orderable first
		}
		if oki && !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ordered[i].TransactionID > ordered[j].TransactionID
	})
	return ordered
}

func statusOf(e Entry) AssetStatus {
	switch e.Type {
	case EntryStockOut:
		switch e.Status {
		case StatusReserved, StatusDelivered:
			return e.Status
		default:
			// Unknown local status on a Stock_Out entry. Treating the item
			// as unavailable is the safe default.
			return StatusReserved
		}
	case EntryStockIn:
		return StatusActive
	case EntryDemo:
		if e.ReturnedFromDemo {
			return StatusActive
		}
		return StatusDemo
	case EntryReturned:
		return StatusReturned
	default:
		return StatusActive
	}
}

func usableLocation(loc string) bool {
	return loc != "" && loc != LocationUnknown
}
