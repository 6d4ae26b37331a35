/*
discrepancy.go - Read-only audit of registry vs ledger

PURPOSE:

	The engine keeps the registry status consistent with the ledger by
	convention, not by constraint: every workflow refreshes the denormalized
	copy inside the same write that appends the causing entry. This analyzer
	is the safety net that detects drift after crashes mid-operation or
	direct data fixes.

CHECKS:

 1. Drift: derived status != registry status for a serial

 2. Orphaned Delivered entries: Stock_Out/Delivered with no matching asset

 3. Duplicate Delivered entries for one serial

 4. Legacy heuristic disagreement: serials where the deprecated
    "exactly one Stock_In + one Stock_Out" count rule disagrees with
    the canonical recency rule

    Check 4 exists because older report code derived status by counting
    entry types. That heuristic is NOT authoritative; disagreements are
    informational, flagged so reports built on the old rule can be migrated.

SEE ALSO:
  - derive.go: The canonical derivation rule
*/
package ledger

import (
	"context"
	"sort"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// Drift is one serial whose registry status disagrees with the ledger.
type Drift struct {
	SerialNumber   string
	RegistryStatus AssetStatus
	DerivedStatus  AssetStatus
}

// OrphanedEntry is a Delivered entry without a registry record.
type OrphanedEntry struct {
	TransactionID int64
	SerialNumber  string
}

// DuplicateDelivery is a serial with more than one Delivered entry.
type DuplicateDelivery struct {
	SerialNumber   string
	TransactionIDs []int64
}

// HeuristicDisagreement is a serial where the legacy count-based rule and
// the canonical recency rule diverge.
type HeuristicDisagreement struct {
	SerialNumber    string
	DerivedStatus   AssetStatus
	LegacyStatus    AssetStatus
	StockInEntries  int
	StockOutEntries int
}

// Report is the full audit result.
type Report struct {
	AssetsChecked       int
	Drifts              []Drift
	OrphanedDeliveries  []OrphanedEntry
	DuplicateDeliveries []DuplicateDelivery
	LegacyDisagreements []HeuristicDisagreement
}

// Clean reports whether the audit found nothing.
func (r *Report) Clean() bool {
	return len(r.Drifts) == 0 &&
		len(r.OrphanedDeliveries) == 0 &&
		len(r.DuplicateDeliveries) == 0 &&
		len(r.LegacyDisagreements) == 0
}

// =============================================================================
// ANALYZER
// =============================================================================

// Analyzer recomputes status from the ledger and compares it against the
// registry. Read-only; never mutates.
type Analyzer struct {
	Store Store
}

func NewAnalyzer(store Store) *Analyzer {
	return &Analyzer{Store: store}
}

// Analyze runs all checks over the full registry and ledger.
func (a *Analyzer) Analyze(ctx context.Context) (*Report, error) {
	assets, err := a.Store.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := a.Store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	bySerial := make(map[string][]Entry)
	for _, e := range entries {
		k := NormalizeSerial(e.SerialNumber)
		bySerial[k] = append(bySerial[k], e)
	}
	known := make(map[string]bool, len(assets))
	for _, asset := range assets {
		known[asset.Key()] = true
	}

	report := &Report{AssetsChecked: len(assets)}

	for _, asset := range assets {
		serialEntries := bySerial[asset.Key()]
		derived := DeriveStatus(asset.SerialNumber, serialEntries)

		if derived.Status != asset.Status {
			report.Drifts = append(report.Drifts, Drift{
				SerialNumber:   asset.SerialNumber,
				RegistryStatus: asset.Status,
				DerivedStatus:  derived.Status,
			})
		}

		legacy, ins, outs := legacyCountStatus(serialEntries)
		if (legacy == StatusDelivered) != (derived.Status == StatusDelivered) {
			report.LegacyDisagreements = append(report.LegacyDisagreements, HeuristicDisagreement{
				SerialNumber:    asset.SerialNumber,
				DerivedStatus:   derived.Status,
				LegacyStatus:    legacy,
				StockInEntries:  ins,
				StockOutEntries: outs,
			})
		}
	}

	report.OrphanedDeliveries, report.DuplicateDeliveries = auditDeliveries(bySerial, known)

	return report, nil
}

// auditDeliveries scans Delivered entries for orphans and duplicates.
func auditDeliveries(bySerial map[string][]Entry, known map[string]bool) ([]OrphanedEntry, []DuplicateDelivery) {
	var orphans []OrphanedEntry
	var dups []DuplicateDelivery

	serials := make([]string, 0, len(bySerial))
	for s := range bySerial {
		serials = append(serials, s)
	}
	sort.Strings(serials)

	for _, serial := range serials {
		var delivered []int64
		for _, e := range bySerial[serial] {
			if e.Type == EntryStockOut && e.Status == StatusDelivered {
				delivered = append(delivered, e.TransactionID)
			}
		}
		if len(delivered) == 0 {
			continue
		}
		if !known[serial] {
			for _, id := range delivered {
				orphans = append(orphans, OrphanedEntry{TransactionID: id, SerialNumber: serial})
			}
		}
		if len(delivered) > 1 {
			sort.Slice(delivered, func(i, j int) bool { return delivered[i] < delivered[j] })
			dups = append(dups, DuplicateDelivery{SerialNumber: serial, TransactionIDs: delivered})
		}
	}
	return orphans, dups
}

// legacyCountStatus reimplements the deprecated count-based rule found in
// older report code: a serial with matching Stock_In/Stock_Out counts is
// considered moved out, any unequal count is treated as Reserved. Kept
// ONLY so the analyzer can flag where it disagrees with the canonical rule.
func legacyCountStatus(entries []Entry) (AssetStatus, int, int) {
	var ins, outs int
	for _, e := range entries {
		switch e.Type {
		case EntryStockIn:
			ins++
		case EntryStockOut:
			outs++
		}
	}
	switch {
	case ins == 0 && outs == 0:
		return StatusActive, ins, outs
	case ins == outs:
		return StatusDelivered, ins, outs
	default:
		return StatusReserved, ins, outs
	}
}
