/*
Package importer loads inventory from spreadsheets.

PURPOSE:

	Bulk intake path for migrating an existing stock book. Each data row
	becomes one asset plus its initial Stock_In ledger entry, committed
	per row so one bad row never blocks the rest of the sheet.

SHEET LAYOUT (first sheet, row 1 is the header):

	A serial_number   required, unique within the file and the registry
	B category
	C model
	D size
	E batch
	F remark
	G location        blank rows get "Unknown"
	H unit_value      decimal, blank means 0
	I recorded_at     free-form legacy timestamp, kept verbatim

RECORDED_AT:

	Migrated books carry timestamps in whatever format the old system
	used. The raw string is stored on the entry as-is; rows whose value
	parses into a known layout also get the parsed time, which lets
	status derivation order them. Unparseable values still import.

SEE ALSO:
  - fulfillment/registry.go: The single-item intake this mirrors
*/
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/trackline/inventory-engine/auth"
	"github.com/trackline/inventory-engine/fulfillment"
	"github.com/trackline/inventory-engine/ledger"
)

// RowError ties an import failure to its spreadsheet row.
type RowError struct {
	Row     int    `json:"row"`
	Serial  string `json:"serial_number,omitempty"`
	Message string `json:"message"`
}

// Result summarizes one import run.
type Result struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Importer reads .xlsx stock books into the registry and ledger.
type Importer struct {
	Store fulfillment.TxStore
	Log   *logrus.Logger
}

func New(store fulfillment.TxStore, log *logrus.Logger) *Importer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Importer{Store: store, Log: log}
}

// Import reads the first sheet of the workbook and registers every data
// row. Rows that fail validation are reported in the result and skipped;
// only I/O and storage failures abort the run.
func (imp *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	caller, ok := auth.UserID(ctx)
	if !ok {
		return nil, ledger.ErrUnauthenticated
	}

	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer book.Close()

	sheet := book.GetSheetName(0)
	if sheet == "" {
		return nil, &ledger.ValidationError{Field: "file", Message: "workbook has no sheets"}
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) <= 1 {
		return nil, &ledger.ValidationError{Field: "file", Message: "sheet has no data rows"}
	}

	result := &Result{}
	seen := make(map[string]int) // normalized serial -> first row

	for i, row := range rows[1:] {
		rowNum := i + 2 // 1-based, after the header
		if isBlank(row) {
			continue
		}
		serial := cell(row, 0)
		key := ledger.NormalizeSerial(serial)
		if key == "" {
			result.skip(RowError{Row: rowNum, Message: "serial_number is required"})
			continue
		}
		if first, dup := seen[key]; dup {
			result.skip(RowError{Row: rowNum, Serial: serial,
				Message: fmt.Sprintf("duplicate of row %d", first)})
			continue
		}
		seen[key] = rowNum

		if err := imp.importRow(ctx, caller, row); err != nil {
			if ledger.IsClientError(err) {
				msg := err.Error()
				var verr *ledger.ValidationError
				if errors.As(err, &verr) {
					msg = verr.Message
				}
				result.skip(RowError{Row: rowNum, Serial: serial, Message: msg})
				continue
			}
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		result.Imported++
	}

	imp.Log.WithFields(logrus.Fields{
		"imported": result.Imported,
		"skipped":  result.Skipped,
	}).Info("spreadsheet import finished")
	return result, nil
}

func (imp *Importer) importRow(ctx context.Context, caller string, row []string) error {
	serial := cell(row, 0)

	existing, err := imp.Store.GetAsset(ctx, serial)
	if err != nil {
		return err
	}
	if existing != nil {
		return &ledger.ValidationError{Field: "serial_number", Serial: serial, Message: "already registered"}
	}

	unitValue := decimal.Zero
	if raw := cell(row, 7); raw != "" {
		unitValue, err = decimal.NewFromString(raw)
		if err != nil {
			return &ledger.ValidationError{Field: "unit_value", Serial: serial,
				Message: fmt.Sprintf("not a number: %q", raw)}
		}
	}

	location := cell(row, 6)
	if location == "" {
		location = ledger.LocationUnknown
	}

	alloc := ledger.NewAllocator(imp.Store)
	txID, err := alloc.Next(ctx, ledger.SeqTransactionID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	asset := ledger.Asset{
		SerialNumber: serial,
		Category:     cell(row, 1),
		Model:        cell(row, 2),
		Size:         cell(row, 3),
		Batch:        cell(row, 4),
		Remark:       cell(row, 5),
		Status:       ledger.StatusActive,
		Location:     location,
		UnitValue:    unitValue,
		CreatedBy:    caller,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry := ledger.Entry{
		TransactionID: txID,
		Type:          ledger.EntryStockIn,
		Status:        ledger.StatusActive,
		SerialNumber:  serial,
		Location:      location,
		CreatedBy:     caller,
		CreatedAt:     now,
	}

	// Legacy timestamp: keep the raw text, parse when a layout matches.
	if raw := cell(row, 8); raw != "" {
		entry.RecordedAtRaw = raw
		if t, ok := ledger.ParseLegacyTime(raw); ok {
			entry.RecordedAt = t
		}
	} else {
		entry.RecordedAt = now
	}

	return imp.Store.WithTx(ctx, func(tx fulfillment.Store) error {
		if err := tx.PutAsset(ctx, asset); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, entry)
	})
}

func (r *Result) skip(e RowError) {
	r.Skipped++
	r.Errors = append(r.Errors, e)
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
