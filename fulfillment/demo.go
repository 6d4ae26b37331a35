/*
demo.go - Demo loan state machine

PURPOSE:

	Orchestrates demo loans with item-level partial returns.

	  Active --(all items returned)--> Returned

	PartiallyReturned is an orthogonal flag, not a state: it is true exactly
	while 0 < returned < total.

RETURNS:

	Returning an item does not touch the original Demo entry's identity.
	For each returned serial the engine:
	  1. allocates a fresh transaction id,
	  2. writes a restoring Stock_In entry carrying the asset's attribute
	     snapshot and a reference to the original demo transaction,
	  3. marks the original Demo entry returned-from (metadata attachment),
	  4. resets the asset to Active,
	  5. appends the original id to ReturnedTransactionIDs.
	The demo flips to Returned only when ReturnedTransactionIDs covers all
	of TransactionIDs.

SEE ALSO:
  - order.go: The sibling state machine for sales orders
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

// DemoService drives the demo loan state machine.
type DemoService struct {
	Store TxStore
	Log   *logrus.Logger
}

func NewDemoService(store TxStore, log *logrus.Logger) *DemoService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DemoService{Store: store, Log: log}
}

// CreateDemoInput is the payload for CreateDemo.
type CreateDemoInput struct {
	DemoNumber string
	Dealer     string
	Location   string
	Serials    []string
}

// CreateDemo loans the given serials out for demonstration.
func (s *DemoService) CreateDemo(ctx context.Context, in CreateDemoInput) (*Demo, error) {
	caller, ok := auth.UserID(ctx)
	if !ok {
		return nil, ledger.ErrUnauthenticated
	}

	if in.DemoNumber == "" {
		return nil, &ledger.ValidationError{Field: "demo_number", Message: "required"}
	}
	if len(in.Serials) == 0 {
		return nil, &ledger.ValidationError{Field: "items", Message: "at least one serial is required"}
	}

	existing, err := s.Store.GetDemo(ctx, in.DemoNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ledger.ValidationError{Field: "demo_number", Message: "already exists"}
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
	txIDs, err := alloc.NextBatch(ctx, ledger.SeqTransactionID, len(in.Serials))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	demo := Demo{
		DemoNumber:     in.DemoNumber,
		Dealer:         in.Dealer,
		Location:       in.Location,
		TransactionIDs: txIDs,
		Status:         DemoActive,
		ItemsRemaining: len(in.Serials),
		CreatedBy:      caller,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.Store.WithTx(ctx, func(tx Store) error {
		entries := make([]ledger.Entry, len(in.Serials))
		for i, serial := range in.Serials {
			if err := tx.UpdateAssetStatusIf(ctx, serial, ledger.StatusActive, ledger.StatusDemo, in.Location); err != nil {
				return err
			}
			entries[i] = ledger.Entry{
				TransactionID: txIDs[i],
				Type:          ledger.EntryDemo,
				Status:        ledger.StatusDemo,
				SerialNumber:  serial,
				Location:      in.Location,
				Counterparty:  in.Dealer,
				RecordedAt:    now,
				CreatedBy:     caller,
				CreatedAt:     now,
			}
		}
		if err := tx.AppendEntries(ctx, entries); err != nil {
			return err
		}
		return tx.PutDemo(ctx, demo)
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"demo":  demo.DemoNumber,
		"items": len(in.Serials),
	}).Info("demo created")

	return &demo, nil
}

// GetDemo returns a demo by number.
func (s *DemoService) GetDemo(ctx context.Context, demoNumber string) (*Demo, error) {
	demo, err := s.Store.GetDemo(ctx, demoNumber)
	if err != nil {
		return nil, err
	}
	if demo == nil {
		return nil, &ledger.NotFoundError{Kind: "demo", Key: demoNumber}
	}
	return demo, nil
}

// ListDemos returns all demos.
func (s *DemoService) ListDemos(ctx context.Context) ([]Demo, error) {
	return s.Store.ListDemos(ctx)
}

// ReturnItems records the (possibly partial) return of the given serials.
func (s *DemoService) ReturnItems(ctx context.Context, demoNumber string, serials []string) (*Demo, error) {
	caller, ok := auth.UserID(ctx)
	if !ok {
		return nil, ledger.ErrUnauthenticated
	}
	if len(serials) == 0 {
		return nil, &ledger.ValidationError{Field: "items", Message: "at least one serial is required"}
	}

	demo, err := s.GetDemo(ctx, demoNumber)
	if err != nil {
		return nil, err
	}
	if demo.Status == DemoReturned {
		return nil, &ledger.ValidationError{Field: "status", Message: "demo is already fully returned"}
	}

	entries, err := s.Store.EntriesByTransactionIDs(ctx, demo.TransactionIDs)
	if err != nil {
		return nil, err
	}
	bySerial := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		bySerial[ledger.NormalizeSerial(e.SerialNumber)] = e
	}
	returned := make(map[int64]bool, len(demo.ReturnedTransactionIDs))
	for _, id := range demo.ReturnedTransactionIDs {
		returned[id] = true
	}

	// Read phase: every requested serial must belong to the demo and not
	// be returned yet. Snapshot the assets so restoring entries can carry
	// their full attributes.
	type pending struct {
		original ledger.Entry
		asset    ledger.Asset
	}
	selected := make([]pending, 0, len(serials))
	seen := make(map[string]bool, len(serials))
	for _, serial := range serials {
		key := ledger.NormalizeSerial(serial)
		if seen[key] {
			return nil, &ledger.ValidationError{Field: "items", Serial: serial, Message: "listed more than once"}
		}
		seen[key] = true
		original, ok := bySerial[key]
		if !ok {
			return nil, &ledger.ValidationError{Field: "items", Serial: serial, Message: "not part of this demo"}
		}
		if returned[original.TransactionID] {
			return nil, &ledger.ValidationError{Field: "items", Serial: serial, Message: "already returned"}
		}
		asset, err := s.Store.GetAsset(ctx, serial)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, &ledger.NotFoundError{Kind: "asset", Key: serial}
		}
		selected = append(selected, pending{original: original, asset: *asset})
	}

	alloc := ledger.NewAllocator(s.Store)
	newIDs, err := alloc.NextBatch(ctx, ledger.SeqTransactionID, len(selected))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, p := range selected {
		demo.ReturnedTransactionIDs = append(demo.ReturnedTransactionIDs, p.original.TransactionID)
	}
	demo.ItemsReturned = len(demo.ReturnedTransactionIDs)
	demo.ItemsRemaining = len(demo.TransactionIDs) - demo.ItemsReturned
	demo.PartiallyReturned = demo.ItemsRemaining > 0 && demo.ItemsReturned > 0
	if demo.ItemsRemaining == 0 {
		demo.Status = DemoReturned
		demo.PartiallyReturned = false
	}
	demo.UpdatedAt = now

	markReturned := true
	err = s.Store.WithTx(ctx, func(tx Store) error {
		restoring := make([]ledger.Entry, len(selected))
		for i, p := range selected {
			if err := tx.UpdateAssetStatusIf(ctx, p.asset.SerialNumber, ledger.StatusDemo, ledger.StatusActive, p.asset.Location); err != nil {
				return err
			}
			originalID := p.original.TransactionID
			restoring[i] = ledger.Entry{
				TransactionID:             newIDs[i],
				Type:                      ledger.EntryStockIn,
				Status:                    ledger.StatusActive,
				SerialNumber:              p.asset.SerialNumber,
				Location:                  p.asset.Location,
				Counterparty:              demo.Dealer,
				OriginalDemoTransactionID: &originalID,
				RecordedAt:                now,
				CreatedBy:                 caller,
				CreatedAt:                 now,
			}
			if err := tx.AttachEntryMetadata(ctx, originalID, ledger.EntryMetadata{ReturnedFromDemo: &markReturned}); err != nil {
				return err
			}
		}
		if err := tx.AppendEntries(ctx, restoring); err != nil {
			return err
		}
		return tx.PutDemo(ctx, *demo)
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"demo":      demo.DemoNumber,
		"returned":  demo.ItemsReturned,
		"remaining": demo.ItemsRemaining,
	}).Info("demo items returned")

	return demo, nil
}
