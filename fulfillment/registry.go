/*
registry.go - Intake and administrative registry operations

PURPOSE:

	The operations that touch the registry outside the two workflow state
	machines: single-item stock intake, dealer returns of delivered goods,
	and administrative purge.

	Intake is the only way assets come into existence (the bulk importer
	funnels through the same shape, one row at a time). Purge is the only
	way they leave, and it cascades to the asset's ledger entries.

SEE ALSO:
  - importer: Spreadsheet bulk intake
  - ledger/discrepancy.go: The audit over what these operations maintain
*/
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/trackline/inventory-engine/auth"
	"github.com/trackline/inventory-engine/ledger"
)

// RegistryService covers intake, dealer returns, and purge.
type RegistryService struct {
	Store TxStore
	Log   *logrus.Logger
}

func NewRegistryService(store TxStore, log *logrus.Logger) *RegistryService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RegistryService{Store: store, Log: log}
}

// IntakeInput describes one item entering stock.
type IntakeInput struct {
	SerialNumber string
	Category     string
	Model        string
	Size         string
	Batch        string
	Remark       string
	Location     string
	UnitValue    decimal.Decimal
}

// Intake registers a new asset and its Stock_In entry in one batch.
func (s *RegistryService) Intake(ctx context.Context, in IntakeInput) (*ledger.Asset, error) {
	caller, ok := auth.UserID(ctx)
	if !ok {
		return nil, ledger.ErrUnauthenticated
	}
	if ledger.NormalizeSerial(in.SerialNumber) == "" {
		return nil, &ledger.ValidationError{Field: "serial_number", Message: "required"}
	}

	existing, err := s.Store.GetAsset(ctx, in.SerialNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ledger.ValidationError{Field: "serial_number", Serial: in.SerialNumber, Message: "already registered"}
	}

	alloc := ledger.NewAllocator(s.Store)
	txID, err := alloc.Next(ctx, ledger.SeqTransactionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	location := in.Location
	if location == "" {
		location = ledger.LocationUnknown
	}
	asset := ledger.Asset{
		SerialNumber: in.SerialNumber,
		Category:     in.Category,
		Model:        in.Model,
		Size:         in.Size,
		Batch:        in.Batch,
		Remark:       in.Remark,
		Status:       ledger.StatusActive,
		Location:     location,
		UnitValue:    in.UnitValue,
		CreatedBy:    caller,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.PutAsset(ctx, asset); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, ledger.Entry{
			TransactionID: txID,
			Type:          ledger.EntryStockIn,
			Status:        ledger.StatusActive,
			SerialNumber:  in.SerialNumber,
			Location:      location,
			RecordedAt:    now,
			CreatedBy:     caller,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithField("serial", asset.SerialNumber).Info("asset stocked in")
	return &asset, nil
}

// RecordDealerReturn records a delivered item coming back from a dealer
// or client: one Returned entry, registry flipped to Returned.
func (s *RegistryService) RecordDealerReturn(ctx context.Context, serial, counterparty string) (*ledger.Entry, error) {
	caller, ok := auth.UserID(ctx)
	if !ok {
		return nil, ledger.ErrUnauthenticated
	}

	asset, err := s.Store.GetAsset(ctx, serial)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, &ledger.NotFoundError{Kind: "asset", Key: serial}
	}
	if asset.Status != ledger.StatusDelivered {
		return nil, &ledger.ValidationError{
			Field:   "serial_number",
			Serial:  serial,
			Message: fmt.Sprintf("only delivered items can be returned (status %s)", asset.Status),
		}
	}

	alloc := ledger.NewAllocator(s.Store)
	txID, err := alloc.Next(ctx, ledger.SeqTransactionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := ledger.Entry{
		TransactionID: txID,
		Type:          ledger.EntryReturned,
		Status:        ledger.StatusReturned,
		SerialNumber:  asset.SerialNumber,
		Location:      asset.Location,
		Counterparty:  counterparty,
		RecordedAt:    now,
		CreatedBy:     caller,
		CreatedAt:     now,
	}
	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateAssetStatusIf(ctx, serial, ledger.StatusDelivered, ledger.StatusReturned, ""); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithField("serial", asset.SerialNumber).Info("dealer return recorded")
	return &entry, nil
}

// PurgeAsset removes an asset and all of its ledger entries. This is the
// explicit administrative escape hatch; nothing else deletes assets.
func (s *RegistryService) PurgeAsset(ctx context.Context, serial string) error {
	if _, ok := auth.UserID(ctx); !ok {
		return ledger.ErrUnauthenticated
	}

	asset, err := s.Store.GetAsset(ctx, serial)
	if err != nil {
		return err
	}
	if asset == nil {
		return &ledger.NotFoundError{Kind: "asset", Key: serial}
	}

	entries, err := s.Store.EntriesBySerial(ctx, serial)
	if err != nil {
		return err
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.TransactionID
	}

	err = s.Store.WithTx(ctx, func(tx Store) error {
		if len(ids) > 0 {
			if err := tx.DeleteEntries(ctx, ids); err != nil {
				return err
			}
		}
		return tx.DeleteAsset(ctx, serial)
	})
	if err != nil {
		return err
	}

	s.Log.WithFields(logrus.Fields{
		"serial":  asset.SerialNumber,
		"entries": len(ids),
	}).Warn("asset purged")
	return nil
}
