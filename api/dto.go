/*
dto.go - Request/response data structures

PURPOSE:

	JSON shapes for the REST API. Request DTOs carry validator tags and are
	checked before any domain call; response DTOs flatten domain types into
	stable wire formats.

SEE ALSO:
  - handlers.go: Where these are read and written
*/
package api

import (
	"time"

	"github.com/trackline/inventory-engine/fulfillment"
	"github.com/trackline/inventory-engine/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// LoginRequest exchanges the configured access key for a bearer token.
type LoginRequest struct {
	AccessKey string `json:"access_key" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
}

// IntakeRequest registers one new item in stock.
type IntakeRequest struct {
	SerialNumber string `json:"serial_number" validate:"required"`
	Category     string `json:"category"`
	Model        string `json:"model"`
	Size         string `json:"size"`
	Batch        string `json:"batch"`
	Remark       string `json:"remark"`
	Location     string `json:"location"`
	UnitValue    string `json:"unit_value" validate:"omitempty,numeric"`
}

// CreateOrderRequest reserves serials against a new sales order.
type CreateOrderRequest struct {
	OrderNumber    string   `json:"order_number" validate:"required"`
	Dealer         string   `json:"dealer"`
	Client         string   `json:"client"`
	Location       string   `json:"location"`
	Serials        []string `json:"serials" validate:"required,min=1,dive,required"`
	WarrantyType   string   `json:"warranty_type"`
	WarrantyPeriod string   `json:"warranty_period"`
}

// DocumentEventRequest notifies the order state machine of a document
// upload or deletion.
type DocumentEventRequest struct {
	FileType      string `json:"file_type" validate:"required,oneof=invoice delivery_order signed_delivery_order"`
	FileID        string `json:"file_id"`
	InvoiceNumber string `json:"invoice_number"`
	Deleted       bool   `json:"deleted"`
}

// CreateDemoRequest loans serials out for demonstration.
type CreateDemoRequest struct {
	DemoNumber string   `json:"demo_number" validate:"required"`
	Dealer     string   `json:"dealer"`
	Location   string   `json:"location"`
	Serials    []string `json:"serials" validate:"required,min=1,dive,required"`
}

// ReturnDemoItemsRequest records a (possibly partial) demo return.
type ReturnDemoItemsRequest struct {
	Serials []string `json:"serials" validate:"required,min=1,dive,required"`
}

// DealerReturnRequest records a delivered item coming back.
type DealerReturnRequest struct {
	Counterparty string `json:"counterparty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in_seconds"`
}

// AssetDTO is the wire form of a registry row, optionally paired with the
// status the ledger derives for the same serial.
type AssetDTO struct {
	SerialNumber string    `json:"serial_number"`
	Category     string    `json:"category,omitempty"`
	Model        string    `json:"model,omitempty"`
	Size         string    `json:"size,omitempty"`
	Batch        string    `json:"batch,omitempty"`
	Remark       string    `json:"remark,omitempty"`
	Status       string    `json:"status"`
	Location     string    `json:"location"`
	UnitValue    string    `json:"unit_value"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Derived *DerivedDTO `json:"derived,omitempty"`
}

// DerivedDTO is a ledger-derived status snapshot.
type DerivedDTO struct {
	Status       string     `json:"status"`
	Location     string     `json:"location"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// EntryDTO is the wire form of one ledger entry.
type EntryDTO struct {
	TransactionID             int64      `json:"transaction_id"`
	Type                      string     `json:"type"`
	Status                    string     `json:"status"`
	SerialNumber              string     `json:"serial_number"`
	Location                  string     `json:"location,omitempty"`
	Counterparty              string     `json:"counterparty,omitempty"`
	EntryNo                   *int64     `json:"entry_no,omitempty"`
	InvoiceNumber             string     `json:"invoice_number,omitempty"`
	DeliveryDate              *time.Time `json:"delivery_date,omitempty"`
	WarrantyType              string     `json:"warranty_type,omitempty"`
	WarrantyPeriod            string     `json:"warranty_period,omitempty"`
	OriginalDemoTransactionID *int64     `json:"original_demo_transaction_id,omitempty"`
	ReturnedFromDemo          bool       `json:"returned_from_demo,omitempty"`
	RecordedAt                *time.Time `json:"recorded_at,omitempty"`
	RecordedAtRaw             string     `json:"recorded_at_raw,omitempty"`
	CreatedBy                 string     `json:"created_by,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
}

// DocumentDTO is the wire form of an attached document reference.
type DocumentDTO struct {
	FileID     string    `json:"file_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// OrderDTO is the wire form of an order record.
type OrderDTO struct {
	OrderNumber    string  `json:"order_number"`
	Dealer         string  `json:"dealer,omitempty"`
	Client         string  `json:"client,omitempty"`
	Location       string  `json:"location,omitempty"`
	TransactionIDs []int64 `json:"transaction_ids"`
	TotalItems     int     `json:"total_items"`
	EntryNo        int64   `json:"entry_no"`
	InvoiceStatus  string  `json:"invoice_status"`
	DeliveryStatus string  `json:"delivery_status"`
	InvoiceNumber  string  `json:"invoice_number,omitempty"`

	InvoiceDocument        *DocumentDTO `json:"invoice_document,omitempty"`
	DeliveryDocument       *DocumentDTO `json:"delivery_document,omitempty"`
	SignedDeliveryDocument *DocumentDTO `json:"signed_delivery_document,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DemoDTO is the wire form of a demo loan record.
type DemoDTO struct {
	DemoNumber             string    `json:"demo_number"`
	Dealer                 string    `json:"dealer,omitempty"`
	Location               string    `json:"location,omitempty"`
	TransactionIDs         []int64   `json:"transaction_ids"`
	ReturnedTransactionIDs []int64   `json:"returned_transaction_ids"`
	Status                 string    `json:"status"`
	PartiallyReturned      bool      `json:"partially_returned"`
	ItemsReturned          int       `json:"items_returned"`
	ItemsRemaining         int       `json:"items_remaining"`
	CreatedBy              string    `json:"created_by,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAssetDTO(a ledger.Asset) AssetDTO {
	return AssetDTO{
		SerialNumber: a.SerialNumber,
		Category:     a.Category,
		Model:        a.Model,
		Size:         a.Size,
		Batch:        a.Batch,
		Remark:       a.Remark,
		Status:       string(a.Status),
		Location:     a.Location,
		UnitValue:    a.UnitValue.String(),
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toDerivedDTO(d ledger.DerivedState) *DerivedDTO {
	return &DerivedDTO{
		Status:       string(d.Status),
		Location:     d.Location,
		LastActivity: d.LastActivity,
	}
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	dto := EntryDTO{
		TransactionID:             e.TransactionID,
		Type:                      string(e.Type),
		Status:                    string(e.Status),
		SerialNumber:              e.SerialNumber,
		Location:                  e.Location,
		Counterparty:              e.Counterparty,
		EntryNo:                   e.EntryNo,
		InvoiceNumber:             e.InvoiceNumber,
		DeliveryDate:              e.DeliveryDate,
		WarrantyType:              e.WarrantyType,
		WarrantyPeriod:            e.WarrantyPeriod,
		OriginalDemoTransactionID: e.OriginalDemoTransactionID,
		ReturnedFromDemo:          e.ReturnedFromDemo,
		RecordedAtRaw:             e.RecordedAtRaw,
		CreatedBy:                 e.CreatedBy,
		CreatedAt:                 e.CreatedAt,
	}
	if !e.RecordedAt.IsZero() {
		t := e.RecordedAt
		dto.RecordedAt = &t
	}
	return dto
}

func toOrderDTO(o fulfillment.Order) OrderDTO {
	return OrderDTO{
		OrderNumber:            o.OrderNumber,
		Dealer:                 o.Dealer,
		Client:                 o.Client,
		Location:               o.Location,
		TransactionIDs:         o.TransactionIDs,
		TotalItems:             o.TotalItems,
		EntryNo:                o.EntryNo,
		InvoiceStatus:          string(o.InvoiceStatus),
		DeliveryStatus:         string(o.DeliveryStatus),
		InvoiceNumber:          o.InvoiceNumber,
		InvoiceDocument:        toDocumentDTO(o.InvoiceDocument),
		DeliveryDocument:       toDocumentDTO(o.DeliveryDocument),
		SignedDeliveryDocument: toDocumentDTO(o.SignedDeliveryDocument),
		CreatedBy:              o.CreatedBy,
		CreatedAt:              o.CreatedAt,
		UpdatedAt:              o.UpdatedAt,
	}
}

func toDocumentDTO(d *fulfillment.DocumentRef) *DocumentDTO {
	if d == nil {
		return nil
	}
	return &DocumentDTO{FileID: d.FileID, UploadedAt: d.UploadedAt}
}

func toDemoDTO(d fulfillment.Demo) DemoDTO {
	returned := d.ReturnedTransactionIDs
	if returned == nil {
		returned = []int64{}
	}
	return DemoDTO{
		DemoNumber:             d.DemoNumber,
		Dealer:                 d.Dealer,
		Location:               d.Location,
		TransactionIDs:         d.TransactionIDs,
		ReturnedTransactionIDs: returned,
		Status:                 string(d.Status),
		PartiallyReturned:      d.PartiallyReturned,
		ItemsReturned:          d.ItemsReturned,
		ItemsRemaining:         d.ItemsRemaining,
		CreatedBy:              d.CreatedBy,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}
