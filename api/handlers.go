/*
handlers.go - HTTP API handlers for the inventory engine

PURPOSE:

	Exposes the ledger and fulfillment workflows via REST. Handles HTTP
	request/response, JSON serialization, input validation, and delegates
	to domain services.

ENDPOINTS:

	Auth:
	  POST   /api/auth/login                 Exchange access key for token

	Assets:
	  GET    /api/assets                     List registry (?derived=true adds ledger view)
	  POST   /api/assets                     Stock intake
	  GET    /api/assets/{serial}            Registry row + derived status
	  GET    /api/assets/{serial}/entries    Full ledger history for a serial
	  POST   /api/assets/{serial}/return     Record a dealer return
	  DELETE /api/assets/{serial}            Administrative purge

	Orders:
	  GET    /api/orders                     List orders
	  POST   /api/orders                     Create order (reserve items)
	  GET    /api/orders/{orderNumber}       Order details
	  POST   /api/orders/{orderNumber}/documents  Document upload/deletion event
	  DELETE /api/orders/{orderNumber}       Delete order (release items)

	Demos:
	  GET    /api/demos                      List demo loans
	  POST   /api/demos                      Create demo loan
	  GET    /api/demos/{demoNumber}         Demo details
	  POST   /api/demos/{demoNumber}/returns Return items (partial allowed)

	Audit / import:
	  GET    /api/discrepancies              Run the discrepancy analyzer
	  POST   /api/import                     Bulk .xlsx intake

ERROR HANDLING:

	Domain errors map to HTTP status by classification:
	- 401: no authenticated caller
	- 400: validation errors
	- 404: unknown serial/order/demo
	- 409: lost concurrent race, duplicate transaction id
	- 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/trackline/inventory-engine/auth"
	"github.com/trackline/inventory-engine/fulfillment"
	"github.com/trackline/inventory-engine/importer"
	"github.com/trackline/inventory-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Config carries the authentication settings handlers need.
type Config struct {
	JWTSecret string
	AccessKey string
	TokenTTL  time.Duration
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    fulfillment.TxStore
	Registry *fulfillment.RegistryService
	Orders   *fulfillment.OrderService
	Demos    *fulfillment.DemoService
	Importer *importer.Importer
	Config   Config
	Log      *logrus.Logger

	validate *validator.Validate
}

// NewHandler wires the domain services over one store.
func NewHandler(store fulfillment.TxStore, docs fulfillment.DocumentStore, cfg Config, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Handler{
		Store:    store,
		Registry: fulfillment.NewRegistryService(store, log),
		Orders:   fulfillment.NewOrderService(store, docs, log),
		Demos:    fulfillment.NewDemoService(store, log),
		Importer: importer.New(store, log),
		Config:   cfg,
		Log:      log,
		validate: validator.New(),
	}
}

// =============================================================================
// AUTH
// =============================================================================

// Login exchanges the configured access key for a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AccessKey != h.Config.AccessKey {
		writeError(w, http.StatusUnauthorized, "invalid access key", nil)
		return
	}
	token, err := auth.GenerateToken(h.Config.JWTSecret, req.UserID, h.Config.TokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresIn: int64(h.Config.TokenTTL.Seconds()),
	})
}

// =============================================================================
// ASSETS
// =============================================================================

// ListAssets returns the registry; with ?derived=true each row also
// carries the status the ledger derives for it.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Store.ListAssets(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	withDerived := r.URL.Query().Get("derived") == "true"

	dtos := make([]AssetDTO, len(assets))
	for i, a := range assets {
		dtos[i] = toAssetDTO(a)
		if withDerived {
			entries, err := h.Store.EntriesBySerial(r.Context(), a.SerialNumber)
			if err != nil {
				h.writeDomainError(w, err)
				return
			}
			dtos[i].Derived = toDerivedDTO(ledger.DeriveStatus(a.SerialNumber, entries))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAsset returns one registry row plus its derived status.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	asset, err := h.Store.GetAsset(r.Context(), serial)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if asset == nil {
		writeError(w, http.StatusNotFound, "asset not found", nil)
		return
	}
	entries, err := h.Store.EntriesBySerial(r.Context(), serial)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dto := toAssetDTO(*asset)
	dto.Derived = toDerivedDTO(ledger.DeriveStatus(serial, entries))
	writeJSON(w, http.StatusOK, dto)
}

// GetAssetEntries returns a serial's full ledger history.
func (h *Handler) GetAssetEntries(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	entries, err := h.Store.EntriesBySerial(r.Context(), serial)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAsset performs single-item stock intake.
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req IntakeRequest
	if !h.decode(w, r, &req) {
		return
	}
	unitValue := decimal.Zero
	if req.UnitValue != "" {
		var err error
		unitValue, err = decimal.NewFromString(req.UnitValue)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unit_value is not a number", err)
			return
		}
	}
	asset, err := h.Registry.Intake(r.Context(), fulfillment.IntakeInput{
		SerialNumber: req.SerialNumber,
		Category:     req.Category,
		Model:        req.Model,
		Size:         req.Size,
		Batch:        req.Batch,
		Remark:       req.Remark,
		Location:     req.Location,
		UnitValue:    unitValue,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetDTO(*asset))
}

// RecordDealerReturn records a delivered item coming back.
func (h *Handler) RecordDealerReturn(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	var req DealerReturnRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.Registry.RecordDealerReturn(r.Context(), serial, req.Counterparty)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// DeleteAsset purges an asset and its ledger history.
func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	if err := h.Registry.PurgeAsset(r.Context(), serial); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ORDERS
// =============================================================================

// ListOrders returns all order records.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListOrders(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOrder reserves items against a new order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.Orders.CreateOrder(r.Context(), fulfillment.CreateOrderInput{
		OrderNumber:    req.OrderNumber,
		Dealer:         req.Dealer,
		Client:         req.Client,
		Location:       req.Location,
		Serials:        req.Serials,
		WarrantyType:   req.WarrantyType,
		WarrantyPeriod: req.WarrantyPeriod,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(*order))
}

// GetOrder returns one order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*order))
}

// ApplyDocumentEvent advances (or rewinds) the order state machine in
// response to a document upload or deletion.
func (h *Handler) ApplyDocumentEvent(w http.ResponseWriter, r *http.Request) {
	var req DocumentEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.Orders.ApplyDocumentEvent(r.Context(), fulfillment.DocumentEvent{
		OrderNumber:   chi.URLParam(r, "orderNumber"),
		FileType:      fulfillment.FileType(req.FileType),
		FileID:        req.FileID,
		InvoiceNumber: req.InvoiceNumber,
		Deleted:       req.Deleted,
		At:            time.Now().UTC(),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*order))
}

// DeleteOrder removes an undelivered order and releases its items.
// Secondary document-deletion failures surface as warnings, not errors.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.Orders.DeleteOrder(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if len(warnings) > 0 {
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "warnings": warnings})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DEMOS
// =============================================================================

// ListDemos returns all demo loans.
func (h *Handler) ListDemos(w http.ResponseWriter, r *http.Request) {
	demos, err := h.Demos.ListDemos(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]DemoDTO, len(demos))
	for i, d := range demos {
		dtos[i] = toDemoDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDemo loans items out for demonstration.
func (h *Handler) CreateDemo(w http.ResponseWriter, r *http.Request) {
	var req CreateDemoRequest
	if !h.decode(w, r, &req) {
		return
	}
	demo, err := h.Demos.CreateDemo(r.Context(), fulfillment.CreateDemoInput{
		DemoNumber: req.DemoNumber,
		Dealer:     req.Dealer,
		Location:   req.Location,
		Serials:    req.Serials,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDemoDTO(*demo))
}

// GetDemo returns one demo loan.
func (h *Handler) GetDemo(w http.ResponseWriter, r *http.Request) {
	demo, err := h.Demos.GetDemo(r.Context(), chi.URLParam(r, "demoNumber"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDemoDTO(*demo))
}

// ReturnDemoItems records a (possibly partial) return of demo items.
func (h *Handler) ReturnDemoItems(w http.ResponseWriter, r *http.Request) {
	var req ReturnDemoItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	demo, err := h.Demos.ReturnItems(r.Context(), chi.URLParam(r, "demoNumber"), req.Serials)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDemoDTO(*demo))
}

// =============================================================================
// AUDIT AND IMPORT
// =============================================================================

// GetDiscrepancies runs the discrepancy analyzer over the whole store.
func (h *Handler) GetDiscrepancies(w http.ResponseWriter, r *http.Request) {
	report, err := ledger.NewAnalyzer(h.Store).Analyze(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ImportSpreadsheet bulk-loads an .xlsx stock book from the request body.
func (h *Handler) ImportSpreadsheet(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	result, err := h.Importer.Import(r.Context(), r.Body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates a JSON request body. On failure it writes
// the error response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps a domain error to an HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, ledger.ErrConcurrencyConflict),
		errors.Is(err, ledger.ErrDuplicateTransactionID):
		writeError(w, http.StatusConflict, "conflicting concurrent update", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	default:
		h.Log.WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
