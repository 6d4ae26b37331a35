/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:

	Implements fulfillment.TxStore (asset registry, transaction ledger,
	order/demo records, sequence counters) using SQLite via database/sql.
	In production the same patterns apply to PostgreSQL; only minor SQL
	dialect differences.

KEY TABLES:

	assets:     One row per serial (normalized key + display casing)
	entries:    The transaction ledger
	orders:     Order records; owned transaction ids stored as JSON
	demos:      Demo loan records
	sequences:  Named atomic counters

SEQUENCES:

	A counter advance is one upsert with RETURNING, so concurrent callers
	always receive disjoint, contiguous ranges. This replaces the legacy
	scan-for-max allocation and its duplicate-ID race.

CONDITIONAL WRITES:

	UpdateAssetStatusIf is a single UPDATE guarded by the expected status.
	Zero rows affected means either a missing serial or a lost race; the
	follow-up read tells the two apart.

WAL MODE:

	Opened with WAL for better concurrency: readers don't block, single
	writer at a time, better crash recovery.

USAGE:

	store, err := sqlite.New("./data/inventory.db")   // or ":memory:"
	defer store.Close()

SEE ALSO:
  - fulfillment/store.go: Interface contracts
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/trackline/inventory-engine/fulfillment"
	"github.com/trackline/inventory-engine/ledger"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements fulfillment.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under the write mutex.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	store.queries.q = db
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Asset registry (one row per serial number)
	CREATE TABLE IF NOT EXISTS assets (
		serial_key    TEXT PRIMARY KEY,
		serial_number TEXT NOT NULL,
		category      TEXT,
		model         TEXT,
		size          TEXT,
		batch         TEXT,
		remark        TEXT,
		status        TEXT NOT NULL,
		location      TEXT,
		unit_value    TEXT NOT NULL DEFAULT '0',
		created_by    TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	-- Transaction ledger
	CREATE TABLE IF NOT EXISTS entries (
		key             TEXT PRIMARY KEY,
		transaction_id  INTEGER NOT NULL UNIQUE,
		entry_type      TEXT NOT NULL,
		status          TEXT NOT NULL,
		serial_key      TEXT NOT NULL,
		serial_number   TEXT NOT NULL,
		location        TEXT,
		counterparty    TEXT,
		entry_no        INTEGER,
		invoice_number  TEXT,
		delivery_date   TEXT,
		warranty_type   TEXT,
		warranty_period TEXT,
		original_demo_transaction_id INTEGER,
		returned_from_demo INTEGER NOT NULL DEFAULT 0,
		recorded_at     TEXT,
		recorded_at_raw TEXT,
		created_by      TEXT,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_serial ON entries(serial_key);
	CREATE INDEX IF NOT EXISTS idx_entries_type_status ON entries(entry_type, status);

	-- Order records (owned transaction ids as JSON array)
	CREATE TABLE IF NOT EXISTS orders (
		order_number    TEXT PRIMARY KEY,
		dealer          TEXT,
		client          TEXT,
		location        TEXT,
		transaction_ids TEXT NOT NULL,
		total_items     INTEGER NOT NULL,
		entry_no        INTEGER NOT NULL,
		invoice_status  TEXT NOT NULL,
		delivery_status TEXT NOT NULL,
		invoice_number  TEXT,
		invoice_doc_id  TEXT,
		invoice_doc_at  TEXT,
		delivery_doc_id TEXT,
		delivery_doc_at TEXT,
		signed_doc_id   TEXT,
		signed_doc_at   TEXT,
		created_by      TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	);

	-- Demo loan records
	CREATE TABLE IF NOT EXISTS demos (
		demo_number              TEXT PRIMARY KEY,
		dealer                   TEXT,
		location                 TEXT,
		transaction_ids          TEXT NOT NULL,
		returned_transaction_ids TEXT NOT NULL,
		status                   TEXT NOT NULL,
		partially_returned       INTEGER NOT NULL DEFAULT 0,
		items_returned           INTEGER NOT NULL DEFAULT 0,
		items_remaining          INTEGER NOT NULL DEFAULT 0,
		created_by               TEXT,
		created_at               TEXT NOT NULL,
		updated_at               TEXT NOT NULL
	);

	-- Named atomic counters
	CREATE TABLE IF NOT EXISTS sequences (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(fulfillment.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &txView{queries{q: sqlTx}}
	if err := fn(view); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txView exposes the query set bound to an open transaction.
type txView struct {
	queries
}

// =============================================================================
// QUERIES - shared between *sql.DB and *sql.Tx
// =============================================================================

type queries struct {
	q dbtx
}

// --- assets ---

const assetColumns = `serial_number, category, model, size, batch, remark,
	status, location, unit_value, created_by, created_at, updated_at`

func (s *queries) GetAsset(ctx context.Context, serial string) (*ledger.Asset, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE serial_key = ?`,
		ledger.NormalizeSerial(serial))
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *queries) PutAsset(ctx context.Context, a ledger.Asset) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO assets (serial_key, `+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(serial_key) DO UPDATE SET
			serial_number = excluded.serial_number,
			category = excluded.category,
			model = excluded.model,
			size = excluded.size,
			batch = excluded.batch,
			remark = excluded.remark,
			status = excluded.status,
			location = excluded.location,
			unit_value = excluded.unit_value,
			updated_at = excluded.updated_at`,
		a.Key(), a.SerialNumber, a.Category, a.Model, a.Size, a.Batch, a.Remark,
		string(a.Status), a.Location, a.UnitValue.String(), a.CreatedBy,
		encodeTime(a.CreatedAt), encodeTime(a.UpdatedAt))
	return err
}

func (s *queries) UpdateAssetStatus(ctx context.Context, serial string, status ledger.AssetStatus, location string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE assets
		SET status = ?,
		    location = CASE WHEN ? <> '' THEN ? ELSE location END,
		    updated_at = ?
		WHERE serial_key = ?`,
		string(status), location, location, encodeTime(time.Now().UTC()),
		ledger.NormalizeSerial(serial))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "asset", Key: serial}
	}
	return nil
}

func (s *queries) UpdateAssetStatusIf(ctx context.Context, serial string, expect, next ledger.AssetStatus, location string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE assets
		SET status = ?,
		    location = CASE WHEN ? <> '' THEN ? ELSE location END,
		    updated_at = ?
		WHERE serial_key = ? AND status = ?`,
		string(next), location, location, encodeTime(time.Now().UTC()),
		ledger.NormalizeSerial(serial), string(expect))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	// Zero rows: missing serial or lost race. One read tells them apart.
	current, err := s.GetAsset(ctx, serial)
	if err != nil {
		return err
	}
	if current == nil {
		return &ledger.NotFoundError{Kind: "asset", Key: serial}
	}
	return &ledger.ConflictError{Serial: serial, Expected: expect, Actual: current.Status}
}

func (s *queries) ListAssets(ctx context.Context) ([]ledger.Asset, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets ORDER BY serial_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *queries) DeleteAsset(ctx context.Context, serial string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM assets WHERE serial_key = ?`, ledger.NormalizeSerial(serial))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "asset", Key: serial}
	}
	return nil
}

// --- entries ---

const entryColumns = `key, transaction_id, entry_type, status, serial_number,
	location, counterparty, entry_no, invoice_number, delivery_date,
	warranty_type, warranty_period, original_demo_transaction_id,
	returned_from_demo, recorded_at, recorded_at_raw, created_by, created_at`

func (s *queries) AppendEntry(ctx context.Context, e ledger.Entry) error {
	if e.Key == "" {
		e.Key = uuid.NewString()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`, serial_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.TransactionID, string(e.Type), string(e.Status), e.SerialNumber,
		e.Location, e.Counterparty, nullInt(e.EntryNo), e.InvoiceNumber,
		encodeTimePtr(e.DeliveryDate), e.WarrantyType, e.WarrantyPeriod,
		nullInt(e.OriginalDemoTransactionID), boolToInt(e.ReturnedFromDemo),
		encodeTime(e.RecordedAt), e.RecordedAtRaw, e.CreatedBy, encodeTime(e.CreatedAt),
		ledger.NormalizeSerial(e.SerialNumber))
	if err != nil && isUniqueViolation(err) {
		return ledger.ErrDuplicateTransactionID
	}
	return err
}

func (s *queries) AppendEntries(ctx context.Context, es []ledger.Entry) error {
	for _, e := range es {
		if err := s.AppendEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *queries) EntriesBySerial(ctx context.Context, serial string) ([]ledger.Entry, error) {
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE serial_key = ? ORDER BY transaction_id`,
		ledger.NormalizeSerial(serial))
}

func (s *queries) EntriesByTransactionIDs(ctx context.Context, ids []int64) ([]ledger.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE transaction_id IN (`+
			strings.Join(placeholders, ",")+`) ORDER BY transaction_id`,
		args...)
}

func (s *queries) ListEntries(ctx context.Context) ([]ledger.Entry, error) {
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM entries ORDER BY transaction_id`)
}

func (s *queries) AttachEntryMetadata(ctx context.Context, transactionID int64, meta ledger.EntryMetadata) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE entries
		SET invoice_number = CASE WHEN ? <> '' THEN ? ELSE invoice_number END,
		    delivery_date = COALESCE(?, delivery_date),
		    returned_from_demo = COALESCE(?, returned_from_demo)
		WHERE transaction_id = ?`,
		meta.InvoiceNumber, meta.InvoiceNumber,
		encodeTimePtr(meta.DeliveryDate),
		nullBool(meta.ReturnedFromDemo),
		transactionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "entry", Key: strconv.FormatInt(transactionID, 10)}
	}
	return nil
}

func (s *queries) DeleteEntries(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.q.ExecContext(ctx,
			`DELETE FROM entries WHERE transaction_id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *queries) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// --- sequences ---

func (s *queries) NextSequence(ctx context.Context, name string, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("sequence advance must be positive, got %d", n)
	}
	var last int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = sequences.value + excluded.value
		RETURNING value`,
		name, n).Scan(&last)
	if err != nil {
		return 0, err
	}
	return last - n + 1, nil
}

// --- orders ---

const orderColumns = `order_number, dealer, client, location, transaction_ids,
	total_items, entry_no, invoice_status, delivery_status, invoice_number,
	invoice_doc_id, invoice_doc_at, delivery_doc_id, delivery_doc_at,
	signed_doc_id, signed_doc_at, created_by, created_at, updated_at`

func (s *queries) GetOrder(ctx context.Context, orderNumber string) (*fulfillment.Order, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, orderNumber)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *queries) PutOrder(ctx context.Context, o fulfillment.Order) error {
	ids, err := json.Marshal(o.TransactionIDs)
	if err != nil {
		return err
	}
	invoiceID, invoiceAt := encodeDoc(o.InvoiceDocument)
	deliveryID, deliveryAt := encodeDoc(o.DeliveryDocument)
	signedID, signedAt := encodeDoc(o.SignedDeliveryDocument)

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_number) DO UPDATE SET
			dealer = excluded.dealer,
			client = excluded.client,
			location = excluded.location,
			transaction_ids = excluded.transaction_ids,
			total_items = excluded.total_items,
			entry_no = excluded.entry_no,
			invoice_status = excluded.invoice_status,
			delivery_status = excluded.delivery_status,
			invoice_number = excluded.invoice_number,
			invoice_doc_id = excluded.invoice_doc_id,
			invoice_doc_at = excluded.invoice_doc_at,
			delivery_doc_id = excluded.delivery_doc_id,
			delivery_doc_at = excluded.delivery_doc_at,
			signed_doc_id = excluded.signed_doc_id,
			signed_doc_at = excluded.signed_doc_at,
			updated_at = excluded.updated_at`,
		o.OrderNumber, o.Dealer, o.Client, o.Location, string(ids),
		o.TotalItems, o.EntryNo, string(o.InvoiceStatus), string(o.DeliveryStatus),
		o.InvoiceNumber, invoiceID, invoiceAt, deliveryID, deliveryAt,
		signedID, signedAt, o.CreatedBy, encodeTime(o.CreatedAt), encodeTime(o.UpdatedAt))
	return err
}

func (s *queries) DeleteOrder(ctx context.Context, orderNumber string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM orders WHERE order_number = ?`, orderNumber)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "order", Key: orderNumber}
	}
	return nil
}

func (s *queries) ListOrders(ctx context.Context) ([]fulfillment.Order, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY order_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fulfillment.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// --- demos ---

const demoColumns = `demo_number, dealer, location, transaction_ids,
	returned_transaction_ids, status, partially_returned, items_returned,
	items_remaining, created_by, created_at, updated_at`

func (s *queries) GetDemo(ctx context.Context, demoNumber string) (*fulfillment.Demo, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+demoColumns+` FROM demos WHERE demo_number = ?`, demoNumber)
	d, err := scanDemo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *queries) PutDemo(ctx context.Context, d fulfillment.Demo) error {
	ids, err := json.Marshal(d.TransactionIDs)
	if err != nil {
		return err
	}
	returned, err := json.Marshal(emptyIfNil(d.ReturnedTransactionIDs))
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO demos (`+demoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(demo_number) DO UPDATE SET
			dealer = excluded.dealer,
			location = excluded.location,
			transaction_ids = excluded.transaction_ids,
			returned_transaction_ids = excluded.returned_transaction_ids,
			status = excluded.status,
			partially_returned = excluded.partially_returned,
			items_returned = excluded.items_returned,
			items_remaining = excluded.items_remaining,
			updated_at = excluded.updated_at`,
		d.DemoNumber, d.Dealer, d.Location, string(ids), string(returned),
		string(d.Status), boolToInt(d.PartiallyReturned), d.ItemsReturned,
		d.ItemsRemaining, d.CreatedBy, encodeTime(d.CreatedAt), encodeTime(d.UpdatedAt))
	return err
}

func (s *queries) ListDemos(ctx context.Context) ([]fulfillment.Demo, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+demoColumns+` FROM demos ORDER BY demo_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fulfillment.Demo
	for rows.Next() {
		d, err := scanDemo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type scannable interface {
	Scan(dest ...any) error
}

func scanAsset(row scannable) (*ledger.Asset, error) {
	var a ledger.Asset
	var status, unitValue, createdAt, updatedAt string
	err := row.Scan(&a.SerialNumber, &a.Category, &a.Model, &a.Size, &a.Batch,
		&a.Remark, &status, &a.Location, &unitValue, &a.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = ledger.AssetStatus(status)
	a.UnitValue, err = decimal.NewFromString(unitValue)
	if err != nil {
		a.UnitValue = decimal.Zero
	}
	a.CreatedAt = decodeTime(createdAt)
	a.UpdatedAt = decodeTime(updatedAt)
	return &a, nil
}

func scanEntry(row scannable) (*ledger.Entry, error) {
	var e ledger.Entry
	var entryType, status, createdAt string
	var entryNo, originalDemo sql.NullInt64
	var deliveryDate, recordedAt sql.NullString
	var returnedFromDemo int
	err := row.Scan(&e.Key, &e.TransactionID, &entryType, &status, &e.SerialNumber,
		&e.Location, &e.Counterparty, &entryNo, &e.InvoiceNumber, &deliveryDate,
		&e.WarrantyType, &e.WarrantyPeriod, &originalDemo, &returnedFromDemo,
		&recordedAt, &e.RecordedAtRaw, &e.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Type = ledger.EntryType(entryType)
	e.Status = ledger.AssetStatus(status)
	if entryNo.Valid {
		v := entryNo.Int64
		e.EntryNo = &v
	}
	if originalDemo.Valid {
		v := originalDemo.Int64
		e.OriginalDemoTransactionID = &v
	}
	e.ReturnedFromDemo = returnedFromDemo != 0
	if deliveryDate.Valid && deliveryDate.String != "" {
		t := decodeTime(deliveryDate.String)
		e.DeliveryDate = &t
	}
	if recordedAt.Valid {
		e.RecordedAt = decodeTime(recordedAt.String)
	}
	e.CreatedAt = decodeTime(createdAt)
	return &e, nil
}

func scanOrder(row scannable) (*fulfillment.Order, error) {
	var o fulfillment.Order
	var ids, invoiceStatus, deliveryStatus, createdAt, updatedAt string
	var invoiceID, invoiceAt, deliveryID, deliveryAt, signedID, signedAt sql.NullString
	err := row.Scan(&o.OrderNumber, &o.Dealer, &o.Client, &o.Location, &ids,
		&o.TotalItems, &o.EntryNo, &invoiceStatus, &deliveryStatus, &o.InvoiceNumber,
		&invoiceID, &invoiceAt, &deliveryID, &deliveryAt, &signedID, &signedAt,
		&o.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &o.TransactionIDs); err != nil {
		return nil, fmt.Errorf("order %s: bad transaction_ids: %w", o.OrderNumber, err)
	}
	o.InvoiceStatus = fulfillment.InvoiceStatus(invoiceStatus)
	o.DeliveryStatus = fulfillment.DeliveryStatus(deliveryStatus)
	o.InvoiceDocument = decodeDoc(invoiceID, invoiceAt)
	o.DeliveryDocument = decodeDoc(deliveryID, deliveryAt)
	o.SignedDeliveryDocument = decodeDoc(signedID, signedAt)
	o.CreatedAt = decodeTime(createdAt)
	o.UpdatedAt = decodeTime(updatedAt)
	return &o, nil
}

func scanDemo(row scannable) (*fulfillment.Demo, error) {
	var d fulfillment.Demo
	var ids, returned, status, createdAt, updatedAt string
	var partial int
	err := row.Scan(&d.DemoNumber, &d.Dealer, &d.Location, &ids, &returned,
		&status, &partial, &d.ItemsReturned, &d.ItemsRemaining, &d.CreatedBy,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &d.TransactionIDs); err != nil {
		return nil, fmt.Errorf("demo %s: bad transaction_ids: %w", d.DemoNumber, err)
	}
	if err := json.Unmarshal([]byte(returned), &d.ReturnedTransactionIDs); err != nil {
		return nil, fmt.Errorf("demo %s: bad returned_transaction_ids: %w", d.DemoNumber, err)
	}
	d.Status = fulfillment.DemoStatus(status)
	d.PartiallyReturned = partial != 0
	d.CreatedAt = decodeTime(createdAt)
	d.UpdatedAt = decodeTime(updatedAt)
	return &d, nil
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func encodeDoc(d *fulfillment.DocumentRef) (any, any) {
	if d == nil {
		return nil, nil
	}
	return d.FileID, encodeTime(d.UploadedAt)
}

func decodeDoc(id, at sql.NullString) *fulfillment.DocumentRef {
	if !id.Valid || id.String == "" {
		return nil
	}
	return &fulfillment.DocumentRef{FileID: id.String, UploadedAt: decodeTime(at.String)}
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return boolToInt(*v)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptyIfNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports constraint violations in the error text;
	// matching on the message keeps the driver's error types out of callers.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
