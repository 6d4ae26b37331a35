/*
Package memory provides an in-memory implementation of the engine's
storage interfaces, for tests and development.

PURPOSE:

	Implements fulfillment.TxStore over plain maps behind a mutex. The
	maps live in an unexported tables type that does no locking of its
	own; Store wraps it with the mutex, and WithTx hands the tables
	straight to the batch function while holding the write lock. A batch
	therefore runs against an exclusive view, concurrent callers block on
	the mutex until it commits, and a failed batch restores a snapshot
	taken before it ran. Same all-or-nothing semantics the SQLite store
	gets from real transactions.

SEE ALSO:
  - store/sqlite: The production implementation (same txView shape)
  - fulfillment/store.go: Interface contracts
*/
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trackline/inventory-engine/fulfillment"
	"github.com/trackline/inventory-engine/ledger"
)

// tables holds the maps and implements fulfillment.Store without any
// locking. Only Store (under its mutex) and WithTx batches touch it.
type tables struct {
	assets    map[string]ledger.Asset // key: normalized serial
	entries   map[int64]ledger.Entry  // key: transaction id
	orders    map[string]fulfillment.Order
	demos     map[string]fulfillment.Demo
	sequences map[string]int64
}

// Store is the in-memory implementation of fulfillment.TxStore.
type Store struct {
	mu sync.RWMutex
	t  tables
}

func New() *Store {
	return &Store{t: tables{
		assets:    make(map[string]ledger.Asset),
		entries:   make(map[int64]ledger.Entry),
		orders:    make(map[string]fulfillment.Order),
		demos:     make(map[string]fulfillment.Demo),
		sequences: make(map[string]int64),
	}}
}

// =============================================================================
// ASSETS
// =============================================================================

func (t *tables) GetAsset(_ context.Context, serial string) (*ledger.Asset, error) {
	a, ok := t.assets[ledger.NormalizeSerial(serial)]
	if !ok {
		return nil, nil
	}
	copied := a
	return &copied, nil
}

func (t *tables) PutAsset(_ context.Context, a ledger.Asset) error {
	t.assets[a.Key()] = a
	return nil
}

func (t *tables) UpdateAssetStatus(_ context.Context, serial string, status ledger.AssetStatus, location string) error {
	key := ledger.NormalizeSerial(serial)
	a, ok := t.assets[key]
	if !ok {
		return &ledger.NotFoundError{Kind: "asset", Key: serial}
	}
	a.Status = status
	if location != "" {
		a.Location = location
	}
	a.UpdatedAt = time.Now().UTC()
	t.assets[key] = a
	return nil
}

func (t *tables) UpdateAssetStatusIf(_ context.Context, serial string, expect, next ledger.AssetStatus, location string) error {
	key := ledger.NormalizeSerial(serial)
	a, ok := t.assets[key]
	if !ok {
		return &ledger.NotFoundError{Kind: "asset", Key: serial}
	}
	if a.Status != expect {
		return &ledger.ConflictError{Serial: serial, Expected: expect, Actual: a.Status}
	}
	a.Status = next
	if location != "" {
		a.Location = location
	}
	a.UpdatedAt = time.Now().UTC()
	t.assets[key] = a
	return nil
}

func (t *tables) ListAssets(_ context.Context) ([]ledger.Asset, error) {
	out := make([]ledger.Asset, 0, len(t.assets))
	for _, a := range t.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (t *tables) DeleteAsset(_ context.Context, serial string) error {
	key := ledger.NormalizeSerial(serial)
	if _, ok := t.assets[key]; !ok {
		return &ledger.NotFoundError{Kind: "asset", Key: serial}
	}
	delete(t.assets, key)
	return nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (t *tables) AppendEntry(_ context.Context, e ledger.Entry) error {
	return t.append(e)
}

func (t *tables) AppendEntries(_ context.Context, es []ledger.Entry) error {
	for _, e := range es {
		if _, exists := t.entries[e.TransactionID]; exists {
			return ledger.ErrDuplicateTransactionID
		}
	}
	for _, e := range es {
		if err := t.append(e); err != nil {
			return err
		}
	}
	return nil
}

func (t *tables) append(e ledger.Entry) error {
	if _, exists := t.entries[e.TransactionID]; exists {
		return ledger.ErrDuplicateTransactionID
	}
	if e.Key == "" {
		e.Key = uuid.NewString()
	}
	t.entries[e.TransactionID] = e
	return nil
}

func (t *tables) EntriesBySerial(_ context.Context, serial string) ([]ledger.Entry, error) {
	key := ledger.NormalizeSerial(serial)
	var out []ledger.Entry
	for _, e := range t.entries {
		if ledger.NormalizeSerial(e.SerialNumber) == key {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (t *tables) EntriesByTransactionIDs(_ context.Context, ids []int64) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := t.entries[id]; ok {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (t *tables) ListEntries(_ context.Context) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (t *tables) AttachEntryMetadata(_ context.Context, transactionID int64, meta ledger.EntryMetadata) error {
	e, ok := t.entries[transactionID]
	if !ok {
		return &ledger.NotFoundError{Kind: "entry", Key: strconv.FormatInt(transactionID, 10)}
	}
	if meta.InvoiceNumber != "" {
		e.InvoiceNumber = meta.InvoiceNumber
	}
	if meta.DeliveryDate != nil {
		e.DeliveryDate = meta.DeliveryDate
	}
	if meta.ReturnedFromDemo != nil {
		e.ReturnedFromDemo = *meta.ReturnedFromDemo
	}
	t.entries[transactionID] = e
	return nil
}

func (t *tables) DeleteEntries(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(t.entries, id)
	}
	return nil
}

func sortEntries(es []ledger.Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].TransactionID < es[j].TransactionID })
}

// =============================================================================
// SEQUENCES
// =============================================================================

func (t *tables) NextSequence(_ context.Context, name string, n int64) (int64, error) {
	current := t.sequences[name]
	t.sequences[name] = current + n
	return current + 1, nil
}

// =============================================================================
// ORDERS
// =============================================================================

func (t *tables) GetOrder(_ context.Context, orderNumber string) (*fulfillment.Order, error) {
	o, ok := t.orders[orderNumber]
	if !ok {
		return nil, nil
	}
	copied := o
	copied.TransactionIDs = append([]int64(nil), o.TransactionIDs...)
	return &copied, nil
}

func (t *tables) PutOrder(_ context.Context, o fulfillment.Order) error {
	o.TransactionIDs = append([]int64(nil), o.TransactionIDs...)
	t.orders[o.OrderNumber] = o
	return nil
}

func (t *tables) DeleteOrder(_ context.Context, orderNumber string) error {
	if _, ok := t.orders[orderNumber]; !ok {
		return &ledger.NotFoundError{Kind: "order", Key: orderNumber}
	}
	delete(t.orders, orderNumber)
	return nil
}

func (t *tables) ListOrders(_ context.Context) ([]fulfillment.Order, error) {
	out := make([]fulfillment.Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, nil
}

// =============================================================================
// DEMOS
// =============================================================================

func (t *tables) GetDemo(_ context.Context, demoNumber string) (*fulfillment.Demo, error) {
	d, ok := t.demos[demoNumber]
	if !ok {
		return nil, nil
	}
	copied := d
	copied.TransactionIDs = append([]int64(nil), d.TransactionIDs...)
	copied.ReturnedTransactionIDs = append([]int64(nil), d.ReturnedTransactionIDs...)
	return &copied, nil
}

func (t *tables) PutDemo(_ context.Context, d fulfillment.Demo) error {
	d.TransactionIDs = append([]int64(nil), d.TransactionIDs...)
	d.ReturnedTransactionIDs = append([]int64(nil), d.ReturnedTransactionIDs...)
	t.demos[d.DemoNumber] = d
	return nil
}

func (t *tables) ListDemos(_ context.Context) ([]fulfillment.Demo, error) {
	out := make([]fulfillment.Demo, 0, len(t.demos))
	for _, d := range t.demos {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DemoNumber < out[j].DemoNumber })
	return out, nil
}

// =============================================================================
// LOCKING WRAPPERS
// =============================================================================

func (s *Store) GetAsset(ctx context.Context, serial string) (*ledger.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.GetAsset(ctx, serial)
}

func (s *Store) PutAsset(ctx context.Context, a ledger.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.PutAsset(ctx, a)
}

func (s *Store) UpdateAssetStatus(ctx context.Context, serial string, status ledger.AssetStatus, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.UpdateAssetStatus(ctx, serial, status, location)
}

func (s *Store) UpdateAssetStatusIf(ctx context.Context, serial string, expect, next ledger.AssetStatus, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.UpdateAssetStatusIf(ctx, serial, expect, next, location)
}

func (s *Store) ListAssets(ctx context.Context) ([]ledger.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.ListAssets(ctx)
}

func (s *Store) DeleteAsset(ctx context.Context, serial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.DeleteAsset(ctx, serial)
}

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.AppendEntry(ctx, e)
}

func (s *Store) AppendEntries(ctx context.Context, es []ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.AppendEntries(ctx, es)
}

func (s *Store) EntriesBySerial(ctx context.Context, serial string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.EntriesBySerial(ctx, serial)
}

func (s *Store) EntriesByTransactionIDs(ctx context.Context, ids []int64) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.EntriesByTransactionIDs(ctx, ids)
}

func (s *Store) ListEntries(ctx context.Context) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.ListEntries(ctx)
}

func (s *Store) AttachEntryMetadata(ctx context.Context, transactionID int64, meta ledger.EntryMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.AttachEntryMetadata(ctx, transactionID, meta)
}

func (s *Store) DeleteEntries(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.DeleteEntries(ctx, ids)
}

func (s *Store) NextSequence(ctx context.Context, name string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.NextSequence(ctx, name, n)
}

func (s *Store) GetOrder(ctx context.Context, orderNumber string) (*fulfillment.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.GetOrder(ctx, orderNumber)
}

func (s *Store) PutOrder(ctx context.Context, o fulfillment.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.PutOrder(ctx, o)
}

func (s *Store) DeleteOrder(ctx context.Context, orderNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.DeleteOrder(ctx, orderNumber)
}

func (s *Store) ListOrders(ctx context.Context) ([]fulfillment.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.ListOrders(ctx)
}

func (s *Store) GetDemo(ctx context.Context, demoNumber string) (*fulfillment.Demo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.GetDemo(ctx, demoNumber)
}

func (s *Store) PutDemo(ctx context.Context, d fulfillment.Demo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.PutDemo(ctx, d)
}

func (s *Store) ListDemos(ctx context.Context) ([]fulfillment.Demo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t.ListDemos(ctx)
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback
// =============================================================================

// WithTx executes fn as one atomic batch. The write lock is held for the
// whole batch and fn gets the unlocked tables directly, so concurrent
// callers block until the batch commits and can never observe a
// half-applied state. A failed batch restores the snapshot taken before
// it ran.
func (s *Store) WithTx(_ context.Context, fn func(fulfillment.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.t.snapshot()
	if err := fn(&s.t); err != nil {
		s.t.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	assets    map[string]ledger.Asset
	entries   map[int64]ledger.Entry
	orders    map[string]fulfillment.Order
	demos     map[string]fulfillment.Demo
	sequences map[string]int64
}

func (t *tables) snapshot() snapshot {
	snap := snapshot{
		assets:    make(map[string]ledger.Asset, len(t.assets)),
		entries:   make(map[int64]ledger.Entry, len(t.entries)),
		orders:    make(map[string]fulfillment.Order, len(t.orders)),
		demos:     make(map[string]fulfillment.Demo, len(t.demos)),
		sequences: make(map[string]int64, len(t.sequences)),
	}
	for k, v := range t.assets {
		snap.assets[k] = v
	}
	for k, v := range t.entries {
		snap.entries[k] = v
	}
	for k, v := range t.orders {
		snap.orders[k] = v
	}
	for k, v := range t.demos {
		snap.demos[k] = v
	}
	for k, v := range t.sequences {
		snap.sequences[k] = v
	}
	return snap
}

func (t *tables) restore(snap snapshot) {
	t.assets = snap.assets
	t.entries = snap.entries
	t.orders = snap.orders
	t.demos = snap.demos
	t.sequences = snap.sequences
}
