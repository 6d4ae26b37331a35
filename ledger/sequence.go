/*
sequence.go - Monotonic ID allocation

PURPOSE:

	Produces the dense, strictly increasing integer IDs that ledger entries
	depend on. Two independent sequences exist:
	  transaction_id  - one per ledger entry, globally unique
	  entry_no        - one per order creation, scoped to Stock_Out entries

HISTORY:

	The original system allocated IDs by reading max(existing) and adding
	one locally. That read-then-increment is a race: two concurrent callers
	can observe the same maximum and produce colliding IDs. The allocator
	here keeps the externally observed semantics (IDs start at 1, dense,
	strictly increasing, batches contiguous) but is backed by an atomic
	counter primitive in the store, so concurrent callers always receive
	disjoint ranges.

CONTRACT:

	Next(name)        -> n        (1 + previously issued maximum)
	NextBatch(name,k) -> [n..n+k-1], contiguous

SEE ALSO:
  - store.go: SequenceStore primitive
  - store/sqlite: single-statement counter UPDATE
*/
package ledger

import (
	"context"
	"fmt"
)

// SequenceStore is the atomic counter primitive backing the allocator.
// Reserving n IDs must be a single atomic operation in the store.
type SequenceStore interface {
	// NextSequence atomically advances the named counter by n and returns
	// the first ID of the reserved range. The first call on a fresh
	// counter returns 1.
	NextSequence(ctx context.Context, name string, n int64) (int64, error)
}

// Allocator hands out transaction IDs and entry numbers.
type Allocator struct {
	Seq SequenceStore
}

func NewAllocator(seq SequenceStore) *Allocator {
	return &Allocator{Seq: seq}
}

// Next returns the next ID in the named sequence.
func (a *Allocator) Next(ctx context.Context, name string) (int64, error) {
	return a.Seq.NextSequence(ctx, name, 1)
}

// NextBatch reserves a contiguous block of n IDs and returns all of them.
func (a *Allocator) NextBatch(ctx context.Context, name string, n int) ([]int64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", n)
	}
	first, err := a.Seq.NextSequence(ctx, name, int64(n))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = first + int64(i)
	}
	return ids, nil
}
