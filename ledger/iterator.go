// PrefixIterator and the handle table tx/vp contexts use to expose
// iterators across the guest/host boundary (spec.md §4.3).
//
// Grounded on core/virtual_machine.go's memIterator method set, generalized
// into a registry since the wasm ABI can only pass integers, not Go values,
// across the boundary.
package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// PrefixIterator yields (key, value) pairs captured at creation time. It is
// not restartable: once Next returns false, the iterator is exhausted for
// good (IT-1).
type PrefixIterator struct {
	keys   []string
	values [][]byte
	idx    int
	debugID uuid.UUID
}

func newPrefixIterator(keys []string, values [][]byte) *PrefixIterator {
	return &PrefixIterator{keys: keys, values: values, idx: -1, debugID: uuid.New()}
}

// Next advances the iterator, returning false once exhausted.
func (p *PrefixIterator) Next() bool {
	p.idx++
	return p.idx < len(p.keys)
}

// Key returns the current entry's key string. Valid only after Next
// returned true.
func (p *PrefixIterator) Key() string {
	if p.idx < 0 || p.idx >= len(p.keys) {
		return ""
	}
	return p.keys[p.idx]
}

// Value returns the current entry's value. Valid only after Next returned
// true.
func (p *PrefixIterator) Value() []byte {
	if p.idx < 0 || p.idx >= len(p.values) {
		return nil
	}
	return p.values[p.idx]
}

// Exhausted reports whether the iterator has no more entries, the signal
// iter_next maps to its "-1" sentinel return.
func (p *PrefixIterator) Exhausted() bool {
	return p.idx >= len(p.keys)-1 && p.idx >= 0 || len(p.keys) == 0
}

// IteratorRegistry is a handle table: each iter_prefix call registers one
// PrefixIterator and returns a plain uint64 handle the guest echoes back on
// iter_next. Handles are never reused within one tx/vp context's lifetime,
// matching spec.md §4.3's "lazily evaluated, not restartable" contract.
type IteratorRegistry struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*PrefixIterator
}

// NewIteratorRegistry builds an empty registry.
func NewIteratorRegistry() *IteratorRegistry {
	return &IteratorRegistry{entries: make(map[uint64]*PrefixIterator)}
}

// Register stores it and returns its handle.
func (r *IteratorRegistry) Register(it *PrefixIterator) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.entries[h] = it
	return h
}

// Get looks up an iterator by handle.
func (r *IteratorRegistry) Get(handle uint64) (*PrefixIterator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.entries[handle]
	return it, ok
}

// Drop removes an iterator's handle once it is exhausted, bounding the
// registry's memory to iterators still in flight.
func (r *IteratorRegistry) Drop(handle uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, handle)
}
