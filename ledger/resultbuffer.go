// ResultBuffer implements the single-slot, two-step var-length result
// transfer protocol spec.md §4.4 requires: a host call that produces
// variable-length data writes it here and returns its length; the guest
// then fetches it with a dedicated "take" call sized exactly to fit.
//
// No teacher equivalent — Synnergy's light VMs return Go values directly
// since they predate any guest/host memory boundary. Modeled from
// original_source/shared/src/vm/host_env.rs's tx_result_buffer/
// vp_result_buffer fields.
package ledger

import "sync"

// ResultBuffer holds at most one pending result. Put replaces whatever was
// there; Take returns it and empties the slot, so a second Take without an
// intervening Put sees nothing.
type ResultBuffer struct {
	mu   sync.Mutex
	data []byte
	set  bool
}

// Put stores data as the pending result, overwriting any previous one.
func (b *ResultBuffer) Put(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
	b.set = true
}

// Take returns the pending result and empties the slot.
func (b *ResultBuffer) Take() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.set {
		return nil, false
	}
	d := b.data
	b.data = nil
	b.set = false
	return d, true
}

// Peek reports the pending result's length without consuming it, used by
// the size-query half of the two-step protocol.
func (b *ResultBuffer) Peek() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.set {
		return 0, false
	}
	return len(b.data), true
}
