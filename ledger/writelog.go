// WriteLog: the two-level staged journal a transaction writes into before
// any of it reaches Storage (spec.md §4.1).
//
// No direct teacher equivalent exists — Synnergy's state is mutated
// immediately (core/virtual_machine.go's memState) rather than staged. The
// scope rules below (tx-scope shadows block-scope shadows Storage) follow
// spec.md §4.1; the map/RWMutex shape keeps the teacher's memState idiom.
package ledger

import (
	"fmt"
	"sort"
	"sync"
)

// WriteLogEntryKind tags what a WriteLogEntry records.
type WriteLogEntryKind uint8

const (
	EntryWrite WriteLogEntryKind = iota
	EntryDelete
	EntryInitAccount
)

// WriteLogEntry is one staged modification to a key.
type WriteLogEntry struct {
	Kind  WriteLogEntryKind
	Value []byte // meaningful for EntryWrite and EntryInitAccount (the VP code)
}

// WriteLog stages a transaction's modifications over read-only Storage in
// two levels: tx-scope (rolled back on tx abort) over block-scope (entries
// from earlier transactions in the same block, already committed to the
// log but not yet to Storage).
type WriteLog struct {
	mu    sync.RWMutex
	block map[string]WriteLogEntry
	tx    map[string]WriteLogEntry
	// txKeyOrder preserves insertion order within the current tx scope so
	// CommitTx folds entries into block scope deterministically.
	txKeyOrder []string
}

// NewWriteLog builds an empty write log ready for the first transaction of
// a block.
func NewWriteLog() *WriteLog {
	return &WriteLog{
		block: make(map[string]WriteLogEntry),
		tx:    make(map[string]WriteLogEntry),
	}
}

// Read resolves a key through tx-scope, then block-scope, then storage,
// returning the overlaid value and whether the key is present at all
// (false covers both "never written" and "deleted").
//
// WL-1: a key written earlier in the same tx is visible to a later read in
// that tx without touching Storage.
func (w *WriteLog) Read(k Key, storage Storage) ([]byte, bool, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ks := k.String()
	if e, ok := w.tx[ks]; ok {
		return resolveEntry(e)
	}
	if e, ok := w.block[ks]; ok {
		return resolveEntry(e)
	}
	return storage.Read(k)
}

func resolveEntry(e WriteLogEntry) ([]byte, bool, uint64) {
	switch e.Kind {
	case EntryDelete:
		return nil, false, GasPerHostCallByte
	default:
		return e.Value, true, storageReadGas(len(e.Value))
	}
}

// HasKey mirrors Read's overlay resolution for existence checks.
func (w *WriteLog) HasKey(k Key, storage Storage) (bool, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ks := k.String()
	if e, ok := w.tx[ks]; ok {
		return e.Kind != EntryDelete, GasPerHostCallByte
	}
	if e, ok := w.block[ks]; ok {
		return e.Kind != EntryDelete, GasPerHostCallByte
	}
	return storage.HasKey(k)
}

// ReadPre resolves a key against block-scope (transactions already
// committed earlier in this block) and Storage, but never the current
// tx-scope — the "prior" view a validity predicate's read_pre sees for the
// transaction under evaluation (spec.md §4.6).
func (w *WriteLog) ReadPre(k Key, storage Storage) ([]byte, bool, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.block[k.String()]; ok {
		return resolveEntry(e)
	}
	return storage.Read(k)
}

// HasKeyPre mirrors ReadPre's existence check.
func (w *WriteLog) HasKeyPre(k Key, storage Storage) (bool, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.block[k.String()]; ok {
		return e.Kind != EntryDelete, GasPerHostCallByte
	}
	return storage.HasKey(k)
}

// IterPrefixPre returns the prior-view snapshot for prefix: Storage
// overlaid by block-scope only, per spec.md §4.6's iter_prefix/
// iter_pre_next contract.
func (w *WriteLog) IterPrefixPre(prefix Key, storage Storage) ([]string, [][]byte, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	storageIt, gas := storage.IterPrefix(prefix)
	merged := make(map[string][]byte)
	present := make(map[string]bool)
	for storageIt.Next() {
		merged[storageIt.Key()] = storageIt.Value()
		present[storageIt.Key()] = true
	}
	p := prefix.String()
	for ks, e := range w.block {
		if !strHasPrefix(ks, p) {
			continue
		}
		switch e.Kind {
		case EntryDelete, EntryInitAccount:
			delete(merged, ks)
			present[ks] = false
		default:
			merged[ks] = e.Value
			present[ks] = true
		}
	}
	keys := make([]string, 0, len(merged))
	for ks := range merged {
		if present[ks] {
			keys = append(keys, ks)
		}
	}
	sort.Strings(keys)
	vals := make([][]byte, len(keys))
	for i, ks := range keys {
		vals[i] = merged[ks]
	}
	return keys, vals, gas
}

// Write stages a value write in tx-scope.
//
// Storage modification conflict (spec.md §7): a #validity_predicate key may
// only be populated via InitAccount (new account) or UpdateValidityPredicate
// (replacing an existing one) — a plain Write under that key is rejected,
// the write-side counterpart of Delete's "a VP key is never deleted
// directly" rule below.
func (w *WriteLog) Write(k Key, value []byte) error {
	if _, ok := IsVPKey(k); ok {
		return fmt.Errorf("%w: validity predicate key %q must be written via init_account or update_validity_predicate", ErrStorageConflict, k.String())
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ks := k.String()
	cp := make([]byte, len(value))
	copy(cp, value)
	w.setTx(ks, WriteLogEntry{Kind: EntryWrite, Value: cp})
	return nil
}

// Delete stages a delete in tx-scope.
//
// Storage modification conflict (spec.md §7): deleting a
// #validity_predicate key is always rejected — a VP cannot be removed,
// only replaced via UpdateValidityPredicate.
func (w *WriteLog) Delete(k Key) error {
	if _, ok := IsVPKey(k); ok {
		return fmt.Errorf("%w: cannot delete a validity predicate key %q", ErrStorageConflict, k.String())
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setTx(k.String(), WriteLogEntry{Kind: EntryDelete})
	return nil
}

// InitAccount stages a new established account's initial validity
// predicate. WL-3: any subsequent write under this account's keys in the
// same tx must find this entry, or a later VP dispatch has nothing to run.
//
// Storage modification conflict (spec.md §7): re-initializing an account
// that is already known (present in Storage or already InitAccount'd in
// this write log) is rejected.
func (w *WriteLog) InitAccount(addr Address, vpCode []byte, storage Storage) error {
	k := VPKey(addr)
	w.mu.Lock()
	defer w.mu.Unlock()
	ks := k.String()
	if e, ok := w.tx[ks]; ok && e.Kind == EntryInitAccount {
		return fmt.Errorf("%w: account %s already initialized in this transaction", ErrStorageConflict, addr)
	}
	if e, ok := w.block[ks]; ok && e.Kind != EntryDelete {
		return fmt.Errorf("%w: account %s already initialized earlier in this block", ErrStorageConflict, addr)
	}
	if _, present, _ := storage.Read(k); present {
		return fmt.Errorf("%w: account %s already exists", ErrStorageConflict, addr)
	}
	cp := make([]byte, len(vpCode))
	copy(cp, vpCode)
	w.setTx(ks, WriteLogEntry{Kind: EntryInitAccount, Value: cp})
	return nil
}

// UpdateValidityPredicate stages a replacement VP for an existing account.
func (w *WriteLog) UpdateValidityPredicate(addr Address, vpCode []byte) error {
	k := VPKey(addr)
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make([]byte, len(vpCode))
	copy(cp, vpCode)
	w.setTx(k.String(), WriteLogEntry{Kind: EntryWrite, Value: cp})
	return nil
}

// setTx records an entry in tx-scope, tracking first-seen insertion order.
// Caller must hold w.mu.
func (w *WriteLog) setTx(ks string, e WriteLogEntry) {
	if _, seen := w.tx[ks]; !seen {
		w.txKeyOrder = append(w.txKeyOrder, ks)
	}
	w.tx[ks] = e
}

// ChangedKeys returns every key touched in the current tx scope, in
// first-write order — the set VP dispatch iterates (spec.md §4.1, §5).
func (w *WriteLog) ChangedKeys() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.txKeyOrder))
	copy(out, w.txKeyOrder)
	return out
}

// CommitTx folds tx-scope into block-scope. WL-2: committing is the only
// way tx-scope entries become visible to later transactions in the block,
// and committing twice in a row (without an intervening write) is a no-op
// since the second CommitTx simply folds an already-empty tx-scope.
func (w *WriteLog) CommitTx() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ks := range w.txKeyOrder {
		w.block[ks] = w.tx[ks]
	}
	w.tx = make(map[string]WriteLogEntry)
	w.txKeyOrder = nil
}

// DropTx discards the current tx-scope without folding it into block-scope,
// used when a transaction aborts (e.g. a rejecting VP, or out-of-gas).
func (w *WriteLog) DropTx() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tx = make(map[string]WriteLogEntry)
	w.txKeyOrder = nil
}

// CommitBlock flushes block-scope into storage, in sorted key order for
// determinism, and resets block-scope for the next block. WL-2: applying
// the same already-committed block-scope twice in a row is idempotent
// because the second call operates on an empty map.
func (w *WriteLog) CommitBlock(storage Storage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := make([]string, 0, len(w.block))
	for k := range w.block {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, ks := range keys {
		e := w.block[ks]
		k := ParseKey(ks)
		switch e.Kind {
		case EntryDelete:
			if err := storage.Delete(k); err != nil {
				return fmt.Errorf("commit block: delete %s: %w", ks, err)
			}
		default:
			if err := storage.Write(k, e.Value); err != nil {
				return fmt.Errorf("commit block: write %s: %w", ks, err)
			}
		}
	}
	w.block = make(map[string]WriteLogEntry)
	return nil
}

// IterPrefixOverlay builds the posterior key/value overlay for prefix
// iteration: storage entries under prefix, shadowed by block-scope, then
// tx-scope, with EntryDelete/EntryInitAccount entries hidden from the
// result per IT-1 (iterators snapshot at creation and never see later
// writes or an account's own init as a data value).
func (w *WriteLog) IterPrefixOverlay(prefix Key, storage Storage) ([]string, [][]byte, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	storageIt, gas := storage.IterPrefix(prefix)
	merged := make(map[string][]byte)
	present := make(map[string]bool)
	for storageIt.Next() {
		merged[storageIt.Key()] = storageIt.Value()
		present[storageIt.Key()] = true
	}
	p := prefix.String()
	applyOverlay := func(m map[string]WriteLogEntry) {
		for ks, e := range m {
			if !strHasPrefix(ks, p) {
				continue
			}
			switch e.Kind {
			case EntryDelete, EntryInitAccount:
				delete(merged, ks)
				present[ks] = false
			default:
				merged[ks] = e.Value
				present[ks] = true
			}
		}
	}
	applyOverlay(w.block)
	applyOverlay(w.tx)

	keys := make([]string, 0, len(merged))
	for ks := range merged {
		if present[ks] {
			keys = append(keys, ks)
		}
	}
	sort.Strings(keys)
	vals := make([][]byte, len(keys))
	for i, ks := range keys {
		vals[i] = merged[ks]
	}
	return keys, vals, gas
}
