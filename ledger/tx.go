package ledger

import (
	"crypto/sha256"
	"encoding/binary"
)

// Tx is the unit of guest execution submitted to the ledger: WASM code
// plus an optional opaque data payload the code may interpret however it
// likes (spec.md §3).
type Tx struct {
	Code []byte
	Data []byte // nil when the tx carries no data payload
}

// Digest returns the canonical message verify_tx_signature checks a
// signature against. No wire encoding for transactions is specified
// (spec.md Non-goals excludes concrete wire formats), so this hashes a
// length-prefixed concatenation of Code and Data, deterministic regardless
// of either field's content.
func (t Tx) Digest() [32]byte {
	buf := make([]byte, 8+len(t.Code)+len(t.Data))
	binary.BigEndian.PutUint64(buf, uint64(len(t.Code)))
	copy(buf[8:], t.Code)
	copy(buf[8+len(t.Code):], t.Data)
	return sha256.Sum256(buf)
}
