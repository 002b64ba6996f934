// Native VP dispatcher: for each internal address, a built-in Go validator
// runs in place of guest WASM (spec.md §4.7).
//
// Grounded on core/opcode_dispatcher.go's Register/Dispatch pair — same
// panic-on-collision registration discipline, keyed by internal address
// identifier instead of a 24-bit opcode.
package ledger

import (
	"fmt"
	"log"
	"sync"
)

// NativeVpResult is a validity predicate's yes/no answer.
type NativeVpResult uint8

const (
	VpAccept NativeVpResult = iota
	VpReject
)

// NativeVpFunc validates one transaction's effect on its owning account.
// txData is the transaction's opaque payload, keysChanged the full set of
// keys touched this tx (in first-write order), verifiers the set of
// addresses whose VPs are also running. A non-nil error is not Reject — it
// is a classified failure (spec.md §4.7) that surfaces to the tx result
// unrecovered.
type NativeVpFunc func(ctx *VpContext, txData []byte, keysChanged []string, verifiers *VerifierSet) (NativeVpResult, error)

var (
	nativeVpMu    sync.RWMutex
	nativeVpTable = make(map[InternalID]NativeVpFunc)
)

// RegisterNativeVP binds id's validator. It panics on a duplicate
// registration, since two native VPs claiming the same internal address is
// a build-time programming error, not a recoverable runtime condition.
func RegisterNativeVP(id InternalID, fn NativeVpFunc) {
	nativeVpMu.Lock()
	defer nativeVpMu.Unlock()
	if _, exists := nativeVpTable[id]; exists {
		log.Panicf("ledger: native VP collision: %q already registered", id)
	}
	nativeVpTable[id] = fn
}

// LookupNativeVP returns id's validator, if any is registered.
func LookupNativeVP(id InternalID) (NativeVpFunc, bool) {
	nativeVpMu.RLock()
	defer nativeVpMu.RUnlock()
	fn, ok := nativeVpTable[id]
	return fn, ok
}

// DispatchNativeVP looks up and invokes addr's native validator. It is an
// error to call this for an address with no registered native VP; the
// runtime is expected to check IsEstablishedOrInternal/lookup before
// falling back to guest-WASM evaluation.
func DispatchNativeVP(ctx *VpContext, addr Address, txData []byte, keysChanged []string, verifiers *VerifierSet) (NativeVpResult, error) {
	if addr.Kind != AddressInternal {
		return VpReject, fmt.Errorf("ledger: DispatchNativeVP called on non-internal address %s", addr)
	}
	fn, ok := LookupNativeVP(addr.internal)
	if !ok {
		return VpReject, fmt.Errorf("ledger: no native VP registered for internal address %s", addr)
	}
	return fn(ctx, txData, keysChanged, verifiers)
}
