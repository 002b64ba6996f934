// Error taxonomy (spec.md §7). Modeled 1:1 on
// original_source/shared/src/vm/host_env.rs's TxRuntimeError enum; wrapped
// with fmt.Errorf("...: %w", err) the way core/virtual_machine.go and
// core/contracts.go wrap their own failures.
package ledger

import "fmt"

// Sentinel errors tested with errors.Is by callers that need to distinguish
// failure categories without string matching.
var (
	// ErrOutOfGas is defined in gas.go (terminal for the current tx/vp).

	// ErrUnknownAddress: a write touched an address with no known validity
	// predicate and no InitAccount entry in this tx.
	ErrUnknownAddress = fmt.Errorf("unknown address storage modification")

	// ErrInvalidVpWasm: guest WASM failed structural/type validation on
	// init_account or update_validity_predicate.
	ErrInvalidVpWasm = fmt.Errorf("invalid validity predicate wasm")

	// ErrStorageConflict: a write log operation conflicts with an existing
	// staged entry (delete of a VP key, re-init of a known account).
	ErrStorageConflict = fmt.Errorf("storage modification conflict")

	// ErrStorageBackend: the underlying Storage implementation failed.
	ErrStorageBackend = fmt.Errorf("storage backend error")

	// ErrStorageData: a stored key could not be parsed back into a Key.
	ErrStorageData = fmt.Errorf("storage data error")

	// ErrEncoding: a value failed to encode/decode against its expected
	// wire shape.
	ErrEncoding = fmt.Errorf("encoding error")

	// ErrMemory: a guest-supplied pointer/length pair fell outside linear
	// memory bounds.
	ErrMemory = fmt.Errorf("memory error")

	// ErrNumericConversion: a guest-supplied numeric value could not be
	// converted to the host type it addresses (e.g. negative length).
	ErrNumericConversion = fmt.Errorf("numeric conversion error")
)

// VpRejected is not an error in the Go sense — it is the ordinary "no" a
// validity predicate returns — but is modeled as a distinguished value,
// separate from the host-error sentinels above. runtime.go does not produce
// it; RunVPs reports a rejection as the rejecting address instead.
type VpRejected struct {
	Address Address
	Reason  string
}

func (r *VpRejected) Error() string {
	return fmt.Sprintf("validity predicate for %s rejected: %s", r.Address, r.Reason)
}

// InvalidVpWasmKind distinguishes the two call sites that can reject guest
// WASM (spec.md §7).
type InvalidVpWasmKind uint8

const (
	InvalidVpWasmOnUpdate InvalidVpWasmKind = iota
	InvalidVpWasmOnInitAccount
)

// VpWasmError reports which operation rejected invalid guest WASM.
type VpWasmError struct {
	Kind   InvalidVpWasmKind
	Detail string
}

func (e *VpWasmError) Error() string {
	switch e.Kind {
	case InvalidVpWasmOnInitAccount:
		return fmt.Sprintf("%s: init_account: %s", ErrInvalidVpWasm, e.Detail)
	default:
		return fmt.Sprintf("%s: update_validity_predicate: %s", ErrInvalidVpWasm, e.Detail)
	}
}

func (e *VpWasmError) Unwrap() error { return ErrInvalidVpWasm }

// IbcErrorKind enumerates the IBC-specific failure leaves (spec.md §7).
type IbcErrorKind uint8

const (
	IbcInvalidKey IbcErrorKind = iota
	IbcInvalidStateChange
	IbcInvalidClient
	IbcInvalidHeader
	IbcProofVerificationFailure
	IbcDecodingTxData
	IbcDecodingIbcData
	IbcInvalidConnection
	IbcInvalidChannel
	IbcInvalidPort
	IbcInvalidPacket
	IbcInvalidSequence
)

func (k IbcErrorKind) String() string {
	switch k {
	case IbcInvalidKey:
		return "InvalidKey"
	case IbcInvalidStateChange:
		return "InvalidStateChange"
	case IbcInvalidClient:
		return "InvalidClient"
	case IbcInvalidHeader:
		return "InvalidHeader"
	case IbcProofVerificationFailure:
		return "ProofVerificationFailure"
	case IbcDecodingTxData:
		return "DecodingTxData"
	case IbcDecodingIbcData:
		return "DecodingIbcData"
	case IbcInvalidConnection:
		return "InvalidConnection"
	case IbcInvalidChannel:
		return "InvalidChannel"
	case IbcInvalidPort:
		return "InvalidPort"
	case IbcInvalidPacket:
		return "InvalidPacket"
	case IbcInvalidSequence:
		return "InvalidSequence"
	default:
		return "Unknown"
	}
}

// IbcError is the leaf error type the IBC native VP returns. runtime.go's
// RunVPs handles it like any other VP error: the tx is not accepted and the
// error is reported in TxResult.Err, with no rejecting address recorded.
type IbcError struct {
	Kind   IbcErrorKind
	Detail string
}

func (e *IbcError) Error() string {
	return fmt.Sprintf("ibc %s: %s", e.Kind, e.Detail)
}
