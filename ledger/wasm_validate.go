// Untrusted-WASM validation gate (spec.md §4.8): any code crossing from
// guest input into storage as a validity predicate is structurally
// validated before it is staged, at a gas cost proportional to its length.
//
// Grounded on core/contracts.go's CompileWASM, which treats an offline
// wat2wasm/compiler step as the thing that turns untrusted source into a
// byte-blob the chain will accept. That shell-out is not reusable here —
// guest code already arrives as compiled WASM bytes, there is no .wat
// source to invoke a compiler on (see SPEC_FULL.md's dropped-dependency
// note). wasmer.NewModule's own parse/validate step serves the same
// purpose: it rejects malformed modules, disallowed sections, and type
// errors without ever executing the code.
package ledger

import (
	"github.com/wasmerio/wasmer-go/wasmer"
)

var validationEngine = wasmer.NewEngine()

// validateVpWasm charges WasmValidationGasPerByte per byte of code, then
// asks wasmer to compile (not instantiate, not run) it. A parse/validate
// failure becomes a VpWasmError tagged with which call site rejected it.
func validateVpWasm(gas *GasMeter, code []byte, kind InvalidVpWasmKind) error {
	if err := gas.Add(uint64(len(code)) * WasmValidationGasPerByte); err != nil {
		return err
	}
	store := wasmer.NewStore(validationEngine)
	if _, err := wasmer.NewModule(store, code); err != nil {
		return &VpWasmError{Kind: kind, Detail: err.Error()}
	}
	return nil
}
