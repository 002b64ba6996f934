// RunTx, RunVPs, and CommitBlock: the glue that ties TxContext, VpContext,
// WriteLog, and the native VP dispatcher into one transaction's full
// lifecycle (spec.md §5).
//
// Grounded on core/virtual_machine.go's main()/Call glue that selects a VM
// and runs it; the VP fan-out follows spec.md §5's "multi-threaded across
// distinct VPs" using goroutines + a plain sync.WaitGroup, the same
// mutex-guarded-state idiom core/virtual_machine.go's memState uses rather
// than reaching for golang.org/x/sync/errgroup.
package ledger

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// TxResult reports the outcome of one RunTx call.
type TxResult struct {
	Accepted     bool
	RejectedBy   Address       // zero value when Accepted or when a host error aborted the tx
	GasUsed      uint64
	Err          error
	ChangedKeys  []string
}

var runtimeEngine = wasmer.NewEngine()

// RunTx executes tx's guest code against storage/wl/gasMeter/gen, then (if
// the guest succeeded) evaluates every address in the resulting verifier
// set's validity predicate before committing anything to block-scope.
//
// Tx-scope is committed to block-scope only once every VP accepts;
// rejection or a host error drops tx-scope entirely, per spec.md §4.1's
// "aborting a tx drops tx-scope silently".
func RunTx(storage Storage, wl *WriteLog, gasMeter *GasMeter, gen *AddressGenerator, tx Tx, vpGasLimit uint64, log *logrus.Logger) TxResult {
	txCtx := NewTxContext(storage, wl, gasMeter, gen, tx)

	if err := executeTxGuest(txCtx, tx.Code); err != nil {
		wl.DropTx()
		log.WithError(err).Debug("tx guest execution failed")
		return TxResult{Accepted: false, GasUsed: gasMeter.Used(), Err: err}
	}

	changed := txCtx.ChangedKeys()
	verifiers := txCtx.Verifiers

	rejectedBy, err := RunVPs(storage, wl, verifiers, tx.Data, changed, vpGasLimit, log)
	if err != nil {
		wl.DropTx()
		return TxResult{Accepted: false, GasUsed: gasMeter.Used(), Err: err}
	}
	if rejectedBy != nil {
		wl.DropTx()
		return TxResult{Accepted: false, RejectedBy: *rejectedBy, GasUsed: gasMeter.Used()}
	}

	wl.CommitTx()
	return TxResult{Accepted: true, GasUsed: gasMeter.Used(), ChangedKeys: changed}
}

// executeTxGuest instantiates code as a wasm module and runs its exported
// "_start", wiring TxContext's host ABI as env imports — mirroring
// core/virtual_machine.go's HeavyVM.Execute.
func executeTxGuest(txCtx *TxContext, code []byte) error {
	store := wasmer.NewStore(runtimeEngine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEncoding, err)
	}
	imports := txCtx.RegisterImports(store)
	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEncoding, err)
	}
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return fmt.Errorf("%w: wasm memory export missing", ErrMemory)
	}
	txCtx.BindMemory(newWasmMemory(mem))

	start, err := instance.Exports.GetFunction("_start")
	if err != nil {
		return fmt.Errorf("%w: _start function required", ErrEncoding)
	}
	_, err = start()
	return err
}

// RunVPs fans out VP evaluation across every address in verifiers
// concurrently (spec.md §5: "multi-threaded across distinct VPs; each owns
// its own context"). Storage/WriteLog stay read-only for the whole phase.
// Returns the address of the first VP to reject, if any; a nil result with
// a non-nil error means a host-level failure (not a rejection) occurred.
func RunVPs(storage Storage, wl *WriteLog, verifiers *VerifierSet, txData []byte, changedKeys []string, vpGasLimit uint64, log *logrus.Logger) (*Address, error) {
	addrs := verifiers.Addresses()
	if len(addrs) == 0 {
		return nil, nil
	}
	if vpGasLimit == 0 {
		vpGasLimit = defaultVpGasLimit
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		rejectedBy *Address
		firstErr   error
	)

	for _, addr := range addrs {
		wg.Add(1)
		go func(addr Address) {
			defer wg.Done()
			result, err := evaluateOneVP(storage, wl, addr, txData, changedKeys, verifiers, vpGasLimit)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("vp %s: %w", addr, err)
				}
				return
			}
			if result == VpReject && rejectedBy == nil {
				a := addr
				rejectedBy = &a
			}
		}(addr)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return rejectedBy, nil
}

// evaluateOneVP builds a fresh VpGasMeter and VpContext for addr and runs
// its validator: the native dispatcher for internal addresses, guest WASM
// loaded from the VP key for established addresses. Implicit addresses
// have no stored VP and always accept (spec.md §3).
func evaluateOneVP(storage Storage, wl *WriteLog, addr Address, txData []byte, changedKeys []string, verifiers *VerifierSet, vpGasLimit uint64) (NativeVpResult, error) {
	if addr.Kind == AddressImplicit {
		return VpAccept, nil
	}

	gasMeter := NewVpGasMeter(vpGasLimit)
	vpCtx := NewVpContext(storage, wl, gasMeter, verifiers, Tx{Data: txData})
	vpCtx.Evaluator = func(vpCode, input []byte, caller *VpContext) (bool, error) {
		// The nested guest binds its own memory; restore the caller's on return.
		callerMem := caller.Mem
		defer func() { caller.Mem = callerMem }()
		res, err := executeVpGuest(caller, vpCode)
		return res == VpAccept, err
	}

	if addr.Kind == AddressInternal {
		return DispatchNativeVP(vpCtx, addr, txData, changedKeys, verifiers)
	}

	vpKey := VPKey(addr)
	code, present, _ := wl.ReadPre(vpKey, storage)
	if !present {
		return VpReject, fmt.Errorf("%w: %s has no stored validity predicate", ErrStorageData, addr)
	}
	res, err := executeVpGuest(vpCtx, code)
	return res, err
}

// defaultVpGasLimit is the fallback VP gas ceiling when a caller passes 0
// (e.g. cmd/vmhost's hostConfig.VPGas left unset). Nested eval calls share
// whichever budget the top-level invocation was given rather than getting
// their own (Eval-1).
const defaultVpGasLimit uint64 = 10_000_000

// executeVpGuest instantiates vpCode and runs its exported "_start",
// treating its return value as the VP's answer. Guest modules signal
// rejection by trapping or by returning an i32 zero from "_start"; anything
// else is acceptance.
func executeVpGuest(vpCtx *VpContext, vpCode []byte) (NativeVpResult, error) {
	store := wasmer.NewStore(runtimeEngine)
	mod, err := wasmer.NewModule(store, vpCode)
	if err != nil {
		return VpReject, fmt.Errorf("%w: %s", ErrEncoding, err)
	}
	imports := vpCtx.RegisterImports(store)
	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return VpReject, fmt.Errorf("%w: %s", ErrEncoding, err)
	}
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return VpReject, fmt.Errorf("%w: wasm memory export missing", ErrMemory)
	}
	vpCtx.Mem = newWasmMemory(mem)

	start, err := instance.Exports.GetFunction("_start")
	if err != nil {
		return VpReject, fmt.Errorf("%w: _start function required", ErrEncoding)
	}
	ret, err := start()
	if err != nil {
		return VpReject, nil
	}
	if n, ok := ret.(int32); ok && n == 0 {
		return VpReject, nil
	}
	return VpAccept, nil
}

// CommitBlock flushes block-scope into storage, the final step of one
// block's processing once every transaction has run (spec.md §4.1).
func CommitBlock(storage Storage, wl *WriteLog, log *logrus.Logger) error {
	if err := wl.CommitBlock(storage); err != nil {
		log.WithError(err).Error("commit block failed")
		return err
	}
	return nil
}
