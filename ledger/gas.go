// Gas schedule and metering.
//
// Grounded on core/gas_table.go (concurrent-safe GasCost lookup table,
// DefaultGasCost fallback) and core/opcode_dispatcher.go (Register/Dispatch,
// pre-charge-then-invoke convention) — the catalogue here replaces
// Synnergy's business-function opcodes with the tx/vp host calls of
// spec.md §§4.5-4.6.
package ledger

import (
	"fmt"
	"log"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Gas schedule constants recognized by spec.md §6.
const (
	// VerifyTxSigGasCost is the fixed cost of one Ed25519 signature check.
	VerifyTxSigGasCost uint64 = 1000
	// WasmValidationGasPerByte is charged per byte of guest WASM validated
	// on init_account / update_validity_predicate.
	WasmValidationGasPerByte uint64 = 1
	// GasPerHostCallByte is charged per byte crossing the host/guest
	// memory boundary (pointer/length arguments, result-buffer fetches).
	GasPerHostCallByte uint64 = 1
	// GasPerStorageByte is charged per byte read from or written to
	// Storage or the write log.
	GasPerStorageByte uint64 = 1
	// DefaultHostCallGasCost is charged for any host call missing from the
	// catalogue below — deliberately punitive, the way
	// core/gas_table.go's DefaultGasCost discourages un-priced opcodes.
	DefaultHostCallGasCost uint64 = 10_000
)

func storageReadGas(valueLen int) uint64 {
	return uint64(valueLen) * GasPerStorageByte
}

// HostCall identifies one tx or vp ABI entry point for gas pricing and
// metrics labeling, playing the role core/opcode_dispatcher.go's Opcode
// plays for Synnergy's business functions.
type HostCall string

// Tx host ABI calls (spec.md §4.5).
const (
	CallHasKey                    HostCall = "tx_has_key"
	CallRead                      HostCall = "tx_read"
	CallIterPrefix                HostCall = "tx_iter_prefix"
	CallIterNext                  HostCall = "tx_iter_next"
	CallWrite                     HostCall = "tx_write"
	CallDelete                    HostCall = "tx_delete"
	CallInitAccount               HostCall = "tx_init_account"
	CallUpdateValidityPredicate   HostCall = "tx_update_validity_predicate"
	CallInsertVerifier            HostCall = "tx_insert_verifier"
	CallGetChainID                HostCall = "get_chain_id"
	CallGetBlockHeight            HostCall = "get_block_height"
	CallGetBlockHash              HostCall = "get_block_hash"
	CallGetBlockEpoch             HostCall = "get_block_epoch"
	CallLogString                 HostCall = "log_string"
)

// Vp host ABI calls (spec.md §4.6).
const (
	CallReadPre           HostCall = "vp_read_pre"
	CallReadPost          HostCall = "vp_read_post"
	CallHasKeyPre         HostCall = "vp_has_key_pre"
	CallHasKeyPost        HostCall = "vp_has_key_post"
	CallIterPrefixVp      HostCall = "vp_iter_prefix"
	CallIterPreNext       HostCall = "vp_iter_pre_next"
	CallIterPostNext      HostCall = "vp_iter_post_next"
	CallVerifyTxSignature HostCall = "vp_verify_tx_signature"
	CallEval              HostCall = "vp_eval"
)

// hostCallGasTable holds the base gas cost for each host call; dynamic
// portions (storage-length-proportional, byte-transfer-proportional) are
// added on top by the call site, exactly as core/gas_table.go documents for
// its own opcodes.
var hostCallGasTable = map[HostCall]uint64{
	CallHasKey:                  1,
	CallRead:                    1,
	CallIterPrefix:              5,
	CallIterNext:                1,
	CallWrite:                   5,
	CallDelete:                  5,
	CallInitAccount:             50,
	CallUpdateValidityPredicate: 50,
	CallInsertVerifier:          1,
	CallGetChainID:              1,
	CallGetBlockHeight:          1,
	CallGetBlockHash:            1,
	CallGetBlockEpoch:           1,
	CallLogString:               1,

	CallReadPre:           1,
	CallReadPost:          1,
	CallHasKeyPre:         1,
	CallHasKeyPost:        1,
	CallIterPrefixVp:      5,
	CallIterPreNext:       1,
	CallIterPostNext:      1,
	CallVerifyTxSignature: VerifyTxSigGasCost,
	CallEval:              10,
}

var gasTableMu sync.RWMutex

// BaseCost returns the base gas cost of a host call. A call missing from the
// catalogue is charged DefaultHostCallGasCost and logged on every lookup.
func (c HostCall) BaseCost() uint64 {
	gasTableMu.RLock()
	defer gasTableMu.RUnlock()
	if cost, ok := hostCallGasTable[c]; ok {
		return cost
	}
	log.Printf("ledger: gas table missing cost for host call %q - charging default", c)
	return DefaultHostCallGasCost
}

// --------------------------------------------------------------------
// GasMeter
// --------------------------------------------------------------------

// ErrOutOfGas is returned once a GasMeter's ceiling would be exceeded. It is
// terminal for the current execution (tx or vp), per spec.md §4.2.
var ErrOutOfGas = fmt.Errorf("out of gas")

// GasMeter is a monotonically increasing counter with a hard ceiling.
// BlockGasMeter and VpGasMeter (spec.md §4.2) share this one implementation;
// only the ceiling and the metrics label differ.
type GasMeter struct {
	mu     sync.Mutex
	used   uint64
	limit  uint64
	failed bool // sticky once true: every later Add keeps failing (spec.md §4.2, GM-1)
	kind   string // "tx" or "vp", used only for metrics labeling
}

// NewBlockGasMeter constructs the gas meter spanning one block of
// transactions.
func NewBlockGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit, kind: "tx"}
}

// NewVpGasMeter constructs the gas meter spanning one VP invocation.
func NewVpGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit, kind: "vp"}
}

// Add charges n units of gas, failing once the ceiling would be exceeded.
// GM-1: the call at which the cumulative sum first exceeds the ceiling
// returns ErrOutOfGas and leaves `used` unchanged; exhaustion latches, so
// every later call on this meter keeps failing too, no matter how small —
// spec.md §4.2's "failure is terminal for the current execution".
func (g *GasMeter) Add(n uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failed {
		return ErrOutOfGas
	}
	if g.used+n > g.limit {
		g.failed = true
		gasExhaustedTotal.WithLabelValues(g.kind).Inc()
		return ErrOutOfGas
	}
	g.used += n
	gasConsumedTotal.WithLabelValues(g.kind).Add(float64(n))
	return nil
}

// Charge looks up call's base cost and adds it, the way
// core/opcode_dispatcher.go's Dispatch pre-charges gas before invoking a
// handler.
func (g *GasMeter) Charge(call HostCall) error {
	return g.Add(call.BaseCost())
}

// Used returns the gas consumed so far.
func (g *GasMeter) Used() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

// Remaining returns the gas remaining before the ceiling is hit.
func (g *GasMeter) Remaining() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit - g.used
}

// --------------------------------------------------------------------
// Prometheus metrics (ambient observability, SPEC_FULL.md §3)
// --------------------------------------------------------------------

var (
	gasConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "gas_consumed_total",
		Help:      "Cumulative gas consumed, labeled by meter kind (tx/vp).",
	}, []string{"kind"})

	gasExhaustedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "gas_exhausted_total",
		Help:      "Count of host calls rejected with out-of-gas, labeled by meter kind (tx/vp).",
	}, []string{"kind"})
)

// RegisterMetrics registers the package's Prometheus collectors with reg.
// Nothing in this module calls it, cmd/vmhost included; the counters are
// updated regardless and are exported only once a caller registers them.
func RegisterMetrics(reg prometheus.Registerer) error {
	if err := reg.Register(gasConsumedTotal); err != nil {
		return err
	}
	return reg.Register(gasExhaustedTotal)
}
