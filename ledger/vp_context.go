// VpContext is the read-only, dual-view (pre/post) host state a validity
// predicate runs against (spec.md §4.6). It shares its gas meter with any
// VP it evaluates synchronously via eval, so nested evaluation never gets
// a free ride on gas (Eval-1).
//
// Grounded on the same wasmer host-function-registration idiom as
// tx_context.go; verify_tx_signature is core/security.go's Verify narrowed
// to the Ed25519 branch spec.md §4.6 asks for.
package ledger

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// dualIterator bundles the prior-view and posterior-view snapshots
// captured together at iter_prefix time, per IT-1's "snapshot at creation"
// invariant.
type dualIterator struct {
	pre  *PrefixIterator
	post *PrefixIterator
}

// VpContext backs one validity predicate invocation.
type VpContext struct {
	Storage   Storage
	WriteLog  *WriteLog
	Gas       *GasMeter
	Verifiers *VerifierSet
	Tx        Tx

	mu        sync.Mutex
	nextIter  uint64
	iterators map[uint64]*dualIterator

	Result *ResultBuffer
	Mem    Memory

	// Evaluator lets eval invoke a nested VP (spec.md §4.6); runtime.go
	// wires this to its guest-WASM execution path (executeVpGuest); native
	// VPs are not reachable through eval.
	Evaluator func(vpCode []byte, input []byte, vp *VpContext) (bool, error)
}

// NewVpContext wires a fresh read-only context sharing gas with the
// caller, or a fresh VpGasMeter for a top-level VP invocation.
func NewVpContext(storage Storage, wl *WriteLog, gas *GasMeter, verifiers *VerifierSet, tx Tx) *VpContext {
	return &VpContext{
		Storage:   storage,
		WriteLog:  wl,
		Gas:       gas,
		Verifiers: verifiers,
		Tx:        tx,
		iterators: make(map[uint64]*dualIterator),
		Result:    &ResultBuffer{},
		Mem:       NewLinearMemory(),
	}
}

// ReadPre implements read_pre (spec.md §4.6).
func (c *VpContext) ReadPre(k Key) ([]byte, bool, error) {
	if err := c.Gas.Charge(CallReadPre); err != nil {
		return nil, false, err
	}
	val, present, gas := c.WriteLog.ReadPre(k, c.Storage)
	if err := c.Gas.Add(gas); err != nil {
		return nil, false, err
	}
	return val, present, nil
}

// ReadPost implements read_post (spec.md §4.6): the same posterior
// resolution tx_context.go's Read uses.
func (c *VpContext) ReadPost(k Key) ([]byte, bool, error) {
	if err := c.Gas.Charge(CallReadPost); err != nil {
		return nil, false, err
	}
	val, present, gas := c.WriteLog.Read(k, c.Storage)
	if err := c.Gas.Add(gas); err != nil {
		return nil, false, err
	}
	return val, present, nil
}

// HasKeyPre implements has_key_pre.
func (c *VpContext) HasKeyPre(k Key) (bool, error) {
	if err := c.Gas.Charge(CallHasKeyPre); err != nil {
		return false, err
	}
	present, gas := c.WriteLog.HasKeyPre(k, c.Storage)
	if err := c.Gas.Add(gas); err != nil {
		return false, err
	}
	return present, nil
}

// HasKeyPost implements has_key_post.
func (c *VpContext) HasKeyPost(k Key) (bool, error) {
	if err := c.Gas.Charge(CallHasKeyPost); err != nil {
		return false, err
	}
	present, gas := c.WriteLog.HasKey(k, c.Storage)
	if err := c.Gas.Add(gas); err != nil {
		return false, err
	}
	return present, nil
}

// IterPrefix implements iter_prefix (spec.md §4.6): captures both the
// prior-view and posterior-view snapshots of prefix at the same instant.
func (c *VpContext) IterPrefix(prefix Key) (uint64, error) {
	if err := c.Gas.Charge(CallIterPrefixVp); err != nil {
		return 0, err
	}
	preKeys, preVals, preGas := c.WriteLog.IterPrefixPre(prefix, c.Storage)
	if err := c.Gas.Add(preGas); err != nil {
		return 0, err
	}
	postKeys, postVals, postGas := c.WriteLog.IterPrefixOverlay(prefix, c.Storage)
	if err := c.Gas.Add(postGas); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.nextIter
	c.nextIter++
	c.iterators[h] = &dualIterator{
		pre:  newPrefixIterator(preKeys, preVals),
		post: newPrefixIterator(postKeys, postVals),
	}
	return h, nil
}

// IterPreNext implements iter_pre_next.
func (c *VpContext) IterPreNext(handle uint64) (key string, value []byte, ok bool, err error) {
	if err = c.Gas.Charge(CallIterPreNext); err != nil {
		return "", nil, false, err
	}
	c.mu.Lock()
	di, found := c.iterators[handle]
	c.mu.Unlock()
	if !found {
		return "", nil, false, fmt.Errorf("%w: unknown iterator handle %d", ErrMemory, handle)
	}
	if !di.pre.Next() {
		return "", nil, false, nil
	}
	return di.pre.Key(), di.pre.Value(), true, nil
}

// IterPostNext implements iter_post_next.
func (c *VpContext) IterPostNext(handle uint64) (key string, value []byte, ok bool, err error) {
	if err = c.Gas.Charge(CallIterPostNext); err != nil {
		return "", nil, false, err
	}
	c.mu.Lock()
	di, found := c.iterators[handle]
	c.mu.Unlock()
	if !found {
		return "", nil, false, fmt.Errorf("%w: unknown iterator handle %d", ErrMemory, handle)
	}
	if !di.post.Next() {
		return "", nil, false, nil
	}
	return di.post.Key(), di.post.Value(), true, nil
}

func (c *VpContext) GetChainID() (string, error) {
	if err := c.Gas.Charge(CallGetChainID); err != nil {
		return "", err
	}
	return c.Storage.ChainID(), nil
}

func (c *VpContext) GetBlockHeight() (uint64, error) {
	if err := c.Gas.Charge(CallGetBlockHeight); err != nil {
		return 0, err
	}
	return c.Storage.BlockHeight(), nil
}

func (c *VpContext) GetBlockHash() ([32]byte, error) {
	if err := c.Gas.Charge(CallGetBlockHash); err != nil {
		return [32]byte{}, err
	}
	return c.Storage.BlockHash(), nil
}

func (c *VpContext) GetBlockEpoch() (uint64, error) {
	if err := c.Gas.Charge(CallGetBlockEpoch); err != nil {
		return 0, err
	}
	return c.Storage.BlockEpoch(), nil
}

// VerifyTxSignature implements verify_tx_signature (spec.md §4.6): Ed25519
// only, ported from core/security.go's Verify Ed25519 branch.
func (c *VpContext) VerifyTxSignature(pk ed25519.PublicKey, sig []byte) (bool, error) {
	if err := c.Gas.Add(VerifyTxSigGasCost); err != nil {
		return false, err
	}
	digest := c.Tx.Digest()
	return ed25519.Verify(pk, digest[:], sig), nil
}

// Eval implements eval (spec.md §4.6): synchronously invokes a nested VP
// sharing this context's gas meter, so the nested call's consumption is
// indistinguishable from the caller's own (Eval-1). The calling VP is
// logically suspended for the duration, matching the single-threaded
// invariant spec.md §9 calls out.
func (c *VpContext) Eval(vpCode, input []byte) (bool, error) {
	if err := c.Gas.Charge(CallEval); err != nil {
		return false, err
	}
	if c.Evaluator == nil {
		return false, fmt.Errorf("vp eval: no evaluator configured")
	}
	return c.Evaluator(vpCode, input, c)
}

// --------------------------------------------------------------------
// wasmer import registration
// --------------------------------------------------------------------

// RegisterImports converts VpContext's host ABI into wasmer imports under
// the "env" namespace, mirroring TxContext.RegisterImports.
func (c *VpContext) RegisterImports(store *wasmer.Store) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()
	i32 := wasmer.ValueKind(wasmer.I32)
	fn := func(params, results []wasmer.ValueKind, body func(args []wasmer.Value) ([]wasmer.Value, error)) *wasmer.Function {
		return wasmer.NewFunction(store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(params...), wasmer.NewValueTypes(results...)),
			body)
	}
	readArg := func(ptr, ln int32) ([]byte, error) { return c.Mem.Read(uint32(ptr), uint32(ln)) }
	writeArg := func(ptr int32, data []byte) error { return c.Mem.Write(uint32(ptr), data) }

	readPost := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kb, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		val, present, err := c.ReadPost(ParseKey(string(kb)))
		if err != nil || !present {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		c.Result.Put(val)
		return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
	})

	readPre := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kb, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		val, present, err := c.ReadPre(ParseKey(string(kb)))
		if err != nil || !present {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		c.Result.Put(val)
		return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
	})

	hasKeyPre := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kb, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		present, err := c.HasKeyPre(ParseKey(string(kb)))
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if present {
			return []wasmer.Value{wasmer.NewI32(1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	hasKeyPost := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kb, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		present, err := c.HasKeyPost(ParseKey(string(kb)))
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if present {
			return []wasmer.Value{wasmer.NewI32(1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	iterPrefix := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		pb, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		h, err := c.IterPrefix(ParseKey(string(pb)))
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(int32(h))}, nil
	})

	iterPreNext := fn([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		_, value, ok, err := c.IterPreNext(uint64(args[0].I32()))
		if err != nil || !ok {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		c.Result.Put(value)
		return []wasmer.Value{wasmer.NewI32(int32(len(value)))}, nil
	})

	iterPostNext := fn([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		_, value, ok, err := c.IterPostNext(uint64(args[0].I32()))
		if err != nil || !ok {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		c.Result.Put(value)
		return []wasmer.Value{wasmer.NewI32(int32(len(value)))}, nil
	})

	verifyTxSig := fn([]wasmer.ValueKind{i32, i32, i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		pk, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		sig, err := readArg(args[2].I32(), args[3].I32())
		if err != nil {
			return nil, err
		}
		ok, err := c.VerifyTxSignature(ed25519.PublicKey(pk), sig)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if ok {
			return []wasmer.Value{wasmer.NewI32(1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	eval := fn([]wasmer.ValueKind{i32, i32, i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		code, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		input, err := readArg(args[2].I32(), args[3].I32())
		if err != nil {
			return nil, err
		}
		ok, err := c.Eval(code, input)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if ok {
			return []wasmer.Value{wasmer.NewI32(1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	resultBufferLen := fn([]wasmer.ValueKind{}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		n, ok := c.Result.Peek()
		if !ok {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(int32(n))}, nil
	})

	resultBufferFetch := fn([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		data, ok := c.Result.Take()
		if !ok {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := writeArg(args[0].I32(), data); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(data)))}, nil
	})

	getChainID := fn([]wasmer.ValueKind{}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		id, err := c.GetChainID()
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		c.Result.Put([]byte(id))
		return []wasmer.Value{wasmer.NewI32(int32(len(id)))}, nil
	})

	getBlockHeight := fn([]wasmer.ValueKind{}, []wasmer.ValueKind{wasmer.ValueKind(wasmer.I64)}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		h, err := c.GetBlockHeight()
		if err != nil {
			return []wasmer.Value{wasmer.NewI64(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI64(int64(h))}, nil
	})

	getBlockHash := fn([]wasmer.ValueKind{}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		h, err := c.GetBlockHash()
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		c.Result.Put(h[:])
		return []wasmer.Value{wasmer.NewI32(int32(len(h)))}, nil
	})

	getBlockEpoch := fn([]wasmer.ValueKind{}, []wasmer.ValueKind{wasmer.ValueKind(wasmer.I64)}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		e, err := c.GetBlockEpoch()
		if err != nil {
			return []wasmer.Value{wasmer.NewI64(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI64(int64(e))}, nil
	})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"read_pre":               readPre,
		"read_post":              readPost,
		"has_key_pre":            hasKeyPre,
		"has_key_post":           hasKeyPost,
		"iter_prefix":            iterPrefix,
		"iter_pre_next":          iterPreNext,
		"iter_post_next":         iterPostNext,
		"verify_tx_signature":    verifyTxSig,
		"eval":                   eval,
		"vp_result_buffer_len":   resultBufferLen,
		"vp_result_buffer_fetch": resultBufferFetch,
		"get_chain_id":           getChainID,
		"get_block_height":       getBlockHeight,
		"get_block_hash":         getBlockHash,
		"get_block_epoch":        getBlockEpoch,
	})
	return imports
}
