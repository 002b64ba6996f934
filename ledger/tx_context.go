// TxContext bundles everything one transaction's guest code runs against:
// Storage, the WriteLog it stages mutations into, its gas meter, its
// iterator and result-buffer slots, and the verifier set it accumulates.
// It implements the full tx host ABI (spec.md §4.5) and registers that ABI
// as wasmer imports under the "env" namespace.
//
// Grounded on core/virtual_machine.go's VMContext + registerHost
// (hostConsumeGas/hostRead/hostWrite/hostLog wasmer function registration
// pattern), generalized from 4 host calls to the full tx ABI; gas
// pre-charge goes through gas.go's adapted opcode-dispatch table.
package ledger

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// VerifierSet is the set of addresses whose validity predicates must run
// against this transaction, accumulated implicitly as storage is mutated
// (spec.md §4.5) and explicitly via insert_verifier.
type VerifierSet struct {
	members map[string]Address
}

// NewVerifierSet builds an empty set.
func NewVerifierSet() *VerifierSet {
	return &VerifierSet{members: make(map[string]Address)}
}

// Insert adds addr to the set; a no-op if already present.
func (v *VerifierSet) Insert(addr Address) {
	v.members[addr.String()] = addr
}

// Contains reports whether addr is in the set.
func (v *VerifierSet) Contains(addr Address) bool {
	_, ok := v.members[addr.String()]
	return ok
}

// Addresses returns the set's members in no particular order.
func (v *VerifierSet) Addresses() []Address {
	out := make([]Address, 0, len(v.members))
	for _, a := range v.members {
		out = append(out, a)
	}
	return out
}

// TxContext is the host-side state backing one transaction's execution.
type TxContext struct {
	Storage     Storage
	WriteLog    *WriteLog
	Gas         *GasMeter
	Iterators   *IteratorRegistry
	Verifiers   *VerifierSet
	Result      *ResultBuffer
	Mem         Memory
	AddressGen  *AddressGenerator
	Tx          Tx
}

// BindMemory attaches the guest module's linear memory once it is known —
// wasmer only exposes an instance's "memory" export after instantiation,
// which happens after imports are registered.
func (c *TxContext) BindMemory(m Memory) { c.Mem = m }

// NewTxContext wires a fresh context for one transaction.
func NewTxContext(storage Storage, wl *WriteLog, gas *GasMeter, gen *AddressGenerator, tx Tx) *TxContext {
	return &TxContext{
		Storage:    storage,
		WriteLog:   wl,
		Gas:        gas,
		Iterators:  NewIteratorRegistry(),
		Verifiers:  NewVerifierSet(),
		Result:     &ResultBuffer{},
		Mem:        NewLinearMemory(),
		AddressGen: gen,
		Tx:         tx,
	}
}

// checkAddressExistence implements spec.md §4.1's write/delete pre-check:
// every address embedded in k must either already exist (its VP key is
// present in the write log or Storage) or be an implicit/internal address,
// which needs no stored VP. Established addresses that pass are added to the
// verifier set, as §4.5 requires ("implicitly adds that account's address").
func (c *TxContext) checkAddressExistence(k Key) error {
	for _, addr := range k.FindAddresses() {
		if addr.Kind != AddressEstablished {
			continue
		}
		vpKey := VPKey(addr)
		if present, _ := c.WriteLog.HasKey(vpKey, c.Storage); !present {
			return fmt.Errorf("%w: %s", ErrUnknownAddress, addr)
		}
		c.Verifiers.Insert(addr)
	}
	return nil
}

// HasKey implements has_key (spec.md §4.5).
func (c *TxContext) HasKey(k Key) (bool, error) {
	if err := c.Gas.Charge(CallHasKey); err != nil {
		return false, err
	}
	present, gas := c.WriteLog.HasKey(k, c.Storage)
	if err := c.Gas.Add(gas); err != nil {
		return false, err
	}
	return present, nil
}

// Read implements read (spec.md §4.5): posterior view, write-log wins.
func (c *TxContext) Read(k Key) ([]byte, bool, error) {
	if err := c.Gas.Charge(CallRead); err != nil {
		return nil, false, err
	}
	val, present, gas := c.WriteLog.Read(k, c.Storage)
	if err := c.Gas.Add(gas); err != nil {
		return nil, false, err
	}
	return val, present, nil
}

// IterPrefix implements iter_prefix (spec.md §4.5): a posterior-view
// iterator with the write-log overlay already folded in.
func (c *TxContext) IterPrefix(prefix Key) (uint64, error) {
	if err := c.Gas.Charge(CallIterPrefix); err != nil {
		return 0, err
	}
	keys, vals, gas := c.WriteLog.IterPrefixOverlay(prefix, c.Storage)
	if err := c.Gas.Add(gas); err != nil {
		return 0, err
	}
	return c.Iterators.Register(newPrefixIterator(keys, vals)), nil
}

// IterNext implements iter_next (spec.md §4.5). ok is false once the
// iterator is exhausted.
func (c *TxContext) IterNext(handle uint64) (key string, value []byte, ok bool, err error) {
	if err = c.Gas.Charge(CallIterNext); err != nil {
		return "", nil, false, err
	}
	it, found := c.Iterators.Get(handle)
	if !found {
		return "", nil, false, fmt.Errorf("%w: unknown iterator handle %d", ErrMemory, handle)
	}
	if it.Exhausted() || !it.Next() {
		// The call that finds the iterator exhausted reports ok=false and
		// frees the handle.
		c.Iterators.Drop(handle)
		return "", nil, false, nil
	}
	return it.Key(), it.Value(), true, nil
}

// Write implements write (spec.md §4.5).
func (c *TxContext) Write(k Key, value []byte) error {
	if err := c.Gas.Charge(CallWrite); err != nil {
		return err
	}
	if err := c.Gas.Add(storageReadGas(len(value))); err != nil {
		return err
	}
	if err := c.checkAddressExistence(k); err != nil {
		return err
	}
	return c.WriteLog.Write(k, value)
}

// Delete implements delete (spec.md §4.5).
func (c *TxContext) Delete(k Key) error {
	if err := c.Gas.Charge(CallDelete); err != nil {
		return err
	}
	if err := c.checkAddressExistence(k); err != nil {
		return err
	}
	return c.WriteLog.Delete(k)
}

// InitAccount implements init_account (spec.md §4.5, §4.8): validates the
// guest WASM, reserves a fresh established address, and stages its initial
// validity predicate.
func (c *TxContext) InitAccount(vpCode []byte) (Address, error) {
	if err := c.Gas.Charge(CallInitAccount); err != nil {
		return Address{}, err
	}
	if err := validateVpWasm(c.Gas, vpCode, InvalidVpWasmOnInitAccount); err != nil {
		return Address{}, err
	}
	addr := c.AddressGen.Next()
	if err := c.WriteLog.InitAccount(addr, vpCode, c.Storage); err != nil {
		return Address{}, err
	}
	c.Verifiers.Insert(addr)
	return addr, nil
}

// UpdateValidityPredicate implements update_validity_predicate (spec.md
// §4.5, §4.8).
func (c *TxContext) UpdateValidityPredicate(addr Address, vpCode []byte) error {
	if err := c.Gas.Charge(CallUpdateValidityPredicate); err != nil {
		return err
	}
	if err := validateVpWasm(c.Gas, vpCode, InvalidVpWasmOnUpdate); err != nil {
		return err
	}
	c.Verifiers.Insert(addr)
	return c.WriteLog.UpdateValidityPredicate(addr, vpCode)
}

// InsertVerifier implements insert_verifier (spec.md §4.5).
func (c *TxContext) InsertVerifier(addr Address) error {
	if err := c.Gas.Charge(CallInsertVerifier); err != nil {
		return err
	}
	c.Verifiers.Insert(addr)
	return nil
}

func (c *TxContext) GetChainID() (string, error) {
	if err := c.Gas.Charge(CallGetChainID); err != nil {
		return "", err
	}
	return c.Storage.ChainID(), nil
}

func (c *TxContext) GetBlockHeight() (uint64, error) {
	if err := c.Gas.Charge(CallGetBlockHeight); err != nil {
		return 0, err
	}
	return c.Storage.BlockHeight(), nil
}

func (c *TxContext) GetBlockHash() ([32]byte, error) {
	if err := c.Gas.Charge(CallGetBlockHash); err != nil {
		return [32]byte{}, err
	}
	return c.Storage.BlockHash(), nil
}

func (c *TxContext) GetBlockEpoch() (uint64, error) {
	if err := c.Gas.Charge(CallGetBlockEpoch); err != nil {
		return 0, err
	}
	return c.Storage.BlockEpoch(), nil
}

// LogString implements log_string: diagnostic only, no gas beyond the byte
// read itself (spec.md §4.5).
func (c *TxContext) LogString(s string, logf func(string)) error {
	if err := c.Gas.Add(uint64(len(s)) * GasPerHostCallByte); err != nil {
		return err
	}
	if logf != nil {
		logf(s)
	}
	return nil
}

// ChangedKeys returns the keys touched so far in this tx, for VP dispatch.
func (c *TxContext) ChangedKeys() []string { return c.WriteLog.ChangedKeys() }

// --------------------------------------------------------------------
// wasmer import registration
// --------------------------------------------------------------------

// RegisterImports converts TxContext's host ABI into wasmer imports under
// the "env" namespace, the way core/virtual_machine.go's registerHost
// converts its four host calls. c.Mem is bound via BindMemory once the
// instance's "memory" export is known, since wasmer does not expose it
// before instantiation.
func (c *TxContext) RegisterImports(store *wasmer.Store) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32 := wasmer.ValueKind(wasmer.I32)
	fn := func(params, results []wasmer.ValueKind, body func(args []wasmer.Value) ([]wasmer.Value, error)) *wasmer.Function {
		return wasmer.NewFunction(store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(params...), wasmer.NewValueTypes(results...)),
			body)
	}

	readArg := func(ptr, ln int32) ([]byte, error) { return c.Mem.Read(uint32(ptr), uint32(ln)) }
	writeArg := func(ptr int32, data []byte) error { return c.Mem.Write(uint32(ptr), data) }

	hasKey := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kb, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		present, err := c.HasKey(ParseKey(string(kb)))
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if present {
			return []wasmer.Value{wasmer.NewI32(1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	read := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kb, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		val, present, err := c.Read(ParseKey(string(kb)))
		if err != nil || !present {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		c.Result.Put(val)
		return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
	})

	write := fn([]wasmer.ValueKind{i32, i32, i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kb, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		vb, err := readArg(args[2].I32(), args[3].I32())
		if err != nil {
			return nil, err
		}
		if err := c.Write(ParseKey(string(kb)), vb); err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	del := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		kb, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		if err := c.Delete(ParseKey(string(kb))); err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	logString := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		msg, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		_ = c.LogString(string(msg), nil)
		return []wasmer.Value{}, nil
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

	iterNext := fn([]wasmer.ValueKind{i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		_, value, ok, err := c.IterNext(uint64(args[0].I32()))
		if err != nil || !ok {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		c.Result.Put(value)
		return []wasmer.Value{wasmer.NewI32(int32(len(value)))}, nil
	})

	// initAccount writes the freshly generated address at the caller-supplied
	// pointer directly rather than through the result buffer, per spec.md
	// §4.5's init_account contract.
	initAccount := fn([]wasmer.ValueKind{i32, i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		code, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		addr, err := c.InitAccount(code)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := writeArg(args[2].I32(), addr.Bytes()); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	updateVp := fn([]wasmer.ValueKind{i32, i32, i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		ab, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		code, err := readArg(args[2].I32(), args[3].I32())
		if err != nil {
			return nil, err
		}
		addr, err := ParseAddress(ab)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := c.UpdateValidityPredicate(addr, code); err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	insertVerifier := fn([]wasmer.ValueKind{i32, i32}, []wasmer.ValueKind{i32}, func(args []wasmer.Value) ([]wasmer.Value, error) {
		ab, err := readArg(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		addr, err := ParseAddress(ab)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := c.InsertVerifier(addr); err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
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
		"has_key":                       hasKey,
		"read":                          read,
		"write":                         write,
		"delete":                        del,
		"iter_prefix":                   iterPrefix,
		"iter_next":                     iterNext,
		"init_account":                  initAccount,
		"update_validity_predicate":     updateVp,
		"insert_verifier":               insertVerifier,
		"get_chain_id":                  getChainID,
		"get_block_height":              getBlockHeight,
		"get_block_hash":                getBlockHash,
		"get_block_epoch":               getBlockEpoch,
		"log_string":                    logString,
		"tx_result_buffer_len":          resultBufferLen,
		"tx_result_buffer_fetch":        resultBufferFetch,
	})

	return imports
}
