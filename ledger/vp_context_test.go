package ledger

import "testing"

func newTestVpContext(gas *GasMeter) (*VpContext, *WriteLog, Storage) {
	storage := NewMemStorage("test", 1, [32]byte{}, 0)
	wl := NewWriteLog()
	verifiers := NewVerifierSet()
	return NewVpContext(storage, wl, gas, verifiers, Tx{}), wl, storage
}

// TestVpContextPreVsPostView covers VP-1: read_pre sees the value as of
// before the current tx (block-scope + storage), read_post sees the full
// posterior overlay including the current tx's own staged writes.
func TestVpContextPreVsPostView(t *testing.T) {
	storage := NewMemStorage("test", 1, [32]byte{}, 0)
	wl := NewWriteLog()
	k := NewKey(StrSeg("balance"))

	if err := wl.Write(k, []byte("100")); err != nil {
		t.Fatalf("seed previous block value: %v", err)
	}
	wl.CommitTx() // folds into block-scope, simulating an earlier committed tx

	if err := wl.Write(k, []byte("150")); err != nil {
		t.Fatalf("stage current tx write: %v", err)
	}

	gas := NewVpGasMeter(1_000_000)
	vpCtx := NewVpContext(storage, wl, gas, NewVerifierSet(), Tx{})

	preVal, prePresent, err := vpCtx.ReadPre(k)
	if err != nil {
		t.Fatalf("read pre: %v", err)
	}
	if !prePresent || string(preVal) != "100" {
		t.Fatalf("expected pre view %q, got %q present=%v", "100", preVal, prePresent)
	}

	postVal, postPresent, err := vpCtx.ReadPost(k)
	if err != nil {
		t.Fatalf("read post: %v", err)
	}
	if !postPresent || string(postVal) != "150" {
		t.Fatalf("expected post view %q, got %q present=%v", "150", postVal, postPresent)
	}
}

// TestVpContextEvalSharesGasMeter covers Eval-1: a nested eval call
// consumes gas from the same meter as its caller.
func TestVpContextEvalSharesGasMeter(t *testing.T) {
	gas := NewVpGasMeter(1_000_000)
	vpCtx, _, _ := newTestVpContext(gas)

	var nestedSawSameMeter bool
	vpCtx.Evaluator = func(vpCode, input []byte, nested *VpContext) (bool, error) {
		nestedSawSameMeter = nested.Gas == vpCtx.Gas
		if err := nested.Gas.Add(42); err != nil {
			return false, err
		}
		return true, nil
	}

	before := gas.Used()
	ok, err := vpCtx.Eval([]byte("code"), []byte("input"))
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !ok {
		t.Fatalf("expected eval to accept")
	}
	if !nestedSawSameMeter {
		t.Fatalf("expected nested evaluation to share the caller's gas meter")
	}
	after := gas.Used()
	if after <= before {
		t.Fatalf("expected gas usage to increase from the nested call, before=%d after=%d", before, after)
	}
}

func TestVpContextIterPrefixDualSnapshot(t *testing.T) {
	storage := NewMemStorage("test", 1, [32]byte{}, 0)
	wl := NewWriteLog()
	prefix := NewKey(StrSeg("items"))

	if err := wl.Write(prefix.Push(StrSeg("a")), []byte("1")); err != nil {
		t.Fatalf("seed block-scope entry: %v", err)
	}
	wl.CommitTx()

	if err := wl.Write(prefix.Push(StrSeg("b")), []byte("2")); err != nil {
		t.Fatalf("stage current-tx entry: %v", err)
	}

	gas := NewVpGasMeter(1_000_000)
	vpCtx := NewVpContext(storage, wl, gas, NewVerifierSet(), Tx{})

	handle, err := vpCtx.IterPrefix(prefix)
	if err != nil {
		t.Fatalf("iter prefix: %v", err)
	}

	var preKeys []string
	for {
		k, _, ok, err := vpCtx.IterPreNext(handle)
		if err != nil {
			t.Fatalf("iter pre next: %v", err)
		}
		if !ok {
			break
		}
		preKeys = append(preKeys, k)
	}
	if len(preKeys) != 1 {
		t.Fatalf("expected one pre-view key, got %v", preKeys)
	}

	var postKeys []string
	for {
		k, _, ok, err := vpCtx.IterPostNext(handle)
		if err != nil {
			t.Fatalf("iter post next: %v", err)
		}
		if !ok {
			break
		}
		postKeys = append(postKeys, k)
	}
	if len(postKeys) != 2 {
		t.Fatalf("expected two post-view keys, got %v", postKeys)
	}
}
