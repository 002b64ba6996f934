package ledger

import "testing"

func newTestTxContext() (*TxContext, *WriteLog, Storage) {
	storage := NewMemStorage("test", 1, [32]byte{}, 0)
	wl := NewWriteLog()
	gas := NewBlockGasMeter(1_000_000)
	gen := NewAddressGenerator([]byte("seed"), 0)
	return NewTxContext(storage, wl, gas, gen, Tx{}), wl, storage
}

// TestTxContextIterPrefixSnapshotsAtCreation covers IT-1: a write issued
// after an iterator is created must not appear in that iterator's results.
func TestTxContextIterPrefixSnapshotsAtCreation(t *testing.T) {
	c, _, _ := newTestTxContext()
	prefix := NewKey(StrSeg("items"))

	if err := c.Write(prefix.Push(StrSeg("a")), []byte("1")); err != nil {
		t.Fatalf("write a: %v", err)
	}

	handle, err := c.IterPrefix(prefix)
	if err != nil {
		t.Fatalf("iter prefix: %v", err)
	}

	// Written after the iterator snapshot; must not surface from IterNext.
	if err := c.Write(prefix.Push(StrSeg("b")), []byte("2")); err != nil {
		t.Fatalf("write b: %v", err)
	}

	var seen []string
	for {
		k, _, ok, err := c.IterNext(handle)
		if err != nil {
			t.Fatalf("iter next: %v", err)
		}
		if !ok {
			break
		}
		seen = append(seen, k)
	}

	if len(seen) != 1 || seen[0] != prefix.Push(StrSeg("a")).String() {
		t.Fatalf("expected snapshot to contain only the pre-existing key, got %v", seen)
	}
}

func TestTxContextWriteRejectsUnknownAddress(t *testing.T) {
	c, _, _ := newTestTxContext()
	gen := NewAddressGenerator([]byte("other-seed"), 0)
	unknown := gen.Next()

	err := c.Write(NewKey(AddrSeg(unknown), StrSeg("balance")), []byte("1"))
	if err == nil {
		t.Fatalf("expected write under a non-existent established account to fail")
	}
}

func TestTxContextInitAccountAddsVerifier(t *testing.T) {
	c, _, _ := newTestTxContext()
	addr, err := c.InitAccount([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}) // minimal wasm header
	if err != nil {
		t.Fatalf("init account: %v", err)
	}
	if !c.Verifiers.Contains(addr) {
		t.Fatalf("expected init_account to insert the new address as a verifier")
	}
}

func TestTxContextGasExhaustionAbortsWrite(t *testing.T) {
	storage := NewMemStorage("test", 1, [32]byte{}, 0)
	wl := NewWriteLog()
	gas := NewBlockGasMeter(1) // far below the cost of a single write
	gen := NewAddressGenerator([]byte("seed"), 0)
	c := NewTxContext(storage, wl, gas, gen, Tx{})

	if err := c.Write(NewKey(StrSeg("k")), []byte("a long enough value to exceed the tiny limit")); err == nil {
		t.Fatalf("expected out-of-gas error")
	}
}
