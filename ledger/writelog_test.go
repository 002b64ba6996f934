package ledger

import "testing"

func testKey(s string) Key { return NewKey(StrSeg(s)) }

// TestWriteLogTxScopeVisibility covers WL-1: a key written earlier in the
// same tx is visible to a later read in that tx without touching Storage.
func TestWriteLogTxScopeVisibility(t *testing.T) {
	storage := NewMemStorage("test", 1, [32]byte{}, 0)
	wl := NewWriteLog()
	k := testKey("alpha")

	if err := wl.Write(k, []byte("one")); err != nil {
		t.Fatalf("write: %v", err)
	}
	val, present, _ := wl.Read(k, storage)
	if !present || string(val) != "one" {
		t.Fatalf("expected tx-scope value %q, got %q present=%v", "one", val, present)
	}

	if _, _, present := storage.Read(k); present {
		t.Fatalf("write must not reach storage before commit")
	}
}

// TestWriteLogCommitTxIdempotent covers WL-2: folding tx-scope into
// block-scope twice in a row (the second commit operating on an already
// empty tx-scope) leaves block-scope unchanged.
func TestWriteLogCommitTxIdempotent(t *testing.T) {
	storage := NewMemStorage("test", 1, [32]byte{}, 0)
	wl := NewWriteLog()
	k := testKey("beta")

	if err := wl.Write(k, []byte("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	wl.CommitTx()
	wl.CommitTx() // no-op: tx-scope already empty

	val, present, _ := wl.ReadPre(k, storage)
	if !present || string(val) != "v1" {
		t.Fatalf("expected block-scope value %q, got %q present=%v", "v1", val, present)
	}

	if err := wl.CommitBlock(storage); err != nil {
		t.Fatalf("commit block: %v", err)
	}
	if err := wl.CommitBlock(storage); err != nil {
		t.Fatalf("second commit block: %v", err)
	}
	val, present, _ = storage.Read(k)
	if !present || string(val) != "v1" {
		t.Fatalf("expected storage value %q, got %q present=%v", "v1", val, present)
	}
}

// TestWriteLogInitAccountThenWrite covers the write-log side of WL-3: an
// account initialized in this tx cannot be initialized again, a write under
// its keys is staged, and its VP key reads back the staged code. The
// address-existence check itself lives in TxContext, not WriteLog.Write.
func TestWriteLogInitAccountThenWrite(t *testing.T) {
	storage := NewMemStorage("test", 1, [32]byte{}, 0)
	wl := NewWriteLog()
	gen := NewAddressGenerator([]byte("seed"), 0)
	addr := gen.Next()

	if err := wl.InitAccount(addr, []byte("vp-code"), storage); err != nil {
		t.Fatalf("init account: %v", err)
	}
	// Re-initializing the same account in the same tx must be rejected.
	if err := wl.InitAccount(addr, []byte("vp-code-2"), storage); err == nil {
		t.Fatalf("expected conflict re-initializing account in same tx")
	}

	dataKey := NewKey(AddrSeg(addr), StrSeg("balance"))
	if err := wl.Write(dataKey, []byte("100")); err != nil {
		t.Fatalf("write under new account: %v", err)
	}

	vpKey := VPKey(addr)
	val, present, _ := wl.Read(vpKey, storage)
	if !present || string(val) != "vp-code" {
		t.Fatalf("expected vp code %q, got %q present=%v", "vp-code", val, present)
	}
}

func TestWriteLogDeleteRejectsVPKey(t *testing.T) {
	wl := NewWriteLog()
	gen := NewAddressGenerator([]byte("seed"), 0)
	addr := gen.Next()
	if err := wl.Delete(VPKey(addr)); err == nil {
		t.Fatalf("expected deleting a validity predicate key to be rejected")
	}
}

func TestWriteLogDropTxDiscardsStagedWrites(t *testing.T) {
	storage := NewMemStorage("test", 1, [32]byte{}, 0)
	wl := NewWriteLog()
	k := testKey("gamma")

	if err := wl.Write(k, []byte("staged")); err != nil {
		t.Fatalf("write: %v", err)
	}
	wl.DropTx()

	if _, present, _ := wl.Read(k, storage); present {
		t.Fatalf("expected dropped tx-scope write to be invisible")
	}
}
