package ledger

import "testing"

// TestGasMeterOutOfGasSticky covers GM-1: the call at which cumulative
// usage first exceeds the ceiling returns ErrOutOfGas and leaves `used`
// unchanged, so later calls keep failing.
func TestGasMeterOutOfGasSticky(t *testing.T) {
	g := NewBlockGasMeter(100)

	if err := g.Add(60); err != nil {
		t.Fatalf("first charge should succeed: %v", err)
	}
	if err := g.Add(50); err == nil {
		t.Fatalf("expected ErrOutOfGas when exceeding ceiling")
	} else if err != ErrOutOfGas {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
	if got := g.Used(); got != 60 {
		t.Fatalf("expected used to stay at 60 after failed charge, got %d", got)
	}

	// The meter stays terminal: a much smaller charge still fails.
	if err := g.Add(1); err == nil {
		t.Fatalf("expected meter to remain exhausted for any further charge")
	}
	if got := g.Used(); got != 60 {
		t.Fatalf("expected used to stay at 60, got %d", got)
	}
}

func TestGasMeterRemaining(t *testing.T) {
	g := NewVpGasMeter(100)
	if err := g.Add(30); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := g.Remaining(); got != 70 {
		t.Fatalf("expected 70 remaining, got %d", got)
	}
}

func TestHostCallBaseCostFallsBackToDefault(t *testing.T) {
	unknown := HostCall("not_a_real_call")
	if got := unknown.BaseCost(); got != DefaultHostCallGasCost {
		t.Fatalf("expected default gas cost %d for unknown call, got %d", DefaultHostCallGasCost, got)
	}
}
