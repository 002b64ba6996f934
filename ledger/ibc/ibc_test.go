package ibc_test

import (
	"bytes"
	"encoding/gob"
	"testing"

	"vmhost/ledger"
	"vmhost/ledger/ibc"
)

func gobBytes(t *testing.T, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		t.Fatalf("gob encode: %v", err)
	}
	return buf.Bytes()
}

func encodeCounter(n uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * (7 - i)))
	}
	return b
}

// newScenario builds a storage seeded via ibc.InitGenesis plus wl, ready for
// a single transaction's worth of staged writes.
func newScenario(t *testing.T) (*ledger.MemStorage, *ledger.WriteLog) {
	t.Helper()
	storage := ledger.NewMemStorage("test-chain", 1, [32]byte{}, 0)
	if err := ibc.InitGenesis(storage); err != nil {
		t.Fatalf("init genesis: %v", err)
	}
	return storage, ledger.NewWriteLog()
}

func dispatch(t *testing.T, storage *ledger.MemStorage, wl *ledger.WriteLog, txData []byte, changedKeys []string) (ledger.NativeVpResult, error) {
	t.Helper()
	gas := ledger.NewVpGasMeter(10_000_000)
	ctx := ledger.NewVpContext(storage, wl, gas, ledger.NewVerifierSet(), ledger.Tx{Data: txData})
	return ibc.Dispatch(ctx, txData, changedKeys, ledger.NewVerifierSet())
}

// TestDispatchCreateClientAccepts covers spec seed scenario 1: a
// well-formed CreateClient transaction (client type, client state and
// consensus state all agreeing, counter strictly advanced) is accepted.
func TestDispatchCreateClientAccepts(t *testing.T) {
	storage, wl := newScenario(t)
	const clientID = "07-tendermint-0"
	height := ibc.Height{RevisionNumber: 1, RevisionHeight: 100}

	mustWrite(t, wl, ibc.ClientTypeKey(clientID), []byte("07-tendermint"))
	mustWrite(t, wl, ibc.ClientStateKey(clientID), gobBytes(t, ibc.ClientState{ClientType: "07-tendermint", LatestHeight: height}))
	mustWrite(t, wl, ibc.ConsensusStateKey(clientID, height), gobBytes(t, ibc.ConsensusState{ClientType: "07-tendermint"}))
	mustWrite(t, wl, ibc.ClientCounterKey(), encodeCounter(1))

	changed := []string{
		ibc.ClientTypeKey(clientID).String(),
		ibc.ClientStateKey(clientID).String(),
		ibc.ConsensusStateKey(clientID, height).String(),
		ibc.ClientCounterKey().String(),
	}

	result, err := dispatch(t, storage, wl, nil, changed)
	if err != nil {
		t.Fatalf("expected create-client to be accepted, got error: %v", err)
	}
	if result != ledger.VpAccept {
		t.Fatalf("expected VpAccept, got %v", result)
	}
}

// TestDispatchCreateClientTypeMismatchRejects covers IBC-2: a client state
// whose ClientType disagrees with the client_type key it's paired with is
// rejected with IbcInvalidClient.
func TestDispatchCreateClientTypeMismatchRejects(t *testing.T) {
	storage, wl := newScenario(t)
	const clientID = "07-tendermint-0"
	height := ibc.Height{RevisionNumber: 1, RevisionHeight: 100}

	mustWrite(t, wl, ibc.ClientTypeKey(clientID), []byte("07-tendermint"))
	mustWrite(t, wl, ibc.ClientStateKey(clientID), gobBytes(t, ibc.ClientState{ClientType: "06-solomachine", LatestHeight: height}))
	mustWrite(t, wl, ibc.ConsensusStateKey(clientID, height), gobBytes(t, ibc.ConsensusState{ClientType: "07-tendermint"}))

	changed := []string{ibc.ClientStateKey(clientID).String()}

	result, err := dispatch(t, storage, wl, nil, changed)
	if err == nil {
		t.Fatalf("expected rejection on client type mismatch")
	}
	if result != ledger.VpReject {
		t.Fatalf("expected VpReject, got %v", result)
	}
	ibcErr, ok := err.(*ledger.IbcError)
	if !ok {
		t.Fatalf("expected *ledger.IbcError, got %T: %v", err, err)
	}
	if ibcErr.Kind != ledger.IbcInvalidClient {
		t.Fatalf("expected IbcInvalidClient, got %v", ibcErr.Kind)
	}
}

// TestDispatchDeletedClientStateRejectsAsInvalidStateChange covers spec seed
// scenario 2: a client-state key whose StateChange is Deleted (it existed
// before the tx, not after) doesn't match Created or Updated and is rejected
// as IbcInvalidStateChange, not silently accepted or misclassified.
func TestDispatchDeletedClientStateRejectsAsInvalidStateChange(t *testing.T) {
	storage, wl := newScenario(t)
	const clientID = "07-tendermint-0"
	height := ibc.Height{RevisionNumber: 1, RevisionHeight: 100}

	if err := storage.Write(ibc.ClientStateKey(clientID), gobBytes(t, ibc.ClientState{ClientType: "07-tendermint", LatestHeight: height})); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	if err := wl.Delete(ibc.ClientStateKey(clientID)); err != nil {
		t.Fatalf("stage delete: %v", err)
	}

	changed := []string{ibc.ClientStateKey(clientID).String()}
	result, err := dispatch(t, storage, wl, nil, changed)
	if err == nil {
		t.Fatalf("expected rejection deleting a client state key")
	}
	if result != ledger.VpReject {
		t.Fatalf("expected VpReject, got %v", result)
	}
	ibcErr, ok := err.(*ledger.IbcError)
	if !ok {
		t.Fatalf("expected *ledger.IbcError, got %T: %v", err, err)
	}
	if ibcErr.Kind != ledger.IbcInvalidStateChange {
		t.Fatalf("expected IbcInvalidStateChange, got %v", ibcErr.Kind)
	}
}

// TestDispatchUpdateClientAccepts covers spec seed scenario 3: an
// UpdateClient transaction whose header folds monotonically from the prior
// client state, and whose posterior client state matches that fold, is
// accepted.
func TestDispatchUpdateClientAccepts(t *testing.T) {
	storage, wl := newScenario(t)
	const clientID = "07-tendermint-0"
	prevHeight := ibc.Height{RevisionNumber: 1, RevisionHeight: 100}
	nextHeight := ibc.Height{RevisionNumber: 1, RevisionHeight: 200}

	if err := storage.Write(ibc.ClientStateKey(clientID), gobBytes(t, ibc.ClientState{ClientType: "07-tendermint", LatestHeight: prevHeight})); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	mustWrite(t, wl, ibc.ClientStateKey(clientID), gobBytes(t, ibc.ClientState{ClientType: "07-tendermint", LatestHeight: nextHeight}))

	txData := gobBytes(t, ibc.ClientUpdateData{
		ClientID: clientID,
		Headers:  []ibc.Header{{Height: nextHeight}},
	})
	changed := []string{ibc.ClientStateKey(clientID).String()}

	result, err := dispatch(t, storage, wl, txData, changed)
	if err != nil {
		t.Fatalf("expected update-client to be accepted, got error: %v", err)
	}
	if result != ledger.VpAccept {
		t.Fatalf("expected VpAccept, got %v", result)
	}
}

// TestDispatchClientCounterMustStrictlyIncrease covers IBC-1: a client
// counter that doesn't strictly increase is rejected, independent of
// whichever client keys also changed in the same tx.
func TestDispatchClientCounterMustStrictlyIncrease(t *testing.T) {
	storage, wl := newScenario(t)

	if err := storage.Write(ibc.ClientCounterKey(), encodeCounter(3)); err != nil {
		t.Fatalf("seed storage: %v", err)
	}
	mustWrite(t, wl, ibc.ClientCounterKey(), encodeCounter(3)) // unchanged, not strictly greater

	changed := []string{ibc.ClientCounterKey().String()}
	result, err := dispatch(t, storage, wl, nil, changed)
	if err == nil {
		t.Fatalf("expected rejection on non-increasing client counter")
	}
	if result != ledger.VpReject {
		t.Fatalf("expected VpReject, got %v", result)
	}
	ibcErr, ok := err.(*ledger.IbcError)
	if !ok {
		t.Fatalf("expected *ledger.IbcError, got %T: %v", err, err)
	}
	if ibcErr.Kind != ledger.IbcInvalidStateChange {
		t.Fatalf("expected IbcInvalidStateChange, got %v", ibcErr.Kind)
	}
}

// TestDispatchSequenceKeysRequireMonotonicAdvance exercises the
// nextSequenceSend/Recv/Ack prefixes built with NextSequenceSendKey et al.,
// which name exactly the keys validateSequence inspects.
func TestDispatchSequenceKeysRequireMonotonicAdvance(t *testing.T) {
	storage, wl := newScenario(t)
	const portID, channelID = "transfer", "channel-0"
	sendKey := ibc.NextSequenceSendKey(portID, channelID)

	if err := storage.Write(sendKey, encodeCounter(5)); err != nil {
		t.Fatalf("seed storage: %v", err)
	}

	// A regression (5 -> 4) is rejected.
	mustWrite(t, wl, sendKey, encodeCounter(4))
	_, err := dispatch(t, storage, wl, nil, []string{sendKey.String()})
	if err == nil {
		t.Fatalf("expected rejection on a regressing send sequence")
	}

	// A strict advance (5 -> 6) from a fresh write log is accepted.
	wl2 := ledger.NewWriteLog()
	mustWrite(t, wl2, sendKey, encodeCounter(6))
	result, err := dispatch(t, storage, wl2, nil, []string{sendKey.String()})
	if err != nil {
		t.Fatalf("expected advancing send sequence to be accepted: %v", err)
	}
	if result != ledger.VpAccept {
		t.Fatalf("expected VpAccept, got %v", result)
	}

	recvKey := ibc.NextSequenceRecvKey(portID, channelID)
	ackKey := ibc.NextSequenceAckKey(portID, channelID)
	if recvKey.String() == sendKey.String() || ackKey.String() == sendKey.String() || recvKey.String() == ackKey.String() {
		t.Fatalf("expected the three sequence key builders to name distinct keys")
	}
}

// TestDispatchUnknownIBCPrefixRejects covers the #IBC/<unrecognized>/...
// case: a key that parses as an IBC key but whose second segment names no
// known sub-module is a terminal error, not a silent skip.
func TestDispatchUnknownIBCPrefixRejects(t *testing.T) {
	storage, wl := newScenario(t)
	k := ledger.NewKey(ledger.StrSeg(ledger.PrefixIBC), ledger.StrSeg("somethingUnrecognized"))
	mustWrite(t, wl, k, []byte("x"))

	_, err := dispatch(t, storage, wl, nil, []string{k.String()})
	if err == nil {
		t.Fatalf("expected rejection on an unrecognized IBC key prefix")
	}
}

func mustWrite(t *testing.T, wl *ledger.WriteLog, k ledger.Key, v []byte) {
	t.Helper()
	if err := wl.Write(k, v); err != nil {
		t.Fatalf("stage write %s: %v", k.String(), err)
	}
}
