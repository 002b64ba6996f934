// Client validator: create/update/upgrade, ported 1:1 from
// original_source/shared/src/ledger/ibc/client.rs's validate_client,
// validate_created_client, validate_updated_client into the teacher's
// fmt.Errorf/%w idiom rather than thiserror.
package ibc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"vmhost/ledger"
)

// ClientState is the posterior-visible client record a Created/Updated
// client stores at ClientStateKey.
type ClientState struct {
	ClientType   string
	LatestHeight Height
}

// ConsensusState is the record stored at ConsensusStateKey for one height.
type ConsensusState struct {
	ClientType string
}

// Header is one block header a ClientUpdateData carries, simplified to the
// one field the height-monotonicity check needs — spec.md's Non-goals
// exclude concrete consensus-specific header verification.
type Header struct {
	Height Height
}

// ClientUpdateData is the tx_data shape for an UpdateClient transaction.
type ClientUpdateData struct {
	ClientID string
	Headers  []Header
}

// ClientUpgradeData is the tx_data shape for an UpgradeClient transaction —
// decoded only after ClientUpdateData decoding fails, per client.rs's
// validate_updated_client fallthrough (SPEC_FULL.md's supplemented
// "ClientUpgradeData path").
type ClientUpgradeData struct {
	ClientID       string
	ClientProof    []byte
	ConsensusProof []byte
}

func decodeClientUpdateData(b []byte) (ClientUpdateData, error) {
	var d ClientUpdateData
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&d); err != nil {
		return ClientUpdateData{}, err
	}
	return d, nil
}

func decodeClientUpgradeData(b []byte) (ClientUpgradeData, error) {
	var d ClientUpgradeData
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&d); err != nil {
		return ClientUpgradeData{}, err
	}
	return d, nil
}

func decodeClientState(b []byte) (ClientState, error) {
	var s ClientState
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return ClientState{}, fmt.Errorf("%w: client state: %s", errDecodingIbcData, err)
	}
	return s, nil
}

func decodeConsensusState(b []byte) (ConsensusState, error) {
	var s ConsensusState
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return ConsensusState{}, fmt.Errorf("%w: consensus state: %s", errDecodingIbcData, err)
	}
	return s, nil
}

// validateClient dispatches on the client-state key's StateChange, per
// client.rs's validate_client.
func validateClient(ctx *ledger.VpContext, clientID string, txData []byte) error {
	change, err := ClassifyStateChange(ctx, ClientStateKey(clientID))
	if err != nil {
		return err
	}
	switch change {
	case Created:
		return validateCreatedClient(ctx, clientID)
	case Updated:
		return validateUpdatedClient(ctx, clientID, txData)
	default:
		return fmt.Errorf("%w: client %s: unexpected state change", errInvalidStateChange, clientID)
	}
}

// validateCreatedClient requires the posterior client_type, client_state
// and its latest-height consensus_state to all agree on client type
// (IBC-2), mirroring client.rs's validate_created_client.
func validateCreatedClient(ctx *ledger.VpContext, clientID string) error {
	typeBytes, present, err := ctx.ReadPost(ClientTypeKey(clientID))
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: client type doesn't exist: %s", errInvalidClient, clientID)
	}
	clientType := string(typeBytes)

	stateBytes, present, err := ctx.ReadPost(ClientStateKey(clientID))
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: client state doesn't exist: %s", errInvalidClient, clientID)
	}
	state, err := decodeClientState(stateBytes)
	if err != nil {
		return err
	}

	consensusBytes, present, err := ctx.ReadPost(ConsensusStateKey(clientID, state.LatestHeight))
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: consensus state doesn't exist: %s height %s", errInvalidClient, clientID, state.LatestHeight)
	}
	consensus, err := decodeConsensusState(consensusBytes)
	if err != nil {
		return err
	}

	if clientType == state.ClientType && clientType == consensus.ClientType {
		return nil
	}
	return fmt.Errorf("%w: client type mismatch for %s", errInvalidClient, clientID)
}

// validateUpdatedClient tries ClientUpdateData first, falling back to
// ClientUpgradeData when that decode fails or yields no headers — client.rs's
// two-shape fallthrough. gob matches struct fields by name, so upgrade bytes
// decode as a ClientUpdateData with an empty Headers list.
func validateUpdatedClient(ctx *ledger.VpContext, clientID string, txData []byte) error {
	if data, err := decodeClientUpdateData(txData); err == nil && len(data.Headers) > 0 {
		return verifyUpdateClient(ctx, clientID, data)
	}
	data, err := decodeClientUpgradeData(txData)
	if err != nil {
		return fmt.Errorf("%w: %s", errDecodingTxData, err)
	}
	return verifyUpgradeClient(ctx, clientID, data)
}

// verifyUpdateClient folds the tx_data's headers over the prior client
// state and checks the result matches what was actually stored, mirroring
// client.rs's verify_update_client (header-chain cryptographic validation
// itself is the chain's consensus-specific rule, out of scope per spec.md
// Non-goals; this enforces the height-monotonicity and type-stability
// shape of that rule).
func verifyUpdateClient(ctx *ledger.VpContext, clientID string, data ClientUpdateData) error {
	if data.ClientID != clientID {
		return fmt.Errorf("%w: client ID mismatch: %s in tx data, %s in key", errInvalidClient, data.ClientID, clientID)
	}
	if len(data.Headers) == 0 {
		return fmt.Errorf("%w: update client %s carries no headers", errInvalidHeader, clientID)
	}

	prevBytes, present, err := ctx.ReadPre(ClientStateKey(clientID))
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: prior client state doesn't exist: %s", errInvalidClient, clientID)
	}
	prevState, err := decodeClientState(prevBytes)
	if err != nil {
		return err
	}

	height := prevState.LatestHeight
	for _, h := range data.Headers {
		if !height.Less(h.Height) {
			return fmt.Errorf("%w: header height %s does not advance from %s", errInvalidHeader, h.Height, height)
		}
		height = h.Height
	}

	postBytes, present, err := ctx.ReadPost(ClientStateKey(clientID))
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: posterior client state doesn't exist: %s", errInvalidClient, clientID)
	}
	postState, err := decodeClientState(postBytes)
	if err != nil {
		return err
	}
	if postState.ClientType != prevState.ClientType || postState.LatestHeight != height {
		return fmt.Errorf("%w: updated client state doesn't match the folded headers: %s", errInvalidClient, clientID)
	}
	return nil
}

// verifyUpgradeClient checks the upgrade tx_data names the right client and
// carries non-empty proofs; it does not re-verify the proofs' cryptographic
// content, since that verifier is chain-specific and out of spec.md's
// scope (Non-goals: "cryptographic primitives beyond Ed25519 tx-signature
// verification").
func verifyUpgradeClient(ctx *ledger.VpContext, clientID string, data ClientUpgradeData) error {
	if data.ClientID != clientID {
		return fmt.Errorf("%w: client ID mismatch: %s in tx data, %s in key", errInvalidClient, data.ClientID, clientID)
	}
	if len(data.ClientProof) == 0 || len(data.ConsensusProof) == 0 {
		return fmt.Errorf("%w: upgrade client %s missing proof", errProofVerificationFailed, clientID)
	}
	postPresent, err := ctx.HasKeyPost(ClientStateKey(clientID))
	if err != nil {
		return err
	}
	if !postPresent {
		return fmt.Errorf("%w: upgraded client state doesn't exist: %s", errInvalidClient, clientID)
	}
	return nil
}

// validateClientCounter enforces IBC-1: the client counter must strictly
// increase whenever it changes.
func validateClientCounter(ctx *ledger.VpContext) error {
	preBytes, present, err := ctx.ReadPre(ClientCounterKey())
	if err != nil {
		return err
	}
	var pre uint64
	if present {
		pre, err = decodeCounter(preBytes)
		if err != nil {
			return err
		}
	}
	postBytes, present, err := ctx.ReadPost(ClientCounterKey())
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: client counter doesn't exist", errInvalidStateChange)
	}
	post, err := decodeCounter(postBytes)
	if err != nil {
		return err
	}
	if post <= pre {
		return fmt.Errorf("%w: client counter is invalid: %d -> %d", errInvalidStateChange, pre, post)
	}
	return nil
}
