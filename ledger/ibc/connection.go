package ibc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"vmhost/ledger"
)

// ConnectionState mirrors the handful of fields mod.rs's connection
// validator actually inspects; full ICS-3 proof verification is out of
// scope (spec.md Non-goals: "concrete wire encodings of IBC messages").
type ConnectionState struct {
	ClientID string
	State    string // "init", "tryopen", "open"
}

func decodeConnectionState(b []byte) (ConnectionState, error) {
	var s ConnectionState
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return ConnectionState{}, fmt.Errorf("%w: connection state: %s", errDecodingIbcData, err)
	}
	return s, nil
}

// validateConnection requires a posterior connection end to exist, name a
// client that itself exists, and carry one of the three known handshake
// states — a structural stand-in for mod.rs's connection_open_{init,try,
// ack,confirm} validators.
func validateConnection(ctx *ledger.VpContext, connectionID string, keyPrefix Prefix) error {
	_ = keyPrefix
	k := ConnectionStateKey(connectionID)
	change, err := ClassifyStateChange(ctx, k)
	if err != nil {
		return err
	}
	if change == Deleted || change == NotExists {
		return fmt.Errorf("%w: connection %s: unexpected state change", errInvalidConnection, connectionID)
	}

	raw, present, err := ctx.ReadPost(k)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: connection %s doesn't exist", errInvalidConnection, connectionID)
	}
	conn, err := decodeConnectionState(raw)
	if err != nil {
		return err
	}
	switch conn.State {
	case "init", "tryopen", "open":
	default:
		return fmt.Errorf("%w: connection %s has unknown state %q", errInvalidConnection, connectionID, conn.State)
	}

	clientExists, err := ctx.HasKeyPost(ClientStateKey(conn.ClientID))
	if err != nil {
		return err
	}
	if !clientExists {
		return fmt.Errorf("%w: connection %s names unknown client %s", errInvalidConnection, connectionID, conn.ClientID)
	}
	return nil
}

func ConnectionStateKey(connectionID string) ledger.Key {
	return ledger.NewKey(ibcSeg(), ledger.StrSeg("connections"), ledger.StrSeg(connectionID))
}

// GetConnectionID returns the connection ID named by an
// #IBC/connections/<id> key's third segment.
func GetConnectionID(k ledger.Key) (string, error) {
	seg, ok := k.Get(2)
	if !ok {
		return "", fmt.Errorf("%w: key has no connection ID: %s", errInvalidKey, k.String())
	}
	return seg.Raw(), nil
}
