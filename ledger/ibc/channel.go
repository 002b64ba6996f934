package ibc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"vmhost/ledger"
)

// ChannelState mirrors the fields mod.rs's channel validator inspects.
type ChannelState struct {
	PortID       string
	ConnectionID string
	State        string // "init", "tryopen", "open", "closed"
}

func decodeChannelState(b []byte) (ChannelState, error) {
	var s ChannelState
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return ChannelState{}, fmt.Errorf("%w: channel state: %s", errDecodingIbcData, err)
	}
	return s, nil
}

// validateChannel requires a posterior channel end to exist, name a
// connection that itself exists, and carry a known state.
func validateChannel(ctx *ledger.VpContext, portID, channelID string) error {
	k := ChannelStateKey(portID, channelID)
	change, err := ClassifyStateChange(ctx, k)
	if err != nil {
		return err
	}
	if change == Deleted || change == NotExists {
		return fmt.Errorf("%w: channel %s/%s: unexpected state change", errInvalidChannel, portID, channelID)
	}

	raw, present, err := ctx.ReadPost(k)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: channel %s/%s doesn't exist", errInvalidChannel, portID, channelID)
	}
	ch, err := decodeChannelState(raw)
	if err != nil {
		return err
	}
	switch ch.State {
	case "init", "tryopen", "open", "closed":
	default:
		return fmt.Errorf("%w: channel %s/%s has unknown state %q", errInvalidChannel, portID, channelID, ch.State)
	}
	if ch.PortID != portID {
		return fmt.Errorf("%w: channel %s/%s port mismatch: stored %s", errInvalidChannel, portID, channelID, ch.PortID)
	}

	connExists, err := ctx.HasKeyPost(ConnectionStateKey(ch.ConnectionID))
	if err != nil {
		return err
	}
	if !connExists {
		return fmt.Errorf("%w: channel %s/%s names unknown connection %s", errInvalidChannel, portID, channelID, ch.ConnectionID)
	}
	return nil
}

func ChannelStateKey(portID, channelID string) ledger.Key {
	return ledger.NewKey(ibcSeg(), ledger.StrSeg("channelEnds"), ledger.StrSeg(portID), ledger.StrSeg(channelID))
}

// GetPortChannelID returns the (port, channel) ID pair named by an
// #IBC/channelEnds/<port>/<channel> key.
func GetPortChannelID(k ledger.Key) (portID, channelID string, err error) {
	p, ok := k.Get(2)
	if !ok {
		return "", "", fmt.Errorf("%w: key has no port ID: %s", errInvalidKey, k.String())
	}
	c, ok := k.Get(3)
	if !ok {
		return "", "", fmt.Errorf("%w: key has no channel ID: %s", errInvalidKey, k.String())
	}
	return p.Raw(), c.Raw(), nil
}
