package ibc

import (
	"fmt"

	"vmhost/ledger"
)

// validateSequence requires a posterior sequence counter to exist and, if a
// prior one exists, to be strictly greater than it (an unchanged value is
// rejected) — mod.rs applies the same rule to nextSequenceSend/Recv/Ack.
func validateSequence(ctx *ledger.VpContext, k ledger.Key) error {
	change, err := ClassifyStateChange(ctx, k)
	if err != nil {
		return err
	}
	if change == Deleted || change == NotExists {
		return fmt.Errorf("%w: sequence key %s: unexpected state change", errInvalidSequence, k.String())
	}

	postBytes, present, err := ctx.ReadPost(k)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: sequence key %s doesn't exist", errInvalidSequence, k.String())
	}
	post, err := decodeCounter(postBytes)
	if err != nil {
		return err
	}

	if change == Updated {
		preBytes, present, err := ctx.ReadPre(k)
		if err != nil {
			return err
		}
		if present {
			pre, err := decodeCounter(preBytes)
			if err != nil {
				return err
			}
			if post <= pre {
				return fmt.Errorf("%w: sequence %s is invalid: %d -> %d", errInvalidSequence, k.String(), pre, post)
			}
		}
	}
	return nil
}

// validatePacketCommitment requires a created or updated commitment/
// receipt/ack entry to be non-empty in the posterior view, and accepts a
// deleted one — the structural half of mod.rs's
// packet-commitment checks; the cryptographic packet-proof verification
// itself sits outside this module's scope.
func validatePacketCommitment(ctx *ledger.VpContext, k ledger.Key) error {
	change, err := ClassifyStateChange(ctx, k)
	if err != nil {
		return err
	}
	if change == NotExists {
		return fmt.Errorf("%w: packet key %s: unexpected state change", errInvalidPacket, k.String())
	}
	if change == Deleted {
		return nil
	}
	val, present, err := ctx.ReadPost(k)
	if err != nil {
		return err
	}
	if !present || len(val) == 0 {
		return fmt.Errorf("%w: packet key %s has empty value", errInvalidPacket, k.String())
	}
	return nil
}

func NextSequenceSendKey(portID, channelID string) ledger.Key {
	return ledger.NewKey(ibcSeg(), ledger.StrSeg("nextSequenceSend"), ledger.StrSeg(portID), ledger.StrSeg(channelID))
}

func NextSequenceRecvKey(portID, channelID string) ledger.Key {
	return ledger.NewKey(ibcSeg(), ledger.StrSeg("nextSequenceRecv"), ledger.StrSeg(portID), ledger.StrSeg(channelID))
}

func NextSequenceAckKey(portID, channelID string) ledger.Key {
	return ledger.NewKey(ibcSeg(), ledger.StrSeg("nextSequenceAck"), ledger.StrSeg(portID), ledger.StrSeg(channelID))
}
