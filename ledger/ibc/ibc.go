// Dispatch is the IBC native validity predicate's entry point, registered
// under ledger.IBCInternalID. It walks every #IBC/... key a transaction
// touched and runs the matching per-prefix validator, mirroring mod.rs's
// Ibc::validate_tx loop (including its "validate each client at most once
// per tx" bookkeeping).
package ibc

import (
	"fmt"

	"vmhost/ledger"
)

func init() {
	ledger.RegisterNativeVP(ledger.IBCInternalID, Dispatch)
}

// Dispatch implements ledger.NativeVpFunc for the IBC internal address.
func Dispatch(ctx *ledger.VpContext, txData []byte, keysChanged []string, verifiers *ledger.VerifierSet) (ledger.NativeVpResult, error) {
	validatedClients := make(map[string]bool)

	for _, raw := range keysChanged {
		k := ledger.ParseKey(raw)
		if !ledger.IsIBCKey(k) {
			continue
		}

		prefix := ClassifyPrefix(k)
		var err error
		switch prefix {
		case PrefixClient:
			err = dispatchClient(ctx, k, txData, validatedClients)
		case PrefixConnection:
			connID, cerr := GetConnectionID(k)
			if cerr != nil {
				err = cerr
				break
			}
			err = validateConnection(ctx, connID, prefix)
		case PrefixChannel:
			portID, channelID, cerr := GetPortChannelID(k)
			if cerr != nil {
				err = cerr
				break
			}
			err = validateChannel(ctx, portID, channelID)
		case PrefixPort:
			portID, cerr := GetPortID(k)
			if cerr != nil {
				err = cerr
				break
			}
			err = validatePort(ctx, portID)
		case PrefixCapability:
			err = validateCapability(ctx)
		case PrefixSeqSend, PrefixSeqRecv, PrefixSeqAck:
			err = validateSequence(ctx, k)
		case PrefixCommitment, PrefixReceipt, PrefixAck:
			err = validatePacketCommitment(ctx, k)
		default:
			// PrefixUnknown: an #IBC key whose second segment names no
			// known sub-module is a terminal KeyError (spec.md §4.9),
			// not a skip.
			err = fmt.Errorf("%w: unrecognized IBC key prefix in %q", errInvalidKey, k.String())
		}

		if err != nil {
			return ledger.VpReject, classify(err)
		}
	}

	return ledger.VpAccept, nil
}

// dispatchClient validates one client key, skipping client IDs already
// validated earlier in this same Dispatch call (mod.rs keeps a HashSet of
// already-checked client IDs for exactly this reason) and special-casing
// the counter key itself.
func dispatchClient(ctx *ledger.VpContext, k ledger.Key, txData []byte, validated map[string]bool) error {
	if k.String() == ClientCounterKey().String() {
		return validateClientCounter(ctx)
	}

	clientID, err := GetClientID(k)
	if err != nil {
		return err
	}
	if validated[clientID] {
		return nil
	}
	validated[clientID] = true
	return validateClient(ctx, clientID, txData)
}
