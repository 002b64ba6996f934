package ibc

import (
	"fmt"

	"vmhost/ledger"
)

// validatePort requires a posterior port binding to exist and the global
// capability index key to exist in the posterior view. The port's stored
// value is not decoded, and no inverse capability entry for the port is
// looked up or compared; there is no capability-owner ACL either.
func validatePort(ctx *ledger.VpContext, portID string) error {
	k := PortKey(portID)
	change, err := ClassifyStateChange(ctx, k)
	if err != nil {
		return err
	}
	if change == Deleted || change == NotExists {
		return fmt.Errorf("%w: port %s: unexpected state change", errInvalidPort, portID)
	}

	present, err := ctx.HasKeyPost(k)
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: port %s doesn't exist", errInvalidPort, portID)
	}

	capPresent, err := ctx.HasKeyPost(CapabilityIndexKey())
	if err != nil {
		return err
	}
	if !capPresent {
		return fmt.Errorf("%w: port %s bound with no capability index", errInvalidPort, portID)
	}
	return nil
}

// validateCapability requires the capability index counter to strictly
// increase whenever a new capability key changes, the same monotonicity
// discipline IBC-1 applies to the client counter.
func validateCapability(ctx *ledger.VpContext) error {
	preBytes, present, err := ctx.ReadPre(CapabilityIndexKey())
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
	postBytes, present, err := ctx.ReadPost(CapabilityIndexKey())
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: capability index doesn't exist", errInvalidPort)
	}
	post, err := decodeCounter(postBytes)
	if err != nil {
		return err
	}
	if post <= pre {
		return fmt.Errorf("%w: capability index is invalid: %d -> %d", errInvalidPort, pre, post)
	}
	return nil
}

func PortKey(portID string) ledger.Key {
	return ledger.NewKey(ibcSeg(), ledger.StrSeg("ports"), ledger.StrSeg(portID))
}

// GetPortID returns the port ID named by an #IBC/ports/<id> key.
func GetPortID(k ledger.Key) (string, error) {
	seg, ok := k.Get(2)
	if !ok {
		return "", fmt.Errorf("%w: key has no port ID: %s", errInvalidKey, k.String())
	}
	return seg.Raw(), nil
}
