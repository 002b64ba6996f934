// Error leaves for the IBC native VP, modeled 1:1 on
// original_source/shared/src/ledger/ibc/{mod,client}.rs's Error enums and
// surfaced as ledger.IbcError so runtime.go can treat them uniformly with
// any other native VP's typed failures (spec.md §4.7).
package ibc

import (
	"errors"
	"fmt"

	"vmhost/ledger"
)

var (
	errInvalidKey              = fmt.Errorf("invalid key")
	errInvalidStateChange      = fmt.Errorf("invalid state change")
	errInvalidClient           = fmt.Errorf("invalid client")
	errInvalidHeader           = fmt.Errorf("invalid header")
	errProofVerificationFailed = fmt.Errorf("proof verification failure")
	errDecodingTxData          = fmt.Errorf("decoding tx data")
	errDecodingIbcData         = fmt.Errorf("decoding ibc data")
	errInvalidConnection       = fmt.Errorf("invalid connection")
	errInvalidChannel          = fmt.Errorf("invalid channel")
	errInvalidPort             = fmt.Errorf("invalid port")
	errInvalidPacket           = fmt.Errorf("invalid packet")
	errInvalidSequence         = fmt.Errorf("invalid sequence")
)

func kindFor(err error) ledger.IbcErrorKind {
	switch err {
	case errInvalidKey:
		return ledger.IbcInvalidKey
	case errInvalidStateChange:
		return ledger.IbcInvalidStateChange
	case errInvalidClient:
		return ledger.IbcInvalidClient
	case errInvalidHeader:
		return ledger.IbcInvalidHeader
	case errProofVerificationFailed:
		return ledger.IbcProofVerificationFailure
	case errDecodingTxData:
		return ledger.IbcDecodingTxData
	case errDecodingIbcData:
		return ledger.IbcDecodingIbcData
	case errInvalidConnection:
		return ledger.IbcInvalidConnection
	case errInvalidChannel:
		return ledger.IbcInvalidChannel
	case errInvalidPort:
		return ledger.IbcInvalidPort
	case errInvalidPacket:
		return ledger.IbcInvalidPacket
	case errInvalidSequence:
		return ledger.IbcInvalidSequence
	default:
		return ledger.IbcInvalidKey
	}
}

// classify wraps a raw sentinel-rooted error (produced with %w against one
// of the vars above) into ledger.IbcError, picking the first sentinel, in
// the order listed below, that errors.Is finds anywhere in the wrap chain.
func classify(err error) *ledger.IbcError {
	if err == nil {
		return nil
	}
	sentinels := []error{
		errInvalidKey, errInvalidStateChange, errInvalidClient, errInvalidHeader,
		errProofVerificationFailed, errDecodingTxData, errDecodingIbcData,
		errInvalidConnection, errInvalidChannel, errInvalidPort, errInvalidPacket,
		errInvalidSequence,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return &ledger.IbcError{Kind: kindFor(s), Detail: err.Error()}
		}
	}
	return &ledger.IbcError{Kind: ledger.IbcInvalidKey, Detail: err.Error()}
}
