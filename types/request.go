package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// CallbackStatus mirrors the callback state stored with a request on chain.
type CallbackStatus uint8

const (
	CallbackNotNecessary CallbackStatus = iota
	CallbackNotStarted
	CallbackInProgress
	CallbackCompleted
	CallbackFailed
)

func (s CallbackStatus) String() string {
	switch s {
	case CallbackNotNecessary:
		return "NOT_NECESSARY"
	case CallbackNotStarted:
		return "NOT_STARTED"
	case CallbackInProgress:
		return "IN_PROGRESS"
	case CallbackCompleted:
		return "COMPLETED"
	case CallbackFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// NeedsReveal reports whether the keeper should deliver a reveal for a
// request in this state.
func (s CallbackStatus) NeedsReveal() bool {
	return s == CallbackNotStarted || s == CallbackFailed
}

// RandomnessRequest is a request observed in a RequestedWithCallback event.
type RandomnessRequest struct {
	Provider         common.Address
	SequenceNumber   uint64
	Requester        common.Address
	UserRandomNumber common.Hash
	GasLimit         uint32
	BlockNumber      uint64
	TxHash           common.Hash
}

func (r *RandomnessRequest) String() string {
	return fmt.Sprintf("request{seq: %d, requester: %s, block: %d}", r.SequenceNumber, r.Requester.Hex(), r.BlockNumber)
}

// OnChainRequest is the request record held by the entropy contract. A zero
// SequenceNumber means the record no longer exists.
type OnChainRequest struct {
	Provider       common.Address
	SequenceNumber uint64
	NumHashes      uint32
	Commitment     common.Hash
	BlockNumber    uint64
	Requester      common.Address
	UseBlockhash   bool
	CallbackStatus CallbackStatus
	GasLimit       uint32
}

func (r *OnChainRequest) Exists() bool {
	return r != nil && r.SequenceNumber != 0
}
