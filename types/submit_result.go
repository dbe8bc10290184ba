package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// RevealedEvent is the decoded RevealedWithCallback log.
type RevealedEvent struct {
	Provider           common.Address
	SequenceNumber     uint64
	UserRandomNumber   common.Hash
	ProviderRevelation common.Hash
	RandomNumber       common.Hash
}

// SubmitResult describes a confirmed delivery.
type SubmitResult struct {
	NumRetries       uint64
	FeeMultiplierPct uint64
	Duration         time.Duration
	Receipt          *ethtypes.Receipt
	RevealedEvent    *RevealedEvent
}

func (r *SubmitResult) TxHash() common.Hash {
	if r == nil || r.Receipt == nil {
		return common.Hash{}
	}

	return r.Receipt.TxHash
}
