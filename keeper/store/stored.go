package store

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fortuna-labs/keeper/hashchain"
	"github.com/fortuna-labs/keeper/types"
)

// StoredCommitment is everything needed, besides the provider secret, to
// rebuild one hash chain.
type StoredCommitment struct {
	StartSequenceNumber uint64
	ChainLength         uint64
	SampleInterval      uint64
	CommitmentRandom    [32]byte
	// Commitment is the value registered on chain, kept for operators
	Commitment common.Hash
	CreatedAt  uint64
}

func (c *StoredCommitment) Params() hashchain.CommitmentParams {
	return hashchain.CommitmentParams{
		StartSequenceNumber: c.StartSequenceNumber,
		ChainLength:         c.ChainLength,
		SampleInterval:      c.SampleInterval,
		CommitmentRandom:    c.CommitmentRandom,
	}
}

func (c *StoredCommitment) CreatedTime() time.Time {
	return time.Unix(int64(c.CreatedAt), 0).UTC()
}

// DeliveryStatus is the keeper side state of a request.
type DeliveryStatus uint8

const (
	StatusPending DeliveryStatus = iota
	StatusCompleted
	StatusFailed
	StatusSkipped
	// StatusRejected marks a request whose reveal failed verification
	StatusRejected
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	case StatusSkipped:
		return "SKIPPED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Final reports whether no further delivery should be attempted.
func (s DeliveryStatus) Final() bool {
	return s == StatusCompleted || s == StatusSkipped || s == StatusRejected
}

type StoredRequest struct {
	SequenceNumber   uint64
	Requester        common.Address
	UserRandomNumber common.Hash
	GasLimit         uint32
	BlockNumber      uint64
	RequestTxHash    common.Hash

	Status           DeliveryStatus
	DeliveryTxHash   common.Hash
	NumRetries       uint64
	FeeMultiplierPct uint64
	LastError        string
	UpdatedAt        uint64
}

func newStoredRequest(req *types.RandomnessRequest) *StoredRequest {
	return &StoredRequest{
		SequenceNumber:   req.SequenceNumber,
		Requester:        req.Requester,
		UserRandomNumber: req.UserRandomNumber,
		GasLimit:         req.GasLimit,
		BlockNumber:      req.BlockNumber,
		RequestTxHash:    req.TxHash,
		Status:           StatusPending,
		UpdatedAt:        uint64(time.Now().Unix()),
	}
}

// ToRequest converts the record back into an inbound request.
func (r *StoredRequest) ToRequest(provider common.Address) *types.RandomnessRequest {
	return &types.RandomnessRequest{
		Provider:         provider,
		SequenceNumber:   r.SequenceNumber,
		Requester:        r.Requester,
		UserRandomNumber: r.UserRandomNumber,
		GasLimit:         r.GasLimit,
		BlockNumber:      r.BlockNumber,
		TxHash:           r.RequestTxHash,
	}
}

// DeliveryOutcome is the result of a delivery written back to a record.
type DeliveryOutcome struct {
	Status           DeliveryStatus
	TxHash           common.Hash
	NumRetries       uint64
	FeeMultiplierPct uint64
	Err              error
}

// storedHead is the persisted form of a commitment tracker head.
type storedHead struct {
	ChainOffset    uint64
	SequenceNumber uint64
	Value          common.Hash
}
