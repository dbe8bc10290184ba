package types

import (
	"context"
)

// RevealDeliverer turns an observed request into a confirmed reveal.
// Implementations handle retries internally and return either a confirmed
// result or a single terminal error.
type RevealDeliverer interface {
	ProcessRequest(ctx context.Context, req *RandomnessRequest) (*SubmitResult, error)
}

// RequestSource streams requests observed on chain.
type RequestSource interface {
	Start(ctx context.Context) error
	Stop() error
	RequestChan() <-chan *RandomnessRequest
	LastScannedBlock() uint64
}
