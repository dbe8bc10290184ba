package service

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/types"
)

// Attempter performs a single delivery attempt.
type Attempter interface {
	SubmitOnce(ctx context.Context, call *Call, params AttemptParams) (*ethtypes.Receipt, error)
}

// ErrorMapper may replace the error of an attempt before the retry
// decision, e.g. wrap it with MarkPermanent. numRetries counts the retries
// made before the failed attempt.
type ErrorMapper func(ctx context.Context, numRetries uint64, err error) error

// EventDecoder extracts the reveal event from a confirmed receipt.
type EventDecoder func(receipt *ethtypes.Receipt) (*types.RevealedEvent, error)

type DeliveryRequest struct {
	Call *Call
	// GasLimit is the callback gas limit before tolerance padding
	GasLimit    uint64
	MapError    ErrorMapper
	DecodeEvent EventDecoder
}

// RetryOrchestrator drives attempts under exponential backoff until one is
// confirmed, a permanent error occurs, or the elapsed time budget is spent.
// Attempts of one delivery are strictly sequential.
type RetryOrchestrator struct {
	submitter Attempter
	policy    EscalationPolicy
	cfg       *config.DeliveryConfig
	logger    *zap.Logger

	onAttemptError func(kind ErrorKind)
}

func NewRetryOrchestrator(
	submitter Attempter,
	policy EscalationPolicy,
	cfg *config.DeliveryConfig,
	logger *zap.Logger,
) *RetryOrchestrator {
	return &RetryOrchestrator{
		submitter: submitter,
		policy:    policy,
		cfg:       cfg,
		logger:    logger,
	}
}

// OnAttemptError registers a callback receiving the kind of every failed
// attempt.
func (o *RetryOrchestrator) OnAttemptError(f func(kind ErrorKind)) {
	o.onAttemptError = f
}

// Deliver returns the confirmed result or a *DeliveryFailure.
func (o *RetryOrchestrator) Deliver(ctx context.Context, req *DeliveryRequest) (*types.SubmitResult, error) {
	backoff := NewBackoff(o.cfg)
	gasLimit := o.policy.PaddedGasLimit(req.GasLimit)

	var (
		numRetries       uint64
		feeMultiplierPct = o.policy.GetFeeMultiplierPct(0)
		receipt          *ethtypes.Receipt
		lastErr          error
		deadlineExceeded bool
	)

	err := retry.Do(
		func() error {
			feeMultiplierPct = o.policy.GetFeeMultiplierPct(numRetries)
			r, err := o.submitter.SubmitOnce(ctx, req.Call, AttemptParams{
				GasLimit:         gasLimit,
				GasMultiplierPct: o.policy.GetGasMultiplierPct(numRetries),
				FeeMultiplierPct: feeMultiplierPct,
			})
			if err != nil && req.MapError != nil {
				err = req.MapError(ctx, numRetries, err)
			}
			if err == nil {
				receipt = r

				return nil
			}

			lastErr = err
			if o.onAttemptError != nil {
				o.onAttemptError(KindOf(err))
			}
			if IsPermanent(err) {
				return retry.Unrecoverable(err)
			}

			return err
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if !retry.IsRecoverable(err) {
				return false
			}
			if backoff.Expired() {
				deadlineExceeded = true

				return false
			}

			return true
		}),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			return backoff.NextDelay()
		}),
		retry.OnRetry(func(_ uint, err error) {
			numRetries++
			o.logger.Debug(
				"failed to deliver reveal, retrying",
				zap.Uint64("attempt", numRetries),
				zap.String("kind", KindOf(err).String()),
				zap.Duration("elapsed", backoff.Elapsed()),
				zap.Error(err),
			)
		}),
	)

	if err == nil && receipt != nil {
		result := &types.SubmitResult{
			NumRetries:       numRetries,
			FeeMultiplierPct: feeMultiplierPct,
			Duration:         backoff.Elapsed(),
			Receipt:          receipt,
		}
		if req.DecodeEvent != nil {
			event, err := req.DecodeEvent(receipt)
			if err != nil {
				o.logger.Warn("failed to decode the reveal event",
					zap.String("tx_hash", receipt.TxHash.Hex()),
					zap.Error(err))
			}
			result.RevealedEvent = event
		}

		return result, nil
	}

	if lastErr == nil {
		lastErr = err
	}

	return nil, &DeliveryFailure{
		NumRetries:       numRetries,
		FeeMultiplierPct: feeMultiplierPct,
		Duration:         backoff.Elapsed(),
		DeadlineExceeded: deadlineExceeded,
		LastErr:          lastErr,
	}
}
