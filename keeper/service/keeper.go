package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fortuna-labs/keeper/clientcontroller/api"
	"github.com/fortuna-labs/keeper/commitment"
	"github.com/fortuna-labs/keeper/hashchain"
	"github.com/fortuna-labs/keeper/keeper/store"
	"github.com/fortuna-labs/keeper/metrics"
	"github.com/fortuna-labs/keeper/types"
)

var _ types.RevealDeliverer = (*Keeper)(nil)

// Keeper turns requests into confirmed reveals for a single provider.
type Keeper struct {
	chainID         string
	defaultGasLimit uint32

	ec           api.EntropyController
	registry     *hashchain.ChainRegistry
	tracker      *commitment.Tracker
	orchestrator *RetryOrchestrator
	rs           *store.RequestStore
	metrics      *metrics.KeeperMetrics

	mu       sync.Mutex
	inFlight map[uint64]struct{}

	logger *zap.Logger
}

func NewKeeper(
	chainID string,
	defaultGasLimit uint32,
	ec api.EntropyController,
	registry *hashchain.ChainRegistry,
	tracker *commitment.Tracker,
	orchestrator *RetryOrchestrator,
	rs *store.RequestStore,
	metrics *metrics.KeeperMetrics,
	logger *zap.Logger,
) *Keeper {
	return &Keeper{
		chainID:         chainID,
		defaultGasLimit: defaultGasLimit,
		ec:              ec,
		registry:        registry,
		tracker:         tracker,
		orchestrator:    orchestrator,
		rs:              rs,
		metrics:         metrics,
		inFlight:        make(map[uint64]struct{}),
		logger:          logger,
	}
}

func (k *Keeper) providerLabel() string {
	return k.ec.Provider().Hex()
}

func (k *Keeper) acquire(seq uint64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.inFlight[seq]; ok {
		return false
	}
	k.inFlight[seq] = struct{}{}

	return true
}

func (k *Keeper) release(seq uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.inFlight, seq)
}

// ProcessRequest delivers the reveal for req. It returns ErrRequestFulfilled
// or ErrRequestInFlight when there is nothing to do, and a *DeliveryFailure
// when the delivery gave up.
func (k *Keeper) ProcessRequest(ctx context.Context, req *types.RandomnessRequest) (*types.SubmitResult, error) {
	if !k.acquire(req.SequenceNumber) {
		return nil, ErrRequestInFlight
	}
	defer k.release(req.SequenceNumber)

	created, err := k.rs.SaveRequest(k.chainID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to save request %d: %w", req.SequenceNumber, err)
	}
	if created {
		k.metrics.IncrementRequestsReceived(k.chainID, k.providerLabel())
	} else {
		record, err := k.rs.GetDeliveryRecord(k.chainID, req.Provider, req.SequenceNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to load request %d: %w", req.SequenceNumber, err)
		}
		if record.Status.Final() {
			return nil, fmt.Errorf("%w: sequence number %d is %s",
				ErrRequestFulfilled, req.SequenceNumber, record.Status)
		}
	}

	onChain, err := k.getRequestWithRetry(ctx, req.SequenceNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query request %d: %w", req.SequenceNumber, err)
	}
	if !onChain.Exists() || !onChain.CallbackStatus.NeedsReveal() {
		k.logger.Debug("skipping request which does not need a reveal",
			zap.Uint64("sequence_number", req.SequenceNumber),
			zap.Bool("exists", onChain.Exists()),
			zap.Stringer("callback_status", onChain.CallbackStatus))
		k.finish(req, store.StatusSkipped, metrics.StatusSkipped, nil, nil)

		return nil, fmt.Errorf("%w: sequence number %d", ErrRequestFulfilled, req.SequenceNumber)
	}

	revelation, chainOffset, err := k.reveal(req.SequenceNumber, req.UserRandomNumber, onChain)
	if err != nil {
		k.logger.Error("refusing to deliver the reveal",
			zap.Uint64("sequence_number", req.SequenceNumber),
			zap.String("kind", KindOf(err).String()),
			zap.Error(err))
		k.metrics.IncrementTxErrors(k.chainID, KindOf(err).String())
		k.finish(req, store.StatusRejected, metrics.StatusRejected, nil, err)

		return nil, err
	}

	data, err := k.ec.PackRevealWithCallback(req.SequenceNumber, req.UserRandomNumber, revelation)
	if err != nil {
		return nil, fmt.Errorf("failed to pack the reveal of %d: %w", req.SequenceNumber, err)
	}

	k.metrics.DeliveryStarted()
	result, err := k.orchestrator.Deliver(ctx, &DeliveryRequest{
		Call:        &Call{To: k.ec.ContractAddress(), Data: data},
		GasLimit:    uint64(k.gasLimit(req, onChain)),
		MapError:    k.fulfilledMapper(req.SequenceNumber),
		DecodeEvent: k.ec.DecodeRevealedEvent,
	})
	k.metrics.DeliveryFinished()

	if err != nil {
		var failure *DeliveryFailure
		switch {
		case errors.Is(err, ErrRequestFulfilled):
			k.logger.Info("the request was fulfilled during delivery",
				zap.Uint64("sequence_number", req.SequenceNumber))
			k.finish(req, store.StatusSkipped, metrics.StatusSkipped, nil, nil)
		case errors.As(err, &failure):
			k.logger.Error("failed to deliver the reveal",
				zap.Uint64("sequence_number", req.SequenceNumber),
				zap.Uint64("num_retries", failure.NumRetries),
				zap.Uint64("fee_multiplier_pct", failure.FeeMultiplierPct),
				zap.Bool("deadline_exceeded", failure.DeadlineExceeded),
				zap.Error(failure.LastErr))
			k.finish(req, store.StatusFailed, metrics.StatusExhausted, failure, err)
		}

		return nil, err
	}

	if k.tracker.Advance(chainOffset, req.SequenceNumber, revelation) {
		head, _ := k.tracker.Head(chainOffset)
		if err := k.rs.SetTrackerHead(k.chainID, req.Provider, head); err != nil {
			k.logger.Error("failed to persist the commitment head",
				zap.Uint64("chain_offset", chainOffset), zap.Error(err))
		}
	}

	k.checkRandomNumber(ctx, req, onChain, revelation, result.RevealedEvent)

	if err := k.rs.SetDeliveryOutcome(k.chainID, req.Provider, req.SequenceNumber, &store.DeliveryOutcome{
		Status:           store.StatusCompleted,
		TxHash:           result.TxHash(),
		NumRetries:       result.NumRetries,
		FeeMultiplierPct: result.FeeMultiplierPct,
	}); err != nil {
		k.logger.Error("failed to persist the delivery outcome",
			zap.Uint64("sequence_number", req.SequenceNumber), zap.Error(err))
	}
	k.metrics.RecordDelivery(k.chainID, k.providerLabel(), metrics.StatusConfirmed,
		result.NumRetries, result.FeeMultiplierPct, result.Duration)

	k.logger.Info("successfully delivered the reveal",
		zap.Uint64("sequence_number", req.SequenceNumber),
		zap.String("tx_hash", result.TxHash().Hex()),
		zap.Uint64("num_retries", result.NumRetries),
		zap.Uint64("fee_multiplier_pct", result.FeeMultiplierPct),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// reveal computes the revelation of seq and checks it against the
// commitment recorded with the request and against the tracked chain head.
func (k *Keeper) reveal(seq uint64, userRandom common.Hash, onChain *types.OnChainRequest) (common.Hash, uint64, error) {
	chainOffset, _, err := k.registry.ChainFor(seq)
	if err != nil {
		return common.Hash{}, 0, err
	}

	revelation, err := k.registry.Reveal(seq)
	if err != nil {
		return common.Hash{}, 0, err
	}

	if err := commitment.VerifyRevelation(onChain.Commitment, userRandom, uint64(onChain.NumHashes), revelation); err != nil {
		return common.Hash{}, 0, err
	}

	if err := k.tracker.VerifyAgainstHead(chainOffset, seq, revelation); err != nil {
		return common.Hash{}, 0, err
	}

	return revelation, chainOffset, nil
}

func (k *Keeper) gasLimit(req *types.RandomnessRequest, onChain *types.OnChainRequest) uint32 {
	switch {
	case onChain.GasLimit != 0:
		return onChain.GasLimit
	case req.GasLimit != 0:
		return req.GasLimit
	default:
		return k.defaultGasLimit
	}
}

// fulfilledMapper turns estimation and receipt failures into permanent ones
// once the request no longer waits for a reveal, typically because another
// keeper delivered it first.
func (k *Keeper) fulfilledMapper(seq uint64) ErrorMapper {
	return func(ctx context.Context, numRetries uint64, err error) error {
		kind := KindOf(err)
		if kind != KindGasUsageEstimate && kind != KindReceipt {
			return err
		}

		onChain, qErr := k.ec.GetRequest(ctx, seq)
		if qErr != nil {
			k.logger.Debug("failed to re-check the request after a failed attempt",
				zap.Uint64("sequence_number", seq),
				zap.Uint64("num_retries", numRetries),
				zap.Error(qErr))

			return err
		}
		if !onChain.Exists() || !onChain.CallbackStatus.NeedsReveal() {
			return MarkPermanent(fmt.Errorf("%w: %w", ErrRequestFulfilled, err))
		}

		return err
	}
}

// checkRandomNumber compares the random number emitted by the contract with
// the one computed locally. A mismatch does not undo the delivery.
func (k *Keeper) checkRandomNumber(
	ctx context.Context,
	req *types.RandomnessRequest,
	onChain *types.OnChainRequest,
	revelation common.Hash,
	event *types.RevealedEvent,
) {
	if event == nil {
		return
	}

	var blockEntropy common.Hash
	if onChain.UseBlockhash {
		hash, err := k.ec.BlockHash(ctx, onChain.BlockNumber)
		if err != nil {
			k.logger.Warn("failed to query the request block hash",
				zap.Uint64("sequence_number", req.SequenceNumber),
				zap.Uint64("block", onChain.BlockNumber),
				zap.Error(err))

			return
		}
		blockEntropy = hash
	}

	expected := commitment.FinalRandomValue(req.UserRandomNumber, revelation, blockEntropy)
	if event.RandomNumber != expected {
		k.logger.Error("the delivered random number does not match the local computation",
			zap.Uint64("sequence_number", req.SequenceNumber),
			zap.String("expected", expected.Hex()),
			zap.String("actual", event.RandomNumber.Hex()))
	}
}

func (k *Keeper) finish(
	req *types.RandomnessRequest,
	status store.DeliveryStatus,
	metricStatus string,
	failure *DeliveryFailure,
	cause error,
) {
	outcome := &store.DeliveryOutcome{Status: status, Err: cause}
	var retries, feePct uint64
	if failure != nil {
		retries, feePct = failure.NumRetries, failure.FeeMultiplierPct
		outcome.NumRetries = retries
		outcome.FeeMultiplierPct = feePct
		var te *TxError
		if errors.As(failure.LastErr, &te) && te.Tx != nil {
			outcome.TxHash = te.Tx.Hash()
		}
	}

	if err := k.rs.SetDeliveryOutcome(k.chainID, req.Provider, req.SequenceNumber, outcome); err != nil {
		k.logger.Error("failed to persist the delivery outcome",
			zap.Uint64("sequence_number", req.SequenceNumber), zap.Error(err))
	}
	k.metrics.RecordDelivery(k.chainID, k.providerLabel(), metricStatus, retries, feePct, 0)
}

func (k *Keeper) getRequestWithRetry(ctx context.Context, seq uint64) (*types.OnChainRequest, error) {
	var (
		res *types.OnChainRequest
		err error
	)

	if err := retry.Do(func() error {
		res, err = k.ec.GetRequest(ctx, seq)

		return err
	}, RtyAtt, RtyDel, RtyErr, retry.Context(ctx), retry.OnRetry(func(n uint, err error) {
		k.logger.Debug(
			"failed to query the on-chain request",
			zap.Uint64("sequence_number", seq),
			zap.Uint("attempt", n+1),
			zap.Uint("max_attempts", RtyAttNum),
			zap.Error(err),
		)
	})); err != nil {
		return nil, err
	}

	return res, nil
}
