package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/fortuna-labs/keeper/clientcontroller/api"
	"github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/keeper/store"
	"github.com/fortuna-labs/keeper/metrics"
	"github.com/fortuna-labs/keeper/types"
	"github.com/fortuna-labs/keeper/util"
)

var (
	RtyAttNum = uint(5)
	RtyAtt    = retry.Attempts(RtyAttNum)
	RtyDel    = retry.Delay(time.Millisecond * 400)
	RtyErr    = retry.LastErrorOnly(true)
)

const (
	maxFailedCycles = 20
)

// RequestPoller scans the entropy contract for requests to the provider and
// streams them in block order. Scanning progress is persisted so a restart
// resumes after the last fully scanned block.
type RequestPoller struct {
	isStarted *atomic.Bool
	wg        sync.WaitGroup
	quit      chan struct{}
	cancel    context.CancelFunc

	chainID     string
	ec          api.EntropyController
	rs          *store.RequestStore
	cfg         *config.RequestPollerConfig
	metrics     *metrics.KeeperMetrics
	requestChan chan *types.RandomnessRequest

	mu        sync.RWMutex
	nextBlock uint64

	logger *zap.Logger
}

func NewRequestPoller(
	chainID string,
	ec api.EntropyController,
	rs *store.RequestStore,
	cfg *config.RequestPollerConfig,
	metrics *metrics.KeeperMetrics,
	logger *zap.Logger,
) *RequestPoller {
	return &RequestPoller{
		isStarted:   atomic.NewBool(false),
		quit:        make(chan struct{}),
		chainID:     chainID,
		ec:          ec,
		rs:          rs,
		cfg:         cfg,
		metrics:     metrics,
		requestChan: make(chan *types.RandomnessRequest, cfg.BufferSize),
		logger:      logger,
	}
}

// Start determines the first block to scan and starts polling. Requests
// left unfinished by a previous run are emitted first.
func (rp *RequestPoller) Start(ctx context.Context) error {
	if rp.isStarted.Swap(true) {
		return fmt.Errorf("the request poller is already started")
	}

	rp.logger.Info("starting the request poller")

	startBlock, err := rp.startBlock(ctx)
	if err != nil {
		rp.isStarted.Store(false)

		return fmt.Errorf("failed to determine the start block: %w", err)
	}
	rp.setNextBlock(startBlock)

	unfinished, err := rp.rs.GetUnfinishedRequests(rp.chainID, rp.ec.Provider())
	if err != nil {
		rp.isStarted.Store(false)

		return fmt.Errorf("failed to load unfinished requests: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	rp.cancel = cancel

	rp.wg.Add(1)
	go rp.pollChain(pollCtx, unfinished)

	rp.logger.Info("the request poller is successfully started",
		zap.Uint64("start_block", startBlock),
		zap.Int("unfinished_requests", len(unfinished)))

	return nil
}

func (rp *RequestPoller) Stop() error {
	if !rp.isStarted.Swap(false) {
		return fmt.Errorf("the request poller has already stopped")
	}

	rp.logger.Info("stopping the request poller")
	close(rp.quit)
	rp.cancel()
	rp.wg.Wait()

	rp.logger.Info("the request poller is successfully stopped")

	return nil
}

func (rp *RequestPoller) IsRunning() bool {
	return rp.isStarted.Load()
}

// RequestChan returns the read-only channel for incoming requests
func (rp *RequestPoller) RequestChan() <-chan *types.RandomnessRequest {
	return rp.requestChan
}

// LastScannedBlock returns the last block whose requests were all emitted
func (rp *RequestPoller) LastScannedBlock() uint64 {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	if rp.nextBlock == 0 {
		return 0
	}

	return rp.nextBlock - 1
}

func (rp *RequestPoller) NextBlock() uint64 {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	return rp.nextBlock
}

func (rp *RequestPoller) setNextBlock(block uint64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.nextBlock = block
}

// startBlock prefers the stored progress, then the configured start block,
// then the current confirmed tip.
func (rp *RequestPoller) startBlock(ctx context.Context) (uint64, error) {
	last, err := rp.rs.GetLastScannedBlock(rp.chainID, rp.ec.Provider())
	switch {
	case err == nil:
		return last + 1, nil
	case !errors.Is(err, store.ErrProgressNotFound):
		return 0, err
	}

	if rp.cfg.StartBlock != 0 {
		return rp.cfg.StartBlock, nil
	}

	latest, err := rp.latestBlockWithRetry(ctx)
	if err != nil {
		return 0, err
	}

	return rp.confirmedTip(latest) + 1, nil
}

func (rp *RequestPoller) confirmedTip(latest uint64) uint64 {
	if latest < rp.cfg.Confirmations {
		return 0
	}

	return latest - rp.cfg.Confirmations
}

func (rp *RequestPoller) latestBlockWithRetry(ctx context.Context) (uint64, error) {
	var (
		latest uint64
		err    error
	)

	if err := retry.Do(func() error {
		latest, err = rp.ec.LatestBlock(ctx)

		return err
	}, RtyAtt, RtyDel, RtyErr, retry.Context(ctx), retry.OnRetry(func(n uint, err error) {
		rp.logger.Debug(
			"failed to query the latest block",
			zap.Uint("attempt", n+1),
			zap.Uint("max_attempts", RtyAttNum),
			zap.Error(err),
		)
	})); err != nil {
		return 0, err
	}

	return latest, nil
}

func (rp *RequestPoller) requestsWithRetry(ctx context.Context, from, to uint64) ([]*types.RandomnessRequest, error) {
	var (
		requests []*types.RandomnessRequest
		err      error
	)

	if err := retry.Do(func() error {
		requests, err = rp.ec.FilterRequests(ctx, from, to)

		return err
	}, RtyAtt, RtyDel, RtyErr, retry.Context(ctx), retry.OnRetry(func(n uint, err error) {
		rp.logger.Debug(
			"failed to query requests for the block range",
			zap.Uint("attempt", n+1),
			zap.Uint("max_attempts", RtyAttNum),
			zap.Uint64("from_block", from),
			zap.Uint64("to_block", to),
			zap.Error(err),
		)
	})); err != nil {
		return nil, err
	}

	return requests, nil
}

func (rp *RequestPoller) pollChain(ctx context.Context, unfinished []*store.StoredRequest) {
	defer rp.wg.Done()

	provider := rp.ec.Provider()
	for _, r := range unfinished {
		if !rp.push(r.ToRequest(provider)) {
			return
		}
	}

	var failedCycles uint32

	for {
		caughtUp, err := rp.pollOnce(ctx)
		if err != nil {
			failedCycles++
			rp.logger.Debug(
				"failed to scan the chain for requests",
				zap.Uint32("current_failures", failedCycles),
				zap.Uint64("next_block", rp.NextBlock()),
				zap.Error(err),
			)
		} else {
			failedCycles = 0
		}

		if failedCycles > maxFailedCycles {
			rp.logger.Error("the request poller has reached the max failed cycles, backing off",
				zap.Uint32("failed_cycles", failedCycles))
			failedCycles = 0
		}

		// keep going without waiting while there is a backlog
		if err == nil && !caughtUp {
			select {
			case <-rp.quit:
				return
			default:
				continue
			}
		}

		select {
		case <-time.After(rp.cfg.PollInterval):
			continue
		case <-rp.quit:
			return
		}
	}
}

// pollOnce scans at most one batch of blocks and reports whether the
// confirmed tip has been reached.
func (rp *RequestPoller) pollOnce(ctx context.Context) (bool, error) {
	latest, err := rp.latestBlockWithRetry(ctx)
	if err != nil {
		return false, err
	}

	from := rp.NextBlock()
	tip := rp.confirmedTip(latest)
	if from > tip {
		return true, nil
	}

	to := min(from+rp.cfg.BlockBatchSize-1, tip)
	requests, err := rp.requestsWithRetry(ctx, from, to)
	if err != nil {
		return false, err
	}

	seqs := make([]uint64, 0, len(requests))
	for _, req := range requests {
		seqs = append(seqs, req.SequenceNumber)
	}
	if err := util.ValidateNoDuplicateSequenceNumbers(seqs); err != nil {
		// duplicates are dropped by the keeper, the scan goes on
		rp.logger.Warn("the block range contains repeated requests",
			zap.Uint64("from_block", from),
			zap.Uint64("to_block", to),
			zap.Error(err))
	}

	// requests are stored before the progress moves past them so a restart
	// resumes them from the store
	for _, req := range requests {
		created, err := rp.rs.SaveRequest(rp.chainID, req)
		if err != nil {
			return false, fmt.Errorf("failed to save request %d: %w", req.SequenceNumber, err)
		}
		if created {
			rp.metrics.IncrementRequestsReceived(rp.chainID, rp.ec.Provider().Hex())
		}
	}

	for _, req := range requests {
		if !rp.push(req) {
			return true, nil
		}
	}

	rp.setNextBlock(to + 1)
	if err := rp.rs.SetLastScannedBlock(rp.chainID, rp.ec.Provider(), to); err != nil {
		rp.logger.Error("failed to persist the scanning progress",
			zap.Uint64("block", to), zap.Error(err))
	}
	rp.metrics.RecordLastScannedBlock(rp.chainID, rp.ec.Provider().Hex(), to)

	if len(requests) > 0 {
		rp.logger.Info("the poller retrieved requests from the chain",
			zap.Uint64("from_block", from),
			zap.Uint64("to_block", to),
			zap.Int("num_requests", len(requests)))
	}

	return to == tip, nil
}

// push blocks while the buffer is full. It returns false if the poller is
// stopping.
func (rp *RequestPoller) push(req *types.RandomnessRequest) bool {
	select {
	case rp.requestChan <- req:
		return true
	case <-rp.quit:
		return false
	}
}
