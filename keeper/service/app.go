package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightningnetwork/lnd/kvdb"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	kpcc "github.com/fortuna-labs/keeper/clientcontroller"
	"github.com/fortuna-labs/keeper/clientcontroller/api"
	"github.com/fortuna-labs/keeper/commitment"
	"github.com/fortuna-labs/keeper/hashchain"
	kpcfg "github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/keeper/store"
	"github.com/fortuna-labs/keeper/metrics"
	"github.com/fortuna-labs/keeper/types"
	"github.com/fortuna-labs/keeper/util"
)

// KeeperApp wires the request source to the keeper and runs deliveries
// concurrently up to the configured limit.
type KeeperApp struct {
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	quit      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	client   api.EthClient
	ec       api.EntropyController
	cs       *store.CommitmentStore
	rs       *store.RequestStore
	registry *hashchain.ChainRegistry
	tracker  *commitment.Tracker
	keeper   *Keeper
	source   types.RequestSource
	nonces   *NonceManager
	config   *kpcfg.Config
	metrics  *metrics.KeeperMetrics
	logger   *zap.Logger
}

// NewKeeperAppFromConfig dials the configured chain and builds the app.
func NewKeeperAppFromConfig(
	ctx context.Context,
	cfg *kpcfg.Config,
	db kvdb.Backend,
	logger *zap.Logger,
) (*KeeperApp, error) {
	client, err := kpcc.NewEthClient(ctx, cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	evmChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to query the EVM chain id: %w", err)
	}

	ec, err := kpcc.NewEntropyController(client, cfg, logger)
	if err != nil {
		client.Close()

		return nil, err
	}

	signer, err := kpcc.NewSigner(cfg.ChainConfig)
	if err != nil {
		client.Close()

		return nil, err
	}

	logger.Info("successfully connected to the chain",
		zap.String("rpc_address", cfg.ChainConfig.RPCAddress),
		zap.String("evm_chain_id", evmChainID.String()),
		zap.String("signer", signer.Address().Hex()))

	return NewKeeperApp(cfg, client, ec, signer, evmChainID, metrics.NewKeeperMetrics(), db, logger)
}

func NewKeeperApp(
	config *kpcfg.Config,
	client api.EthClient,
	ec api.EntropyController,
	signer api.Signer,
	evmChainID *big.Int,
	m *metrics.KeeperMetrics,
	db kvdb.Backend,
	logger *zap.Logger,
) (*KeeperApp, error) {
	cs, err := store.NewCommitmentStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate commitment store: %w", err)
	}
	rs, err := store.NewRequestStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate request store: %w", err)
	}

	secret, err := util.ReadHexFile(config.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load the provider secret: %w", err)
	}

	provider := ec.Provider()
	providerLabel := provider.Hex()
	registry, err := LoadRegistry(cs, secret, config.ChainID, provider, ec.ContractAddress(),
		hashchain.WithRevealObserver(func(seq uint64) {
			m.RecordHighestRevealed(config.ChainID, providerLabel, seq)
		}))
	if err != nil {
		return nil, err
	}

	tracker, err := loadTracker(rs, cs, registry, config.ChainID, provider)
	if err != nil {
		return nil, err
	}

	nonces := NewNonceManager(client, signer.Address(), logger)
	nonces.OnReset(func() {
		m.IncrementNonceResets(signer.Address().Hex())
	})

	submitter := NewTxSubmitter(client, signer, nonces, evmChainID, config.DeliveryConfig, logger)
	orchestrator := NewRetryOrchestrator(submitter, NewEscalationPolicy(config.EscalationConfig), config.DeliveryConfig, logger)
	orchestrator.OnAttemptError(func(kind ErrorKind) {
		m.IncrementTxErrors(config.ChainID, kind.String())
	})

	keeper := NewKeeper(config.ChainID, config.DefaultGasLimit, ec, registry, tracker, orchestrator, rs, m, logger)
	poller := NewRequestPoller(config.ChainID, ec, rs, config.PollerConfig, m, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &KeeperApp{
		quit:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		client:   client,
		ec:       ec,
		cs:       cs,
		rs:       rs,
		registry: registry,
		tracker:  tracker,
		keeper:   keeper,
		source:   poller,
		nonces:   nonces,
		config:   config,
		metrics:  m,
		logger:   logger,
	}, nil
}

// LoadRegistry rebuilds every stored chain of the provider.
func LoadRegistry(
	cs *store.CommitmentStore,
	secret []byte,
	chainID string,
	provider, contract common.Address,
	opts ...hashchain.RegistryOption,
) (*hashchain.ChainRegistry, error) {
	stored, err := cs.GetCommitments(chainID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitments: %w", err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("no commitments stored for provider %s on chain %s", provider.Hex(), chainID)
	}

	params := make([]hashchain.CommitmentParams, 0, len(stored))
	for _, c := range stored {
		params = append(params, c.Params())
	}

	registry, err := hashchain.FromCommitments(secret, chainID, provider, contract, params, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild hash chains: %w", err)
	}

	return registry, nil
}

// loadTracker restores the persisted heads. Chains without a persisted head
// start from their commitment.
func loadTracker(
	rs *store.RequestStore,
	cs *store.CommitmentStore,
	registry *hashchain.ChainRegistry,
	chainID string,
	provider common.Address,
) (*commitment.Tracker, error) {
	heads, err := rs.GetTrackerHeads(chainID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitment heads: %w", err)
	}

	known := make(map[uint64]struct{}, len(heads))
	for _, h := range heads {
		known[h.ChainOffset] = struct{}{}
	}

	stored, err := cs.GetCommitments(chainID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitments: %w", err)
	}
	for _, c := range stored {
		if _, ok := known[c.StartSequenceNumber]; ok {
			continue
		}
		_, chain, err := registry.ChainFor(c.StartSequenceNumber)
		if err != nil {
			return nil, err
		}
		heads = append(heads, commitment.Head{
			ChainOffset:    c.StartSequenceNumber,
			SequenceNumber: c.StartSequenceNumber,
			Value:          chain.Commitment(),
		})
	}

	return commitment.NewTracker(heads...), nil
}

func (app *KeeperApp) GetConfig() *kpcfg.Config {
	return app.config
}

func (app *KeeperApp) GetRegistry() *hashchain.ChainRegistry {
	return app.registry
}

func (app *KeeperApp) GetTracker() *commitment.Tracker {
	return app.tracker
}

func (app *KeeperApp) GetRequestStore() *store.RequestStore {
	return app.rs
}

func (app *KeeperApp) Metrics() *metrics.KeeperMetrics {
	return app.metrics
}

// Start starts the request source and the delivery loop
func (app *KeeperApp) Start(ctx context.Context) error {
	var startErr error
	app.startOnce.Do(func() {
		app.logger.Info("Starting KeeperApp",
			zap.String("chain_id", app.config.ChainID),
			zap.String("provider", app.ec.Provider().Hex()),
			zap.Int("num_chains", app.registry.Len()))

		if err := app.source.Start(ctx); err != nil {
			startErr = fmt.Errorf("failed to start the request source: %w", err)

			return
		}

		app.wg.Add(1)
		go app.deliveryLoop()
	})

	return startErr
}

func (app *KeeperApp) Stop() error {
	var stopErr error
	app.stopOnce.Do(func() {
		app.logger.Info("Stopping KeeperApp")

		close(app.quit)
		app.cancel()

		if err := app.source.Stop(); err != nil {
			stopErr = fmt.Errorf("failed to stop the request source: %w", err)
		}
		app.wg.Wait()

		app.logger.Debug("Closing the chain client")
		app.client.Close()

		app.logger.Info("KeeperApp is successfully stopped")
	})

	return stopErr
}

func (app *KeeperApp) deliveryLoop() {
	defer app.wg.Done()

	sem := semaphore.NewWeighted(int64(app.config.MaxConcurrentDeliveries))

	for {
		select {
		case req := <-app.source.RequestChan():
			if err := sem.Acquire(app.ctx, 1); err != nil {
				return
			}

			app.wg.Add(1)
			go func() {
				defer app.wg.Done()
				defer sem.Release(1)

				app.handleRequest(req)
			}()
		case <-app.quit:
			return
		}
	}
}

func (app *KeeperApp) handleRequest(req *types.RandomnessRequest) {
	_, err := app.keeper.ProcessRequest(app.ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, ErrRequestFulfilled), errors.Is(err, ErrRequestInFlight):
		app.logger.Debug("no reveal needed", zap.Stringer("request", req), zap.Error(err))
	case errors.Is(err, context.Canceled):
		app.logger.Debug("delivery interrupted by shutdown", zap.Stringer("request", req))
	default:
		app.logger.Warn("failed to process request", zap.Stringer("request", req), zap.Error(err))
	}
}
