package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// NonceSource returns the authoritative pending nonce of an account.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out nonces for a single signing key. The first call,
// and the first call after Reset, query the chain. Every other call
// increments a local counter.
type NonceManager struct {
	mu      sync.Mutex
	source  NonceSource
	account common.Address
	next    uint64
	synced  bool

	onReset func()
	logger  *zap.Logger
}

func NewNonceManager(source NonceSource, account common.Address, logger *zap.Logger) *NonceManager {
	return &NonceManager{
		source:  source,
		account: account,
		logger:  logger,
	}
}

// OnReset registers a callback invoked after every Reset.
func (nm *NonceManager) OnReset(f func()) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.onReset = f
}

// Next reserves the next nonce. Callers that fail to broadcast a
// transaction with the returned nonce must call Reset.
func (nm *NonceManager) Next(ctx context.Context) (uint64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if !nm.synced {
		nonce, err := nm.source.PendingNonceAt(ctx, nm.account)
		if err != nil {
			return 0, fmt.Errorf("failed to query pending nonce of %s: %w", nm.account.Hex(), err)
		}
		nm.next = nonce
		nm.synced = true
		nm.logger.Debug("synced nonce from chain",
			zap.String("account", nm.account.Hex()),
			zap.Uint64("nonce", nonce))
	}

	nonce := nm.next
	nm.next++

	return nonce, nil
}

// Reset discards the local counter so the next call re-queries the chain.
func (nm *NonceManager) Reset() {
	nm.mu.Lock()
	onReset := nm.onReset
	wasSynced := nm.synced
	nm.synced = false
	nm.mu.Unlock()

	if wasSynced {
		nm.logger.Info("nonce reset", zap.String("account", nm.account.Hex()))
	}
	if onReset != nil {
		onReset()
	}
}
