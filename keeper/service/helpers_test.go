package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/keeper/service"
)

var errTransient = errors.New("connection reset by peer")

// fakeAttempter replays a scripted list of attempt errors and then
// succeeds with receipt.
type fakeAttempter struct {
	mu      sync.Mutex
	errs    []error
	receipt *ethtypes.Receipt
	calls   []service.AttemptParams

	// block, if set, is waited on by every attempt
	block chan struct{}
}

func newFakeAttempter(receipt *ethtypes.Receipt, errs ...error) *fakeAttempter {
	return &fakeAttempter{errs: errs, receipt: receipt}
}

func (f *fakeAttempter) SubmitOnce(ctx context.Context, _ *service.Call, params service.AttemptParams) (*ethtypes.Receipt, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	attempt := len(f.calls)
	f.calls = append(f.calls, params)
	if attempt < len(f.errs) {
		return nil, f.errs[attempt]
	}

	return f.receipt, nil
}

func (f *fakeAttempter) Calls() []service.AttemptParams {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]service.AttemptParams(nil), f.calls...)
}

// fastDeliveryConfig keeps retries in the millisecond range.
func fastDeliveryConfig() *config.DeliveryConfig {
	return &config.DeliveryConfig{
		BackoffInitialInterval: time.Millisecond,
		BackoffMultiplier:      2,
		BackoffMaxInterval:     4 * time.Millisecond,
		BackoffMaxElapsed:      5 * time.Second,
		ConfirmationTimeout:    200 * time.Millisecond,
		ReceiptPollInterval:    5 * time.Millisecond,
	}
}

func defaultPolicy() service.EscalationPolicy {
	cfg := config.DefaultEscalationConfig()

	return service.NewEscalationPolicy(&cfg)
}

func successReceipt() *ethtypes.Receipt {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}
}

func requireKind(t *testing.T, err error, kind service.ErrorKind) {
	t.Helper()

	var txErr *service.TxError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, kind, txErr.Kind, "unexpected error kind: %v", err)
}
