package service_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fortuna-labs/keeper/keeper/service"
	"github.com/fortuna-labs/keeper/testutil"
	"github.com/fortuna-labs/keeper/types"
)

func transientErr(kind service.ErrorKind) error {
	return &service.TxError{Kind: kind, Detail: errTransient.Error()}
}

func TestDeliverEscalatesUntilConfirmed(t *testing.T) {
	t.Parallel()

	receipt := successReceipt()
	attempter := newFakeAttempter(receipt,
		transientErr(service.KindGasUsageEstimate),
		transientErr(service.KindConfirmationTimeout),
		transientErr(service.KindReceipt),
	)
	policy := defaultPolicy()
	o := service.NewRetryOrchestrator(attempter, policy, fastDeliveryConfig(), testutil.GetTestLogger(t))

	var (
		mu    sync.Mutex
		kinds []service.ErrorKind
	)
	o.OnAttemptError(func(kind service.ErrorKind) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, kind)
	})

	event := &types.RevealedEvent{SequenceNumber: 9}
	result, err := o.Deliver(context.Background(), &service.DeliveryRequest{
		Call:     &service.Call{},
		GasLimit: 100_000,
		DecodeEvent: func(r *ethtypes.Receipt) (*types.RevealedEvent, error) {
			require.Equal(t, receipt, r)

			return event, nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(3), result.NumRetries)
	require.Equal(t, policy.GetFeeMultiplierPct(3), result.FeeMultiplierPct)
	require.Equal(t, receipt, result.Receipt)
	require.Equal(t, event, result.RevealedEvent)

	calls := attempter.Calls()
	require.Len(t, calls, 4)
	for i, params := range calls {
		require.Equal(t, uint64(200_000), params.GasLimit)
		require.Equal(t, policy.GetGasMultiplierPct(uint64(i)), params.GasMultiplierPct)
		require.Equal(t, policy.GetFeeMultiplierPct(uint64(i)), params.FeeMultiplierPct)
	}

	require.Equal(t, []service.ErrorKind{
		service.KindGasUsageEstimate,
		service.KindConfirmationTimeout,
		service.KindReceipt,
	}, kinds)
}

func TestDeliverStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		kind service.ErrorKind
	}{
		{
			name: "gas limit exceeded",
			err:  &service.TxError{Kind: service.KindGasLimitExceeded, Estimate: 10, Limit: 5},
			kind: service.KindGasLimitExceeded,
		},
		{
			name: "incorrect revelation",
			err:  &service.TxError{Kind: service.KindIncorrectRevelation},
			kind: service.KindIncorrectRevelation,
		},
		{
			name: "marked permanent",
			err:  service.MarkPermanent(transientErr(service.KindSubmission)),
			kind: service.KindSubmission,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			attempter := newFakeAttempter(successReceipt(), tc.err, tc.err)
			o := service.NewRetryOrchestrator(attempter, defaultPolicy(), fastDeliveryConfig(), testutil.GetTestLogger(t))

			_, err := o.Deliver(context.Background(), &service.DeliveryRequest{Call: &service.Call{}, GasLimit: 1})
			require.ErrorIs(t, err, service.ErrDeliveryExhausted)

			var failure *service.DeliveryFailure
			require.ErrorAs(t, err, &failure)
			require.Equal(t, uint64(0), failure.NumRetries)
			require.Equal(t, uint64(100), failure.FeeMultiplierPct)
			require.False(t, failure.DeadlineExceeded)
			require.Equal(t, tc.kind, service.KindOf(err))
			require.Len(t, attempter.Calls(), 1)
		})
	}
}

func TestDeliverDeadlineExceeded(t *testing.T) {
	t.Parallel()

	errs := make([]error, 10_000)
	for i := range errs {
		errs[i] = transientErr(service.KindSubmission)
	}
	attempter := newFakeAttempter(successReceipt(), errs...)

	cfg := fastDeliveryConfig()
	cfg.BackoffMaxElapsed = 30 * time.Millisecond
	o := service.NewRetryOrchestrator(attempter, defaultPolicy(), cfg, testutil.GetTestLogger(t))

	start := time.Now()
	_, err := o.Deliver(context.Background(), &service.DeliveryRequest{Call: &service.Call{}, GasLimit: 1})
	require.Less(t, time.Since(start), 5*time.Second)

	var failure *service.DeliveryFailure
	require.ErrorAs(t, err, &failure)
	require.True(t, failure.DeadlineExceeded)
	require.Greater(t, failure.NumRetries, uint64(0))
	require.Equal(t, uint64(len(attempter.Calls())), failure.NumRetries+1)
	require.Equal(t, defaultPolicy().GetFeeMultiplierPct(failure.NumRetries), failure.FeeMultiplierPct)
	require.Equal(t, service.KindSubmission, service.KindOf(failure.LastErr))
	require.Contains(t, err.Error(), "deadline exceeded")
}

func TestDeliverErrorMapper(t *testing.T) {
	t.Parallel()

	fulfilled := errors.New("fulfilled elsewhere")
	attempter := newFakeAttempter(successReceipt(),
		transientErr(service.KindGasUsageEstimate),
		transientErr(service.KindGasUsageEstimate),
		transientErr(service.KindGasUsageEstimate),
	)
	o := service.NewRetryOrchestrator(attempter, defaultPolicy(), fastDeliveryConfig(), testutil.GetTestLogger(t))

	var seen []uint64
	_, err := o.Deliver(context.Background(), &service.DeliveryRequest{
		Call:     &service.Call{},
		GasLimit: 1,
		MapError: func(_ context.Context, numRetries uint64, err error) error {
			seen = append(seen, numRetries)
			if numRetries == 1 {
				return service.MarkPermanent(errors.Join(fulfilled, err))
			}

			return err
		},
	})
	require.ErrorIs(t, err, fulfilled)
	require.ErrorIs(t, err, service.ErrDeliveryExhausted)
	require.Equal(t, []uint64{0, 1}, seen)
	require.Len(t, attempter.Calls(), 2)
}

func TestDeliverCancelled(t *testing.T) {
	t.Parallel()

	attempter := newFakeAttempter(successReceipt())
	attempter.block = make(chan struct{})
	o := service.NewRetryOrchestrator(attempter, defaultPolicy(), fastDeliveryConfig(), testutil.GetTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := o.Deliver(ctx, &service.DeliveryRequest{Call: &service.Call{}, GasLimit: 1})
	require.ErrorIs(t, err, context.Canceled)

	var failure *service.DeliveryFailure
	require.ErrorAs(t, err, &failure)
	require.False(t, failure.DeadlineExceeded)
}

// TestDeliverWithSubmitterResyncsNonce runs the orchestrator on top of a
// real submitter: a failed broadcast must not leak its nonce into the
// next attempt.
func TestDeliverWithSubmitterResyncsNonce(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(20))
	f := newSubmitterFixture(t, r)

	f.client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil).Times(3)
	f.client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{}, nil).Times(3)
	f.client.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil).Times(3)
	f.client.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(11), nil).Times(3)

	var (
		nonces    []uint64
		gasPrices []int64
	)
	record := func(tx *ethtypes.Transaction) {
		nonces = append(nonces, tx.Nonce())
		gasPrices = append(gasPrices, tx.GasPrice().Int64())
	}
	gomock.InOrder(
		f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, tx *ethtypes.Transaction) error {
				record(tx)

				return errors.New("replacement transaction underpriced")
			}),
		f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, tx *ethtypes.Transaction) error {
				record(tx)

				return errors.New("already known")
			}),
		f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, tx *ethtypes.Transaction) error {
				record(tx)

				return nil
			}),
	)
	gomock.InOrder(
		f.client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, ethereum.NotFound),
		f.client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(
			&ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}, nil),
	)

	o := service.NewRetryOrchestrator(f.submitter, defaultPolicy(), fastDeliveryConfig(), testutil.GetTestLogger(t))
	result, err := o.Deliver(context.Background(), &service.DeliveryRequest{Call: f.call, GasLimit: 100_000})
	require.NoError(t, err)
	require.Equal(t, uint64(2), result.NumRetries)

	require.Equal(t, []uint64{11, 11, 11}, nonces)
	require.Equal(t, []int64{1_000_000_000, 1_100_000_000, 1_210_000_000}, gasPrices)
	require.Equal(t, int32(2), f.resets.Load())
}
