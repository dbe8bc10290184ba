package service_test

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/mock/gomock"

	"github.com/fortuna-labs/keeper/clientcontroller/evm"
	"github.com/fortuna-labs/keeper/keeper/service"
	"github.com/fortuna-labs/keeper/testutil"
	"github.com/fortuna-labs/keeper/testutil/mocks"
)

var (
	gwei       = big.NewInt(1_000_000_000)
	evmChainID = big.NewInt(31337)
)

type submitterFixture struct {
	client    *mocks.MockEthClient
	signer    *evm.KeySigner
	nonces    *service.NonceManager
	resets    *atomic.Int32
	submitter *service.TxSubmitter
	call      *service.Call
}

func newSubmitterFixture(t *testing.T, r *rand.Rand) *submitterFixture {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	client := testutil.PrepareMockedEthClient(t)
	signer := evm.NewKeySigner(key)
	logger := testutil.GetTestLogger(t)
	nonces := service.NewNonceManager(client, signer.Address(), logger)
	resets := atomic.NewInt32(0)
	nonces.OnReset(func() { resets.Inc() })

	return &submitterFixture{
		client:    client,
		signer:    signer,
		nonces:    nonces,
		resets:    resets,
		submitter: service.NewTxSubmitter(client, signer, nonces, evmChainID, fastDeliveryConfig(), logger),
		call: &service.Call{
			To:   testutil.GenRandomAddress(r),
			Data: testutil.GenRandomByteArray(r, 68),
		},
	}
}

func gweiTimes(n int64) *big.Int {
	return new(big.Int).Mul(gwei, big.NewInt(n))
}

func TestSubmitOnceLegacy(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(10))
	f := newSubmitterFixture(t, r)

	var sent *ethtypes.Transaction
	f.client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
			require.Equal(t, f.signer.Address(), msg.From)
			require.Equal(t, f.call.To, *msg.To)
			require.Equal(t, f.call.Data, msg.Data)

			return 50_000, nil
		})
	f.client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{}, nil)
	f.client.EXPECT().SuggestGasPrice(gomock.Any()).Return(gweiTimes(10), nil)
	f.client.EXPECT().PendingNonceAt(gomock.Any(), f.signer.Address()).Return(uint64(7), nil)
	f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *ethtypes.Transaction) error {
			sent = tx

			return nil
		})
	gomock.InOrder(
		f.client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, ethereum.NotFound),
		f.client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
				return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: hash}, nil
			}),
	)

	receipt, err := f.submitter.SubmitOnce(context.Background(), f.call, service.AttemptParams{
		GasLimit:         100_000,
		GasMultiplierPct: 125,
		FeeMultiplierPct: 150,
	})
	require.NoError(t, err)
	require.NotNil(t, sent)
	require.Equal(t, sent.Hash(), receipt.TxHash)

	require.Equal(t, uint8(ethtypes.LegacyTxType), sent.Type())
	require.Equal(t, uint64(7), sent.Nonce())
	require.Equal(t, uint64(62_500), sent.Gas())
	require.Equal(t, gweiTimes(15), sent.GasPrice())
	require.Equal(t, f.call.To, *sent.To())

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(evmChainID), sent)
	require.NoError(t, err)
	require.Equal(t, f.signer.Address(), from)
}

func TestSubmitOnceDynamicFee(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(11))
	f := newSubmitterFixture(t, r)

	var sent *ethtypes.Transaction
	f.client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(80_000), nil)
	f.client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{BaseFee: gweiTimes(10)}, nil)
	f.client.EXPECT().SuggestGasTipCap(gomock.Any()).Return(gweiTimes(2), nil)
	f.client.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(3), nil)
	f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *ethtypes.Transaction) error {
			sent = tx

			return nil
		})
	f.client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(
		&ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}, nil)

	_, err := f.submitter.SubmitOnce(context.Background(), f.call, service.AttemptParams{
		GasLimit:         200_000,
		GasMultiplierPct: 100,
		FeeMultiplierPct: 110,
	})
	require.NoError(t, err)

	require.Equal(t, uint8(ethtypes.DynamicFeeTxType), sent.Type())
	require.Equal(t, evmChainID, sent.ChainId())
	require.Equal(t, uint64(80_000), sent.Gas())
	// tip 2 gwei * 1.1, fee cap (2 * 10 + 2) gwei * 1.1
	require.Equal(t, big.NewInt(2_200_000_000), sent.GasTipCap())
	require.Equal(t, big.NewInt(24_200_000_000), sent.GasFeeCap())
}

func TestSubmitOnceGasLimitExceeded(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(12))
	f := newSubmitterFixture(t, r)

	f.client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(300_001), nil)

	_, err := f.submitter.SubmitOnce(context.Background(), f.call, service.AttemptParams{
		GasLimit:         300_000,
		GasMultiplierPct: 125,
		FeeMultiplierPct: 100,
	})
	requireKind(t, err, service.KindGasLimitExceeded)
	require.True(t, service.IsPermanent(err))

	var txErr *service.TxError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, uint64(300_001), txErr.Estimate)
	require.Equal(t, uint64(300_000), txErr.Limit)
	require.Nil(t, txErr.Tx)
}

func TestSubmitOnceEstimationFailures(t *testing.T) {
	t.Parallel()
	rpcErr := errors.New("execution reverted")

	testCases := []struct {
		name   string
		expect func(client *mocks.MockEthClient)
		kind   service.ErrorKind
	}{
		{
			name: "gas estimate",
			expect: func(client *mocks.MockEthClient) {
				client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(0), rpcErr)
			},
			kind: service.KindGasUsageEstimate,
		},
		{
			name: "header",
			expect: func(client *mocks.MockEthClient) {
				client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(1), nil)
				client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(nil, rpcErr)
			},
			kind: service.KindGasPriceEstimate,
		},
		{
			name: "legacy gas price",
			expect: func(client *mocks.MockEthClient) {
				client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(1), nil)
				client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{}, nil)
				client.EXPECT().SuggestGasPrice(gomock.Any()).Return(nil, rpcErr)
			},
			kind: service.KindGasPriceEstimate,
		},
		{
			name: "priority fee",
			expect: func(client *mocks.MockEthClient) {
				client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(1), nil)
				client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{BaseFee: gwei}, nil)
				client.EXPECT().SuggestGasTipCap(gomock.Any()).Return(nil, rpcErr)
			},
			kind: service.KindGasPriceEstimate,
		},
		{
			name: "nonce query",
			expect: func(client *mocks.MockEthClient) {
				client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(1), nil)
				client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{}, nil)
				client.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
				client.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), rpcErr)
			},
			kind: service.KindSubmission,
		},
	}

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newSubmitterFixture(t, rand.New(rand.NewSource(int64(i))))
			tc.expect(f.client)

			_, err := f.submitter.SubmitOnce(context.Background(), f.call, service.AttemptParams{
				GasLimit:         100,
				GasMultiplierPct: 100,
				FeeMultiplierPct: 100,
			})
			requireKind(t, err, tc.kind)
			require.True(t, service.IsTransient(err))
			require.ErrorIs(t, err, rpcErr)
			// nothing was broadcast so no nonce was given back
			require.Equal(t, int32(0), f.resets.Load())
		})
	}
}

func TestSubmitOnceSendFailureResetsNonce(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(13))
	f := newSubmitterFixture(t, r)

	sendErr := errors.New("nonce too low")
	f.client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil).Times(2)
	f.client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{}, nil).Times(2)
	f.client.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil).Times(2)
	gomock.InOrder(
		f.client.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(5), nil),
		f.client.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(9), nil),
	)

	var nonces []uint64
	gomock.InOrder(
		f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, tx *ethtypes.Transaction) error {
				nonces = append(nonces, tx.Nonce())

				return sendErr
			}),
		f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, tx *ethtypes.Transaction) error {
				nonces = append(nonces, tx.Nonce())

				return nil
			}),
	)
	f.client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(
		&ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}, nil)

	params := service.AttemptParams{GasLimit: 50_000, GasMultiplierPct: 100, FeeMultiplierPct: 100}
	_, err := f.submitter.SubmitOnce(context.Background(), f.call, params)
	requireKind(t, err, service.KindSubmission)
	require.ErrorIs(t, err, sendErr)

	var txErr *service.TxError
	require.ErrorAs(t, err, &txErr)
	require.NotNil(t, txErr.Tx)
	require.Equal(t, int32(1), f.resets.Load())

	// the next attempt resyncs the nonce from the chain
	_, err = f.submitter.SubmitOnce(context.Background(), f.call, params)
	require.NoError(t, err)
	require.Equal(t, []uint64{5, 9}, nonces)
}

func TestSubmitOnceReverted(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(14))
	f := newSubmitterFixture(t, r)

	f.client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
	f.client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{}, nil)
	f.client.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	f.client.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
	f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).Return(nil)
	reverted := &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, GasUsed: 21_000}
	f.client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(reverted, nil)

	_, err := f.submitter.SubmitOnce(context.Background(), f.call, service.AttemptParams{
		GasLimit: 50_000, GasMultiplierPct: 100, FeeMultiplierPct: 100,
	})
	requireKind(t, err, service.KindReceipt)
	require.True(t, service.IsTransient(err))

	var txErr *service.TxError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, reverted, txErr.Receipt)
	require.NotNil(t, txErr.Tx)
	// a mined transaction consumed its nonce
	require.Equal(t, int32(0), f.resets.Load())
}

func TestSubmitOnceConfirmation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		receipt   func(client *mocks.MockEthClient)
		kind      service.ErrorKind
		nonceFree bool
	}{
		{
			name: "timeout",
			receipt: func(client *mocks.MockEthClient) {
				client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, ethereum.NotFound).AnyTimes()
			},
			kind:      service.KindConfirmationTimeout,
			nonceFree: true,
		},
		{
			name: "receipt query error",
			receipt: func(client *mocks.MockEthClient) {
				client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, errors.New("internal error"))
			},
			kind: service.KindConfirmation,
		},
	}

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newSubmitterFixture(t, rand.New(rand.NewSource(int64(100+i))))

			f.client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
			f.client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{}, nil)
			f.client.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
			f.client.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
			f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).Return(nil)
			tc.receipt(f.client)

			_, err := f.submitter.SubmitOnce(context.Background(), f.call, service.AttemptParams{
				GasLimit: 50_000, GasMultiplierPct: 100, FeeMultiplierPct: 100,
			})
			requireKind(t, err, tc.kind)
			require.True(t, service.IsTransient(err))

			var txErr *service.TxError
			require.ErrorAs(t, err, &txErr)
			require.NotNil(t, txErr.Tx)

			if tc.nonceFree {
				require.Equal(t, int32(1), f.resets.Load())
			} else {
				require.Equal(t, int32(0), f.resets.Load())
			}
		})
	}
}

func TestSubmitOnceCancelled(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(15))
	f := newSubmitterFixture(t, r)

	ctx, cancel := context.WithCancel(context.Background())

	f.client.EXPECT().EstimateGas(gomock.Any(), gomock.Any()).Return(uint64(21_000), nil)
	f.client.EXPECT().HeaderByNumber(gomock.Any(), nil).Return(&ethtypes.Header{}, nil)
	f.client.EXPECT().SuggestGasPrice(gomock.Any()).Return(gwei, nil)
	f.client.EXPECT().PendingNonceAt(gomock.Any(), gomock.Any()).Return(uint64(0), nil)
	f.client.EXPECT().SendTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *ethtypes.Transaction) error {
			time.AfterFunc(20*time.Millisecond, cancel)

			return nil
		})
	f.client.EXPECT().TransactionReceipt(gomock.Any(), gomock.Any()).Return(nil, ethereum.NotFound).AnyTimes()

	_, err := f.submitter.SubmitOnce(ctx, f.call, service.AttemptParams{
		GasLimit: 50_000, GasMultiplierPct: 100, FeeMultiplierPct: 100,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, service.ErrorKind(0), service.KindOf(err))
}
