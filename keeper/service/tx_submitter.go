package service

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/fortuna-labs/keeper/clientcontroller/api"
	"github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/util"
)

// Call is a contract call to be sent as a transaction.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// AttemptParams are the escalation parameters of a single attempt.
type AttemptParams struct {
	// GasLimit is the largest acceptable gas estimate
	GasLimit         uint64
	GasMultiplierPct uint64
	FeeMultiplierPct uint64
}

// TxSubmitter performs single delivery attempts: estimate, check, fill,
// sign, send and wait for the receipt. It never retries by itself.
type TxSubmitter struct {
	client  api.EthClient
	signer  api.Signer
	nonces  *NonceManager
	chainID *big.Int

	confirmationTimeout time.Duration
	receiptPollInterval time.Duration

	logger *zap.Logger
}

func NewTxSubmitter(
	client api.EthClient,
	signer api.Signer,
	nonces *NonceManager,
	chainID *big.Int,
	cfg *config.DeliveryConfig,
	logger *zap.Logger,
) *TxSubmitter {
	return &TxSubmitter{
		client:              client,
		signer:              signer,
		nonces:              nonces,
		chainID:             chainID,
		confirmationTimeout: cfg.ConfirmationTimeout,
		receiptPollInterval: cfg.ReceiptPollInterval,
		logger:              logger,
	}
}

// SubmitOnce runs one attempt and returns the receipt of a successful
// transaction. Every returned error is a *TxError unless ctx was cancelled.
func (s *TxSubmitter) SubmitOnce(ctx context.Context, call *Call, params AttemptParams) (*ethtypes.Receipt, error) {
	to := call.To
	estimate, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.signer.Address(),
		To:    &to,
		Value: call.Value,
		Data:  call.Data,
	})
	if err != nil {
		return nil, newTxError(KindGasUsageEstimate, err)
	}

	if estimate > params.GasLimit {
		return nil, &TxError{
			Kind:     KindGasLimitExceeded,
			Estimate: estimate,
			Limit:    params.GasLimit,
		}
	}

	tx, err := s.fillAndSign(ctx, call, util.MulPct(estimate, params.GasMultiplierPct), params.FeeMultiplierPct)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("sending reveal transaction",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
		zap.Uint64("gas_estimate", estimate),
		zap.Uint64("gas", tx.Gas()),
		zap.Uint64("fee_multiplier_pct", params.FeeMultiplierPct),
	)

	if err := s.client.SendTransaction(ctx, tx); err != nil {
		// the nonce may or may not have been consumed
		s.nonces.Reset()
		txErr := newTxError(KindSubmission, err)
		txErr.Tx = tx

		return nil, txErr
	}

	receipt, err := s.waitForReceipt(ctx, tx)
	if err != nil {
		return nil, err
	}

	if receipt.Status == ethtypes.ReceiptStatusFailed {
		txErr := newTxError(KindReceipt, errors.New("transaction reverted"))
		txErr.Tx = tx
		txErr.Receipt = receipt

		return nil, txErr
	}

	return receipt, nil
}

func (s *TxSubmitter) fillAndSign(ctx context.Context, call *Call, gas, feeMultiplierPct uint64) (*ethtypes.Transaction, error) {
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, newTxError(KindGasPriceEstimate, err)
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	to := call.To

	var (
		txData   ethtypes.TxData
		tipCap   *big.Int
		feeCap   *big.Int
		gasPrice *big.Int
	)
	if head.BaseFee != nil {
		tip, err := s.client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, newTxError(KindGasPriceEstimate, err)
		}
		tipCap = mulPctBig(tip, feeMultiplierPct)
		// two base fees of headroom keep the tx valid through several
		// full blocks
		feeCap = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
		feeCap = mulPctBig(feeCap, feeMultiplierPct)
	} else {
		price, err := s.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, newTxError(KindGasPriceEstimate, err)
		}
		gasPrice = mulPctBig(price, feeMultiplierPct)
	}

	// the nonce is reserved last so that a failed fee query does not burn it
	nonce, err := s.nonces.Next(ctx)
	if err != nil {
		return nil, newTxError(KindSubmission, err)
	}

	if gasPrice != nil {
		txData = &ethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     call.Data,
		}
	} else {
		txData = &ethtypes.DynamicFeeTx{
			ChainID:   s.chainID,
			Nonce:     nonce,
			GasTipCap: tipCap,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      call.Data,
		}
	}

	signed, err := s.signer.SignTx(ethtypes.NewTx(txData), s.chainID)
	if err != nil {
		s.nonces.Reset()

		return nil, newTxError(KindSubmission, err)
	}

	return signed, nil
}

func (s *TxSubmitter) waitForReceipt(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.confirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(s.receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(waitCtx, tx.Hash())
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err == nil, errors.Is(err, ethereum.NotFound), waitCtx.Err() != nil:
			// still pending
		default:
			txErr := newTxError(KindConfirmation, err)
			txErr.Tx = tx

			return nil, txErr
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			// the node may have dropped the transaction, in which case
			// its nonce is free again
			s.nonces.Reset()
			txErr := newTxError(KindConfirmationTimeout, waitCtx.Err())
			txErr.Tx = tx

			return nil, txErr
		}
	}
}

func mulPctBig(v *big.Int, pct uint64) *big.Int {
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(pct))

	return out.Div(out, big.NewInt(100))
}
