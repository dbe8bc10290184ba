package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/fortuna-labs/keeper/clientcontroller/api"
	"github.com/fortuna-labs/keeper/types"
)

var (
	ErrEventNotFound  = errors.New("reveal event not found in receipt")
	ErrMalformedEvent = errors.New("malformed contract event")
)

var _ api.EntropyController = &EntropyController{}

type EntropyController struct {
	client      api.EthClient
	abi         abi.ABI
	contract    common.Address
	provider    common.Address
	callTimeout time.Duration
	logger      *zap.Logger
}

func NewEntropyController(
	client api.EthClient,
	contract common.Address,
	provider common.Address,
	callTimeout time.Duration,
	logger *zap.Logger,
) (*EntropyController, error) {
	parsed, err := EntropyABI()
	if err != nil {
		return nil, err
	}

	return &EntropyController{
		client:      client,
		abi:         parsed,
		contract:    contract,
		provider:    provider,
		callTimeout: callTimeout,
		logger:      logger,
	}, nil
}

func (ec *EntropyController) ContractAddress() common.Address {
	return ec.contract
}

func (ec *EntropyController) Provider() common.Address {
	return ec.provider
}

func (ec *EntropyController) LatestBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, ec.callTimeout)
	defer cancel()

	height, err := ec.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query the latest block: %w", err)
	}

	return height, nil
}

func (ec *EntropyController) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, ec.callTimeout)
	defer cancel()

	header, err := ec.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to query header %d: %w", number, err)
	}

	return header.Hash(), nil
}

func (ec *EntropyController) GetRequest(ctx context.Context, seq uint64) (*types.OnChainRequest, error) {
	data, err := ec.abi.Pack(getRequestMethod, ec.provider, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", getRequestMethod, err)
	}

	ctx, cancel := context.WithTimeout(ctx, ec.callTimeout)
	defer cancel()

	contract := ec.contract
	out, err := ec.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s for sequence number %d: %w", getRequestMethod, seq, err)
	}

	values, err := ec.abi.Unpack(getRequestMethod, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", getRequestMethod, err)
	}

	return onChainRequestFromValues(values)
}

func onChainRequestFromValues(values []interface{}) (*types.OnChainRequest, error) {
	if len(values) != 9 {
		return nil, fmt.Errorf("%w: getRequest returned %d values", ErrMalformedEvent, len(values))
	}

	provider, ok1 := values[0].(common.Address)
	seq, ok2 := values[1].(uint64)
	numHashes, ok3 := values[2].(uint32)
	commitment, ok4 := values[3].([32]byte)
	blockNumber, ok5 := values[4].(uint64)
	requester, ok6 := values[5].(common.Address)
	useBlockhash, ok7 := values[6].(bool)
	status, ok8 := values[7].(uint8)
	gasLimit, ok9 := values[8].(uint32)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8 && ok9) {
		return nil, fmt.Errorf("%w: unexpected getRequest value types", ErrMalformedEvent)
	}

	return &types.OnChainRequest{
		Provider:       provider,
		SequenceNumber: seq,
		NumHashes:      numHashes,
		Commitment:     commitment,
		BlockNumber:    blockNumber,
		Requester:      requester,
		UseBlockhash:   useBlockhash,
		CallbackStatus: types.CallbackStatus(status),
		GasLimit:       gasLimit,
	}, nil
}

func (ec *EntropyController) FilterRequests(ctx context.Context, fromBlock, toBlock uint64) ([]*types.RandomnessRequest, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{ec.contract},
		Topics: [][]common.Hash{
			{ec.abi.Events[requestedEvent].ID},
			{common.BytesToHash(ec.provider.Bytes())},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, ec.callTimeout)
	defer cancel()

	logs, err := ec.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter request logs in [%d, %d]: %w", fromBlock, toBlock, err)
	}

	requests := make([]*types.RandomnessRequest, 0, len(logs))
	for i := range logs {
		if logs[i].Removed {
			continue
		}
		req, err := ec.decodeRequestedEvent(&logs[i])
		if err != nil {
			ec.logger.Warn("skipping undecodable request log",
				zap.String("tx_hash", logs[i].TxHash.Hex()),
				zap.Uint("log_index", logs[i].Index),
				zap.Error(err))

			continue
		}
		requests = append(requests, req)
	}

	return requests, nil
}

func (ec *EntropyController) decodeRequestedEvent(log *ethtypes.Log) (*types.RandomnessRequest, error) {
	event := ec.abi.Events[requestedEvent]
	if len(log.Topics) != 4 || log.Topics[0] != event.ID {
		return nil, fmt.Errorf("%w: %s expects 4 topics, got %d", ErrMalformedEvent, requestedEvent, len(log.Topics))
	}

	var data requestedData
	if err := ec.abi.UnpackIntoInterface(&data, requestedEvent, log.Data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	return &types.RandomnessRequest{
		Provider:         common.BytesToAddress(log.Topics[1].Bytes()),
		Requester:        common.BytesToAddress(log.Topics[2].Bytes()),
		SequenceNumber:   new(big.Int).SetBytes(log.Topics[3].Bytes()).Uint64(),
		UserRandomNumber: data.UserRandomNumber,
		GasLimit:         data.GasLimit,
		BlockNumber:      log.BlockNumber,
		TxHash:           log.TxHash,
	}, nil
}

func (ec *EntropyController) PackRevealWithCallback(seq uint64, userRandom, revelation common.Hash) ([]byte, error) {
	data, err := ec.abi.Pack(revealWithCallbackMethod, ec.provider, seq, [32]byte(userRandom), [32]byte(revelation))
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", revealWithCallbackMethod, err)
	}

	return data, nil
}

func (ec *EntropyController) DecodeRevealedEvent(receipt *ethtypes.Receipt) (*types.RevealedEvent, error) {
	event := ec.abi.Events[revealedEvent]
	for _, log := range receipt.Logs {
		if log.Address != ec.contract || len(log.Topics) == 0 || log.Topics[0] != event.ID {
			continue
		}
		if len(log.Topics) != 3 {
			return nil, fmt.Errorf("%w: %s expects 3 topics, got %d", ErrMalformedEvent, revealedEvent, len(log.Topics))
		}

		var data revealedData
		if err := ec.abi.UnpackIntoInterface(&data, revealedEvent, log.Data); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}

		return &types.RevealedEvent{
			Provider:           common.BytesToAddress(log.Topics[1].Bytes()),
			SequenceNumber:     new(big.Int).SetBytes(log.Topics[2].Bytes()).Uint64(),
			UserRandomNumber:   data.UserRandomNumber,
			ProviderRevelation: data.ProviderRevelation,
			RandomNumber:       data.RandomNumber,
		}, nil
	}

	return nil, fmt.Errorf("%w: tx %s", ErrEventNotFound, receipt.TxHash.Hex())
}
