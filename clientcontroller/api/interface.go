package api

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/fortuna-labs/keeper/types"
)

// EthClient is the part of the JSON-RPC client the keeper depends on.
// *ethclient.Client satisfies it.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)

	// SuggestGasPrice returns the legacy gas price estimate
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// SuggestGasTipCap returns the EIP-1559 priority fee estimate
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)

	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error

	// TransactionReceipt returns ethereum.NotFound while the transaction is
	// pending
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)

	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	Close()
}

// Signer signs transactions on behalf of a single account.
type Signer interface {
	Address() common.Address
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// EntropyController binds the entropy contract for one provider.
type EntropyController interface {
	ContractAddress() common.Address
	Provider() common.Address

	// LatestBlock returns the height of the chain tip
	LatestBlock(ctx context.Context) (uint64, error)

	// BlockHash returns the hash of the block at the given height
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)

	// GetRequest reads the request record of seq. A record that no longer
	// exists is returned with a zero sequence number.
	GetRequest(ctx context.Context, seq uint64) (*types.OnChainRequest, error)

	// FilterRequests returns the requests to the provider emitted in the
	// inclusive block range
	FilterRequests(ctx context.Context, fromBlock, toBlock uint64) ([]*types.RandomnessRequest, error)

	// PackRevealWithCallback encodes the reveal call
	PackRevealWithCallback(seq uint64, userRandom, revelation common.Hash) ([]byte, error)

	// DecodeRevealedEvent extracts the reveal event emitted by the contract
	// from a receipt
	DecodeRevealedEvent(receipt *ethtypes.Receipt) (*types.RevealedEvent, error)
}
