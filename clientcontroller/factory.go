package clientcontroller

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/fortuna-labs/keeper/clientcontroller/api"
	"github.com/fortuna-labs/keeper/clientcontroller/evm"
	kpcfg "github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/util"
)

// NewEthClient dials the configured JSON-RPC endpoint.
func NewEthClient(ctx context.Context, config *kpcfg.ChainConfig) (api.EthClient, error) {
	client, err := ethclient.DialContext(ctx, config.RPCAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to dial EVM rpc %s: %w", config.RPCAddress, err)
	}

	return client, nil
}

// NewEntropyController binds the entropy contract of the configured
// provider on top of client.
func NewEntropyController(client api.EthClient, config *kpcfg.Config, logger *zap.Logger) (api.EntropyController, error) {
	ec, err := evm.NewEntropyController(
		client,
		config.ChainConfig.Contract(),
		config.Provider(),
		config.ChainConfig.CallTimeout,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create entropy controller: %w", err)
	}

	return ec, nil
}

// NewSigner loads the signing key of reveal transactions.
func NewSigner(config *kpcfg.ChainConfig) (api.Signer, error) {
	key, err := util.LoadPrivateKey(config.SignerKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load signer key: %w", err)
	}

	return evm.NewKeySigner(key), nil
}
