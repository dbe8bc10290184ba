package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultSignerKeyFilename = "signer.key"
	defaultRPCAddress        = "http://127.0.0.1:8545"
	defaultCallTimeout       = 20 * time.Second
)

type ChainConfig struct {
	RPCAddress      string        `long:"rpcaddress" description:"The JSON-RPC endpoint of the EVM chain"`
	ContractAddress string        `long:"contractaddress" description:"The hex address of the entropy contract"`
	SignerKeyFile   string        `long:"signerkeyfile" description:"Path to the file holding the hex encoded private key that signs reveal transactions"`
	CallTimeout     time.Duration `long:"calltimeout" description:"Timeout applied to each read-only RPC call"`
}

func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		RPCAddress:      defaultRPCAddress,
		ContractAddress: common.Address{}.Hex(),
		CallTimeout:     defaultCallTimeout,
	}
}

func (c *ChainConfig) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

func (c *ChainConfig) Validate() error {
	u, err := url.Parse(c.RPCAddress)
	if err != nil {
		return fmt.Errorf("invalid rpc address %q: %w", c.RPCAddress, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported rpc address scheme %q", u.Scheme)
	}

	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid contract address: %q", c.ContractAddress)
	}

	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %v", c.CallTimeout)
	}

	return nil
}
