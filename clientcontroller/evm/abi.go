package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	revealWithCallbackMethod = "revealWithCallback"
	getRequestMethod         = "getRequest"
	requestedEvent           = "RequestedWithCallback"
	revealedEvent            = "RevealedWithCallback"
)

// entropyABIJSON covers the part of the entropy contract the keeper calls.
const entropyABIJSON = `[
  {
    "type": "function",
    "name": "revealWithCallback",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "provider", "type": "address"},
      {"name": "sequenceNumber", "type": "uint64"},
      {"name": "userRandomNumber", "type": "bytes32"},
      {"name": "providerRevelation", "type": "bytes32"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getRequest",
    "stateMutability": "view",
    "inputs": [
      {"name": "provider", "type": "address"},
      {"name": "sequenceNumber", "type": "uint64"}
    ],
    "outputs": [
      {"name": "provider", "type": "address"},
      {"name": "sequenceNumber", "type": "uint64"},
      {"name": "numHashes", "type": "uint32"},
      {"name": "commitment", "type": "bytes32"},
      {"name": "blockNumber", "type": "uint64"},
      {"name": "requester", "type": "address"},
      {"name": "useBlockhash", "type": "bool"},
      {"name": "callbackStatus", "type": "uint8"},
      {"name": "gasLimit", "type": "uint32"}
    ]
  },
  {
    "type": "event",
    "name": "RequestedWithCallback",
    "anonymous": false,
    "inputs": [
      {"name": "provider", "type": "address", "indexed": true},
      {"name": "requestor", "type": "address", "indexed": true},
      {"name": "sequenceNumber", "type": "uint64", "indexed": true},
      {"name": "userRandomNumber", "type": "bytes32", "indexed": false},
      {"name": "gasLimit", "type": "uint32", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "RevealedWithCallback",
    "anonymous": false,
    "inputs": [
      {"name": "provider", "type": "address", "indexed": true},
      {"name": "sequenceNumber", "type": "uint64", "indexed": true},
      {"name": "userRandomNumber", "type": "bytes32", "indexed": false},
      {"name": "providerRevelation", "type": "bytes32", "indexed": false},
      {"name": "randomNumber", "type": "bytes32", "indexed": false}
    ]
  }
]`

// EntropyABI returns the parsed contract ABI.
func EntropyABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(entropyABIJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse entropy ABI: %w", err)
	}

	return parsed, nil
}

// requestedData holds the non-indexed fields of RequestedWithCallback
type requestedData struct {
	UserRandomNumber [32]byte
	GasLimit         uint32
}

// revealedData holds the non-indexed fields of RevealedWithCallback
type revealedData struct {
	UserRandomNumber   [32]byte
	ProviderRevelation [32]byte
	RandomNumber       [32]byte
}
