package util

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ReadHexFile reads a file holding a single hex string, with or without a
// 0x prefix and surrounding whitespace.
func ReadHexFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}

	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex in %s: %w", path, err)
	}

	return b, nil
}

// LoadPrivateKey reads a secp256k1 private key from a hex file. The key is
// rejected if it is zero or not below the curve order.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	keyBytes, err := ReadHexFile(path)
	if err != nil {
		return nil, err
	}

	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key in %s: %w", path, err)
	}

	return key, nil
}

// WriteHexFile stores b as a 0x prefixed hex string readable only by the
// owner.
func WriteHexFile(path string, b []byte) error {
	return os.WriteFile(path, []byte(hexutil.Encode(b)+"\n"), 0600)
}
