package hashchain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveSeed binds a chain seed to the long-term secret, the chain it is
// used on, the provider and contract, and a random value that is unique to
// the commitment.
func DeriveSeed(
	secret []byte,
	chainID string,
	provider common.Address,
	contract common.Address,
	commitmentRandom [32]byte,
) []byte {
	return crypto.Keccak256(
		secret,
		[]byte(chainID),
		provider.Bytes(),
		contract.Bytes(),
		commitmentRandom[:],
	)
}
