// Package commitment implements the commit-reveal rules the entropy
// contract applies when a provider reveals a chain element for a request.
package commitment

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrIncorrectRevelation is returned when a revelation does not reproduce
// the commitment stored with the request. It is never retried.
var ErrIncorrectRevelation = errors.New("commitment: incorrect revelation")

func UserCommitment(userRandom common.Hash) common.Hash {
	return crypto.Keccak256Hash(userRandom[:])
}

// ProviderCommitment hashes revelation numHashes times.
func ProviderCommitment(numHashes uint64, revelation common.Hash) common.Hash {
	current := revelation
	for i := uint64(0); i < numHashes; i++ {
		current = crypto.Keccak256Hash(current[:])
	}

	return current
}

func CombinedCommitment(userCommitment, providerCommitment common.Hash) common.Hash {
	return crypto.Keccak256Hash(userCommitment[:], providerCommitment[:])
}

// FinalRandomValue is the random number delivered to the requester.
// blockEntropy is the zero hash when the request does not use a blockhash.
func FinalRandomValue(userRandom, revelation, blockEntropy common.Hash) common.Hash {
	return crypto.Keccak256Hash(userRandom[:], revelation[:], blockEntropy[:])
}

// VerifyRevelation recomputes the combined commitment from the revealed
// inputs and compares it with the value stored at request time.
func VerifyRevelation(stored common.Hash, userRandom common.Hash, numHashes uint64, revelation common.Hash) error {
	combined := CombinedCommitment(UserCommitment(userRandom), ProviderCommitment(numHashes, revelation))
	if combined != stored {
		return fmt.Errorf("%w: expected %s, got %s", ErrIncorrectRevelation, stored.Hex(), combined.Hex())
	}

	return nil
}
