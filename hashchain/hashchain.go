package hashchain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashChain is a one-way keccak256 chain of which only every
// sampleInterval-th element is kept in memory.
//
// Element 0 of the computed sequence is keccak256(seed) and element j is
// keccak256(element j-1). Reveal index i maps to computed element
// length-1-i, so RevealIth(0) is the commitment and hashing RevealIth(i)
// yields RevealIth(i-1).
type HashChain struct {
	// samples holds computed elements 0, s, 2s, ... in reverse order
	samples        []common.Hash
	sampleInterval uint64
	length         uint64
}

// New computes a chain of the given length from seed. It is CPU bound and
// takes time proportional to length.
func New(seed []byte, length, sampleInterval uint64) (*HashChain, error) {
	if sampleInterval == 0 {
		return nil, ErrInvalidSampleInterval
	}
	if length == 0 {
		return nil, ErrInvalidLength
	}

	samples := make([]common.Hash, 0, (length-1)/sampleInterval+1)
	current := crypto.Keccak256Hash(seed)
	samples = append(samples, current)
	for i := uint64(1); i < length; i++ {
		current = crypto.Keccak256Hash(current[:])
		if i%sampleInterval == 0 {
			samples = append(samples, current)
		}
	}

	for l, r := 0, len(samples)-1; l < r; l, r = l+1, r-1 {
		samples[l], samples[r] = samples[r], samples[l]
	}

	return &HashChain{
		samples:        samples,
		sampleInterval: sampleInterval,
		length:         length,
	}, nil
}

// RevealIth returns the i-th element counted from the commitment end of the
// chain. At most sampleInterval-1 hashes are computed.
func (hc *HashChain) RevealIth(i uint64) (common.Hash, error) {
	if i >= hc.length {
		return common.Hash{}, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, hc.length)
	}

	computed := hc.length - 1 - i
	sample := computed / hc.sampleInterval
	// the reversed list puts the uneven remainder in front, so samples are
	// addressed from the back
	current := hc.samples[uint64(len(hc.samples))-1-sample]
	for steps := computed - sample*hc.sampleInterval; steps > 0; steps-- {
		current = crypto.Keccak256Hash(current[:])
	}

	return current, nil
}

// Commitment is the value a provider registers on chain for this chain,
// i.e. RevealIth(0).
func (hc *HashChain) Commitment() common.Hash {
	c, _ := hc.RevealIth(0)

	return c
}

func (hc *HashChain) Length() uint64 {
	return hc.length
}

func (hc *HashChain) SampleInterval() uint64 {
	return hc.sampleInterval
}
