package hashchain

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// RevealObserver is notified after every successful reveal. It must not
// block for long since it runs on the caller's goroutine.
type RevealObserver func(seq uint64)

// ChainRegistry resolves a sequence number to the chain whose range
// contains it. It is immutable once built and safe for concurrent use.
type ChainRegistry struct {
	offsets  []uint64
	chains   []*HashChain
	observer RevealObserver
}

type RegistryOption func(*ChainRegistry)

// WithRevealObserver registers a callback invoked with each sequence number
// that was revealed successfully.
func WithRevealObserver(observer RevealObserver) RegistryOption {
	return func(r *ChainRegistry) {
		r.observer = observer
	}
}

// NewChainRegistry pairs offsets[k] with chains[k]. Offsets must be
// strictly increasing.
func NewChainRegistry(offsets []uint64, chains []*HashChain, opts ...RegistryOption) (*ChainRegistry, error) {
	if len(offsets) != len(chains) {
		return nil, fmt.Errorf("%w: %d offsets, %d chains", ErrLengthMismatch, len(offsets), len(chains))
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			return nil, fmt.Errorf("%w: %d follows %d", ErrUnorderedOffsets, offsets[i], offsets[i-1])
		}
	}

	r := &ChainRegistry{
		offsets: append([]uint64(nil), offsets...),
		chains:  append([]*HashChain(nil), chains...),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// FromChainAtOffset builds a registry holding a single chain.
func FromChainAtOffset(offset uint64, chain *HashChain, opts ...RegistryOption) *ChainRegistry {
	r, _ := NewChainRegistry([]uint64{offset}, []*HashChain{chain}, opts...)

	return r
}

// Reveal returns the chain element for seq using the last chain whose
// offset is not greater than seq.
func (r *ChainRegistry) Reveal(seq uint64) (common.Hash, error) {
	idx := sort.Search(len(r.offsets), func(i int) bool {
		return r.offsets[i] > seq
	}) - 1
	if idx < 0 {
		return common.Hash{}, fmt.Errorf("%w: sequence number %d", ErrChainNotFound, seq)
	}

	revelation, err := r.chains[idx].RevealIth(seq - r.offsets[idx])
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: sequence number %d: %w", ErrChainNotFound, seq, err)
	}

	if r.observer != nil {
		r.observer(seq)
	}

	return revelation, nil
}

// ChainFor returns the chain covering seq together with its offset.
func (r *ChainRegistry) ChainFor(seq uint64) (uint64, *HashChain, error) {
	idx := sort.Search(len(r.offsets), func(i int) bool {
		return r.offsets[i] > seq
	}) - 1
	if idx < 0 || seq-r.offsets[idx] >= r.chains[idx].Length() {
		return 0, nil, fmt.Errorf("%w: sequence number %d", ErrChainNotFound, seq)
	}

	return r.offsets[idx], r.chains[idx], nil
}

// Len returns the number of registered chains.
func (r *ChainRegistry) Len() int {
	return len(r.chains)
}

// CommitmentParams are the persisted inputs needed to rebuild one chain.
type CommitmentParams struct {
	StartSequenceNumber uint64
	ChainLength         uint64
	SampleInterval      uint64
	CommitmentRandom    [32]byte
}

// FromCommitments rebuilds every chain of a provider from its secret and the
// persisted commitment parameters. Chains are computed in parallel.
func FromCommitments(
	secret []byte,
	chainID string,
	provider common.Address,
	contract common.Address,
	params []CommitmentParams,
	opts ...RegistryOption,
) (*ChainRegistry, error) {
	sorted := append([]CommitmentParams(nil), params...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartSequenceNumber < sorted[j].StartSequenceNumber
	})

	offsets := make([]uint64, len(sorted))
	chains := make([]*HashChain, len(sorted))

	var eg errgroup.Group
	for i, p := range sorted {
		offsets[i] = p.StartSequenceNumber
		eg.Go(func() error {
			seed := DeriveSeed(secret, chainID, provider, contract, p.CommitmentRandom)
			chain, err := New(seed, p.ChainLength, p.SampleInterval)
			if err != nil {
				return fmt.Errorf("failed to build chain starting at %d: %w", p.StartSequenceNumber, err)
			}
			chains[i] = chain

			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return NewChainRegistry(offsets, chains, opts...)
}
