package hashchain_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/fortuna-labs/keeper/hashchain"
	"github.com/fortuna-labs/keeper/testutil"
)

func TestRegistryResolution(t *testing.T) {
	t.Parallel()

	chain0, err := hashchain.New([]byte("chain0"), 10, 3)
	require.NoError(t, err)
	chain1, err := hashchain.New([]byte("chain1"), 10, 2)
	require.NoError(t, err)

	registry, err := hashchain.NewChainRegistry([]uint64{5, 10}, []*hashchain.HashChain{chain0, chain1})
	require.NoError(t, err)

	got, err := registry.Reveal(8)
	require.NoError(t, err)
	expected, err := chain0.RevealIth(3)
	require.NoError(t, err)
	require.Equal(t, expected, got)

	got, err = registry.Reveal(12)
	require.NoError(t, err)
	expected, err = chain1.RevealIth(2)
	require.NoError(t, err)
	require.Equal(t, expected, got)

	_, err = registry.Reveal(4)
	require.ErrorIs(t, err, hashchain.ErrChainNotFound)

	_, err = registry.Reveal(20)
	require.ErrorIs(t, err, hashchain.ErrChainNotFound)
}

func FuzzRegistryConstruction(f *testing.F) {
	testutil.AddRandomSeedsToFuzzer(f, 10)
	f.Fuzz(func(t *testing.T, seed int64) {
		t.Parallel()
		r := rand.New(rand.NewSource(seed))

		numChains := r.Intn(5) + 1
		chains := make([]*hashchain.HashChain, 0, numChains)
		offsets := make([]uint64, 0, numChains)
		next := uint64(r.Intn(100))
		for i := 0; i < numChains; i++ {
			chain, err := hashchain.New(testutil.GenRandomByteArray(r, 32), uint64(r.Intn(20))+1, uint64(r.Intn(4))+1)
			require.NoError(t, err)
			chains = append(chains, chain)
			offsets = append(offsets, next)
			next += chain.Length()
		}

		_, err := hashchain.NewChainRegistry(offsets, chains)
		require.NoError(t, err)

		_, err = hashchain.NewChainRegistry(offsets[:numChains-1], chains)
		require.ErrorIs(t, err, hashchain.ErrLengthMismatch)

		_, err = hashchain.NewChainRegistry(append(offsets, next), chains)
		require.ErrorIs(t, err, hashchain.ErrLengthMismatch)
	})
}

func TestRegistryRejectsUnorderedOffsets(t *testing.T) {
	t.Parallel()

	chain, err := hashchain.New([]byte("c"), 5, 1)
	require.NoError(t, err)

	_, err = hashchain.NewChainRegistry([]uint64{10, 10}, []*hashchain.HashChain{chain, chain})
	require.ErrorIs(t, err, hashchain.ErrUnorderedOffsets)
}

func TestRegistryEndToEnd(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 32)
	chain, err := hashchain.New(seed, 1000, 1)
	require.NoError(t, err)
	registry := hashchain.FromChainAtOffset(0, chain)

	revelation, err := registry.Reveal(0)
	require.NoError(t, err)
	require.Equal(t, naiveChain(seed, 1000)[0], revelation)

	_, err = registry.Reveal(1000)
	require.ErrorIs(t, err, hashchain.ErrChainNotFound)
}

func TestRegistryRevealObserver(t *testing.T) {
	t.Parallel()

	chain, err := hashchain.New([]byte("observer"), 20, 4)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		observed []uint64
	)
	registry := hashchain.FromChainAtOffset(100, chain, hashchain.WithRevealObserver(func(seq uint64) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, seq)
	}))
	plain := hashchain.FromChainAtOffset(100, chain)

	for _, seq := range []uint64{105, 99, 119, 120} {
		withObserver, errObserved := registry.Reveal(seq)
		withoutObserver, errPlain := plain.Reveal(seq)
		require.Equal(t, errPlain == nil, errObserved == nil)
		require.Equal(t, withoutObserver, withObserver)
	}

	require.Equal(t, []uint64{105, 119}, observed)
}

func TestFromCommitments(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(7))

	secret := testutil.GenRandomByteArray(r, 32)
	provider := testutil.GenRandomAddress(r)
	contract := testutil.GenRandomAddress(r)

	first := testutil.GenRandomCommitmentParams(r, 1)
	second := testutil.GenRandomCommitmentParams(r, first.StartSequenceNumber+first.ChainLength)

	// input order must not matter
	registry, err := hashchain.FromCommitments(secret, "chain", provider, contract,
		[]hashchain.CommitmentParams{second, first})
	require.NoError(t, err)
	require.Equal(t, 2, registry.Len())

	for _, p := range []hashchain.CommitmentParams{first, second} {
		seed := hashchain.DeriveSeed(secret, "chain", provider, contract, p.CommitmentRandom)
		expected := naiveChain(seed, p.ChainLength)

		for i := uint64(0); i < p.ChainLength; i++ {
			got, err := registry.Reveal(p.StartSequenceNumber + i)
			require.NoError(t, err)
			require.Equal(t, expected[i], got)
		}

		offset, chain, err := registry.ChainFor(p.StartSequenceNumber)
		require.NoError(t, err)
		require.Equal(t, p.StartSequenceNumber, offset)
		require.Equal(t, common.Hash(expected[0]), chain.Commitment())
	}

	_, err = registry.Reveal(0)
	require.ErrorIs(t, err, hashchain.ErrChainNotFound)
}

func TestFromCommitmentsInvalidParams(t *testing.T) {
	t.Parallel()

	_, err := hashchain.FromCommitments([]byte("s"), "chain", common.Address{}, common.Address{},
		[]hashchain.CommitmentParams{{StartSequenceNumber: 1, ChainLength: 10, SampleInterval: 0}})
	require.ErrorIs(t, err, hashchain.ErrInvalidSampleInterval)
}
