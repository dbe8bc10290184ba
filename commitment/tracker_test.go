package commitment_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fortuna-labs/keeper/commitment"
	"github.com/fortuna-labs/keeper/hashchain"
)

func TestTrackerAdvance(t *testing.T) {
	t.Parallel()

	const offset = uint64(50)
	chain, err := hashchain.New([]byte("tracker"), 100, 7)
	require.NoError(t, err)

	tracker := commitment.NewTracker(commitment.Head{
		ChainOffset:    offset,
		SequenceNumber: offset,
		Value:          chain.Commitment(),
	})

	n, err := tracker.NumHashes(offset, offset+30)
	require.NoError(t, err)
	require.Equal(t, uint64(30), n)

	rev30, err := chain.RevealIth(30)
	require.NoError(t, err)
	require.NoError(t, tracker.VerifyAgainstHead(offset, offset+30, rev30))

	require.True(t, tracker.Advance(offset, offset+30, rev30))

	// a lower sequence number never moves the head back
	rev10, err := chain.RevealIth(10)
	require.NoError(t, err)
	require.False(t, tracker.Advance(offset, offset+10, rev10))
	require.False(t, tracker.Advance(offset, offset+30, rev30))

	head, ok := tracker.Head(offset)
	require.True(t, ok)
	require.Equal(t, offset+30, head.SequenceNumber)
	require.Equal(t, rev30, head.Value)

	n, err = tracker.NumHashes(offset, offset+42)
	require.NoError(t, err)
	require.Equal(t, uint64(12), n)

	rev42, err := chain.RevealIth(42)
	require.NoError(t, err)
	require.NoError(t, tracker.VerifyAgainstHead(offset, offset+42, rev42))
	require.ErrorIs(t, tracker.VerifyAgainstHead(offset, offset+43, rev42), commitment.ErrIncorrectRevelation)

	_, err = tracker.NumHashes(offset, offset+10)
	require.Error(t, err)

	// a head at or past seq leaves nothing to check
	require.NoError(t, tracker.VerifyAgainstHead(offset, offset+30, rev30))
	require.NoError(t, tracker.VerifyAgainstHead(offset, offset+10, rev42))
	require.NoError(t, tracker.VerifyAgainstHead(999, 1000, rev42))

	_, err = tracker.NumHashes(999, 1000)
	require.Error(t, err)
}

func TestTrackerIndependentChains(t *testing.T) {
	t.Parallel()

	tracker := commitment.NewTracker()
	require.True(t, tracker.Advance(0, 5, [32]byte{1}))
	require.True(t, tracker.Advance(100, 101, [32]byte{2}))
	require.True(t, tracker.Advance(0, 6, [32]byte{3}))

	require.Len(t, tracker.Heads(), 2)

	head, ok := tracker.Head(100)
	require.True(t, ok)
	require.Equal(t, uint64(101), head.SequenceNumber)
}

// TestTrackerVerifyWhileAdvancing checks genuine revelations while another
// goroutine keeps moving the head forward. Every check must pass whatever
// head it observes.
func TestTrackerVerifyWhileAdvancing(t *testing.T) {
	t.Parallel()

	const length = uint64(400)
	chain, err := hashchain.New([]byte("concurrent"), length, 5)
	require.NoError(t, err)

	reveals := make([]common.Hash, length)
	for i := range reveals {
		reveals[i], err = chain.RevealIth(uint64(i))
		require.NoError(t, err)
	}

	tracker := commitment.NewTracker(commitment.Head{Value: chain.Commitment()})

	var eg errgroup.Group
	eg.Go(func() error {
		for seq := uint64(1); seq < length; seq++ {
			tracker.Advance(0, seq, reveals[seq])
		}

		return nil
	})
	eg.Go(func() error {
		for round := 0; round < 20; round++ {
			for seq := uint64(1); seq < length; seq++ {
				if err := tracker.VerifyAgainstHead(0, seq, reveals[seq]); err != nil {
					return err
				}
			}
		}

		return nil
	})
	require.NoError(t, eg.Wait())

	head, ok := tracker.Head(0)
	require.True(t, ok)
	require.Equal(t, length-1, head.SequenceNumber)
}
