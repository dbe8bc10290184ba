package commitment

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Head is the most recent trusted element of a chain.
type Head struct {
	ChainOffset    uint64
	SequenceNumber uint64
	Value          common.Hash
}

// Tracker keeps the current commitment of each chain and moves it forward
// to the highest revealed sequence number. Later requests can then be
// proven against a closer element.
type Tracker struct {
	mu    sync.RWMutex
	heads map[uint64]Head
}

func NewTracker(heads ...Head) *Tracker {
	t := &Tracker{heads: make(map[uint64]Head, len(heads))}
	for _, h := range heads {
		t.heads[h.ChainOffset] = h
	}

	return t
}

// Advance moves the head of the chain at chainOffset to seq if seq is
// higher than the current head. It returns whether the head moved.
func (t *Tracker) Advance(chainOffset, seq uint64, revelation common.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	head, ok := t.heads[chainOffset]
	if ok && head.SequenceNumber >= seq {
		return false
	}

	t.heads[chainOffset] = Head{
		ChainOffset:    chainOffset,
		SequenceNumber: seq,
		Value:          revelation,
	}

	return true
}

func (t *Tracker) Head(chainOffset uint64) (Head, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	head, ok := t.heads[chainOffset]

	return head, ok
}

// Heads returns a copy of all chain heads.
func (t *Tracker) Heads() []Head {
	t.mu.RLock()
	defer t.mu.RUnlock()

	heads := make([]Head, 0, len(t.heads))
	for _, h := range t.heads {
		heads = append(heads, h)
	}

	return heads
}

// NumHashes is the hashing distance between the chain head and seq.
func (t *Tracker) NumHashes(chainOffset, seq uint64) (uint64, error) {
	head, ok := t.Head(chainOffset)
	if !ok {
		return 0, fmt.Errorf("no head for chain at offset %d", chainOffset)
	}
	if seq < head.SequenceNumber {
		return 0, fmt.Errorf("sequence number %d precedes head %d", seq, head.SequenceNumber)
	}

	return seq - head.SequenceNumber, nil
}

// VerifyAgainstHead checks that revelation for seq hashes forward to the
// chain head. The distance and the head value come from one snapshot. There
// is nothing to check when the chain has no head or the head is at or past
// seq.
func (t *Tracker) VerifyAgainstHead(chainOffset, seq uint64, revelation common.Hash) error {
	head, ok := t.Head(chainOffset)
	if !ok || head.SequenceNumber >= seq {
		return nil
	}

	if ProviderCommitment(seq-head.SequenceNumber, revelation) != head.Value {
		return fmt.Errorf("%w: sequence number %d does not chain to head %d",
			ErrIncorrectRevelation, seq, head.SequenceNumber)
	}

	return nil
}
