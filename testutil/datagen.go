package testutil

import (
	"encoding/hex"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fortuna-labs/keeper/hashchain"
	"github.com/fortuna-labs/keeper/types"
)

func GenRandomByteArray(r *rand.Rand, length uint64) []byte {
	newHeaderBytes := make([]byte, length)
	r.Read(newHeaderBytes)

	return newHeaderBytes
}

func GenRandomHexStr(r *rand.Rand, length uint64) string {
	randBytes := GenRandomByteArray(r, length)

	return hex.EncodeToString(randBytes)
}

func GenRandomHash(r *rand.Rand) common.Hash {
	return common.BytesToHash(GenRandomByteArray(r, common.HashLength))
}

func GenRandomAddress(r *rand.Rand) common.Address {
	return common.BytesToAddress(GenRandomByteArray(r, common.AddressLength))
}

func GenRandom32(r *rand.Rand) [32]byte {
	var out [32]byte
	copy(out[:], GenRandomByteArray(r, 32))

	return out
}

func AddRandomSeedsToFuzzer(f *testing.F, num uint) {
	// Seed based on the current time
	r := rand.New(rand.NewSource(time.Now().Unix()))
	var idx uint
	for idx = 0; idx < num; idx++ {
		f.Add(r.Int63())
	}
}

// GenRandomRequest returns a request for seq with random contents.
func GenRandomRequest(r *rand.Rand, provider common.Address, seq uint64) *types.RandomnessRequest {
	return &types.RandomnessRequest{
		Provider:         provider,
		SequenceNumber:   seq,
		Requester:        GenRandomAddress(r),
		UserRandomNumber: GenRandomHash(r),
		GasLimit:         uint32(100_000 + r.Intn(400_000)),
		BlockNumber:      uint64(r.Intn(1_000_000)) + 1,
		TxHash:           GenRandomHash(r),
	}
}

// GenRandomCommitmentParams returns parameters for a short chain so tests
// stay fast.
func GenRandomCommitmentParams(r *rand.Rand, start uint64) hashchain.CommitmentParams {
	return hashchain.CommitmentParams{
		StartSequenceNumber: start,
		ChainLength:         uint64(r.Intn(200)) + 1,
		SampleInterval:      uint64(r.Intn(10)) + 1,
		CommitmentRandom:    GenRandom32(r),
	}
}
