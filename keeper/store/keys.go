package store

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// getPrefixKey returns len(chainID) || chainID || provider. The length byte
// keeps chain ids that are prefixes of each other apart.
func getPrefixKey(chainID string, provider common.Address) []byte {
	key := make([]byte, 0, 1+len(chainID)+common.AddressLength)
	key = append(key, byte(len(chainID)))
	key = append(key, chainID...)

	return append(key, provider.Bytes()...)
}

// getKey appends a big endian sequence number so that keys of the same
// provider sort by sequence number
func getKey(chainID string, provider common.Address, seq uint64) []byte {
	return append(getPrefixKey(chainID, provider), uint64ToBytes(seq)...)
}

func uint64ToBytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)

	return buf[:]
}

func uint64FromBytes(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
