package hashchain

import "errors"

var (
	// ErrIndexOutOfRange is returned when a chain index is not below the chain length
	ErrIndexOutOfRange = errors.New("hashchain: index out of range")

	// ErrChainNotFound is returned when no registered chain covers a sequence number
	ErrChainNotFound = errors.New("hashchain: no chain covers the sequence number")

	// ErrLengthMismatch is returned when offsets and chains differ in count
	ErrLengthMismatch = errors.New("hashchain: offsets and chains length mismatch")

	ErrInvalidSampleInterval = errors.New("hashchain: sample interval must be positive")
	ErrInvalidLength         = errors.New("hashchain: chain length must be positive")
	ErrUnorderedOffsets      = errors.New("hashchain: offsets must be strictly increasing")
)
