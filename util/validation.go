package util

import "fmt"

// HasDuplicateSequenceNumbers checks if seqs contains a duplicate.
// Returns (true, duplicate) if one is found, (false, 0) otherwise.
func HasDuplicateSequenceNumbers(seqs []uint64) (bool, uint64) {
	seen := make(map[uint64]struct{}, len(seqs))
	for _, seq := range seqs {
		if _, exists := seen[seq]; exists {
			return true, seq
		}
		seen[seq] = struct{}{}
	}

	return false, 0
}

// ValidateNoDuplicateSequenceNumbers returns an error if seqs contains a
// duplicate.
func ValidateNoDuplicateSequenceNumbers(seqs []uint64) error {
	if hasDup, dup := HasDuplicateSequenceNumbers(seqs); hasDup {
		return fmt.Errorf("duplicate sequence number detected: %d", dup)
	}

	return nil
}
