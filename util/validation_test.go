package util_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortuna-labs/keeper/util"
)

func TestHasDuplicateSequenceNumbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		seqs      []uint64
		expectDup bool
		dup       uint64
	}{
		{"empty", nil, false, 0},
		{"no duplicates", []uint64{1, 2, 3, 4, 5}, false, 0},
		{"duplicate at start", []uint64{1, 1, 3}, true, 1},
		{"duplicate at end", []uint64{1, 2, 3, 3}, true, 3},
		{"non adjacent", []uint64{7, 2, 9, 2}, true, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			hasDup, dup := util.HasDuplicateSequenceNumbers(tc.seqs)
			require.Equal(t, tc.expectDup, hasDup)
			require.Equal(t, tc.dup, dup)

			err := util.ValidateNoDuplicateSequenceNumbers(tc.seqs)
			if tc.expectDup {
				require.ErrorContains(t, err, "duplicate sequence number detected")
			} else {
				require.NoError(t, err)
			}
		})
	}
}
