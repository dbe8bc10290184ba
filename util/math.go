package util

import (
	"math"

	gmath "github.com/ethereum/go-ethereum/common/math"
)

// MulPct returns v*pct/100, saturating at the maximum uint64 instead of
// wrapping around.
func MulPct(v, pct uint64) uint64 {
	product, overflow := gmath.SafeMul(v, pct)
	if overflow {
		// dividing first loses precision but keeps the result in range
		q, overflow := gmath.SafeMul(v/100, pct)
		if overflow {
			return math.MaxUint64
		}

		return q
	}

	return product / 100
}
