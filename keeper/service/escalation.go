package service

import (
	"github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/util"
)

// EscalationPolicy maps a retry count to the gas and fee padding of the
// next attempt. It holds no state and is safe to share.
type EscalationPolicy struct {
	GasLimitTolerancePct    uint64
	InitialGasMultiplierPct uint64
	GasMultiplierPct        uint64
	GasMultiplierCapPct     uint64
	FeeMultiplierPct        uint64
	FeeMultiplierCapPct     uint64
}

func NewEscalationPolicy(cfg *config.EscalationConfig) EscalationPolicy {
	return EscalationPolicy{
		GasLimitTolerancePct:    cfg.GasLimitTolerancePct,
		InitialGasMultiplierPct: cfg.InitialGasMultiplierPct,
		GasMultiplierPct:        cfg.GasMultiplierPct,
		GasMultiplierCapPct:     cfg.GasMultiplierCapPct,
		FeeMultiplierPct:        cfg.FeeMultiplierPct,
		FeeMultiplierCapPct:     cfg.FeeMultiplierCapPct,
	}
}

// GetFeeMultiplierPct starts at 100 and grows by FeeMultiplierPct per retry
// up to FeeMultiplierCapPct.
func (p EscalationPolicy) GetFeeMultiplierPct(numRetries uint64) uint64 {
	return applyEscalation(numRetries, 100, p.FeeMultiplierPct, p.FeeMultiplierCapPct)
}

// GetGasMultiplierPct starts at InitialGasMultiplierPct and grows by
// GasMultiplierPct per retry up to GasMultiplierCapPct.
func (p EscalationPolicy) GetGasMultiplierPct(numRetries uint64) uint64 {
	return applyEscalation(numRetries, p.InitialGasMultiplierPct, p.GasMultiplierPct, p.GasMultiplierCapPct)
}

// PaddedGasLimit is the largest gas estimate accepted for a request with
// the given callback gas limit.
func (p EscalationPolicy) PaddedGasLimit(gasLimit uint64) uint64 {
	return util.MulPct(gasLimit, 100+p.GasLimitTolerancePct)
}

func applyEscalation(numRetries, initial, multiplierPct, capPct uint64) uint64 {
	current := initial
	for i := uint64(0); i < numRetries && current < capPct; i++ {
		next := util.MulPct(current, multiplierPct)
		// a multiplier of at most 100 or a rounding plateau never grows
		if next <= current {
			break
		}
		current = next
	}

	return min(current, capPct)
}
