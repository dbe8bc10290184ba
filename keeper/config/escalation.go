package config

import "fmt"

// All values are percentages where 100 means a factor of 1.0.
const (
	defaultGasLimitTolerancePct = 100
	defaultInitialGasMultiplier = 125
	defaultGasMultiplierPct     = 110
	defaultGasMultiplierCapPct  = 600
	defaultFeeMultiplierPct     = 110
	defaultFeeMultiplierCapPct  = 200
)

type EscalationConfig struct {
	GasLimitTolerancePct    uint64 `long:"gaslimittolerancepct" description:"How far in percent the gas estimate may exceed the request gas limit before the delivery is abandoned"`
	InitialGasMultiplierPct uint64 `long:"initialgasmultiplierpct" description:"Padding in percent applied to the gas estimate on the first attempt"`
	GasMultiplierPct        uint64 `long:"gasmultiplierpct" description:"Growth in percent of the gas padding on each retry"`
	GasMultiplierCapPct     uint64 `long:"gasmultipliercappct" description:"Maximum gas padding in percent"`
	FeeMultiplierPct        uint64 `long:"feemultiplierpct" description:"Growth in percent of the fee on each retry"`
	FeeMultiplierCapPct     uint64 `long:"feemultipliercappct" description:"Maximum fee multiplier in percent"`
}

func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		GasLimitTolerancePct:    defaultGasLimitTolerancePct,
		InitialGasMultiplierPct: defaultInitialGasMultiplier,
		GasMultiplierPct:        defaultGasMultiplierPct,
		GasMultiplierCapPct:     defaultGasMultiplierCapPct,
		FeeMultiplierPct:        defaultFeeMultiplierPct,
		FeeMultiplierCapPct:     defaultFeeMultiplierCapPct,
	}
}

func (c *EscalationConfig) Validate() error {
	if c.InitialGasMultiplierPct < 100 {
		return fmt.Errorf("initial gas multiplier must be at least 100, got %d", c.InitialGasMultiplierPct)
	}
	if c.GasMultiplierPct < 100 {
		return fmt.Errorf("gas multiplier must be at least 100, got %d", c.GasMultiplierPct)
	}
	if c.GasMultiplierCapPct < c.InitialGasMultiplierPct {
		return fmt.Errorf("gas multiplier cap %d is below the initial gas multiplier %d",
			c.GasMultiplierCapPct, c.InitialGasMultiplierPct)
	}
	if c.FeeMultiplierPct < 100 {
		return fmt.Errorf("fee multiplier must be at least 100, got %d", c.FeeMultiplierPct)
	}
	if c.FeeMultiplierCapPct < 100 {
		return fmt.Errorf("fee multiplier cap must be at least 100, got %d", c.FeeMultiplierCapPct)
	}

	return nil
}
