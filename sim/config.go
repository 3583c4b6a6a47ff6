package sim

import "fmt"

// Config holds the execution cost model.
type Config struct {
	// SlippagePercent moves market fills against the trader, in percent
	// of the reference price (0.05 = 0.05%).
	SlippagePercent float64
	// FeeRate is charged on fill notional (0.0004 = 4 bps).
	FeeRate float64
}

func (c Config) Validate() error {
	if c.SlippagePercent < 0 || c.SlippagePercent >= 100 {
		return fmt.Errorf("slippage_percent must be in [0,100), got %v", c.SlippagePercent)
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 {
		return fmt.Errorf("fee_rate must be in [0,1), got %v", c.FeeRate)
	}
	return nil
}
