package sim

import "github.com/rustyeddy/execsim/ledger"

// marketFill returns the price a market order pays (buying) or receives
// (selling) after slippage.
func (s *Simulator) marketFill(buying bool, price float64) float64 {
	slip := s.cfg.SlippagePercent / 100
	if buying {
		return price * (1 + slip)
	}
	return price * (1 - slip)
}

// entryFill: longs are opened by buying, shorts by selling.
func (s *Simulator) entryFill(side ledger.Side, price float64) float64 {
	return s.marketFill(side == ledger.Long, price)
}

// exitFill: longs are closed by selling, shorts by buying.
func (s *Simulator) exitFill(side ledger.Side, price float64) float64 {
	return s.marketFill(side == ledger.Short, price)
}

func (s *Simulator) fee(size, price float64) float64 {
	return size * price * s.cfg.FeeRate
}
