package sim

import "github.com/rustyeddy/execsim/ledger"

func hitStopLoss(o ledger.PendingOrder, price float64) bool {
	if o.Type != ledger.StopLoss {
		return false
	}
	if o.Side == ledger.Long {
		return price <= o.TriggerPrice
	}
	return price >= o.TriggerPrice
}

func hitTakeProfit(o ledger.PendingOrder, price float64) bool {
	if o.Type != ledger.TakeProfit {
		return false
	}
	if o.Side == ledger.Long {
		return price >= o.TriggerPrice
	}
	return price <= o.TriggerPrice
}

func triggered(o ledger.PendingOrder, price float64) bool {
	return hitStopLoss(o, price) || hitTakeProfit(o, price)
}
