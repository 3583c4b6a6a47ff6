package ledger

import "time"

// Snapshot is a deep copy of an Account's mutable state. The simulator takes
// one before a compound transition (flip, open with protective orders) and
// restores it if any step fails.
type Snapshot struct {
	balance     float64
	frozen      float64
	equity      float64
	updatedAt   time.Time
	positions   map[string]Position
	orders      map[uint64]PendingOrder
	nextOrderID uint64
	nextLotID   uint64
	tradeSeq    uint64
}

func (a *Account) Snapshot() Snapshot {
	s := Snapshot{
		balance:     a.balance,
		frozen:      a.frozen,
		equity:      a.equity,
		updatedAt:   a.updatedAt,
		positions:   make(map[string]Position, len(a.positions)),
		orders:      make(map[uint64]PendingOrder, len(a.orders)),
		nextOrderID: a.nextOrderID,
		nextLotID:   a.nextLotID,
		tradeSeq:    a.tradeSeq,
	}
	for sym, p := range a.positions {
		s.positions[sym] = *p
	}
	for id, o := range a.orders {
		s.orders[id] = *o
	}
	return s
}

// Restore puts the account back to the state captured by s.
func (a *Account) Restore(s Snapshot) {
	a.balance = s.balance
	a.frozen = s.frozen
	a.equity = s.equity
	a.updatedAt = s.updatedAt
	a.nextOrderID = s.nextOrderID
	a.nextLotID = s.nextLotID
	a.tradeSeq = s.tradeSeq

	a.positions = make(map[string]*Position, len(s.positions))
	for sym, p := range s.positions {
		a.positions[sym] = &p
	}
	a.orders = make(map[uint64]*PendingOrder, len(s.orders))
	for id, o := range s.orders {
		a.orders[id] = &o
	}
}
