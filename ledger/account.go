package ledger

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// IDSource hands out trade identifiers. Implementations must be
// deterministic for a given call sequence so replays are reproducible.
type IDSource interface {
	New(ts time.Time) string
}

// Account is the ledger for one simulated account. It owns its positions
// and pending orders exclusively.
//
// An Account is not safe for concurrent use; a backtest replays one account
// on one goroutine.
type Account struct {
	id             string
	initialBalance float64
	balance        float64 // available cash
	frozen         float64 // margin held by open positions
	equity         float64
	updatedAt      time.Time

	positions map[string]*Position
	orders    map[uint64]*PendingOrder

	nextOrderID uint64
	nextLotID   uint64
	tradeSeq    uint64

	ids IDSource
}

type Option func(*Account)

// WithIDSource replaces the default sequential trade ids.
func WithIDSource(src IDSource) Option {
	return func(a *Account) { a.ids = src }
}

func New(id string, initialBalance float64, opts ...Option) (*Account, error) {
	if id == "" {
		return nil, fmt.Errorf("new account: id is required")
	}
	if !(initialBalance > 0) || math.IsInf(initialBalance, 0) {
		return nil, fmt.Errorf("new account: initial balance must be positive, got %v", initialBalance)
	}
	a := &Account{
		id:             id,
		initialBalance: initialBalance,
		balance:        initialBalance,
		equity:         initialBalance,
		positions:      make(map[string]*Position),
		orders:         make(map[uint64]*PendingOrder),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Account) ID() string              { return a.id }
func (a *Account) InitialBalance() float64 { return a.initialBalance }
func (a *Account) Balance() float64        { return a.balance }
func (a *Account) FrozenMargin() float64   { return a.frozen }
func (a *Account) UpdatedAt() time.Time    { return a.updatedAt }
func (a *Account) HasOpenPositions() bool  { return len(a.positions) > 0 }
func (a *Account) PendingOrderCount() int  { return len(a.orders) }
func (a *Account) OpenPositionCount() int  { return len(a.positions) }

// Equity returns the value computed by the last UpdateEquity call.
func (a *Account) Equity() float64 { return a.equity }

// Position returns a copy of the open position for symbol.
func (a *Account) Position(symbol string) (Position, bool) {
	p, ok := a.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions ordered by symbol.
func (a *Account) Positions() []Position {
	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// OpenPosition opens a position or adds a lot to a same-side position.
// Margin (size*entryPrice/leverage) moves from balance to frozen margin.
// Flips are not handled here: an opposite-side position is an error.
func (a *Account) OpenPosition(symbol string, side Side, size, entryPrice, leverage float64, ts time.Time) (Trade, error) {
	switch {
	case symbol == "":
		return Trade{}, fmt.Errorf("open position: symbol is required")
	case !side.Valid():
		return Trade{}, fmt.Errorf("open position: %s", side)
	case !(size > 0) || math.IsInf(size, 0):
		return Trade{}, fmt.Errorf("open position %s: %w: %v", symbol, ErrInvalidSize, size)
	case !(leverage > 0) || math.IsInf(leverage, 0):
		return Trade{}, fmt.Errorf("open position %s: %w: %v", symbol, ErrInvalidLeverage, leverage)
	case !(entryPrice > 0) || math.IsInf(entryPrice, 0):
		return Trade{}, fmt.Errorf("open position %s: %w: %v", symbol, ErrInvalidPrice, entryPrice)
	}

	existing, ok := a.positions[symbol]
	if ok && existing.Side != side {
		return Trade{}, fmt.Errorf("open position %s: %w: holding %s, asked %s",
			symbol, ErrSideMismatch, existing.Side, side)
	}

	margin := size * entryPrice / leverage
	if a.balance < margin {
		return Trade{}, fmt.Errorf("open position %s: %w: margin %.8f > balance %.8f",
			symbol, ErrInsufficientFunds, margin, a.balance)
	}

	a.balance -= margin
	a.frozen += margin

	if !ok {
		existing = &Position{
			Symbol:     symbol,
			Side:       side,
			Size:       size,
			EntryPrice: entryPrice,
			Leverage:   leverage,
			Margin:     margin,
			OpenedAt:   ts,
		}
		a.positions[symbol] = existing
	} else {
		newSize := existing.Size + size
		existing.EntryPrice = (existing.Size*existing.EntryPrice + size*entryPrice) / newSize
		existing.Size = newSize
		existing.Margin += margin
		existing.Leverage = existing.Size * existing.EntryPrice / existing.Margin
	}
	existing.UpdatedAt = ts
	a.touch(ts)

	return Trade{
		ID:         a.newTradeID(ts),
		AccountID:  a.id,
		Symbol:     symbol,
		Side:       side,
		Action:     ActionOpen,
		Size:       size,
		EntryPrice: entryPrice,
		OpenedAt:   existing.OpenedAt,
		Time:       ts,
	}, nil
}

// ClosePosition closes portion (0,1] of the position at exitPrice, realizing
// PnL against the average entry. Every pending order on the symbol shrinks by
// the same portion.
func (a *Account) ClosePosition(symbol string, portion, exitPrice float64, ts time.Time) (Trade, error) {
	if !(portion > 0 && portion <= 1) {
		return Trade{}, fmt.Errorf("close position %s: %w: %v", symbol, ErrInvalidPortion, portion)
	}
	if !(exitPrice > 0) || math.IsInf(exitPrice, 0) {
		return Trade{}, fmt.Errorf("close position %s: %w: %v", symbol, ErrInvalidPrice, exitPrice)
	}
	p, ok := a.positions[symbol]
	if !ok {
		return Trade{}, fmt.Errorf("close position %s: %w", symbol, ErrNoPosition)
	}

	closeSize := p.Size * portion
	if portion == 1 {
		closeSize = p.Size
	}
	pl := (exitPrice - p.EntryPrice) * closeSize * p.Side.Sign()

	tr := Trade{
		ID:         a.newTradeID(ts),
		AccountID:  a.id,
		Symbol:     symbol,
		Side:       p.Side,
		Action:     ActionClose,
		Size:       closeSize,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		RealizedPL: pl,
		OpenedAt:   p.OpenedAt,
		Time:       ts,
		ExitReason: ExitManual,
	}

	a.reduceLocked(p, closeSize, pl, ts)

	for _, o := range a.orders {
		if o.Symbol != symbol {
			continue
		}
		o.Size *= 1 - portion
		if o.Size <= Epsilon {
			delete(a.orders, o.ID)
		}
	}
	return tr, nil
}

// CloseLot closes size units of the position realized against lotEntry, the
// entry price of the lot being closed. size is clamped to what remains. The
// average entry of the surviving size is re-derived so that it still
// reflects the remaining lots. Pending orders are left to the caller.
func (a *Account) CloseLot(symbol string, size, lotEntry, exitPrice float64, ts time.Time, reason ExitReason) (Trade, error) {
	switch {
	case !(size > 0) || math.IsInf(size, 0):
		return Trade{}, fmt.Errorf("close lot %s: %w: %v", symbol, ErrInvalidSize, size)
	case !(lotEntry > 0) || !(exitPrice > 0):
		return Trade{}, fmt.Errorf("close lot %s: %w", symbol, ErrInvalidPrice)
	}
	p, ok := a.positions[symbol]
	if !ok {
		return Trade{}, fmt.Errorf("close lot %s: %w", symbol, ErrNoPosition)
	}

	closeSize := math.Min(size, p.Size)
	pl := (exitPrice - lotEntry) * closeSize * p.Side.Sign()

	tr := Trade{
		ID:         a.newTradeID(ts),
		AccountID:  a.id,
		Symbol:     symbol,
		Side:       p.Side,
		Action:     ActionClose,
		Size:       closeSize,
		EntryPrice: lotEntry,
		ExitPrice:  exitPrice,
		RealizedPL: pl,
		OpenedAt:   p.OpenedAt,
		Time:       ts,
		ExitReason: reason,
	}

	remaining := p.Size - closeSize
	if remaining > Epsilon {
		entry := (p.Size*p.EntryPrice - closeSize*lotEntry) / remaining
		if entry > 0 && !math.IsInf(entry, 0) {
			p.EntryPrice = entry
		}
	}
	a.reduceLocked(p, closeSize, pl, ts)
	return tr, nil
}

// reduceLocked shrinks p by closeSize, releasing proportional margin and
// crediting pl. The position and its orders go away once consumed.
func (a *Account) reduceLocked(p *Position, closeSize, pl float64, ts time.Time) {
	released := p.Margin * closeSize / p.Size
	p.Size -= closeSize
	p.Margin -= released
	p.UpdatedAt = ts

	if p.Size <= Epsilon {
		released += p.Margin
		delete(a.positions, p.Symbol)
		a.dropOrders(p.Symbol)
	} else if p.Margin > 0 {
		p.Leverage = p.Size * p.EntryPrice / p.Margin
	}

	a.frozen -= released
	if a.frozen < Epsilon {
		a.frozen = 0
	}
	a.balance += released + pl
	a.touch(ts)
}

// ChargeFee deducts a trading fee from the balance.
func (a *Account) ChargeFee(fee float64, ts time.Time) error {
	if fee < 0 || math.IsNaN(fee) || math.IsInf(fee, 0) {
		return fmt.Errorf("charge fee: invalid amount %v", fee)
	}
	a.balance -= fee
	a.touch(ts)
	return nil
}

// UpdateEquity recomputes equity from the supplied marks. Positions without
// a mark are valued at their entry price. Balance is not touched.
func (a *Account) UpdateEquity(marks map[string]float64) float64 {
	equity := a.balance + a.frozen
	for sym, p := range a.positions {
		mark, ok := marks[sym]
		if !ok || !(mark > 0) {
			continue
		}
		equity += p.UnrealizedPL(mark)
	}
	a.equity = equity
	return equity
}

// UnrealizedPL sums unrealized PnL over positions that have a mark.
func (a *Account) UnrealizedPL(marks map[string]float64) float64 {
	var total float64
	for sym, p := range a.positions {
		if mark, ok := marks[sym]; ok && mark > 0 {
			total += p.UnrealizedPL(mark)
		}
	}
	return total
}

// NewLotID reserves an id grouping the conditional orders of one entry lot.
func (a *Account) NewLotID() uint64 {
	a.nextLotID++
	return a.nextLotID
}

// AddPendingOrder registers a TP/SL order against the open position on
// symbol. The protected side is taken from the position.
func (a *Account) AddPendingOrder(symbol string, typ OrderType, trigger, size, entry float64, lotID uint64, ts time.Time) (PendingOrder, error) {
	switch {
	case !typ.Valid():
		return PendingOrder{}, fmt.Errorf("add pending order %s: %w: type %q", symbol, ErrInvalidOrder, typ)
	case !(trigger > 0) || math.IsInf(trigger, 0):
		return PendingOrder{}, fmt.Errorf("add pending order %s: %w: trigger %v", symbol, ErrInvalidOrder, trigger)
	case !(size > 0) || !(entry > 0):
		return PendingOrder{}, fmt.Errorf("add pending order %s: %w: size %v entry %v", symbol, ErrInvalidOrder, size, entry)
	}
	p, ok := a.positions[symbol]
	if !ok {
		return PendingOrder{}, fmt.Errorf("add pending order %s: %w", symbol, ErrNoPosition)
	}

	a.nextOrderID++
	o := &PendingOrder{
		ID:           a.nextOrderID,
		Symbol:       symbol,
		Type:         typ,
		Side:         p.Side,
		TriggerPrice: trigger,
		Size:         size,
		EntryPrice:   entry,
		LotID:        lotID,
		CreatedAt:    ts,
	}
	a.orders[o.ID] = o
	a.touch(ts)
	return *o, nil
}

func (a *Account) RemovePendingOrder(id uint64) error {
	if _, ok := a.orders[id]; !ok {
		return fmt.Errorf("remove pending order %d: %w", id, ErrOrderNotFound)
	}
	delete(a.orders, id)
	return nil
}

// PendingOrder returns a copy of the order with id.
func (a *Account) PendingOrder(id uint64) (PendingOrder, bool) {
	o, ok := a.orders[id]
	if !ok {
		return PendingOrder{}, false
	}
	return *o, true
}

// PendingOrders returns the orders for symbol in creation order. An empty
// symbol returns every order.
func (a *Account) PendingOrders(symbol string) []PendingOrder {
	out := make([]PendingOrder, 0, len(a.orders))
	for _, o := range a.orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CancelPendingOrders removes every order on symbol and reports how many
// were removed.
func (a *Account) CancelPendingOrders(symbol string) int {
	return a.dropOrders(symbol)
}

// ReduceLotOrders shrinks the remaining orders of a lot by size after part
// of that lot has been closed, removing the ones that reach zero.
func (a *Account) ReduceLotOrders(lotID uint64, size float64) {
	if lotID == 0 || !(size > 0) {
		return
	}
	for id, o := range a.orders {
		if o.LotID != lotID {
			continue
		}
		o.Size = math.Max(0, o.Size-size)
		if o.Size <= Epsilon {
			delete(a.orders, id)
		}
	}
}

func (a *Account) dropOrders(symbol string) int {
	n := 0
	for id, o := range a.orders {
		if o.Symbol == symbol {
			delete(a.orders, id)
			n++
		}
	}
	return n
}

func (a *Account) newTradeID(ts time.Time) string {
	if a.ids != nil {
		return a.ids.New(ts)
	}
	a.tradeSeq++
	return fmt.Sprintf("%s-%06d", a.id, a.tradeSeq)
}

func (a *Account) touch(ts time.Time) {
	if ts.After(a.updatedAt) {
		a.updatedAt = ts
	}
}
