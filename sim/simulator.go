package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/execsim/ledger"
)

// TriggerType records what caused a fill.
type TriggerType string

const (
	TriggerScheduled   TriggerType = "scheduled"
	TriggerSignal      TriggerType = "signal"
	TriggerConditional TriggerType = "tp_sl"
	TriggerEndOfRun    TriggerType = "end_of_run"
)

// FillListener is notified of every fill the simulator produces, including
// the open leg of a flip which is not the canonical return value.
type FillListener interface {
	OnFill(ledger.Trade)
}

// FillListenerFunc adapts a function to FillListener.
type FillListenerFunc func(ledger.Trade)

func (f FillListenerFunc) OnFill(t ledger.Trade) { f(t) }

// Simulator applies decisions and conditional orders to an account. It
// holds only its cost model and an optional listener; all state lives in
// the ledger.Account passed to each call.
type Simulator struct {
	cfg      Config
	listener FillListener
}

func New(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulator config: %w", err)
	}
	return &Simulator{cfg: cfg}, nil
}

func (s *Simulator) Config() Config { return s.cfg }

// SetFillListener sets the listener notified after each successful call.
func (s *Simulator) SetFillListener(l FillListener) {
	s.listener = l
}

// ExecuteDecision applies d to acct at currentPrice.
//
// hold returns (nil, nil). buy/sell open or add to a same-side position, or
// flip an opposite one; a flip returns the closing trade and reports the
// new position's open fill only to the listener. close reduces the position
// by d.Portion of its size. On error the account is left unchanged.
func (s *Simulator) ExecuteDecision(acct *ledger.Account, d Decision, currentPrice float64, ts time.Time, trigger TriggerType) (*ledger.Trade, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.Operation == Hold {
		return nil, nil
	}
	if !(currentPrice > 0) || math.IsInf(currentPrice, 0) {
		return nil, fmt.Errorf("%w: %s %s: price must be positive, got %v",
			ErrInvalidDecision, d.Operation, d.Symbol, currentPrice)
	}

	var (
		fills []ledger.Trade
		err   error
	)
	switch d.Operation {
	case Close:
		fills, err = s.close(acct, d, currentPrice, ts)
	default:
		pos, ok := acct.Position(d.Symbol)
		if ok && pos.Side != d.Side() {
			fills, err = s.flip(acct, d, pos, currentPrice, ts)
		} else {
			fills, err = s.open(acct, d, currentPrice, ts)
		}
	}
	if err != nil {
		return nil, asRejection(err)
	}

	for i := range fills {
		fills[i].Trigger = string(trigger)
		fills[i].Reason = d.Reason
	}
	s.notify(fills)

	tr := fills[0]
	return &tr, nil
}

func (s *Simulator) open(acct *ledger.Account, d Decision, price float64, ts time.Time) ([]ledger.Trade, error) {
	side := d.Side()
	fill := s.entryFill(side, price)

	size, err := s.affordableSize(acct.Balance(), d.Portion, d.Leverage, fill)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", d.Operation, d.Symbol, err)
	}
	fee := s.fee(size, fill)

	snap := acct.Snapshot()
	tr, err := acct.OpenPosition(d.Symbol, side, size, fill, d.Leverage, ts)
	if err != nil {
		return nil, err
	}
	if err := s.protect(acct, d, tr, ts); err != nil {
		acct.Restore(snap)
		return nil, err
	}
	if err := acct.ChargeFee(fee, ts); err != nil {
		acct.Restore(snap)
		return nil, err
	}
	tr.Fee = fee
	return []ledger.Trade{tr}, nil
}

// affordableSize sizes an open from portion*balance*leverage/fill. If the
// fee on top of the margin would overdraw the balance the size is reduced to
// the largest that fits.
func (s *Simulator) affordableSize(balance, portion, leverage, fill float64) (float64, error) {
	if !(balance > 0) {
		return 0, fmt.Errorf("%w: balance %.8f", ErrInsufficientFunds, balance)
	}
	size := portion * balance * leverage / fill
	if math.IsInf(size, 0) || math.IsNaN(size) {
		return 0, fmt.Errorf("%w: size overflows at price %v", ErrInvalidDecision, fill)
	}
	if size*fill/leverage+s.fee(size, fill) > balance {
		size = balance / (fill * (1/leverage + s.cfg.FeeRate))
		// keep rounding from tipping margin plus fee over the balance
		size *= 1 - 1e-12
	}
	if !(size > ledger.Epsilon) {
		return 0, fmt.Errorf("%w: size %.10f at balance %.8f", ErrInsufficientFunds, size, balance)
	}
	return size, nil
}

// protect attaches the decision's TP/SL to exactly the lot just opened.
func (s *Simulator) protect(acct *ledger.Account, d Decision, lot ledger.Trade, ts time.Time) error {
	if d.TakeProfit == nil && d.StopLoss == nil {
		return nil
	}
	lotID := acct.NewLotID()
	if d.TakeProfit != nil {
		if _, err := acct.AddPendingOrder(d.Symbol, ledger.TakeProfit, *d.TakeProfit, lot.Size, lot.EntryPrice, lotID, ts); err != nil {
			return err
		}
	}
	if d.StopLoss != nil {
		if _, err := acct.AddPendingOrder(d.Symbol, ledger.StopLoss, *d.StopLoss, lot.Size, lot.EntryPrice, lotID, ts); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) close(acct *ledger.Account, d Decision, price float64, ts time.Time) ([]ledger.Trade, error) {
	pos, ok := acct.Position(d.Symbol)
	if !ok {
		return nil, fmt.Errorf("close %s: %w", d.Symbol, ErrNoPosition)
	}
	tr, err := s.closeAtMarket(acct, pos, d.Portion, price, ts)
	if err != nil {
		return nil, err
	}
	return []ledger.Trade{tr}, nil
}

func (s *Simulator) closeAtMarket(acct *ledger.Account, pos ledger.Position, portion, price float64, ts time.Time) (ledger.Trade, error) {
	fill := s.exitFill(pos.Side, price)

	snap := acct.Snapshot()
	tr, err := acct.ClosePosition(pos.Symbol, portion, fill, ts)
	if err != nil {
		return ledger.Trade{}, err
	}
	fee := s.fee(tr.Size, fill)
	if err := acct.ChargeFee(fee, ts); err != nil {
		acct.Restore(snap)
		return ledger.Trade{}, err
	}
	tr.Fee = fee
	return tr, nil
}

// flip closes pos entirely, cancels its conditional orders and opens the
// opposite side. Either both legs apply or neither does.
func (s *Simulator) flip(acct *ledger.Account, d Decision, pos ledger.Position, price float64, ts time.Time) ([]ledger.Trade, error) {
	snap := acct.Snapshot()

	closed, err := s.closeAtMarket(acct, pos, 1, price, ts)
	if err != nil {
		acct.Restore(snap)
		return nil, fmt.Errorf("flip %s: %w", d.Symbol, err)
	}
	acct.CancelPendingOrders(d.Symbol)

	opened, err := s.open(acct, d, price, ts)
	if err != nil {
		acct.Restore(snap)
		return nil, fmt.Errorf("flip %s: %w", d.Symbol, err)
	}
	return append([]ledger.Trade{closed}, opened...), nil
}

// CheckTriggers fires every pending order whose condition is met by the
// mark for its symbol. Orders are processed in creation order; each closes
// min(order size, remaining position) at the trigger price without
// slippage, realized against the order's own lot entry.
func (s *Simulator) CheckTriggers(acct *ledger.Account, marks map[string]float64, ts time.Time) ([]ledger.Trade, error) {
	var fills []ledger.Trade

	for _, o := range acct.PendingOrders("") {
		mark, ok := marks[o.Symbol]
		if !ok || !(mark > 0) {
			continue
		}
		// an earlier fill in this batch may have shrunk or removed it
		cur, ok := acct.PendingOrder(o.ID)
		if !ok || !triggered(cur, mark) {
			continue
		}
		if _, ok := acct.Position(cur.Symbol); !ok {
			_ = acct.RemovePendingOrder(cur.ID)
			continue
		}

		tr, err := acct.CloseLot(cur.Symbol, cur.Size, cur.EntryPrice, cur.TriggerPrice, ts, ledger.ExitReasonFor(cur.Type))
		if err != nil {
			s.notify(fills)
			return fills, fmt.Errorf("trigger order %d: %w", cur.ID, err)
		}
		_ = acct.RemovePendingOrder(cur.ID)
		acct.ReduceLotOrders(cur.LotID, tr.Size)

		fee := s.fee(tr.Size, tr.ExitPrice)
		if err := acct.ChargeFee(fee, ts); err != nil {
			s.notify(fills)
			return fills, fmt.Errorf("trigger order %d: %w", cur.ID, err)
		}
		tr.Fee = fee
		tr.OrderID = cur.ID
		tr.Trigger = string(TriggerConditional)
		fills = append(fills, tr)
	}

	s.notify(fills)
	return fills, nil
}

func (s *Simulator) notify(fills []ledger.Trade) {
	if s.listener == nil {
		return
	}
	for _, f := range fills {
		s.listener.OnFill(f)
	}
}
