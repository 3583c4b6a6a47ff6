package sim

import (
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/execsim/ledger"
)

type Operation string

const (
	Buy   Operation = "buy"
	Sell  Operation = "sell"
	Close Operation = "close"
	Hold  Operation = "hold"
)

func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case Buy, Sell, Close, Hold:
		return op, nil
	}
	return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidDecision, s)
}

// Decision is one instruction from a strategy.
//
// Portion is a fraction in (0,1]. For buy/sell it scales the available
// balance committed as margin; for close it scales the current position
// size. TakeProfit and StopLoss are optional and only apply to buy/sell.
type Decision struct {
	Operation  Operation
	Symbol     string
	Portion    float64
	Leverage   float64
	TakeProfit *float64
	StopLoss   *float64
	Reason     string
}

// NewDecision builds and validates a Decision.
func NewDecision(op Operation, symbol string, portion, leverage float64, tp, sl *float64, reason string) (Decision, error) {
	d := Decision{
		Operation:  op,
		Symbol:     strings.TrimSpace(symbol),
		Portion:    portion,
		Leverage:   leverage,
		TakeProfit: tp,
		StopLoss:   sl,
		Reason:     reason,
	}
	if err := d.Validate(); err != nil {
		return Decision{}, err
	}
	return d, nil
}

func (d Decision) Validate() error {
	switch d.Operation {
	case Hold:
		return nil
	case Buy, Sell, Close:
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidDecision, d.Operation)
	}

	if d.Symbol == "" {
		return fmt.Errorf("%w: symbol is required for %s", ErrInvalidDecision, d.Operation)
	}
	if !(d.Portion > 0 && d.Portion <= 1) {
		return fmt.Errorf("%s %s: %w: %v", d.Operation, d.Symbol, ErrInvalidPortion, d.Portion)
	}
	if d.Operation == Close {
		return nil
	}

	if !(d.Leverage > 0) || math.IsInf(d.Leverage, 0) {
		return fmt.Errorf("%w: %s %s: leverage must be positive, got %v", ErrInvalidDecision, d.Operation, d.Symbol, d.Leverage)
	}
	if d.TakeProfit != nil && !validPrice(*d.TakeProfit) {
		return fmt.Errorf("%w: %s %s: take_profit_price must be positive and finite, got %v", ErrInvalidDecision, d.Operation, d.Symbol, *d.TakeProfit)
	}
	if d.StopLoss != nil && !validPrice(*d.StopLoss) {
		return fmt.Errorf("%w: %s %s: stop_loss_price must be positive and finite, got %v", ErrInvalidDecision, d.Operation, d.Symbol, *d.StopLoss)
	}
	return nil
}

// Side is the position side a buy or sell opens.
func (d Decision) Side() ledger.Side {
	if d.Operation == Sell {
		return ledger.Short
	}
	return ledger.Long
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

// Price is a convenience for building optional TP/SL fields.
func Price(p float64) *float64 { return &p }
