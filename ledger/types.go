package ledger

import (
	"fmt"
	"time"
)

// Epsilon is the size below which a position or pending order is treated as
// fully consumed.
const Epsilon = 1e-8

// Side: +1 long, -1 short
type Side int8

const (
	Long  Side = +1
	Short Side = -1
)

// Sign returns +1 for long and -1 for short, for PnL arithmetic.
func (s Side) Sign() float64 { return float64(s) }

func (s Side) Valid() bool { return s == Long || s == Short }

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("side(%d)", int8(s))
	}
}

type OrderType string

const (
	TakeProfit OrderType = "take_profit"
	StopLoss   OrderType = "stop_loss"
)

func (t OrderType) Valid() bool { return t == TakeProfit || t == StopLoss }

type ExitReason string

const (
	ExitManual     ExitReason = "manual"
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
)

// ExitReasonFor maps a conditional order type to the reason recorded on its fill.
func ExitReasonFor(t OrderType) ExitReason {
	if t == TakeProfit {
		return ExitTakeProfit
	}
	return ExitStopLoss
}

type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// Position is the net position held for one symbol.
type Position struct {
	Symbol     string
	Side       Side
	Size       float64
	EntryPrice float64 // volume weighted
	Leverage   float64
	Margin     float64 // frozen for this position
	OpenedAt   time.Time
	UpdatedAt  time.Time
}

func (p Position) UnrealizedPL(mark float64) float64 {
	return (mark - p.EntryPrice) * p.Size * p.Side.Sign()
}

// PendingOrder is a standing take-profit or stop-loss instruction protecting
// one entry lot. Size is fixed at creation and only ever shrinks.
type PendingOrder struct {
	ID           uint64
	Symbol       string
	Type         OrderType
	Side         Side // side of the protected position
	TriggerPrice float64
	Size         float64
	EntryPrice   float64 // lot entry, used for realized PnL
	LotID        uint64
	CreatedAt    time.Time
}

// Trade is an immutable fill record.
type Trade struct {
	ID         string
	AccountID  string
	Symbol     string
	Side       Side // side of the position the fill belongs to
	Action     Action
	Size       float64
	EntryPrice float64
	ExitPrice  float64 // zero for opens
	Fee        float64
	RealizedPL float64 // zero for opens
	OpenedAt   time.Time
	Time       time.Time
	ExitReason ExitReason // empty for opens
	OrderID    uint64     // set for conditional fills
	Trigger    string
	Reason     string
}

// NetPL is realized PnL after the fee of this fill.
func (t Trade) NetPL() float64 { return t.RealizedPL - t.Fee }
