package journal

import (
	"time"

	"github.com/rustyeddy/execsim/ledger"
)

// TradeRecord is one fill as persisted by a Journal. Opens carry no exit
// price, PnL or exit reason.
type TradeRecord struct {
	TradeID    string
	AccountID  string
	Symbol     string
	Side       string
	Action     string
	Size       float64
	EntryPrice float64
	ExitPrice  float64
	Fee        float64
	RealizedPL float64
	OpenTime   time.Time
	Time       time.Time
	Reason     string // exit reason
	Trigger    string
	OrderID    uint64
	Note       string
}

func FromTrade(t ledger.Trade) TradeRecord {
	return TradeRecord{
		TradeID:    t.ID,
		AccountID:  t.AccountID,
		Symbol:     t.Symbol,
		Side:       t.Side.String(),
		Action:     string(t.Action),
		Size:       t.Size,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		Fee:        t.Fee,
		RealizedPL: t.RealizedPL,
		OpenTime:   t.OpenedAt,
		Time:       t.Time,
		Reason:     string(t.ExitReason),
		Trigger:    t.Trigger,
		OrderID:    t.OrderID,
		Note:       t.Reason,
	}
}

// IsClose reports whether the record realized PnL.
func (r TradeRecord) IsClose() bool { return r.Action == string(ledger.ActionClose) }

type EquitySnapshot struct {
	AccountID     string
	Time          time.Time
	Balance       float64
	FrozenMargin  float64
	UnrealizedPL  float64
	Equity        float64
	OpenPositions int
}

// Snapshot captures acct after its equity was last updated with marks.
func Snapshot(acct *ledger.Account, marks map[string]float64, ts time.Time) EquitySnapshot {
	return EquitySnapshot{
		AccountID:     acct.ID(),
		Time:          ts,
		Balance:       acct.Balance(),
		FrozenMargin:  acct.FrozenMargin(),
		UnrealizedPL:  acct.UnrealizedPL(marks),
		Equity:        acct.Equity(),
		OpenPositions: acct.OpenPositionCount(),
	}
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// RunStarter is implemented by journals that outlive a single run. StartRun
// is called once per account before its first tick and discards whatever an
// earlier run of the same account recorded.
type RunStarter interface {
	StartRun(accountID string, initialBalance float64) error
}
