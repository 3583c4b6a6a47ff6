package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	open := fill("o1", "alpha", "open", 0, 0)
	open.Fee = 2
	win := fill("c1", "alpha", "close", time.Hour, 300)
	win.Fee = 3
	loss := fill("c2", "alpha", "close", 2*time.Hour, -100)
	loss.Fee = 1
	flat := fill("c3", "alpha", "close", 3*time.Hour, 0)
	other := fill("x1", "beta", "close", time.Hour, 1000)

	equity := []EquitySnapshot{
		{AccountID: "alpha", Time: base, Balance: 900, Equity: 1000},
		{AccountID: "alpha", Time: base.Add(time.Hour), Balance: 1100, Equity: 1200},
		{AccountID: "alpha", Time: base.Add(2 * time.Hour), Balance: 900, Equity: 900},
		{AccountID: "beta", Time: base.Add(2 * time.Hour), Balance: 1, Equity: 1},
		{AccountID: "alpha", Time: base.Add(4 * time.Hour), Balance: 1194, Equity: 1194},
	}

	s := Summarize("alpha", 1000, []TradeRecord{open, win, loss, flat, other}, equity)

	assert.Equal(t, 4, s.Fills)
	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 6, s.Fees, 1e-9)
	assert.InDelta(t, 300, s.GrossProfit, 1e-9)
	assert.InDelta(t, 100, s.GrossLoss, 1e-9)
	assert.InDelta(t, 194, s.NetPL, 1e-9)
	assert.InDelta(t, 3, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 1.0/3, s.WinRate, 1e-9)
	assert.InDelta(t, 1194, s.EndBalance, 1e-9)
	assert.InDelta(t, 1194, s.EndEquity, 1e-9)
	assert.InDelta(t, 19.4, s.ReturnPct, 1e-9)
	assert.InDelta(t, 25, s.MaxDDPct, 1e-9)
	assert.Equal(t, base, s.Start)
	assert.Equal(t, base.Add(4*time.Hour), s.End)
}

func TestSummarizeWithoutEquity(t *testing.T) {
	t.Parallel()

	win := fill("c1", "alpha", "close", time.Hour, 50)
	win.Fee = 5

	s := Summarize("alpha", 1000, []TradeRecord{win}, nil)
	assert.InDelta(t, 1045, s.EndBalance, 1e-9)
	assert.InDelta(t, 1045, s.EndEquity, 1e-9)
	assert.Zero(t, s.ProfitFactor)
	assert.Zero(t, s.MaxDDPct)
	assert.Equal(t, 1.0, s.WinRate)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	s := Summarize("alpha", 500, nil, nil)
	assert.Equal(t, 500.0, s.EndEquity)
	assert.Zero(t, s.Trades)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.ReturnPct)
	assert.True(t, s.Start.IsZero())
}

func TestFromTrade(t *testing.T) {
	t.Parallel()

	rec := FromTrade(sampleTrade())
	assert.Equal(t, "acct", rec.AccountID)
	assert.Equal(t, "short", rec.Side)
	assert.Equal(t, "close", rec.Action)
	assert.Equal(t, "take_profit", rec.Reason)
	assert.Equal(t, "tp_sl", rec.Trigger)
	assert.Equal(t, uint64(9), rec.OrderID)
	assert.Equal(t, "why", rec.Note)
	assert.True(t, rec.IsClose())
}
