package sim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/execsim/ledger"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	fills []ledger.Trade
}

func (r *recorder) OnFill(t ledger.Trade) { r.fills = append(r.fills, t) }

func newSim(t *testing.T, cfg Config) (*Simulator, *recorder) {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	rec := &recorder{}
	s.SetFillListener(rec)
	return s, rec
}

func newAccount(t *testing.T, balance float64) *ledger.Account {
	t.Helper()
	a, err := ledger.New("acct-1", balance)
	require.NoError(t, err)
	return a
}

func decide(t *testing.T, op Operation, symbol string, portion, leverage float64, tp, sl *float64) Decision {
	t.Helper()
	d, err := NewDecision(op, symbol, portion, leverage, tp, sl, "test")
	require.NoError(t, err)
	return d
}

func execute(t *testing.T, s *Simulator, a *ledger.Account, d Decision, price float64, ts time.Time) *ledger.Trade {
	t.Helper()
	tr, err := s.ExecuteDecision(a, d, price, ts, TriggerScheduled)
	require.NoError(t, err)
	return tr
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{SlippagePercent: -1})
	assert.Error(t, err)
	_, err = New(Config{FeeRate: 1})
	assert.Error(t, err)
}

func TestHoldIsNoop(t *testing.T) {
	t.Parallel()

	s, rec := newSim(t, Config{})
	a := newAccount(t, 1000)

	tr, err := s.ExecuteDecision(a, Decision{Operation: Hold}, 0, t0, TriggerScheduled)
	assert.NoError(t, err)
	assert.Nil(t, tr)
	assert.Empty(t, rec.fills)
	assert.Equal(t, 1000.0, a.Balance())
}

func TestPartialAndFullCloseScenario(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{})
	a := newAccount(t, 10000)

	open := execute(t, s, a, decide(t, Buy, "BTC", 1, 10, nil, nil), 100000, t0)
	assert.Equal(t, ledger.ActionOpen, open.Action)
	assert.InDelta(t, 1.0, open.Size, 1e-9)

	tr := execute(t, s, a, decide(t, Close, "BTC", 0.3, 0, nil, nil), 101000, t0.Add(time.Hour))
	assert.InDelta(t, 0.3, tr.Size, 1e-9)
	assert.InDelta(t, 300, tr.RealizedPL, 1e-6)
	assert.Equal(t, ledger.ExitManual, tr.ExitReason)

	p, ok := a.Position("BTC")
	require.True(t, ok)
	assert.InDelta(t, 0.7, p.Size, 1e-9)

	tr = execute(t, s, a, decide(t, Close, "BTC", 1, 0, nil, nil), 102000, t0.Add(2*time.Hour))
	assert.InDelta(t, 0.7, tr.Size, 1e-9)
	assert.InDelta(t, 1400, tr.RealizedPL, 1e-6)

	_, ok = a.Position("BTC")
	assert.False(t, ok)
	assert.InDelta(t, 11700, a.Balance(), 1e-6)
}

func TestSlippageAndFees(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{SlippagePercent: 0.1, FeeRate: 0.001})
	a := newAccount(t, 1000)

	open := execute(t, s, a, decide(t, Buy, "ETH", 0.5, 2, nil, nil), 100, t0)
	size := 0.5 * 1000 * 2 / 100.1
	assert.InDelta(t, 100.1, open.EntryPrice, 1e-9)
	assert.InDelta(t, size, open.Size, 1e-6)
	assert.InDelta(t, size*100.1*0.001, open.Fee, 1e-6)
	assert.InDelta(t, 1000-500-size*100.1*0.001, a.Balance(), 1e-6)

	tr := execute(t, s, a, decide(t, Close, "ETH", 1, 0, nil, nil), 100, t0.Add(time.Minute))
	assert.InDelta(t, 99.9, tr.ExitPrice, 1e-9)
	assert.InDelta(t, (99.9-100.1)*size, tr.RealizedPL, 1e-6)
	assert.InDelta(t, size*99.9*0.001, tr.Fee, 1e-6)

	want := 1000 + (99.9-100.1)*size - size*100.1*0.001 - size*99.9*0.001
	assert.InDelta(t, want, a.Balance(), 1e-6)
	assert.InDelta(t, tr.RealizedPL-tr.Fee, tr.NetPL(), 1e-12)
}

func TestShortFillsAgainstSeller(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{SlippagePercent: 0.5})
	a := newAccount(t, 1000)

	open := execute(t, s, a, decide(t, Sell, "SOL", 1, 1, nil, nil), 200, t0)
	assert.Equal(t, ledger.Short, open.Side)
	assert.InDelta(t, 199, open.EntryPrice, 1e-9)

	tr := execute(t, s, a, decide(t, Close, "SOL", 1, 0, nil, nil), 180, t0)
	assert.InDelta(t, 180.9, tr.ExitPrice, 1e-9)
	assert.InDelta(t, (199-180.9)*open.Size, tr.RealizedPL, 1e-6)
}

func TestFeeOverflowReducesSize(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{FeeRate: 0.01})
	a := newAccount(t, 1000)

	open := execute(t, s, a, decide(t, Buy, "BTC", 1, 1, nil, nil), 100, t0)
	assert.InDelta(t, 1000/(100*1.01), open.Size, 1e-6)
	assert.InDelta(t, 0, a.Balance(), 1e-6)
	assert.GreaterOrEqual(t, a.Balance(), -1e-9)
}

func TestSameSideBuyAddsLot(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{})
	a := newAccount(t, 10000)

	first := execute(t, s, a, decide(t, Buy, "BTC", 0.5, 1, nil, nil), 100, t0)
	second := execute(t, s, a, decide(t, Buy, "BTC", 0.5, 1, nil, nil), 120, t0)

	p, ok := a.Position("BTC")
	require.True(t, ok)
	assert.InDelta(t, first.Size+second.Size, p.Size, 1e-9)
	want := (first.Size*100 + second.Size*120) / (first.Size + second.Size)
	assert.InDelta(t, want, p.EntryPrice, 1e-9)
}

func TestFlipClosesThenOpens(t *testing.T) {
	t.Parallel()

	s, rec := newSim(t, Config{})
	a := newAccount(t, 10000)

	execute(t, s, a, decide(t, Buy, "BTC", 0.5, 1, Price(120), Price(90)), 100, t0)
	require.Equal(t, 2, a.PendingOrderCount())

	tr := execute(t, s, a, decide(t, Sell, "BTC", 0.5, 1, nil, nil), 110, t0.Add(time.Hour))
	assert.Equal(t, ledger.ActionClose, tr.Action)
	assert.Equal(t, ledger.Long, tr.Side)
	assert.InDelta(t, 50, tr.Size, 1e-6)
	assert.InDelta(t, 500, tr.RealizedPL, 1e-6)

	require.Len(t, rec.fills, 3)
	assert.Equal(t, ledger.ActionOpen, rec.fills[2].Action)
	assert.Equal(t, ledger.Short, rec.fills[2].Side)

	p, ok := a.Position("BTC")
	require.True(t, ok)
	assert.Equal(t, ledger.Short, p.Side)
	assert.InDelta(t, 0.5*10500/110, p.Size, 1e-6)
	assert.Zero(t, a.PendingOrderCount())
}

func TestFillListenerSeesTriggerAndReason(t *testing.T) {
	t.Parallel()

	s, err := New(Config{})
	require.NoError(t, err)
	var got []ledger.Trade
	s.SetFillListener(FillListenerFunc(func(tr ledger.Trade) { got = append(got, tr) }))

	a := newAccount(t, 1000)
	d := decide(t, Buy, "ETH", 1, 1, nil, nil)
	d.Reason = "breakout"
	_, err = s.ExecuteDecision(a, d, 100, t0, TriggerSignal)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, string(TriggerSignal), got[0].Trigger)
	assert.Equal(t, "breakout", got[0].Reason)
}

func TestInfiniteTargetsAreRejected(t *testing.T) {
	t.Parallel()

	s, rec := newSim(t, Config{})
	a := newAccount(t, 1000)

	d := Decision{Operation: Buy, Symbol: "BTC", Portion: 1, Leverage: 1, TakeProfit: Price(math.Inf(1))}
	_, err := s.ExecuteDecision(a, d, 100, t0, TriggerScheduled)
	assert.ErrorIs(t, err, ErrInvalidDecision)
	assert.True(t, IsRejection(err))

	assert.InDelta(t, 1000, a.Balance(), 1e-12)
	assert.False(t, a.HasOpenPositions())
	assert.Zero(t, a.PendingOrderCount())
	assert.Empty(t, rec.fills)
}

func TestOverflowingSizeIsRejected(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{})
	a := newAccount(t, 1e300)

	_, err := s.ExecuteDecision(a, decide(t, Buy, "DUST", 1, 100, nil, nil), 1e-300, t0, TriggerScheduled)
	assert.ErrorIs(t, err, ErrInvalidDecision)
	assert.True(t, IsRejection(err))
	assert.False(t, a.HasOpenPositions())
}

func TestUnclampedOpenKeepsExactSize(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{FeeRate: 0.001})
	a := newAccount(t, 10000)

	tr := execute(t, s, a, decide(t, Buy, "BTC", 0.5, 2, nil, nil), 100, t0)
	assert.Equal(t, 0.5*10000*2/100.0, tr.Size)
}

func TestFlipIsAtomic(t *testing.T) {
	t.Parallel()

	s, rec := newSim(t, Config{})
	a := newAccount(t, 10)

	execute(t, s, a, decide(t, Buy, "BTC", 1, 10, nil, Price(50)), 100, t0)
	balance := a.Balance()
	fills := len(rec.fills)

	// closing at 80 realizes -20 on a 10 balance, leaving nothing to open with
	_, err := s.ExecuteDecision(a, decide(t, Sell, "BTC", 1, 10, nil, nil), 80, t0.Add(time.Hour), TriggerScheduled)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	p, ok := a.Position("BTC")
	require.True(t, ok)
	assert.Equal(t, ledger.Long, p.Side)
	assert.InDelta(t, 1, p.Size, 1e-9)
	assert.Equal(t, balance, a.Balance())
	assert.Equal(t, 1, a.PendingOrderCount())
	assert.Len(t, rec.fills, fills)
}

func TestRejections(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{})

	t.Run("close without position", func(t *testing.T) {
		a := newAccount(t, 1000)
		_, err := s.ExecuteDecision(a, decide(t, Close, "BTC", 1, 0, nil, nil), 100, t0, TriggerScheduled)
		assert.ErrorIs(t, err, ErrNoPosition)
		assert.True(t, IsRejection(err))
	})

	t.Run("zero portion", func(t *testing.T) {
		a := newAccount(t, 1000)
		_, err := s.ExecuteDecision(a, Decision{Operation: Buy, Symbol: "BTC", Leverage: 1}, 100, t0, TriggerScheduled)
		assert.ErrorIs(t, err, ErrInvalidPortion)
	})

	t.Run("portion above one on close", func(t *testing.T) {
		a := newAccount(t, 1000)
		_, err := s.ExecuteDecision(a, Decision{Operation: Close, Symbol: "BTC", Portion: 1.5}, 100, t0, TriggerScheduled)
		assert.ErrorIs(t, err, ErrInvalidPortion)
	})

	t.Run("no balance left", func(t *testing.T) {
		a := newAccount(t, 1000)
		execute(t, s, a, decide(t, Buy, "BTC", 1, 1, nil, nil), 100, t0)
		balance := a.Balance()

		_, err := s.ExecuteDecision(a, decide(t, Buy, "ETH", 1, 1, nil, nil), 10, t0, TriggerScheduled)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, balance, a.Balance())
		_, ok := a.Position("ETH")
		assert.False(t, ok)
	})

	t.Run("bad price", func(t *testing.T) {
		a := newAccount(t, 1000)
		_, err := s.ExecuteDecision(a, decide(t, Buy, "BTC", 1, 1, nil, nil), 0, t0, TriggerScheduled)
		assert.ErrorIs(t, err, ErrInvalidDecision)
	})

	t.Run("unknown operation", func(t *testing.T) {
		a := newAccount(t, 1000)
		_, err := s.ExecuteDecision(a, Decision{Operation: "short", Symbol: "BTC", Portion: 1}, 100, t0, TriggerScheduled)
		assert.ErrorIs(t, err, ErrInvalidDecision)
	})
}

func TestOpenCreatesLotScopedOrders(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{})
	a := newAccount(t, 10000)

	lot1 := execute(t, s, a, decide(t, Buy, "BTC", 0.2, 1, Price(130), Price(90)), 100, t0)
	lot2 := execute(t, s, a, decide(t, Buy, "BTC", 0.2, 1, nil, Price(100)), 110, t0)

	orders := a.PendingOrders("BTC")
	require.Len(t, orders, 3)

	assert.Equal(t, ledger.TakeProfit, orders[0].Type)
	assert.InDelta(t, lot1.Size, orders[0].Size, 1e-12)
	assert.InDelta(t, 100, orders[0].EntryPrice, 1e-12)
	assert.Equal(t, ledger.StopLoss, orders[1].Type)
	assert.Equal(t, orders[0].LotID, orders[1].LotID)

	assert.InDelta(t, lot2.Size, orders[2].Size, 1e-12)
	assert.InDelta(t, 110, orders[2].EntryPrice, 1e-12)
	assert.NotEqual(t, orders[0].LotID, orders[2].LotID)
}

func TestThreeShortsStopLossScenario(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{})
	a := newAccount(t, 1_000_000)

	lots := []struct{ entry, sl float64 }{
		{91000, 92000},
		{90000, 91000},
		{89000, 90000},
	}
	var sizes []float64
	for _, l := range lots {
		tr := execute(t, s, a, decide(t, Sell, "BTC", 0.1, 1, nil, Price(l.sl)), l.entry, t0)
		sizes = append(sizes, tr.Size)
	}
	first := a.PendingOrders("BTC")[0]

	fills, err := s.CheckTriggers(a, map[string]float64{"BTC": 91500}, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, uint64(2), fills[0].OrderID)
	assert.Equal(t, uint64(3), fills[1].OrderID)
	for i, f := range fills {
		l := lots[i+1]
		assert.Equal(t, ledger.ExitStopLoss, f.ExitReason)
		assert.Equal(t, string(TriggerConditional), f.Trigger)
		assert.InDelta(t, l.sl, f.ExitPrice, 1e-9)
		assert.InDelta(t, sizes[i+1], f.Size, 1e-9)
		assert.InDelta(t, (l.entry-l.sl)*sizes[i+1], f.RealizedPL, 1e-6)
		assert.LessOrEqual(t, f.RealizedPL, 0.0)
	}

	remaining := a.PendingOrders("BTC")
	require.Len(t, remaining, 1)
	assert.Equal(t, first, remaining[0])

	p, ok := a.Position("BTC")
	require.True(t, ok)
	assert.InDelta(t, sizes[0], p.Size, 1e-9)
	assert.InDelta(t, 91000, p.EntryPrice, 1e-4)
}

func TestIndependentLots(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{})
	a := newAccount(t, 10000)

	lot1 := execute(t, s, a, decide(t, Buy, "ETH", 0.3, 1, nil, Price(90)), 100, t0)
	execute(t, s, a, decide(t, Buy, "ETH", 0.3, 1, nil, Price(95)), 110, t0)
	farOrder := a.PendingOrders("ETH")[0]

	fills, err := s.CheckTriggers(a, map[string]float64{"ETH": 94}, t0)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.InDelta(t, 95, fills[0].ExitPrice, 1e-9)
	assert.InDelta(t, (95-110)*fills[0].Size, fills[0].RealizedPL, 1e-6)

	p, ok := a.Position("ETH")
	require.True(t, ok)
	assert.InDelta(t, lot1.Size, p.Size, 1e-9)
	assert.InDelta(t, 100, p.EntryPrice, 1e-6)

	left := a.PendingOrders("ETH")
	require.Len(t, left, 1)
	assert.Equal(t, farOrder, left[0])
}

func TestTriggersClampToPositionAtCallStart(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{})
	a := newAccount(t, 10000)

	open := execute(t, s, a, decide(t, Buy, "BTC", 0.1, 1, nil, nil), 100, t0)
	_, err := a.AddPendingOrder("BTC", ledger.StopLoss, 95, open.Size*0.8, 100, a.NewLotID(), t0)
	require.NoError(t, err)
	_, err = a.AddPendingOrder("BTC", ledger.StopLoss, 96, open.Size*0.8, 100, a.NewLotID(), t0)
	require.NoError(t, err)

	fills, err := s.CheckTriggers(a, map[string]float64{"BTC": 94}, t0)
	require.NoError(t, err)
	require.Len(t, fills, 2)

	var closed float64
	for _, f := range fills {
		closed += f.Size
	}
	assert.InDelta(t, open.Size, closed, 1e-9)
	assert.InDelta(t, open.Size*0.2, fills[1].Size, 1e-9)

	_, ok := a.Position("BTC")
	assert.False(t, ok)
	assert.Zero(t, a.PendingOrderCount())
}

func TestTakeProfitCancelsSiblingStop(t *testing.T) {
	t.Parallel()

	s, rec := newSim(t, Config{FeeRate: 0.001, SlippagePercent: 1})
	a := newAccount(t, 10000)

	open := execute(t, s, a, decide(t, Sell, "BTC", 0.5, 2, Price(80), Price(120)), 100, t0)
	require.Equal(t, 2, a.PendingOrderCount())

	fills, err := s.CheckTriggers(a, map[string]float64{"BTC": 79}, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, fills, 1)

	f := fills[0]
	assert.Equal(t, ledger.ExitTakeProfit, f.ExitReason)
	assert.InDelta(t, 80, f.ExitPrice, 1e-12)
	assert.InDelta(t, (99-80)*open.Size, f.RealizedPL, 1e-6)
	assert.InDelta(t, open.Size*80*0.001, f.Fee, 1e-9)
	assert.Zero(t, a.PendingOrderCount())
	assert.False(t, a.HasOpenPositions())
	assert.Equal(t, f, rec.fills[len(rec.fills)-1])
}

func TestTriggersIgnoreMissingMarks(t *testing.T) {
	t.Parallel()

	s, _ := newSim(t, Config{})
	a := newAccount(t, 10000)

	execute(t, s, a, decide(t, Buy, "BTC", 0.1, 1, nil, Price(90)), 100, t0)
	fills, err := s.CheckTriggers(a, map[string]float64{"ETH": 1}, t0)
	require.NoError(t, err)
	assert.Empty(t, fills)
	assert.Equal(t, 1, a.PendingOrderCount())
}

func TestStopLossNeverProfits(t *testing.T) {
	t.Parallel()

	entries := []float64{10, 99.5, 1234, 50000}
	for _, side := range []Operation{Buy, Sell} {
		for _, entry := range entries {
			s, _ := newSim(t, Config{})
			a := newAccount(t, 1_000_000)

			stop := entry * 0.97
			mark := entry * 0.9
			if side == Sell {
				stop = entry * 1.03
				mark = entry * 1.1
			}
			execute(t, s, a, decide(t, side, "X", 0.2, 3, nil, Price(stop)), entry, t0)

			fills, err := s.CheckTriggers(a, map[string]float64{"X": mark}, t0)
			require.NoError(t, err)
			require.Len(t, fills, 1)
			assert.LessOrEqual(t, fills[0].RealizedPL, 0.0, "%s @ %v", side, entry)
		}
	}
}
