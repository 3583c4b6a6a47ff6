package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/execsim/journal"
	"github.com/rustyeddy/execsim/ledger"
	"github.com/rustyeddy/execsim/sim"
)

// RunnerOptions controls how the backtest runner behaves.
type RunnerOptions struct {
	// If true, close all open positions at the last mark once the feed is
	// exhausted. Fills are tagged sim.TriggerEndOfRun.
	CloseAtEnd bool
}

// Runner replays one account's decision script against a tick feed.
type Runner struct {
	Account   *ledger.Account
	Exec      sim.Config
	Decisions []ScheduledDecision
	Feed      TickFeed
	Journal   journal.Journal // optional
	Logger    *zap.Logger     // optional
	Options   RunnerOptions
}

// Run executes the backtest loop. For each tick:
//  1. update the mark for the tick's symbol
//  2. fire conditional orders on that symbol
//  3. apply every decision due at or before the tick, at its symbol's latest mark
//  4. revalue the account and record an equity snapshot
//
// Rejected decisions are logged and skipped. Any other error, including a
// journal failure, stops the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Account == nil {
		return Result{}, fmt.Errorf("backtest: Account is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	defer r.Feed.Close()

	s, err := sim.New(r.Exec)
	if err != nil {
		return Result{}, fmt.Errorf("backtest: %w", err)
	}

	st := &runState{
		Runner: r,
		sim:    s,
		log:    r.logger().With(zap.String("account", r.Account.ID())),
		marks:  make(map[string]float64),
	}
	s.SetFillListener(st)

	if rs, ok := r.Journal.(journal.RunStarter); ok {
		if err := rs.StartRun(r.Account.ID(), r.Account.InitialBalance()); err != nil {
			return Result{}, fmt.Errorf("backtest: journal: %w", err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		tick, ok, err := r.Feed.Next()
		if err != nil {
			return Result{}, fmt.Errorf("backtest: feed: %w", err)
		}
		if !ok {
			break
		}
		if err := st.step(tick); err != nil {
			return Result{}, err
		}
	}

	if r.Options.CloseAtEnd {
		if err := st.closeAll(); err != nil {
			return Result{}, err
		}
	}

	res := st.result()
	st.log.Info("backtest complete",
		zap.Int("ticks", res.Ticks),
		zap.Int("fills", res.Fills),
		zap.Int("rejected", res.Rejected),
		zap.Float64("equity", res.EndEquity),
		zap.Float64("net_pl", res.NetPL),
	)
	return res, nil
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// runState is the per-run scratch space. It is also the simulator's fill
// listener, so every fill, including the open leg of a flip, is journaled.
type runState struct {
	*Runner
	sim *sim.Simulator
	log *zap.Logger

	marks map[string]float64
	next  int // index of the first decision not yet applied
	last  time.Time
	start time.Time

	ticks    int
	applied  int
	rejected int

	fills  []journal.TradeRecord
	equity []journal.EquitySnapshot

	journalErr error
}

func (st *runState) OnFill(t ledger.Trade) {
	rec := journal.FromTrade(t)
	st.fills = append(st.fills, rec)

	st.log.Debug("fill",
		zap.String("trade_id", t.ID),
		zap.String("symbol", t.Symbol),
		zap.String("side", t.Side.String()),
		zap.String("action", string(t.Action)),
		zap.Float64("size", t.Size),
		zap.Float64("price", fillPrice(t)),
		zap.Float64("realized_pl", t.RealizedPL),
		zap.String("trigger", t.Trigger),
	)

	if st.Journal == nil || st.journalErr != nil {
		return
	}
	if err := st.Journal.RecordTrade(rec); err != nil {
		st.journalErr = fmt.Errorf("backtest: journal trade %s: %w", t.ID, err)
	}
}

func (st *runState) step(tick Tick) error {
	if tick.Time.Before(st.last) {
		return fmt.Errorf("backtest: %w: %s at %s", ErrOutOfOrder, tick.Symbol, tick.Time.Format(time.RFC3339Nano))
	}
	if st.start.IsZero() {
		st.start = tick.Time
	}
	st.last = tick.Time
	st.ticks++
	st.marks[tick.Symbol] = tick.Price

	fired, err := st.sim.CheckTriggers(st.Account, map[string]float64{tick.Symbol: tick.Price}, tick.Time)
	if err != nil {
		return fmt.Errorf("backtest: triggers at %s: %w", tick.Time.Format(time.RFC3339Nano), err)
	}
	for _, f := range fired {
		st.log.Info("conditional order filled",
			zap.Uint64("order_id", f.OrderID),
			zap.String("symbol", f.Symbol),
			zap.String("reason", string(f.ExitReason)),
			zap.Float64("price", f.ExitPrice),
			zap.Float64("size", f.Size),
			zap.Float64("realized_pl", f.RealizedPL),
		)
	}
	if st.journalErr != nil {
		return st.journalErr
	}

	for st.next < len(st.Decisions) && !st.Decisions[st.next].Time.After(tick.Time) {
		sd := st.Decisions[st.next]
		st.next++
		if err := st.apply(sd, tick.Time); err != nil {
			return err
		}
	}

	return st.snapshot(tick.Time)
}

func (st *runState) apply(sd ScheduledDecision, ts time.Time) error {
	d := sd.Decision
	if d.Operation == sim.Hold {
		st.applied++
		return nil
	}

	price, ok := st.marks[d.Symbol]
	if !ok {
		st.rejected++
		st.log.Warn("decision skipped: no price yet",
			zap.String("operation", string(d.Operation)),
			zap.String("symbol", d.Symbol),
			zap.Time("due", sd.Time),
		)
		return nil
	}

	tr, err := st.sim.ExecuteDecision(st.Account, d, price, ts, sd.Trigger)
	if err != nil {
		if sim.IsRejection(err) {
			st.rejected++
			st.log.Warn("decision rejected",
				zap.String("operation", string(d.Operation)),
				zap.String("symbol", d.Symbol),
				zap.Float64("portion", d.Portion),
				zap.Float64("price", price),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("backtest: %s %s at %s: %w", d.Operation, d.Symbol, ts.Format(time.RFC3339Nano), err)
	}
	if st.journalErr != nil {
		return st.journalErr
	}

	st.applied++
	st.log.Info("decision executed",
		zap.String("operation", string(d.Operation)),
		zap.String("symbol", d.Symbol),
		zap.String("action", string(tr.Action)),
		zap.Float64("size", tr.Size),
		zap.Float64("price", fillPrice(*tr)),
		zap.Float64("fee", tr.Fee),
		zap.String("reason", d.Reason),
	)
	return nil
}

func (st *runState) snapshot(ts time.Time) error {
	st.Account.UpdateEquity(st.marks)
	snap := journal.Snapshot(st.Account, st.marks, ts)

	// the in-memory curve only needs points where equity moved
	if n := len(st.equity); n == 0 || st.equity[n-1].Equity != snap.Equity {
		st.equity = append(st.equity, snap)
	} else {
		st.equity[n-1] = snap
	}

	if st.Journal == nil {
		return nil
	}
	if err := st.Journal.RecordEquity(snap); err != nil {
		return fmt.Errorf("backtest: journal equity: %w", err)
	}
	return nil
}

func (st *runState) closeAll() error {
	positions := st.Account.Positions()
	if len(positions) == 0 {
		return nil
	}
	for _, p := range positions {
		price, ok := st.marks[p.Symbol]
		if !ok {
			price = p.EntryPrice
		}
		d := sim.Decision{Operation: sim.Close, Symbol: p.Symbol, Portion: 1, Reason: "end of run"}
		if _, err := st.sim.ExecuteDecision(st.Account, d, price, st.last, sim.TriggerEndOfRun); err != nil {
			return fmt.Errorf("backtest: close %s at end: %w", p.Symbol, err)
		}
		if st.journalErr != nil {
			return st.journalErr
		}
	}
	return st.snapshot(st.last)
}

func (st *runState) result() Result {
	sum := journal.Summarize(st.Account.ID(), st.Account.InitialBalance(), st.fills, st.equity)
	if !st.start.IsZero() {
		sum.Start = st.start
		sum.End = st.last
	}
	return Result{
		Summary:       sum,
		Ticks:         st.ticks,
		Applied:       st.applied,
		Rejected:      st.rejected,
		Unreached:     len(st.Decisions) - st.next,
		Balance:       st.Account.Balance(),
		FrozenMargin:  st.Account.FrozenMargin(),
		Positions:     st.Account.Positions(),
		PendingOrders: st.Account.PendingOrderCount(),
	}
}

func fillPrice(t ledger.Trade) float64 {
	if t.Action == ledger.ActionClose {
		return t.ExitPrice
	}
	return t.EntryPrice
}
