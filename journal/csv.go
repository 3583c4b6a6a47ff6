package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	tradeHeader  = []string{"trade_id", "account_id", "symbol", "side", "action", "size", "entry_price", "exit_price", "fee", "realized_pl", "open_time", "time", "reason", "trigger", "order_id", "note"}
	equityHeader = []string{"account_id", "time", "balance", "frozen_margin", "unrealized_pl", "equity", "open_positions"}
)

// CSVJournal appends trades and equity snapshots to two CSV files. It is
// safe for concurrent use by several account runners.
type CSVJournal struct {
	mu     sync.Mutex
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, fmt.Errorf("csv journal: %w", err)
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, fmt.Errorf("csv journal: %w", err)
	}

	j := &CSVJournal{trades: csv.NewWriter(tf), equity: csv.NewWriter(ef), tf: tf, ef: ef}
	if err := j.write(j.trades, tradeHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if err := j.write(j.equity, equityHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.write(j.trades, []string{
		t.TradeID,
		t.AccountID,
		t.Symbol,
		t.Side,
		t.Action,
		f(t.Size),
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.Fee),
		f(t.RealizedPL),
		ts(t.OpenTime),
		ts(t.Time),
		t.Reason,
		t.Trigger,
		strconv.FormatUint(t.OrderID, 10),
		t.Note,
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.write(j.equity, []string{
		e.AccountID,
		ts(e.Time),
		f(e.Balance),
		f(e.FrozenMargin),
		f(e.UnrealizedPL),
		f(e.Equity),
		strconv.Itoa(e.OpenPositions),
	})
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		j.closeFiles()
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		j.closeFiles()
		return err
	}
	return j.closeFiles()
}

func (j *CSVJournal) write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return fmt.Errorf("csv journal: %w", err)
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) closeFiles() error {
	err := j.tf.Close()
	if cerr := j.ef.Close(); err == nil {
		err = cerr
	}
	return err
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
