package journal

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: %w", err)
	}
	// one writer; parallel account runners serialize here
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, account_id, symbol, side, action, size, entry_price, exit_price, fee, realized_pl, open_time, time, reason, trigger_type, order_id, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.AccountID, t.Symbol, t.Side, t.Action, t.Size,
		t.EntryPrice, t.ExitPrice, t.Fee, t.RealizedPL,
		t.OpenTime.UTC(), t.Time.UTC(), t.Reason, t.Trigger, int64(t.OrderID), t.Note,
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.TradeID, err)
	}
	return nil
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`
		INSERT INTO equity
		(account_id, time, balance, frozen_margin, unrealized_pl, equity, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.AccountID, e.Time.UTC(), e.Balance, e.FrozenMargin, e.UnrealizedPL, e.Equity, e.OpenPositions,
	)
	if err != nil {
		return fmt.Errorf("record equity %s: %w", e.AccountID, err)
	}
	return nil
}

// StartRun clears the account's earlier trades and equity and records its
// initial balance, in one transaction.
func (j *SQLite) StartRun(accountID string, initialBalance float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("start run %s: %w", accountID, err)
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM trades WHERE account_id = ?`, []any{accountID}},
		{`DELETE FROM equity WHERE account_id = ?`, []any{accountID}},
		{`INSERT INTO accounts (account_id, initial_balance) VALUES (?, ?)
		  ON CONFLICT(account_id) DO UPDATE SET initial_balance = excluded.initial_balance`, []any{accountID, initialBalance}},
	}
	for _, st := range stmts {
		if _, err := tx.Exec(st.query, st.args...); err != nil {
			return fmt.Errorf("start run %s: %w", accountID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("start run %s: %w", accountID, err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
