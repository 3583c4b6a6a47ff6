package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTradeNotFound   = errors.New("trade not found")
	ErrAccountNotFound = errors.New("account not found")
)

const tradeColumns = `trade_id, account_id, symbol, side, action, size, entry_price, exit_price, fee, realized_pl, open_time, time, reason, trigger_type, order_id, note`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec     TradeRecord
		orderID int64
	)
	err := s.Scan(
		&rec.TradeID,
		&rec.AccountID,
		&rec.Symbol,
		&rec.Side,
		&rec.Action,
		&rec.Size,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.Fee,
		&rec.RealizedPL,
		&rec.OpenTime,
		&rec.Time,
		&rec.Reason,
		&rec.Trigger,
		&orderID,
		&rec.Note,
	)
	rec.OrderID = uint64(orderID)
	return rec, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("%w: %q", ErrTradeNotFound, tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns every fill for accountID in fill order. An empty
// accountID lists all accounts.
func (j *SQLite) ListTrades(accountID string) ([]TradeRecord, error) {
	if accountID == "" {
		return j.queryTrades(`SELECT ` + tradeColumns + ` FROM trades ORDER BY time ASC, rowid ASC`)
	}
	return j.queryTrades(`SELECT `+tradeColumns+` FROM trades WHERE account_id = ? ORDER BY time ASC, rowid ASC`, accountID)
}

// ListTradesClosedBetween returns closing fills whose time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	return j.queryTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE action = 'close' AND time >= ? AND time < ?
		ORDER BY time ASC, rowid ASC`, start.UTC(), end.UTC())
}

// ListEquity returns the equity curve for accountID.
func (j *SQLite) ListEquity(accountID string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT account_id, time, balance, frozen_margin, unrealized_pl, equity, open_positions
		FROM equity
		WHERE account_id = ?
		ORDER BY time ASC, rowid ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(
			&e.AccountID,
			&e.Time,
			&e.Balance,
			&e.FrozenMargin,
			&e.UnrealizedPL,
			&e.Equity,
			&e.OpenPositions,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) queryTrades(query string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// InitialBalance returns the starting balance recorded by StartRun.
func (j *SQLite) InitialBalance(accountID string) (float64, error) {
	var bal float64
	err := j.db.QueryRow(`SELECT initial_balance FROM accounts WHERE account_id = ?`, accountID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %q", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("initial balance %s: %w", accountID, err)
	}
	return bal, nil
}
