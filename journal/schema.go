package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	action TEXT NOT NULL,
	size REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	fee REAL NOT NULL,
	realized_pl REAL NOT NULL,
	open_time DATETIME NOT NULL,
	time DATETIME NOT NULL,
	reason TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	order_id INTEGER NOT NULL,
	note TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id, time);
CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(time);

CREATE TABLE IF NOT EXISTS equity (
	account_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	frozen_margin REAL NOT NULL,
	unrealized_pl REAL NOT NULL,
	equity REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_account_time ON equity(account_id, time);

CREATE TABLE IF NOT EXISTS accounts (
	account_id TEXT PRIMARY KEY,
	initial_balance REAL NOT NULL
);
`
