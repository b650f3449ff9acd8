package db

import "fmt"

// Monetary columns are TEXT holding fixed-point decimal strings so pnl
// accounting never suffers float rounding drift.
const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS trades (
    trade_id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    grid_price TEXT,
    entry_price TEXT,
    quantity TEXT NOT NULL,
    stop_loss TEXT,
    take_profit TEXT,
    opened_at INTEGER,
    closed_at INTEGER,
    exit_price TEXT,
    pnl TEXT,
    status TEXT NOT NULL,
    manual INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades(symbol, status);

CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    symbol TEXT NOT NULL,
    action TEXT NOT NULL,
    price TEXT NOT NULL,
    confidence REAL NOT NULL,
    trend TEXT NOT NULL,
    outcome TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals(symbol, timestamp);

CREATE TABLE IF NOT EXISTS candles (
    symbol TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    open TEXT NOT NULL,
    high TEXT NOT NULL,
    low TEXT NOT NULL,
    close TEXT NOT NULL,
    volume TEXT NOT NULL,
    PRIMARY KEY(symbol, timestamp)
);
`

// ApplyMigrations creates the ledger tables if missing.
func ApplyMigrations(d *Database) error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
