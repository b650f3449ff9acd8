package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// InsertTrade records a new trade in PENDING state.
func (d *Database) InsertTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (trade_id, symbol, side, grid_price, entry_price, quantity,
			stop_loss, take_profit, opened_at, closed_at, exit_price, pnl, status, manual)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Symbol, t.Side, t.GridPrice.String(), t.EntryPrice.String(),
		t.Quantity.String(), t.StopLoss.String(), t.TakeProfit.String(),
		t.OpenedAt, t.ClosedAt, t.ExitPrice.String(), t.PnL.String(), t.Status, boolToInt(t.Manual))
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
	}
	return nil
}

// MarkTradeOpen transitions a trade to OPEN with its actual fill price.
func (d *Database) MarkTradeOpen(ctx context.Context, tradeID string, entryPrice decimal.Decimal, openedAt int64) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE trades SET status = 'OPEN', entry_price = ?, opened_at = ?
		WHERE trade_id = ?`,
		entryPrice.String(), openedAt, tradeID)
	if err != nil {
		return fmt.Errorf("mark trade open %s: %w", tradeID, err)
	}
	return requireRow(res, tradeID)
}

// MarkTradeClosed transitions a trade to CLOSED with exit price and realized pnl.
func (d *Database) MarkTradeClosed(ctx context.Context, tradeID string, exitPrice, pnl decimal.Decimal, closedAt int64) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE trades SET status = 'CLOSED', exit_price = ?, pnl = ?, closed_at = ?
		WHERE trade_id = ?`,
		exitPrice.String(), pnl.String(), closedAt, tradeID)
	if err != nil {
		return fmt.Errorf("mark trade closed %s: %w", tradeID, err)
	}
	return requireRow(res, tradeID)
}

// UpdateTradeStatus sets only the status column, used for CANCELLED.
func (d *Database) UpdateTradeStatus(ctx context.Context, tradeID, status string) error {
	res, err := d.DB.ExecContext(ctx, `UPDATE trades SET status = ? WHERE trade_id = ?`, status, tradeID)
	if err != nil {
		return fmt.Errorf("update trade status %s: %w", tradeID, err)
	}
	return requireRow(res, tradeID)
}

// GetTrade fetches one trade by id.
func (d *Database) GetTrade(ctx context.Context, tradeID string) (Trade, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT trade_id, symbol, side, grid_price, entry_price, quantity,
			stop_loss, take_profit, opened_at, closed_at, exit_price, pnl, status, manual
		FROM trades WHERE trade_id = ?`, tradeID)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, ErrNotFound
	}
	if err != nil {
		return Trade{}, fmt.Errorf("get trade %s: %w", tradeID, err)
	}
	return t, nil
}

// ListOpenTrades returns PENDING and OPEN trades for a symbol, oldest first.
// It is the recovery source after a restart.
func (d *Database) ListOpenTrades(ctx context.Context, symbol string) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT trade_id, symbol, side, grid_price, entry_price, quantity,
			stop_loss, take_profit, opened_at, closed_at, exit_price, pnl, status, manual
		FROM trades WHERE symbol = ? AND status IN ('PENDING', 'OPEN')
		ORDER BY opened_at ASC, trade_id ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("list open trades %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan open trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListRecentTrades returns the latest trades for a symbol in any status.
func (d *Database) ListRecentTrades(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT trade_id, symbol, side, grid_price, entry_price, quantity,
			stop_loss, take_profit, opened_at, closed_at, exit_price, pnl, status, manual
		FROM trades WHERE symbol = ?
		ORDER BY opened_at DESC, trade_id DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent trades %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertSignal appends a signal to the audit trail.
func (d *Database) InsertSignal(ctx context.Context, s Signal) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signals (id, timestamp, symbol, action, price, confidence, trend, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Timestamp, s.Symbol, s.Action, s.Price.String(), s.Confidence, s.Trend, s.Outcome)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", s.ID, err)
	}
	return nil
}

// SetSignalOutcome records what happened to a signal after risk review.
func (d *Database) SetSignalOutcome(ctx context.Context, id, outcome string) error {
	res, err := d.DB.ExecContext(ctx, `UPDATE signals SET outcome = ? WHERE id = ?`, outcome, id)
	if err != nil {
		return fmt.Errorf("set signal outcome %s: %w", id, err)
	}
	return requireRow(res, id)
}

// ListRecentSignals returns the latest signals for a symbol, newest first.
func (d *Database) ListRecentSignals(ctx context.Context, symbol string, limit int) ([]Signal, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, timestamp, symbol, action, price, confidence, trend, outcome
		FROM signals WHERE symbol = ?
		ORDER BY timestamp DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("list signals %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var s Signal
		var price string
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.Symbol, &s.Action, &price, &s.Confidence, &s.Trend, &s.Outcome); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse signal price %q: %w", price, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertCandle upserts one closed candle.
func (d *Database) InsertCandle(ctx context.Context, c Candle) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timestamp) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`,
		c.Symbol, c.Timestamp, c.Open.String(), c.High.String(), c.Low.String(),
		c.Close.String(), c.Volume.String())
	if err != nil {
		return fmt.Errorf("insert candle %s@%d: %w", c.Symbol, c.Timestamp, err)
	}
	return nil
}

// ListRecentCandles returns up to limit most recent candles in ascending
// timestamp order, ready to replay into an indicator engine.
func (d *Database) ListRecentCandles(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM (
			SELECT symbol, timestamp, open, high, low, close, volume
			FROM candles WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("list candles %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var c Candle
		var open, high, low, cl, vol string
		if err := rows.Scan(&c.Symbol, &c.Timestamp, &open, &high, &low, &cl, &vol); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		if c.Open, c.High, c.Low, c.Close, c.Volume, err = parseOHLCV(open, high, low, cl, vol); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (Trade, error) {
	var t Trade
	var gridPrice, entryPrice, quantity, stopLoss, takeProfit, exitPrice, pnl sql.NullString
	var openedAt, closedAt sql.NullInt64
	var manual int
	err := row.Scan(&t.TradeID, &t.Symbol, &t.Side, &gridPrice, &entryPrice, &quantity,
		&stopLoss, &takeProfit, &openedAt, &closedAt, &exitPrice, &pnl, &t.Status, &manual)
	if err != nil {
		return Trade{}, err
	}
	t.OpenedAt = openedAt.Int64
	t.ClosedAt = closedAt.Int64
	t.Manual = manual != 0
	for _, f := range []struct {
		dst *decimal.Decimal
		src sql.NullString
	}{
		{&t.GridPrice, gridPrice},
		{&t.EntryPrice, entryPrice},
		{&t.Quantity, quantity},
		{&t.StopLoss, stopLoss},
		{&t.TakeProfit, takeProfit},
		{&t.ExitPrice, exitPrice},
		{&t.PnL, pnl},
	} {
		if !f.src.Valid || f.src.String == "" {
			continue
		}
		v, err := decimal.NewFromString(f.src.String)
		if err != nil {
			return Trade{}, fmt.Errorf("parse decimal %q: %w", f.src.String, err)
		}
		*f.dst = v
	}
	return t, nil
}

func parseOHLCV(open, high, low, cl, vol string) (o, h, l, c, v decimal.Decimal, err error) {
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&o, open}, {&h, high}, {&l, low}, {&c, cl}, {&v, vol}} {
		*f.dst, err = decimal.NewFromString(f.src)
		if err != nil {
			return o, h, l, c, v, fmt.Errorf("parse decimal %q: %w", f.src, err)
		}
	}
	return o, h, l, c, v, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
