package db

import (
	"github.com/shopspring/decimal"
)

// Trade is one row of the trades ledger. Optional fields stay zero-valued
// until the corresponding lifecycle transition writes them.
type Trade struct {
	TradeID    string
	Symbol     string
	Side       string // LONG or SHORT
	GridPrice  decimal.Decimal
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	OpenedAt   int64 // ms, 0 until filled
	ClosedAt   int64 // ms, 0 until closed
	ExitPrice  decimal.Decimal
	PnL        decimal.Decimal
	Status     string // PENDING, OPEN, CLOSED, CANCELLED
	Manual     bool
}

// Signal is one row of the signals audit trail.
type Signal struct {
	ID         string
	Timestamp  int64
	Symbol     string
	Action     string
	Price      decimal.Decimal
	Confidence float64
	Trend      string
	Outcome    string // APPROVED, REJECTED:<reason>, HOLD
}

// Candle is one row of the candles history table.
type Candle struct {
	Symbol    string
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}
