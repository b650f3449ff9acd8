package order

import (
	"github.com/shopspring/decimal"

	"grid-core/pkg/db"
)

// Status is the trade state machine position.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOpen      Status = "OPEN"
	StatusClosed    Status = "CLOSED"
	StatusCancelled Status = "CANCELLED"
)

// Side is the trade direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Trade tracks one grid order through its lifecycle. Quantity, stop and
// take-profit are fixed at creation; fills mutate entry/exit fields only.
type Trade struct {
	ID         string
	Symbol     string
	Side       Side
	GridPrice  decimal.Decimal // the grid level that fired
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	OpenedAt   int64
	ClosedAt   int64
	ExitPrice  decimal.Decimal
	PnL        decimal.Decimal
	Status     Status
	Manual     bool

	entryFee     decimal.Decimal
	awaitingExit bool
	exitOrderID  string
	unresolved   bool // placement outcome unknown, needs a status poll
}

// sign is +1 for long, -1 for short.
func (t *Trade) sign() decimal.Decimal {
	if t.Side == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

func (t *Trade) row() db.Trade {
	return db.Trade{
		TradeID:    t.ID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		GridPrice:  t.GridPrice,
		EntryPrice: t.EntryPrice,
		Quantity:   t.Quantity,
		StopLoss:   t.StopLoss,
		TakeProfit: t.TakeProfit,
		OpenedAt:   t.OpenedAt,
		ClosedAt:   t.ClosedAt,
		ExitPrice:  t.ExitPrice,
		PnL:        t.PnL,
		Status:     string(t.Status),
		Manual:     t.Manual,
	}
}

func fromRow(r db.Trade) *Trade {
	return &Trade{
		ID:         r.TradeID,
		Symbol:     r.Symbol,
		Side:       Side(r.Side),
		GridPrice:  r.GridPrice,
		EntryPrice: r.EntryPrice,
		Quantity:   r.Quantity,
		StopLoss:   r.StopLoss,
		TakeProfit: r.TakeProfit,
		OpenedAt:   r.OpenedAt,
		ClosedAt:   r.ClosedAt,
		ExitPrice:  r.ExitPrice,
		PnL:        r.PnL,
		Status:     Status(r.Status),
		Manual:     r.Manual,
	}
}
