package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"grid-core/internal/strategy"
)

// RejectReason enumerates why a signal was refused, in evaluation order.
type RejectReason string

const (
	ReasonDailyLimitExceeded    RejectReason = "DAILY_LIMIT_EXCEEDED"
	ReasonPositionLimitExceeded RejectReason = "POSITION_LIMIT_EXCEEDED"
	ReasonInsufficientFunds     RejectReason = "INSUFFICIENT_FUNDS"
	// ReasonTradingHalted covers halts other than the daily loss limit,
	// such as operator halts or repeated gateway failures.
	ReasonTradingHalted RejectReason = "TRADING_HALTED"
)

// RejectionError is returned by Approve when a signal fails a risk check.
type RejectionError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("risk rejection %s: %s", e.Reason, e.Detail)
}

// Config defines risk limits and sizing parameters for one symbol.
type Config struct {
	Quantity         decimal.Decimal // configured per-order size ceiling, base units
	MaxPositionValue decimal.Decimal // max total open notional
	MaxDailyLoss     decimal.Decimal // positive number; breach halts new orders
	RiskPercentage   decimal.Decimal // fraction of equity risked per trade, e.g. 0.02
	StopDistance     decimal.Decimal // stop distance as fraction of entry, e.g. 0.05
	TakeProfitRatio  decimal.Decimal // take-profit distance as fraction of entry
	InitialEquity    decimal.Decimal
}

// Portfolio is the risk manager's private view of account state. Mutated only
// through trade open/close notifications; read-only snapshots go to the API.
type Portfolio struct {
	TotalEquity      decimal.Decimal
	AvailableBalance decimal.Decimal
	LockedBalance    decimal.Decimal
	OpenPositionQty  decimal.Decimal
	OpenNotional     decimal.Decimal
	RealizedPnLToday decimal.Decimal
	AverageEntry     decimal.Decimal
	Halted           bool
}

// ApprovedOrder carries the sizing decision alongside the originating signal.
// Quantity, stop and take-profit are fixed here and never changed downstream.
type ApprovedOrder struct {
	Signal     strategy.Signal
	Quantity   decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}
