package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrGatewayTimeout marks an order call whose outcome is unknown. Callers must
// treat it as unknown-status and reconcile, never as a confirmed failure.
var ErrGatewayTimeout = errors.New("gateway timeout: order status unknown")

// ErrOrderNotFound is returned by Status for an unknown client order id.
var ErrOrderNotFound = errors.New("order not found")

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus normalizes venue status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// OrderRequest captures an order intent to be sent to the venue.
type OrderRequest struct {
	ClientID   string // caller-assigned id, echoed back on fills
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	StopLoss   decimal.Decimal // optional
	TakeProfit decimal.Decimal // optional
}

// PlaceAck is the venue acknowledgement for a placement.
type PlaceAck struct {
	ExchangeOrderID string
	Status          OrderStatus
}

// FillEvent reports an execution against a previously placed order.
type FillEvent struct {
	TradeID   string // the order's ClientID
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Fee       decimal.Decimal
	Timestamp int64 // ms
}

// CancelEvent reports a venue-side cancel or rejection.
type CancelEvent struct {
	TradeID string
	Reason  string
}

// Gateway abstracts a trading venue. Implementations must honor context
// deadlines on every call.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (PlaceAck, error)
	CancelOrder(ctx context.Context, symbol, clientID string) error
	// Status answers reconciliation polls for unknown-outcome orders.
	Status(ctx context.Context, symbol, clientID string) (OrderStatus, error)
	// Fills streams asynchronous fill confirmations.
	Fills() <-chan FillEvent
	// Cancels streams asynchronous cancel/reject notifications.
	Cancels() <-chan CancelEvent
}
