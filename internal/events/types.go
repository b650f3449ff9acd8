package events

// Event enumerates high-level topics inside the grid trading core.
type Event string

const (
	EventCandleClosed  Event = "candle.closed"
	EventSignal        Event = "strategy.signal"
	EventOrderPlaced   Event = "order.placed"
	EventOrderFilled   Event = "order.filled"
	EventOrderCanceled Event = "order.canceled"
	EventTradeClosed   Event = "trade.closed"
	EventOrphanFill    Event = "fill.orphan"
	EventRiskHalt      Event = "risk.halt"
)
