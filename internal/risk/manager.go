package risk

import (
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"grid-core/internal/strategy"
)

var one = decimal.NewFromInt(1)

// Manager evaluates signals for a single symbol. All approval decisions and
// portfolio mutations run under one mutex, so two concurrent signals can never
// both pass a check that only one could satisfy. Different symbols get their
// own Manager and proceed in parallel.
type Manager struct {
	mu     sync.Mutex
	symbol string
	cfg    Config
	pf     Portfolio

	// notional reserved per pending order id, released on open or cancel
	reserved map[string]decimal.Decimal

	// why the halt latched, so rejections name the actual cause
	haltCause  RejectReason
	haltDetail string
}

// NewManager builds a risk manager seeded with the configured starting equity.
func NewManager(symbol string, cfg Config) *Manager {
	return &Manager{
		symbol: symbol,
		cfg:    cfg,
		pf: Portfolio{
			TotalEquity:      cfg.InitialEquity,
			AvailableBalance: cfg.InitialEquity,
		},
		reserved: make(map[string]decimal.Decimal),
	}
}

// Approve evaluates a Buy/Sell signal against the risk budget. Checks run in
// fixed order: daily loss limit, position value limit, available balance.
// On success the order's notional is reserved from the available balance so a
// later signal cannot double-spend it before the fill lands.
func (m *Manager) Approve(sig strategy.Signal) (ApprovedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dailyLimitBreached() {
		m.latchHalt(ReasonDailyLimitExceeded, "daily realized loss at limit")
	}
	if m.pf.Halted {
		return ApprovedOrder{}, &RejectionError{
			Reason: m.haltCause,
			Detail: m.haltDetail + "; trading halted until manual reset",
		}
	}

	qty := m.size(sig.Price)
	if qty.LessThanOrEqual(decimal.Zero) {
		return ApprovedOrder{}, &RejectionError{
			Reason: ReasonInsufficientFunds,
			Detail: "computed position size is zero",
		}
	}

	notional := qty.Mul(sig.Price)
	pendingNotional := decimal.Zero
	for _, r := range m.reserved {
		pendingNotional = pendingNotional.Add(r)
	}
	if m.pf.OpenNotional.Add(pendingNotional).Add(notional).GreaterThan(m.cfg.MaxPositionValue) {
		return ApprovedOrder{}, &RejectionError{
			Reason: ReasonPositionLimitExceeded,
			Detail: "resulting open notional " + m.pf.OpenNotional.Add(notional).String() +
				" exceeds limit " + m.cfg.MaxPositionValue.String(),
		}
	}

	if notional.GreaterThan(m.pf.AvailableBalance) {
		return ApprovedOrder{}, &RejectionError{
			Reason: ReasonInsufficientFunds,
			Detail: "need " + notional.String() + ", available " + m.pf.AvailableBalance.String(),
		}
	}

	m.pf.AvailableBalance = m.pf.AvailableBalance.Sub(notional)
	m.pf.LockedBalance = m.pf.LockedBalance.Add(notional)
	m.reserved[sig.ID] = notional

	stop, take := m.exits(sig)
	log.Printf("risk: %s approved %s %s @ %s (sl=%s tp=%s)",
		m.symbol, sig.Action, qty, sig.Price, stop, take)

	return ApprovedOrder{
		Signal:     sig,
		Quantity:   qty,
		StopLoss:   stop,
		TakeProfit: take,
	}, nil
}

// size computes quantity = min(configured, risk%×equity / (price×stopDistance)):
// the position that loses exactly the risk budget if the stop is hit, capped
// by the configured ceiling.
func (m *Manager) size(price decimal.Decimal) decimal.Decimal {
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	stopDist := price.Mul(m.cfg.StopDistance)
	if stopDist.LessThanOrEqual(decimal.Zero) {
		return m.cfg.Quantity
	}
	riskBudget := m.pf.TotalEquity.Mul(m.cfg.RiskPercentage)
	sized := riskBudget.Div(stopDist)
	if sized.GreaterThan(m.cfg.Quantity) {
		return m.cfg.Quantity
	}
	return sized
}

func (m *Manager) exits(sig strategy.Signal) (stop, take decimal.Decimal) {
	sd := m.cfg.StopDistance
	tp := m.cfg.TakeProfitRatio
	if sig.Action == strategy.ActionBuy {
		return sig.Price.Mul(one.Sub(sd)), sig.Price.Mul(one.Add(tp))
	}
	return sig.Price.Mul(one.Add(sd)), sig.Price.Mul(one.Sub(tp))
}

// latchHalt sets the halt flag once and remembers the cause. The first cause
// wins; it stands until ResetHalt. Callers hold m.mu.
func (m *Manager) latchHalt(cause RejectReason, detail string) {
	if m.pf.Halted {
		return
	}
	m.pf.Halted = true
	m.haltCause = cause
	m.haltDetail = detail
}

func (m *Manager) dailyLimitBreached() bool {
	if m.cfg.MaxDailyLoss.LessThanOrEqual(decimal.Zero) {
		return false
	}
	return m.pf.RealizedPnLToday.LessThanOrEqual(m.cfg.MaxDailyLoss.Neg())
}

// OnTradeOpened converts the order's reservation into open notional at the
// actual fill price.
func (m *Manager) OnTradeOpened(orderID string, entry, qty decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	notional := entry.Mul(qty)
	if reservedN, ok := m.reserved[orderID]; ok {
		delete(m.reserved, orderID)
		m.pf.LockedBalance = m.pf.LockedBalance.Sub(reservedN)
		// Reserved at signal price; settle the slippage difference.
		m.pf.AvailableBalance = m.pf.AvailableBalance.Add(reservedN).Sub(notional)
	} else {
		// No reservation: trade recovered from the ledger after a restart.
		m.pf.AvailableBalance = m.pf.AvailableBalance.Sub(notional)
	}

	oldQty := m.pf.OpenPositionQty
	newQty := oldQty.Add(qty)
	if newQty.GreaterThan(decimal.Zero) {
		weighted := m.pf.AverageEntry.Mul(oldQty).Add(entry.Mul(qty))
		m.pf.AverageEntry = weighted.Div(newQty)
	}
	m.pf.OpenPositionQty = newQty
	m.pf.OpenNotional = m.pf.OpenNotional.Add(notional)
}

// OnTradeClosed realizes pnl, releases the position's notional back into the
// available balance, and latches the halt flag when the daily loss limit is
// breached. Enforcement is forward-looking: the breach blocks future
// approvals, it does not unwind the trade that caused it.
func (m *Manager) OnTradeClosed(entry, qty, pnl decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	notional := entry.Mul(qty)
	m.pf.OpenNotional = m.pf.OpenNotional.Sub(notional)
	if m.pf.OpenNotional.IsNegative() {
		m.pf.OpenNotional = decimal.Zero
	}
	m.pf.OpenPositionQty = m.pf.OpenPositionQty.Sub(qty)
	m.pf.AvailableBalance = m.pf.AvailableBalance.Add(notional).Add(pnl)
	m.pf.TotalEquity = m.pf.TotalEquity.Add(pnl)
	m.pf.RealizedPnLToday = m.pf.RealizedPnLToday.Add(pnl)

	if m.dailyLimitBreached() && !m.pf.Halted {
		m.latchHalt(ReasonDailyLimitExceeded, "daily realized loss "+m.pf.RealizedPnLToday.String()+" at limit")
		log.Printf("risk: %s daily loss limit breached (%s), halting new orders", m.symbol, m.pf.RealizedPnLToday)
	}
}

// OnOrderCanceled returns a pending order's reservation to the free balance.
func (m *Manager) OnOrderCanceled(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if notional, ok := m.reserved[orderID]; ok {
		m.pf.LockedBalance = m.pf.LockedBalance.Sub(notional)
		m.pf.AvailableBalance = m.pf.AvailableBalance.Add(notional)
		delete(m.reserved, orderID)
	}
}

// Halt stops new approvals until ResetHalt; open trades keep being tracked.
func (m *Manager) Halt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pf.Halted {
		m.latchHalt(ReasonTradingHalted, reason)
		log.Printf("risk: %s halted: %s", m.symbol, reason)
	}
}

// ResetHalt is the manual reset required after a daily-limit breach or
// repeated gateway failures.
func (m *Manager) ResetHalt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pf.Halted = false
	m.haltCause = ""
	m.haltDetail = ""
	log.Printf("risk: %s halt cleared", m.symbol)
}

// ResetDaily zeroes the daily realized pnl counter at the day boundary.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.Printf("risk: %s daily reset, prev pnl %s", m.symbol, m.pf.RealizedPnLToday)
	m.pf.RealizedPnLToday = decimal.Zero
}

// Snapshot returns a copy of the current portfolio state.
func (m *Manager) Snapshot() Portfolio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pf
}
