package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"grid-core/internal/events"
	"grid-core/internal/risk"
	"grid-core/internal/strategy"
	"grid-core/pkg/db"
	"grid-core/pkg/exchange"
)

// Ledger is the subset of trade persistence the lifecycle manager needs.
// Satisfied by *db.Database directly or by a write queue wrapping it.
type Ledger interface {
	InsertTrade(ctx context.Context, t db.Trade) error
	MarkTradeOpen(ctx context.Context, tradeID string, entryPrice decimal.Decimal, openedAt int64) error
	MarkTradeClosed(ctx context.Context, tradeID string, exitPrice, pnl decimal.Decimal, closedAt int64) error
	UpdateTradeStatus(ctx context.Context, tradeID, status string) error
}

const (
	defaultCallTimeout    = 5 * time.Second
	defaultTimeoutHaltMax = 3
	defaultOrphanRetryMax = 5
)

// Manager owns the per-symbol trade state machine. It persists trades before
// placing them, applies fill and cancel events back onto tracked trades, and
// keeps the risk manager's portfolio view in sync. All mutating entry points
// run through one mutex; the engine worker is the only regular caller.
type Manager struct {
	Symbol  string
	Store   Ledger
	Gateway exchange.Gateway
	Risk    *risk.Manager
	Bus     *events.Bus

	// CallTimeout bounds gateway and ledger calls.
	CallTimeout time.Duration
	// TimeoutHaltThreshold is the number of consecutive gateway timeouts
	// that halts new placements for the symbol.
	TimeoutHaltThreshold int
	// OrphanRetryMax bounds replays of a fill for an unknown trade id
	// before it is escalated.
	OrphanRetryMax int

	mu       sync.Mutex
	trades   map[string]*Trade // trade id (entry client id) -> trade
	closing  map[string]string // exit client id -> trade id
	orphans  *orphanBuffer
	timeouts int // consecutive gateway timeouts
}

func NewManager(symbol string, store Ledger, gw exchange.Gateway, rm *risk.Manager, bus *events.Bus) *Manager {
	return &Manager{
		Symbol:               symbol,
		Store:                store,
		Gateway:              gw,
		Risk:                 rm,
		Bus:                  bus,
		CallTimeout:          defaultCallTimeout,
		TimeoutHaltThreshold: defaultTimeoutHaltMax,
		OrphanRetryMax:       defaultOrphanRetryMax,
		trades:               make(map[string]*Trade),
		closing:              make(map[string]string),
		orphans:              newOrphanBuffer(),
	}
}

// Place turns an approved order into a Pending trade, persists it, then sends
// it to the gateway. A gateway timeout leaves the trade Pending with unknown
// placement status; reconciliation resolves it later. The trade row is written
// before the gateway call so a fill can never precede its record.
func (m *Manager) Place(ctx context.Context, ord risk.ApprovedOrder) (*Trade, error) {
	// The signal id doubles as trade id and client order id, so fills and
	// risk reservations resolve to the same key.
	t := &Trade{
		ID:         ord.Signal.ID,
		Symbol:     ord.Signal.Symbol,
		Side:       sideFor(ord.Signal.Action),
		GridPrice:  ord.Signal.Price,
		Quantity:   ord.Quantity,
		StopLoss:   ord.StopLoss,
		TakeProfit: ord.TakeProfit,
		Status:     StatusPending,
	}

	m.mu.Lock()
	m.trades[t.ID] = t
	m.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, m.CallTimeout)
	defer cancel()
	if err := m.Store.InsertTrade(cctx, t.row()); err != nil {
		m.mu.Lock()
		delete(m.trades, t.ID)
		m.mu.Unlock()
		m.Risk.OnOrderCanceled(t.ID)
		return nil, fmt.Errorf("persist trade: %w", err)
	}

	req := exchange.OrderRequest{
		ClientID:   t.ID,
		Symbol:     t.Symbol,
		Side:       sideToExchange(t.Side),
		Quantity:   t.Quantity,
		Price:      t.GridPrice,
		StopLoss:   t.StopLoss,
		TakeProfit: t.TakeProfit,
	}
	ack, err := m.Gateway.PlaceOrder(cctx, req)
	switch {
	case errors.Is(err, exchange.ErrGatewayTimeout):
		m.noteTimeout(t)
		return t, fmt.Errorf("place order %s: %w", t.ID, err)
	case err != nil:
		m.cancelTrade(ctx, t.ID, "placement failed: "+err.Error())
		return nil, fmt.Errorf("place order %s: %w", t.ID, err)
	case ack.Status == exchange.StatusRejected:
		m.cancelTrade(ctx, t.ID, "rejected by venue")
		return nil, fmt.Errorf("place order %s: rejected by venue", t.ID)
	}

	m.mu.Lock()
	m.timeouts = 0
	m.mu.Unlock()
	m.publish(events.EventOrderPlaced, *t)
	log.Printf("order: placed %s %s %s qty=%s @ %s", t.ID, t.Symbol, t.Side, t.Quantity, t.GridPrice)
	return t, nil
}

func (m *Manager) noteTimeout(t *Trade) {
	m.mu.Lock()
	t.unresolved = true
	m.timeouts++
	n := m.timeouts
	m.mu.Unlock()

	log.Printf("order: gateway timeout for %s, status unknown (consecutive=%d)", t.ID, n)
	if n >= m.TimeoutHaltThreshold {
		m.Risk.Halt(fmt.Sprintf("%d consecutive gateway timeouts", n))
		m.publish(events.EventRiskHalt, m.Symbol)
	}
}

// ApplyFill routes a fill to the trade it belongs to. Entry fills move
// Pending trades to Open; exit fills move Open trades to Closed and realize
// pnl exactly once. Replays of an already applied fill are ignored. Fills for
// unknown trade ids go to the orphan buffer.
func (m *Manager) ApplyFill(ctx context.Context, f exchange.FillEvent) {
	m.mu.Lock()

	if tradeID, ok := m.closing[f.TradeID]; ok {
		t := m.trades[tradeID]
		m.mu.Unlock()
		m.closeOnFill(ctx, t, f)
		return
	}

	t, ok := m.trades[f.TradeID]
	if !ok {
		m.mu.Unlock()
		m.orphans.add(f)
		log.Printf("order: fill for unknown trade %s buffered", f.TradeID)
		return
	}

	switch t.Status {
	case StatusPending:
		t.Status = StatusOpen
		t.EntryPrice = f.Price
		t.OpenedAt = f.Timestamp
		t.entryFee = f.Fee
		t.unresolved = false
		m.timeouts = 0
		m.mu.Unlock()

		m.Risk.OnTradeOpened(t.ID, f.Price, f.Quantity)
		cctx, cancel := context.WithTimeout(ctx, m.CallTimeout)
		defer cancel()
		if err := m.Store.MarkTradeOpen(cctx, t.ID, f.Price, f.Timestamp); err != nil {
			log.Printf("order: persist open %s: %v", t.ID, err)
		}
		m.publish(events.EventOrderFilled, *t)
		log.Printf("order: %s filled @ %s, trade open", t.ID, f.Price)
	case StatusOpen:
		// Duplicate entry fill replay.
		m.mu.Unlock()
		log.Printf("order: duplicate fill for open trade %s ignored", t.ID)
	default:
		m.mu.Unlock()
		log.Printf("order: fill for %s trade %s ignored", t.Status, t.ID)
	}
}

// closeOnFill finalizes a trade whose exit order filled.
// pnl = (exit - entry) * qty, signed by side, minus entry and exit fees.
func (m *Manager) closeOnFill(ctx context.Context, t *Trade, f exchange.FillEvent) {
	m.mu.Lock()
	if t == nil || t.Status != StatusOpen {
		m.mu.Unlock()
		if t != nil {
			log.Printf("order: duplicate exit fill for %s trade %s ignored", t.Status, t.ID)
		}
		return
	}
	gross := f.Price.Sub(t.EntryPrice).Mul(t.Quantity).Mul(t.sign())
	pnl := gross.Sub(t.entryFee).Sub(f.Fee)
	t.Status = StatusClosed
	t.ExitPrice = f.Price
	t.ClosedAt = f.Timestamp
	t.PnL = pnl
	// The closing entry is retained after settlement. Venues replay fill
	// notifications routinely; a replayed exit fill must resolve here and be
	// dropped as a duplicate, not buffered as an orphan.
	t.awaitingExit = false
	m.mu.Unlock()

	m.Risk.OnTradeClosed(t.EntryPrice, t.Quantity, pnl)
	cctx, cancel := context.WithTimeout(ctx, m.CallTimeout)
	defer cancel()
	if err := m.Store.MarkTradeClosed(cctx, t.ID, f.Price, pnl, f.Timestamp); err != nil {
		log.Printf("order: persist close %s: %v", t.ID, err)
	}
	m.publish(events.EventTradeClosed, *t)
	log.Printf("order: trade %s closed @ %s pnl=%s", t.ID, f.Price, pnl)
}

// ApplyCancel handles a venue-side cancel or rejection.
func (m *Manager) ApplyCancel(ctx context.Context, ev exchange.CancelEvent) {
	m.mu.Lock()
	if tradeID, ok := m.closing[ev.TradeID]; ok {
		t := m.trades[tradeID]
		if t == nil || t.Status != StatusOpen {
			m.mu.Unlock()
			log.Printf("order: cancel for settled exit order %s ignored", ev.TradeID)
			return
		}
		// Exit order cancelled; trade stays open and may retry its exit.
		delete(m.closing, ev.TradeID)
		t.awaitingExit = false
		t.exitOrderID = ""
		m.mu.Unlock()
		log.Printf("order: exit order %s cancelled (%s), trade %s still open", ev.TradeID, ev.Reason, tradeID)
		return
	}
	m.mu.Unlock()
	m.cancelTrade(ctx, ev.TradeID, ev.Reason)
}

func (m *Manager) cancelTrade(ctx context.Context, tradeID, reason string) {
	m.mu.Lock()
	t, ok := m.trades[tradeID]
	if !ok || (t.Status != StatusPending && t.Status != StatusOpen) {
		m.mu.Unlock()
		return
	}
	t.Status = StatusCancelled
	t.unresolved = false
	m.mu.Unlock()

	m.Risk.OnOrderCanceled(tradeID)
	cctx, cancel := context.WithTimeout(ctx, m.CallTimeout)
	defer cancel()
	if err := m.Store.UpdateTradeStatus(cctx, tradeID, string(StatusCancelled)); err != nil {
		log.Printf("order: persist cancel %s: %v", tradeID, err)
	}
	m.publish(events.EventOrderCanceled, *t)
	log.Printf("order: trade %s cancelled: %s", tradeID, reason)
}

// RequestClose places the opposite-side order that exits an open trade.
// manual marks operator-initiated closes for the ledger.
func (m *Manager) RequestClose(ctx context.Context, tradeID string, price decimal.Decimal, manual bool) error {
	m.mu.Lock()
	t, ok := m.trades[tradeID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("close %s: %w", tradeID, db.ErrNotFound)
	}
	if t.Status != StatusOpen {
		m.mu.Unlock()
		return fmt.Errorf("close %s: trade is %s", tradeID, t.Status)
	}
	if t.awaitingExit {
		m.mu.Unlock()
		return nil
	}
	exitID := uuid.NewString()
	t.awaitingExit = true
	t.exitOrderID = exitID
	t.Manual = t.Manual || manual
	m.closing[exitID] = tradeID
	m.mu.Unlock()

	req := exchange.OrderRequest{
		ClientID: exitID,
		Symbol:   t.Symbol,
		Side:     exitSide(t.Side),
		Quantity: t.Quantity,
		Price:    price,
	}
	cctx, cancel := context.WithTimeout(ctx, m.CallTimeout)
	defer cancel()
	if _, err := m.Gateway.PlaceOrder(cctx, req); err != nil {
		if errors.Is(err, exchange.ErrGatewayTimeout) {
			// Exit may still be live at the venue; keep awaitingExit so we
			// do not double-close, and let reconciliation resolve it.
			log.Printf("order: exit placement for %s timed out, awaiting reconciliation", tradeID)
			return fmt.Errorf("close %s: %w", tradeID, err)
		}
		m.mu.Lock()
		t.awaitingExit = false
		t.exitOrderID = ""
		delete(m.closing, exitID)
		m.mu.Unlock()
		return fmt.Errorf("close %s: %w", tradeID, err)
	}
	log.Printf("order: exit order %s placed for trade %s @ %s", exitID, tradeID, price)
	return nil
}

// CheckExits scans open trades against the latest price and requests closes
// for crossed stop-loss or take-profit bounds.
func (m *Manager) CheckExits(ctx context.Context, price decimal.Decimal) {
	m.mu.Lock()
	var due []string
	for id, t := range m.trades {
		if t.Status != StatusOpen || t.awaitingExit {
			continue
		}
		if exitDue(t, price) {
			due = append(due, id)
		}
	}
	m.mu.Unlock()

	for _, id := range due {
		if err := m.RequestClose(ctx, id, price, false); err != nil {
			log.Printf("order: exit request for %s: %v", id, err)
		}
	}
}

func exitDue(t *Trade, price decimal.Decimal) bool {
	if t.Side == SideLong {
		if !t.StopLoss.IsZero() && price.LessThanOrEqual(t.StopLoss) {
			return true
		}
		if !t.TakeProfit.IsZero() && price.GreaterThanOrEqual(t.TakeProfit) {
			return true
		}
		return false
	}
	if !t.StopLoss.IsZero() && price.GreaterThanOrEqual(t.StopLoss) {
		return true
	}
	if !t.TakeProfit.IsZero() && price.LessThanOrEqual(t.TakeProfit) {
		return true
	}
	return false
}

// Restore seeds a trade from a ledger row at startup. Open trades are fed
// into the risk manager's position view; Pending trades are flagged for a
// status poll since their placement outcome is unknown after a restart.
func (m *Manager) Restore(r db.Trade) {
	t := fromRow(r)
	m.mu.Lock()
	if t.Status == StatusPending {
		t.unresolved = true
	}
	m.trades[t.ID] = t
	m.mu.Unlock()

	if t.Status == StatusOpen {
		m.Risk.OnTradeOpened(t.ID, t.EntryPrice, t.Quantity)
	}
	log.Printf("order: restored %s trade %s from ledger", t.Status, t.ID)
}

// Unresolved returns ids of trades whose placement outcome is unknown.
func (m *Manager) Unresolved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, t := range m.trades {
		if t.unresolved {
			out = append(out, id)
		}
	}
	return out
}

// ResolveStatus applies a reconciliation poll result to an unresolved trade.
// A FILLED answer with no fill event applies the grid price as entry, the
// best price known locally.
func (m *Manager) ResolveStatus(ctx context.Context, tradeID string, st exchange.OrderStatus) {
	m.mu.Lock()
	t, ok := m.trades[tradeID]
	if !ok || !t.unresolved {
		m.mu.Unlock()
		return
	}
	switch st {
	case exchange.StatusNew:
		// Live at the venue; wait for the fill stream.
		t.unresolved = false
		m.mu.Unlock()
	case exchange.StatusFilled:
		m.mu.Unlock()
		log.Printf("order: reconciled %s as FILLED, applying grid price %s as entry", tradeID, t.GridPrice)
		m.ApplyFill(ctx, exchange.FillEvent{
			TradeID:   tradeID,
			Price:     t.GridPrice,
			Quantity:  t.Quantity,
			Timestamp: time.Now().UnixMilli(),
		})
	case exchange.StatusCanceled, exchange.StatusRejected:
		m.mu.Unlock()
		m.cancelTrade(ctx, tradeID, "reconciled as "+string(st))
	default:
		m.mu.Unlock()
	}
}

// RetryOrphans replays buffered fills for trade ids that may have become
// known since. Fills exhausting the retry budget are escalated for manual
// review and dropped.
func (m *Manager) RetryOrphans(ctx context.Context) {
	for _, f := range m.orphans.take() {
		m.mu.Lock()
		_, known := m.trades[f.fill.TradeID]
		if !known {
			_, known = m.closing[f.fill.TradeID]
		}
		m.mu.Unlock()

		if known {
			m.ApplyFill(ctx, f.fill)
			continue
		}
		if f.attempts >= m.OrphanRetryMax {
			log.Printf("order: orphan fill for %s escalated after %d attempts over %s: price=%s qty=%s",
				f.fill.TradeID, f.attempts, time.Since(f.firstSeen).Round(time.Millisecond), f.fill.Price, f.fill.Quantity)
			m.publish(events.EventOrphanFill, f.fill)
			continue
		}
		m.orphans.requeue(f)
	}
}

// OrphanCount reports buffered orphan fills, for status endpoints.
func (m *Manager) OrphanCount() int {
	return m.orphans.len()
}

// OpenTrades returns a snapshot of Pending and Open trades.
func (m *Manager) OpenTrades() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Trade
	for _, t := range m.trades {
		if t.Status == StatusPending || t.Status == StatusOpen {
			out = append(out, *t)
		}
	}
	return out
}

// Trade returns a snapshot of one tracked trade.
func (m *Manager) Trade(id string) (Trade, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return Trade{}, false
	}
	return *t, true
}

func (m *Manager) publish(e events.Event, payload any) {
	if m.Bus != nil {
		m.Bus.Publish(e, payload)
	}
}

func sideFor(a strategy.Action) Side {
	if a == strategy.ActionSell {
		return SideShort
	}
	return SideLong
}

func sideToExchange(s Side) exchange.Side {
	if s == SideShort {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func exitSide(s Side) exchange.Side {
	if s == SideLong {
		return exchange.SideSell
	}
	return exchange.SideBuy
}
