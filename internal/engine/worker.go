package engine

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"grid-core/internal/events"
	"grid-core/internal/indicators"
	"grid-core/internal/market"
	"grid-core/internal/order"
	"grid-core/internal/persistence"
	"grid-core/internal/risk"
	"grid-core/internal/strategy"
	"grid-core/pkg/db"
	"grid-core/pkg/exchange"
)

// Worker runs the decision loop for one symbol: each closed candle flows
// through indicators, the grid strategy, risk approval, and order placement
// in sequence. Fills and cancels from the gateway converge on the same
// goroutine, giving every mutation of this symbol's state a single writer.
// Workers for different symbols run fully in parallel.
type Worker struct {
	Symbol     string
	Bus        *events.Bus
	Gateway    exchange.Gateway
	Store      *db.Database
	Writer     *persistence.Writer
	Indicators *indicators.Engine
	Strategy   *strategy.Engine
	Risk       *risk.Manager
	Orders     *order.Manager

	// RearmOnClose re-arms the closed trade's grid level so it can fire
	// again, instead of waiting for full regeneration.
	RearmOnClose bool
	// WarmupCandles is how much stored history to replay at startup.
	WarmupCandles int

	grid atomic.Pointer[strategy.Grid]
}

// Warmup replays stored candle history through the indicator engine so
// signals are actionable from the first live candle.
func (w *Worker) Warmup(ctx context.Context) error {
	if w.WarmupCandles <= 0 || w.Store == nil {
		return nil
	}
	rows, err := w.Store.ListRecentCandles(ctx, w.Symbol, w.WarmupCandles)
	if err != nil {
		return err
	}
	for _, r := range rows {
		c := market.Candle{
			Symbol: r.Symbol, Timestamp: r.Timestamp,
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
		}
		if _, err := w.Indicators.Update(c); err != nil && !errors.Is(err, indicators.ErrStaleCandle) {
			return err
		}
	}
	if len(rows) > 0 {
		log.Printf("engine: %s warmed indicators from %d stored candles", w.Symbol, len(rows))
	}
	return nil
}

// Start launches the worker goroutine. It returns immediately.
func (w *Worker) Start(ctx context.Context) {
	candles, unsubCandles := w.Bus.Subscribe(events.EventCandleClosed, 64)
	closed, unsubClosed := w.Bus.Subscribe(events.EventTradeClosed, 16)

	go func() {
		defer unsubCandles()
		defer unsubClosed()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-candles:
				c, ok := msg.(market.Candle)
				if !ok || c.Symbol != w.Symbol {
					continue
				}
				w.onCandle(ctx, c)
			case f := <-w.Gateway.Fills():
				w.Orders.ApplyFill(ctx, f)
			case ev := <-w.Gateway.Cancels():
				w.Orders.ApplyCancel(ctx, ev)
			case msg := <-closed:
				t, ok := msg.(order.Trade)
				if !ok || t.Symbol != w.Symbol {
					continue
				}
				w.onTradeClosed(t)
			}
		}
	}()
}

// onCandle is one decision cycle.
func (w *Worker) onCandle(ctx context.Context, c market.Candle) {
	if w.Writer != nil {
		w.Writer.Candle(db.Candle{
			Symbol: c.Symbol, Timestamp: c.Timestamp,
			Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
		})
	}

	snap, err := w.Indicators.Update(c)
	if err != nil {
		if errors.Is(err, indicators.ErrStaleCandle) {
			log.Printf("engine: %s stale candle @%d ignored", w.Symbol, c.Timestamp)
			return
		}
		log.Printf("engine: %s indicator update: %v", w.Symbol, err)
		return
	}
	price := c.Close

	// Open positions get their stops checked before any new exposure.
	w.Orders.CheckExits(ctx, price)

	sig, newGrid := w.Strategy.Evaluate(price, snap, w.grid.Load())
	if newGrid != nil {
		w.grid.Store(newGrid)
	}
	// Every signal is persisted, holds included, for the audit trail. The
	// queue is FIFO so the outcome update lands after the insert.
	if w.Writer != nil {
		outcome := ""
		if sig.Action == strategy.ActionHold {
			outcome = "HOLD"
		}
		w.Writer.Signal(db.Signal{
			ID: sig.ID, Timestamp: sig.Timestamp, Symbol: sig.Symbol,
			Action: string(sig.Action), Price: sig.Price,
			Confidence: sig.Confidence, Trend: string(sig.Trend),
			Outcome: outcome,
		})
	}
	if sig.Action == strategy.ActionHold {
		return
	}
	w.Bus.Publish(events.EventSignal, sig)

	ord, err := w.Risk.Approve(sig)
	if err != nil {
		var rej *risk.RejectionError
		if errors.As(err, &rej) {
			w.outcome(sig.ID, "REJECTED:"+string(rej.Reason))
			log.Printf("engine: %s signal %s rejected: %s", w.Symbol, sig.ID, rej.Reason)
			return
		}
		w.outcome(sig.ID, "ERROR")
		log.Printf("engine: %s approve: %v", w.Symbol, err)
		return
	}
	w.outcome(sig.ID, "APPROVED")

	if _, err := w.Orders.Place(ctx, ord); err != nil {
		if errors.Is(err, exchange.ErrGatewayTimeout) {
			// Trade stays pending; reconciliation resolves it.
			return
		}
		log.Printf("engine: %s place: %v", w.Symbol, err)
	}
}

func (w *Worker) outcome(signalID, outcome string) {
	if w.Writer != nil {
		w.Writer.SignalOutcome(signalID, outcome)
	}
}

// onTradeClosed optionally re-arms the grid level the trade came from.
func (w *Worker) onTradeClosed(t order.Trade) {
	if !w.RearmOnClose || t.GridPrice.IsZero() {
		return
	}
	g := w.grid.Load()
	if g == nil {
		return
	}
	w.grid.Store(g.WithRearmed(t.GridPrice))
	log.Printf("engine: %s re-armed grid level %s after trade close", w.Symbol, t.GridPrice)
}

// Grid returns the current grid snapshot, nil before first generation.
func (w *Worker) Grid() *strategy.Grid {
	return w.grid.Load()
}

// Status is the API-facing view of one symbol's engine.
type Status struct {
	Symbol        string              `json:"symbol"`
	Portfolio     risk.Portfolio      `json:"portfolio"`
	OpenTrades    int                 `json:"open_trades"`
	OrphanFills   int                 `json:"orphan_fills"`
	GridLevels    int                 `json:"grid_levels"`
	GridCenter    string              `json:"grid_center,omitempty"`
	LastCandle    int64               `json:"last_candle_ms"`
	Writer        persistence.Metrics `json:"writer"`
	ObservedAt    time.Time           `json:"observed_at"`
}

// Status snapshots the worker for the control API.
func (w *Worker) Status() Status {
	st := Status{
		Symbol:      w.Symbol,
		Portfolio:   w.Risk.Snapshot(),
		OpenTrades:  len(w.Orders.OpenTrades()),
		OrphanFills: w.Orders.OrphanCount(),
		LastCandle:  w.Indicators.LastTimestamp(),
		ObservedAt:  time.Now().UTC(),
	}
	if g := w.grid.Load(); g != nil {
		st.GridLevels = len(g.Levels)
		st.GridCenter = g.Center.String()
	}
	if w.Writer != nil {
		st.Writer = w.Writer.Metrics()
	}
	return st
}
