package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"grid-core/internal/order"
	"grid-core/pkg/db"
	"grid-core/pkg/exchange"
)

// Reconciler restores lifecycle state after a restart and resolves orders
// whose placement outcome is unknown. Seed replays open ledger rows into the
// lifecycle manager; Run polls the gateway for every unresolved order and
// replays orphan fills on each tick.
type Reconciler struct {
	Symbol  string
	Store   *db.Database
	Gateway exchange.Gateway
	Orders  *order.Manager

	// Interval between poll rounds.
	Interval time.Duration
	// PollTimeout bounds one status call.
	PollTimeout time.Duration
}

func New(symbol string, store *db.Database, gw exchange.Gateway, om *order.Manager) *Reconciler {
	return &Reconciler{
		Symbol:      symbol,
		Store:       store,
		Gateway:     gw,
		Orders:      om,
		Interval:    10 * time.Second,
		PollTimeout: 5 * time.Second,
	}
}

// Seed replays PENDING and OPEN ledger rows into the lifecycle manager.
// Called once at startup before the decision loop begins.
func (r *Reconciler) Seed(ctx context.Context) (int, error) {
	rows, err := r.Store.ListOpenTrades(ctx, r.Symbol)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", r.Symbol, err)
	}
	for _, row := range rows {
		r.Orders.Restore(row)
	}
	if len(rows) > 0 {
		log.Printf("reconcile: %s seeded %d open trades from ledger", r.Symbol, len(rows))
	}
	return len(rows), nil
}

// Run polls until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Poll(ctx)
			r.Orders.RetryOrphans(ctx)
		}
	}
}

// Poll resolves every order with unknown placement status against the venue.
func (r *Reconciler) Poll(ctx context.Context) {
	for _, id := range r.Orders.Unresolved() {
		pctx, cancel := context.WithTimeout(ctx, r.PollTimeout)
		st, err := r.Gateway.Status(pctx, r.Symbol, id)
		cancel()
		switch {
		case errors.Is(err, exchange.ErrOrderNotFound):
			// The venue never saw it; the timed-out placement failed.
			log.Printf("reconcile: order %s unknown at venue, cancelling", id)
			r.Orders.ResolveStatus(ctx, id, exchange.StatusRejected)
		case err != nil:
			// Leave unresolved, next tick retries.
			log.Printf("reconcile: status poll for %s: %v", id, err)
		default:
			r.Orders.ResolveStatus(ctx, id, st)
		}
	}
}
