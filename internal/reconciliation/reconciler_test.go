package reconciliation

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"grid-core/internal/events"
	"grid-core/internal/order"
	"grid-core/internal/risk"
	"grid-core/pkg/db"
	"grid-core/pkg/exchange"
)

type pollGateway struct {
	mu       sync.Mutex
	statuses map[string]exchange.OrderStatus
	fills    chan exchange.FillEvent
	cancels  chan exchange.CancelEvent
}

func newPollGateway() *pollGateway {
	return &pollGateway{
		statuses: make(map[string]exchange.OrderStatus),
		fills:    make(chan exchange.FillEvent),
		cancels:  make(chan exchange.CancelEvent),
	}
}

func (g *pollGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.PlaceAck, error) {
	return exchange.PlaceAck{}, exchange.ErrGatewayTimeout
}

func (g *pollGateway) CancelOrder(ctx context.Context, symbol, clientID string) error { return nil }

func (g *pollGateway) Status(ctx context.Context, symbol, clientID string) (exchange.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.statuses[clientID]
	if !ok {
		return exchange.StatusUnknown, exchange.ErrOrderNotFound
	}
	return st, nil
}

func (g *pollGateway) Fills() <-chan exchange.FillEvent     { return g.fills }
func (g *pollGateway) Cancels() <-chan exchange.CancelEvent { return g.cancels }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) (*Reconciler, *order.Manager, *pollGateway, *db.Database) {
	t.Helper()
	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := db.ApplyMigrations(store); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gw := newPollGateway()
	rm := risk.NewManager("BTCUSDT", risk.Config{
		Quantity:         dec("1"),
		MaxPositionValue: dec("100000"),
		MaxDailyLoss:     dec("500"),
		RiskPercentage:   dec("0.02"),
		StopDistance:     dec("0.05"),
		TakeProfitRatio:  dec("0.10"),
		InitialEquity:    dec("10000"),
	})
	om := order.NewManager("BTCUSDT", store, gw, rm, events.NewBus())
	return New("BTCUSDT", store, gw, om), om, gw, store
}

func TestSeedRestoresOpenTrades(t *testing.T) {
	r, om, _, store := setup(t)
	ctx := context.Background()

	for _, tr := range []db.Trade{
		{TradeID: "p1", Symbol: "BTCUSDT", Side: "LONG", Quantity: dec("1"), GridPrice: dec("99"), Status: "PENDING"},
		{TradeID: "o1", Symbol: "BTCUSDT", Side: "LONG", Quantity: dec("1"), EntryPrice: dec("100"), Status: "OPEN", OpenedAt: 10},
		{TradeID: "c1", Symbol: "BTCUSDT", Side: "LONG", Quantity: dec("1"), Status: "CLOSED"},
	} {
		if err := store.InsertTrade(ctx, tr); err != nil {
			t.Fatalf("insert %s: %v", tr.TradeID, err)
		}
	}

	n, err := r.Seed(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 2 {
		t.Fatalf("seeded %d, want 2", n)
	}
	// The restored PENDING trade needs a status poll.
	if got := om.Unresolved(); len(got) != 1 || got[0] != "p1" {
		t.Fatalf("unresolved after seed: %v", got)
	}
}

func TestPollResolvesSeededPending(t *testing.T) {
	r, om, gw, store := setup(t)
	ctx := context.Background()

	if err := store.InsertTrade(ctx, db.Trade{
		TradeID: "p1", Symbol: "BTCUSDT", Side: "LONG",
		Quantity: dec("2"), GridPrice: dec("99"), Status: "PENDING",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := r.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gw.mu.Lock()
	gw.statuses["p1"] = exchange.StatusFilled
	gw.mu.Unlock()

	r.Poll(ctx)

	got, ok := om.Trade("p1")
	if !ok || got.Status != order.StatusOpen || !got.EntryPrice.Equal(dec("99")) {
		t.Fatalf("pending not resolved to open: %+v", got)
	}
	if len(om.Unresolved()) != 0 {
		t.Fatal("still unresolved after poll")
	}
}

func TestPollCancelsOrderUnknownAtVenue(t *testing.T) {
	r, om, _, store := setup(t)
	ctx := context.Background()

	if err := store.InsertTrade(ctx, db.Trade{
		TradeID: "p2", Symbol: "BTCUSDT", Side: "LONG",
		Quantity: dec("1"), Status: "PENDING",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := r.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Gateway has no record of p2: placement never reached the venue.
	r.Poll(ctx)

	got, _ := om.Trade("p2")
	if got.Status != order.StatusCancelled {
		t.Fatalf("unknown-at-venue order not cancelled: %+v", got)
	}
}
