package risk

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"grid-core/internal/strategy"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testConfig() Config {
	return Config{
		Quantity:         d("100"),
		MaxPositionValue: d("100000"),
		MaxDailyLoss:     d("500"),
		RiskPercentage:   d("0.02"),
		StopDistance:     d("0.05"),
		TakeProfitRatio:  d("0.10"),
		InitialEquity:    d("10000"),
	}
}

func buySignal(id string, price string) strategy.Signal {
	return strategy.Signal{
		ID:     id,
		Symbol: "BTCUSDT",
		Action: strategy.ActionBuy,
		Price:  d(price),
		Trend:  strategy.TrendSideways,
	}
}

func rejectionReason(t *testing.T, err error) RejectReason {
	t.Helper()
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	return rej.Reason
}

func TestSizingFormula(t *testing.T) {
	// equity=10000, risk=2%, stop=5%, price=100 -> (0.02*10000)/(100*0.05) = 40
	m := NewManager("BTCUSDT", testConfig())

	ord, err := m.Approve(buySignal("s1", "100"))
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !ord.Quantity.Equal(d("40")) {
		t.Fatalf("quantity %s, want 40", ord.Quantity)
	}
	if !ord.StopLoss.Equal(d("95")) {
		t.Fatalf("stop loss %s, want 95", ord.StopLoss)
	}
	if !ord.TakeProfit.Equal(d("110")) {
		t.Fatalf("take profit %s, want 110", ord.TakeProfit)
	}
}

func TestSizingCappedByConfiguredQuantity(t *testing.T) {
	cfg := testConfig()
	cfg.Quantity = d("25")
	m := NewManager("BTCUSDT", cfg)

	ord, err := m.Approve(buySignal("s1", "100"))
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !ord.Quantity.Equal(d("25")) {
		t.Fatalf("quantity %s, want configured cap 25", ord.Quantity)
	}
}

func TestDailyLimitRejection(t *testing.T) {
	m := NewManager("BTCUSDT", testConfig())

	// Realize a loss that exactly hits the limit.
	m.OnTradeOpened("x", d("100"), d("10"))
	m.OnTradeClosed(d("100"), d("10"), d("-500"))

	_, err := m.Approve(buySignal("s1", "100"))
	if got := rejectionReason(t, err); got != ReasonDailyLimitExceeded {
		t.Fatalf("reason %s, want DAILY_LIMIT_EXCEEDED", got)
	}

	// Halt is latched until manual reset, regardless of later wins.
	m.OnTradeOpened("y", d("100"), d("10"))
	m.OnTradeClosed(d("100"), d("10"), d("600"))
	if _, err := m.Approve(buySignal("s2", "100")); err == nil {
		t.Fatal("approval passed while halted")
	}

	m.ResetHalt()
	m.ResetDaily()
	if _, err := m.Approve(buySignal("s3", "100")); err != nil {
		t.Fatalf("approval after manual reset: %v", err)
	}
}

func TestGatewayHaltRejectionNamesCause(t *testing.T) {
	m := NewManager("BTCUSDT", testConfig())

	m.Halt("3 consecutive gateway timeouts")

	_, err := m.Approve(buySignal("s1", "100"))
	if got := rejectionReason(t, err); got != ReasonTradingHalted {
		t.Fatalf("reason %s, want TRADING_HALTED", got)
	}

	m.ResetHalt()
	if _, err := m.Approve(buySignal("s2", "100")); err != nil {
		t.Fatalf("approval after halt reset: %v", err)
	}
}

func TestPositionLimitRejection(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositionValue = d("5000")
	m := NewManager("BTCUSDT", cfg)

	// 40 units at 100 = 4000 notional opens fine.
	ord, err := m.Approve(buySignal("s1", "100"))
	if err != nil {
		t.Fatalf("first approval: %v", err)
	}
	m.OnTradeOpened("s1", d("100"), ord.Quantity)

	// Another 4000 would blow through 5000.
	_, err = m.Approve(buySignal("s2", "100"))
	if got := rejectionReason(t, err); got != ReasonPositionLimitExceeded {
		t.Fatalf("reason %s, want POSITION_LIMIT_EXCEEDED", got)
	}
}

func TestPendingReservationsCountTowardPositionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositionValue = d("5000")
	m := NewManager("BTCUSDT", cfg)

	// Approved but not yet filled: the reservation must still block the
	// second signal, for any interleaving.
	if _, err := m.Approve(buySignal("s1", "100")); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	_, err := m.Approve(buySignal("s2", "100"))
	if got := rejectionReason(t, err); got != ReasonPositionLimitExceeded {
		t.Fatalf("reason %s, want POSITION_LIMIT_EXCEEDED", got)
	}

	// Cancelling the pending order frees the budget again.
	m.OnOrderCanceled("s1")
	if _, err := m.Approve(buySignal("s3", "100")); err != nil {
		t.Fatalf("approval after cancel: %v", err)
	}
}

func TestInsufficientFundsRejection(t *testing.T) {
	cfg := testConfig()
	cfg.InitialEquity = d("10000")
	cfg.Quantity = d("100")
	cfg.RiskPercentage = d("1") // sizing no longer the binding constraint
	m := NewManager("BTCUSDT", cfg)

	// 100 units at 150 = 15000 > 10000 available.
	_, err := m.Approve(buySignal("s1", "150"))
	if got := rejectionReason(t, err); got != ReasonInsufficientFunds {
		t.Fatalf("reason %s, want INSUFFICIENT_FUNDS", got)
	}
}

func TestConcurrentApprovalsNeverOversubscribe(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositionValue = d("8000") // room for exactly two 4000-notional orders
	m := NewManager("BTCUSDT", cfg)

	const workers = 16
	var wg sync.WaitGroup
	approvals := make(chan ApprovedOrder, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sig := buySignal(uuid(i), "100")
			if ord, err := m.Approve(sig); err == nil {
				approvals <- ord
			}
		}(i)
	}
	wg.Wait()
	close(approvals)

	total := decimal.Zero
	for ord := range approvals {
		total = total.Add(ord.Quantity.Mul(ord.Signal.Price))
	}
	if total.GreaterThan(cfg.MaxPositionValue) {
		t.Fatalf("approved notional %s exceeds limit %s", total, cfg.MaxPositionValue)
	}
}

func uuid(i int) string {
	return string(rune('a' + i))
}

func TestPortfolioAccounting(t *testing.T) {
	m := NewManager("BTCUSDT", testConfig())

	ord, err := m.Approve(buySignal("s1", "100"))
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	pf := m.Snapshot()
	if !pf.LockedBalance.Equal(d("4000")) {
		t.Fatalf("locked %s after approval, want 4000", pf.LockedBalance)
	}

	// Fill at 101 (slippage), then close at 111 for +400.
	m.OnTradeOpened("s1", d("101"), ord.Quantity)
	pf = m.Snapshot()
	if !pf.LockedBalance.Equal(decimal.Zero) {
		t.Fatalf("locked %s after open, want 0", pf.LockedBalance)
	}
	if !pf.OpenNotional.Equal(d("4040")) {
		t.Fatalf("open notional %s, want 4040", pf.OpenNotional)
	}

	m.OnTradeClosed(d("101"), ord.Quantity, d("400"))
	pf = m.Snapshot()
	if !pf.OpenNotional.Equal(decimal.Zero) {
		t.Fatalf("open notional %s after close, want 0", pf.OpenNotional)
	}
	if !pf.TotalEquity.Equal(d("10400")) {
		t.Fatalf("equity %s, want 10400", pf.TotalEquity)
	}
	if !pf.RealizedPnLToday.Equal(d("400")) {
		t.Fatalf("daily pnl %s, want 400", pf.RealizedPnLToday)
	}
	if !pf.AvailableBalance.Equal(d("10400")) {
		t.Fatalf("available %s, want 10400", pf.AvailableBalance)
	}
}
