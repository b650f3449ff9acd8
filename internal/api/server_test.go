package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"grid-core/internal/engine"
	"grid-core/internal/events"
	"grid-core/internal/indicators"
	"grid-core/internal/order"
	"grid-core/internal/risk"
	"grid-core/internal/strategy"
	"grid-core/pkg/db"
	"grid-core/pkg/exchange"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := db.ApplyMigrations(store); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bus := events.NewBus()
	gw := exchange.NewPaper(exchange.PaperConfig{})
	rm := risk.NewManager("BTCUSDT", risk.Config{
		Quantity:         decimal.NewFromInt(1),
		MaxPositionValue: decimal.NewFromInt(100000),
		MaxDailyLoss:     decimal.NewFromInt(500),
		RiskPercentage:   decimal.RequireFromString("0.02"),
		StopDistance:     decimal.RequireFromString("0.05"),
		TakeProfitRatio:  decimal.RequireFromString("0.10"),
		InitialEquity:    decimal.NewFromInt(10000),
	})
	worker := &engine.Worker{
		Symbol:     "BTCUSDT",
		Bus:        bus,
		Gateway:    gw,
		Store:      store,
		Indicators: indicators.NewEngine("BTCUSDT", indicators.Config{}),
		Strategy:   strategy.NewEngine(strategy.Config{Symbol: "BTCUSDT"}),
		Risk:       rm,
	}
	worker.Orders = order.NewManager("BTCUSDT", store, gw, rm, bus)

	svc := engine.NewService()
	if err := svc.Add(worker); err != nil {
		t.Fatalf("add worker: %v", err)
	}

	meta := SystemMeta{DryRun: true, Venue: "paper", Symbols: []string{"BTCUSDT"}, Version: "test"}
	return NewServer(svc, store, meta, testSecret)
}

func do(t *testing.T, s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(t)

	if rec := do(t, s, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/api/status", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "BTCUSDT") {
		t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPortfolioEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/portfolio/BTCUSDT", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "available_balance") {
		t.Fatalf("portfolio: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodGet, "/api/portfolio/DOGEUSDT", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown symbol: %d", rec.Code)
	}
}

func TestHaltRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	if rec := do(t, s, http.MethodPost, "/api/risk/BTCUSDT/halt", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/risk/BTCUSDT/halt", "", "not-a-token"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", rec.Code)
	}

	token, err := GenerateToken("ops", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	rec := do(t, s, http.MethodPost, "/api/risk/BTCUSDT/halt", `{"reason":"maintenance"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("halt: %d %s", rec.Code, rec.Body.String())
	}

	w, _ := s.Engines.Worker("BTCUSDT")
	if !w.Risk.Snapshot().Halted {
		t.Fatal("risk not halted")
	}

	rec = do(t, s, http.MethodPost, "/api/risk/BTCUSDT/resume", "", token)
	if rec.Code != http.StatusOK || w.Risk.Snapshot().Halted {
		t.Fatalf("resume: %d halted=%v", rec.Code, w.Risk.Snapshot().Halted)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	s := newTestServer(t)

	token, err := GenerateToken("ops", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if rec := do(t, s, http.MethodPost, "/api/risk/BTCUSDT/halt", "", token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: %d", rec.Code)
	}
}

func TestCloseUnknownTrade(t *testing.T) {
	s := newTestServer(t)

	token, err := GenerateToken("ops", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	rec := do(t, s, http.MethodPost, "/api/trades/BTCUSDT/nope/close", `{"price":"100"}`, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("close unknown: %d %s", rec.Code, rec.Body.String())
	}
}
