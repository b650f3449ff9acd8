package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"grid-core/internal/api"
	"grid-core/internal/engine"
	"grid-core/internal/events"
	"grid-core/internal/indicators"
	"grid-core/internal/market"
	"grid-core/internal/order"
	"grid-core/internal/persistence"
	"grid-core/internal/reconciliation"
	"grid-core/internal/risk"
	"grid-core/internal/strategy"
	"grid-core/pkg/config"
	"grid-core/pkg/db"
	"grid-core/pkg/exchange"
	"grid-core/pkg/stream"
)

const version = "0.3.0"

// resetDailyAtMidnight zeroes each symbol's realized-pnl counter at the UTC
// day boundary. The daily loss limit is evaluated against that counter.
func resetDailyAtMidnight(ctx context.Context, managers []*risk.Manager) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			for _, rm := range managers {
				rm.ResetDaily()
			}
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	overrides, err := cfg.LoadOverrides()
	if err != nil {
		log.Fatalf("strategy file failed: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("database open failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	writer := persistence.NewWriter(database, 1024)
	defer writer.Close()

	if !cfg.DryRun {
		// No live execution gateway is wired yet; refuse to pretend.
		log.Println("live execution not configured, forcing paper gateway")
	}

	engines := engine.NewService()
	var riskManagers []*risk.Manager
	for _, sym := range cfg.Symbols {
		set := cfg.Settings(sym, overrides)

		paper := exchange.NewPaper(exchange.PaperConfig{
			FeeRate:     decimal.NewFromFloat(cfg.PaperFeeRate),
			SlippageBps: cfg.PaperSlippageBps,
		})
		gw := exchange.NewRateLimited(paper, cfg.GatewayRPS, cfg.GatewayBurst)

		rm := risk.NewManager(sym, risk.Config{
			Quantity:         set.Quantity,
			MaxPositionValue: set.MaxPosition,
			MaxDailyLoss:     set.MaxDailyLoss,
			RiskPercentage:   set.RiskPercentage,
			StopDistance:     set.StopDistance,
			TakeProfitRatio:  set.TakeProfitRatio,
			InitialEquity:    set.InitialEquity,
		})
		riskManagers = append(riskManagers, rm)
		om := order.NewManager(sym, database, gw, rm, bus)

		w := &engine.Worker{
			Symbol:     sym,
			Bus:        bus,
			Gateway:    gw,
			Store:      database,
			Writer:     writer,
			Indicators: indicators.NewEngine(sym, indicators.Config{Window: cfg.WarmupCandles}),
			Strategy: strategy.NewEngine(strategy.Config{
				Symbol:         sym,
				GridLevels:     set.GridLevels,
				GridSpacing:    set.GridSpacing,
				SlopeThreshold: set.SlopeThreshold,
			}),
			Risk:          rm,
			Orders:        om,
			RearmOnClose:  true,
			WarmupCandles: cfg.WarmupCandles,
		}
		if err := engines.Add(w); err != nil {
			log.Fatalf("engine setup: %v", err)
		}

		rec := reconciliation.New(sym, database, gw, om)
		if n, err := rec.Seed(ctx); err != nil {
			log.Fatalf("recovery for %s failed: %v", sym, err)
		} else if n > 0 {
			log.Printf("main: recovered %d in-flight trades for %s", n, sym)
		}
		go rec.Run(ctx)
	}

	if err := engines.Start(ctx); err != nil {
		log.Fatalf("engine start: %v", err)
	}
	go resetDailyAtMidnight(ctx, riskManagers)

	if cfg.UseMockFeed {
		mock := &market.MockFeed{Bus: bus, Symbols: cfg.Symbols}
		mock.Start(ctx)
		log.Printf("main: mock feed started for %v", cfg.Symbols)
	} else {
		feed := &market.Feed{
			Stream:   stream.NewClient(cfg.Testnet),
			Bus:      bus,
			Symbols:  cfg.Symbols,
			Interval: cfg.Interval,
		}
		feed.Start(ctx)
		log.Printf("main: live feed started for %v interval %s", cfg.Symbols, cfg.Interval)
	}

	server := api.NewServer(engines, database, api.SystemMeta{
		DryRun:      true,
		Venue:       "paper",
		Symbols:     cfg.Symbols,
		UseMockFeed: cfg.UseMockFeed,
		Version:     version,
	}, cfg.JWTSecret)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("main: control api listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("main: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("main: http shutdown: %v", err)
	}
	if n := bus.Dropped(); n > 0 {
		log.Printf("main: bus dropped %d events during run", n)
	}
	log.Println("main: bye")
}
