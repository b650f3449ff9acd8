package strategy

import (
	"testing"

	"grid-core/internal/indicators"
)

func warmSnapshot(ts int64, emaFast, emaSlow, atr, rsi float64) indicators.Snapshot {
	return indicators.Snapshot{
		Symbol:     "BTCUSDT",
		Timestamp:  ts,
		EMAFast:    indicators.Value{V: emaFast, Valid: true},
		EMASlow:    indicators.Value{V: emaSlow, Valid: true},
		ATR:        indicators.Value{V: atr, Valid: true},
		RSI:        indicators.Value{V: rsi, Valid: true},
		BollUpper:  indicators.Value{V: 110, Valid: true},
		BollMiddle: indicators.Value{V: 100, Valid: true},
		BollLower:  indicators.Value{V: 90, Valid: true},
	}
}

func newTestEngine() *Engine {
	return NewEngine(Config{
		Symbol:         "BTCUSDT",
		GridLevels:     10,
		GridSpacing:    d("0.01"),
		SlopeThreshold: 0.1,
	})
}

func TestEvaluateHoldsUntilIndicatorsWarm(t *testing.T) {
	e := newTestEngine()

	snap := indicators.Snapshot{Symbol: "BTCUSDT", Timestamp: 1000}
	sig, grid := e.Evaluate(d("100"), snap, nil)

	if sig.Action != ActionHold {
		t.Fatalf("action %s before warm-up, want HOLD", sig.Action)
	}
	if grid != nil {
		t.Fatal("grid generated from non-actionable indicators")
	}
}

func TestEvaluateRegeneratesOnFirstWarmCycle(t *testing.T) {
	e := newTestEngine()

	sig, grid := e.Evaluate(d("100"), warmSnapshot(1000, 100, 100, 1, 50), nil)
	if sig.Action != ActionHold {
		t.Fatalf("regeneration cycle emitted %s, want HOLD", sig.Action)
	}
	if grid == nil || len(grid.Levels) != 10 {
		t.Fatalf("expected a fresh 10-level grid, got %+v", grid)
	}
	if !grid.Center.Equal(d("100")) {
		t.Fatalf("grid center %s, want 100", grid.Center)
	}
}

func TestEvaluateEmitsSignalOnCrossing(t *testing.T) {
	e := newTestEngine()

	_, grid := e.Evaluate(d("100"), warmSnapshot(1000, 100, 100, 1, 50), nil)

	// Next candle trades down to 99: the 99 buy rung fires.
	sig, grid2 := e.Evaluate(d("99"), warmSnapshot(2000, 100, 100, 1, 28), grid)

	if sig.Action != ActionBuy {
		t.Fatalf("action %s, want BUY", sig.Action)
	}
	if !sig.Price.Equal(d("99")) {
		t.Fatalf("signal price %s, want 99", sig.Price)
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		t.Fatalf("confidence %v outside [0,1]", sig.Confidence)
	}
	if sig.ID == "" {
		t.Fatal("signal missing id")
	}

	// The rung is consumed in the returned snapshot, not the input one.
	if grid.Levels[4].Consumed {
		t.Fatal("input grid mutated")
	}
	if !grid2.Levels[4].Consumed {
		t.Fatal("crossed rung not consumed in new snapshot")
	}

	// Same price next cycle: rung stays quiet.
	sig2, _ := e.Evaluate(d("99"), warmSnapshot(3000, 100, 100, 1, 28), grid2)
	if sig2.Action != ActionHold {
		t.Fatalf("consumed rung re-fired with %s", sig2.Action)
	}
}

func TestEvaluateRegeneratesOnTrendChange(t *testing.T) {
	e := newTestEngine()

	_, grid := e.Evaluate(d("100"), warmSnapshot(1000, 100, 100, 1, 50), nil)

	// Fast EMA jumps above slow with slope 0.5 ATR: trend flips to UP and the
	// ladder regenerates around the new price instead of emitting a signal.
	sig, grid2 := e.Evaluate(d("101"), warmSnapshot(2000, 100.5, 100, 1, 60), grid)

	if sig.Action != ActionHold {
		t.Fatalf("trend-change cycle emitted %s, want HOLD", sig.Action)
	}
	if sig.Trend != TrendUp {
		t.Fatalf("trend %s, want UP", sig.Trend)
	}
	if grid2 == grid {
		t.Fatal("grid not regenerated on trend change")
	}
	if !grid2.Center.Equal(d("101")) {
		t.Fatalf("new grid centered at %s, want 101", grid2.Center)
	}
	if grid2.Trend != TrendUp {
		t.Fatalf("new grid trend %s, want UP", grid2.Trend)
	}
}

func TestConfidenceMonotonicInRSIExtremity(t *testing.T) {
	mild := confidence(ActionBuy, d("100"), warmSnapshot(0, 100, 100, 1, 45))
	strong := confidence(ActionBuy, d("100"), warmSnapshot(0, 100, 100, 1, 15))

	if strong <= mild {
		t.Fatalf("confidence not monotonic: rsi 15 gives %v, rsi 45 gives %v", strong, mild)
	}
	for _, c := range []float64{mild, strong} {
		if c < 0 || c > 1 {
			t.Fatalf("confidence %v outside [0,1]", c)
		}
	}
}

func TestConfidenceMonotonicInBandPosition(t *testing.T) {
	// Same RSI; price deeper below the middle band should score higher for a buy.
	shallow := confidence(ActionBuy, d("98"), warmSnapshot(0, 100, 100, 1, 30))
	deep := confidence(ActionBuy, d("91"), warmSnapshot(0, 100, 100, 1, 30))

	if deep <= shallow {
		t.Fatalf("confidence not monotonic in band position: deep %v, shallow %v", deep, shallow)
	}
}
