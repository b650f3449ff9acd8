package strategy

import (
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"grid-core/internal/indicators"
)

// Config holds grid strategy parameters for one symbol.
type Config struct {
	Symbol         string
	GridLevels     int             // total rungs, half below and half above
	GridSpacing    decimal.Decimal // fraction of price per rung, e.g. 0.01
	SlopeThreshold float64         // ATR-normalized EMA slope needed to call a trend
}

// Engine turns indicator snapshots into grid signals for a single symbol.
// It owns no shared state: the caller holds the current grid snapshot and
// swaps it for whatever Evaluate returns.
type Engine struct {
	cfg         Config
	prevTrend   Trend
	prevEMAFast float64
	haveEMA     bool
}

// NewEngine builds a strategy engine. Levels defaults to 10 and the slope
// threshold to 0.1 when unset.
func NewEngine(cfg Config) *Engine {
	if cfg.GridLevels <= 0 {
		cfg.GridLevels = 10
	}
	if cfg.GridSpacing.IsZero() {
		cfg.GridSpacing = decimal.NewFromFloat(0.01)
	}
	if cfg.SlopeThreshold <= 0 {
		cfg.SlopeThreshold = 0.1
	}
	return &Engine{cfg: cfg, prevTrend: TrendSideways}
}

// Evaluate runs one decision cycle: classify the trend, regenerate the ladder
// on a transition (or when price drifted off it), otherwise check for a rung
// crossing. Exactly one signal is returned per cycle; Hold signals are logged
// and persisted but never forwarded for risk approval.
func (e *Engine) Evaluate(price decimal.Decimal, snap indicators.Snapshot, grid *Grid) (Signal, *Grid) {
	sig := Signal{
		ID:        uuid.NewString(),
		Timestamp: snap.Timestamp,
		Symbol:    e.cfg.Symbol,
		Action:    ActionHold,
		Price:     price,
		Trend:     e.prevTrend,
	}

	// Trend calls need warm EMAs and ATR. Until then nothing is actionable.
	if !snap.EMAFast.Valid || !snap.EMASlow.Valid || !snap.ATR.Valid {
		sig.Trend = TrendSideways
		return sig, grid
	}

	trend := e.classify(snap)
	sig.Trend = trend

	if trend != e.prevTrend || grid == nil || grid.Drifted(price) {
		e.prevTrend = trend
		grid = NewGrid(e.cfg.Symbol, price, e.cfg.GridSpacing, e.cfg.GridLevels, trend, snap.Timestamp)
		log.Printf("strategy: %s regenerated grid: %d levels around %s (trend %s)",
			e.cfg.Symbol, len(grid.Levels), price, trend)
		return sig, grid
	}

	idx, ok := grid.crossedLevel(price)
	if !ok {
		return sig, grid
	}

	lv := grid.Levels[idx]
	sig.Action = lv.Side
	sig.Price = lv.Price
	sig.Confidence = confidence(lv.Side, price, snap)
	return sig, grid.withConsumed(idx)
}

// classify applies the EMA cross plus ATR-normalized slope rule. The slope is
// the one-candle change of the fast EMA divided by ATR, so the threshold is
// volatility-relative rather than an absolute price move.
func (e *Engine) classify(snap indicators.Snapshot) Trend {
	fast := snap.EMAFast.V
	slow := snap.EMASlow.V

	slope := 0.0
	if e.haveEMA && snap.ATR.V > 0 {
		slope = (fast - e.prevEMAFast) / snap.ATR.V
	}
	e.prevEMAFast = fast
	e.haveEMA = true

	switch {
	case fast > slow && slope > e.cfg.SlopeThreshold:
		return TrendUp
	case fast < slow && slope < -e.cfg.SlopeThreshold:
		return TrendDown
	default:
		return TrendSideways
	}
}

// confidence maps RSI extremity and Bollinger band position onto [0,1].
// Base 0.5, up to +0.25 for RSI distance from neutral, up to +0.25 for how
// deep price sits toward the band favoring the action. Both terms are
// monotonic in their inputs and the sum is clamped.
func confidence(action Action, price decimal.Decimal, snap indicators.Snapshot) float64 {
	conf := 0.5

	if snap.RSI.Valid {
		extremity := (snap.RSI.V - 50) / 50
		if extremity < 0 {
			extremity = -extremity
		}
		conf += 0.25 * extremity
	}

	if snap.BollUpper.Valid && snap.BollLower.Valid {
		width := snap.BollUpper.V - snap.BollLower.V
		if width > 0 {
			p := price.InexactFloat64()
			var pos float64
			if action == ActionBuy {
				// deeper below the middle band means more stretched
				pos = (snap.BollMiddle.V - p) / (width / 2)
			} else {
				pos = (p - snap.BollMiddle.V) / (width / 2)
			}
			if pos < 0 {
				pos = 0
			}
			if pos > 1 {
				pos = 1
			}
			conf += 0.25 * pos
		}
	}

	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}
