package strategy

import (
	"github.com/shopspring/decimal"
)

// Action is the decision attached to a signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Trend classifies market direction.
type Trend string

const (
	TrendUp       Trend = "UP"
	TrendDown     Trend = "DOWN"
	TrendSideways Trend = "SIDEWAYS"
)

// Signal is one decision-cycle output. Immutable; persisted regardless of
// approval outcome for the audit trail.
type Signal struct {
	ID         string
	Timestamp  int64 // ms
	Symbol     string
	Action     Action
	Price      decimal.Decimal
	Confidence float64
	Trend      Trend
}

// Level is one rung of the grid ladder. Consumed levels cannot re-fire until
// the grid regenerates or the level is re-armed after its trade closes.
type Level struct {
	Price    decimal.Decimal
	Side     Action // BUY below center, SELL above
	Consumed bool
}

// Grid is an immutable ladder snapshot. All updates (regeneration, level
// consumption, re-arming) produce a fresh value; callers swap the pointer
// atomically and never edit levels in place.
type Grid struct {
	Symbol      string
	Center      decimal.Decimal
	Spacing     decimal.Decimal // fraction of center per rung
	Trend       Trend
	Levels      []Level
	GeneratedAt int64 // ms
}

// clone copies the grid with a private level slice.
func (g *Grid) clone() *Grid {
	if g == nil {
		return nil
	}
	out := *g
	out.Levels = make([]Level, len(g.Levels))
	copy(out.Levels, g.Levels)
	return &out
}

// withConsumed returns a copy with level i marked consumed.
func (g *Grid) withConsumed(i int) *Grid {
	out := g.clone()
	out.Levels[i].Consumed = true
	return out
}

// WithRearmed returns a copy with the level at price un-consumed, or the
// receiver unchanged if no such level exists. Used when the trade opened at a
// rung closes, so the rung can trade again within the same ladder.
func (g *Grid) WithRearmed(price decimal.Decimal) *Grid {
	if g == nil {
		return nil
	}
	for i, lv := range g.Levels {
		if lv.Consumed && lv.Price.Equal(price) {
			out := g.clone()
			out.Levels[i].Consumed = false
			return out
		}
	}
	return g
}
