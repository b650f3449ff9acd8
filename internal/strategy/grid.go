package strategy

import (
	"github.com/shopspring/decimal"
)

// NewGrid regenerates the full ladder around center: levels/2 buy rungs below
// and levels/2 sell rungs above, each spaced spacing×center apart, none at the
// center itself. The returned snapshot is complete and never mutated.
func NewGrid(symbol string, center, spacing decimal.Decimal, levels int, trend Trend, ts int64) *Grid {
	half := levels / 2
	step := center.Mul(spacing)

	rungs := make([]Level, 0, half*2)
	// Buy rungs, farthest first so the slice is sorted by ascending price.
	for i := half; i >= 1; i-- {
		rungs = append(rungs, Level{
			Price: center.Sub(step.Mul(decimal.NewFromInt(int64(i)))),
			Side:  ActionBuy,
		})
	}
	for i := 1; i <= half; i++ {
		rungs = append(rungs, Level{
			Price: center.Add(step.Mul(decimal.NewFromInt(int64(i)))),
			Side:  ActionSell,
		})
	}

	return &Grid{
		Symbol:      symbol,
		Center:      center,
		Spacing:     spacing,
		Trend:       trend,
		Levels:      rungs,
		GeneratedAt: ts,
	}
}

// crossedLevel finds the unconsumed rung crossed by price, nearest to the grid
// center first. Buy rungs trigger when price trades at or below them, sell
// rungs at or above. When one candle sweeps several rungs only the nearest
// fires this cycle; the rest remain armed for subsequent cycles.
func (g *Grid) crossedLevel(price decimal.Decimal) (int, bool) {
	best := -1
	var bestDist decimal.Decimal
	for i, lv := range g.Levels {
		if lv.Consumed {
			continue
		}
		var crossed bool
		switch lv.Side {
		case ActionBuy:
			crossed = price.LessThanOrEqual(lv.Price)
		case ActionSell:
			crossed = price.GreaterThanOrEqual(lv.Price)
		}
		if !crossed {
			continue
		}
		dist := lv.Price.Sub(g.Center).Abs()
		if best == -1 || dist.LessThan(bestDist) {
			best = i
			bestDist = dist
		}
	}
	return best, best >= 0
}

// Drifted reports whether price has left the ladder's span, which forces a
// regeneration even without a trend flip.
func (g *Grid) Drifted(price decimal.Decimal) bool {
	if g == nil || len(g.Levels) == 0 {
		return true
	}
	span := g.Spacing.Mul(decimal.NewFromInt(int64(len(g.Levels) / 2)))
	drift := price.Sub(g.Center).Abs().Div(g.Center)
	return drift.GreaterThan(span)
}
