package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"grid-core/internal/events"
)

// MockFeed generates synthetic closed candles for local development and dry runs.
type MockFeed struct {
	Bus        *events.Bus
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration

	rng *rand.Rand
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	last := make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		last[sym] = m.StartPrice
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				for _, sym := range m.Symbols {
					m.Bus.Publish(events.EventCandleClosed, m.nextCandle(sym, last, now))
				}
			}
		}
	}()
}

// nextCandle advances the random walk one step and shapes it into an OHLCV bar.
func (m *MockFeed) nextCandle(sym string, last map[string]float64, now time.Time) Candle {
	open := last[sym]
	close := open + (m.rng.Float64()*2-1)*m.Step
	high := open
	if close > high {
		high = close
	}
	high += m.rng.Float64() * m.Step * 0.5
	low := open
	if close < low {
		low = close
	}
	low -= m.rng.Float64() * m.Step * 0.5
	last[sym] = close

	return Candle{
		Symbol:    sym,
		Timestamp: now.UnixMilli(),
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close),
		Volume:    decimal.NewFromFloat(m.rng.Float64() * 10),
	}
}
