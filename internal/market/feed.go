package market

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"grid-core/internal/events"
	"grid-core/pkg/stream"
)

// Feed subscribes to the exchange kline stream and publishes closed candles
// onto the event bus. Unfinished bars are dropped so the core only ever sees
// immutable candles.
type Feed struct {
	Stream   *stream.Client
	Bus      *events.Bus
	Symbols  []string
	Interval string
}

// Start begins websocket streaming for all configured symbols.
func (f *Feed) Start(ctx context.Context) {
	if f.Bus == nil || f.Stream == nil {
		log.Println("market feed not fully configured; skipping start")
		return
	}

	for _, sym := range f.Symbols {
		symbol := sym
		ch, stop, err := f.Stream.SubscribeKlines(ctx, symbol, f.Interval)
		if err != nil {
			log.Printf("market feed: ws subscribe %s error: %v", symbol, err)
			continue
		}

		go func() {
			defer stop()
			for k := range ch {
				if !k.Final {
					continue
				}
				candle, err := candleFromKline(k)
				if err != nil {
					log.Printf("market feed: bad kline for %s: %v", symbol, err)
					continue
				}
				f.Bus.Publish(events.EventCandleClosed, candle)
			}
		}()
	}
}

// candleFromKline converts wire strings into exact decimals.
func candleFromKline(k stream.Kline) (Candle, error) {
	var (
		c   Candle
		err error
	)
	c.Symbol = k.Symbol
	c.Timestamp = k.OpenTime
	if c.Open, err = decimal.NewFromString(k.Open); err != nil {
		return Candle{}, err
	}
	if c.High, err = decimal.NewFromString(k.High); err != nil {
		return Candle{}, err
	}
	if c.Low, err = decimal.NewFromString(k.Low); err != nil {
		return Candle{}, err
	}
	if c.Close, err = decimal.NewFromString(k.Close); err != nil {
		return Candle{}, err
	}
	if c.Volume, err = decimal.NewFromString(k.Volume); err != nil {
		return Candle{}, err
	}
	return c, nil
}
