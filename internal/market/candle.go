package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a closed OHLCV bar for one symbol/timeframe. Immutable once emitted.
type Candle struct {
	Symbol    string
	Timestamp int64 // open time, unix milliseconds
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Time returns the candle open time as time.Time.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// TrueRange computes the true range against the previous candle's close.
// Returned as float64 since it feeds indicator math only, never accounting.
func (c Candle) TrueRange(prevClose decimal.Decimal) float64 {
	high := c.High.InexactFloat64()
	low := c.Low.InexactFloat64()
	prev := prevClose.InexactFloat64()

	tr := high - low
	if hc := abs(high - prev); hc > tr {
		tr = hc
	}
	if lc := abs(low - prev); lc > tr {
		tr = lc
	}
	return tr
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
