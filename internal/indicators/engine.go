package indicators

import (
	"errors"
	"fmt"
	"sync/atomic"

	"grid-core/internal/market"
)

// ErrStaleCandle is returned when a candle is not strictly newer than the last
// accepted one. The engine state is left untouched in that case.
var ErrStaleCandle = errors.New("stale candle")

// Value is a single indicator output. Valid is false until the trailing window
// reaches the indicator's minimum lookback; consumers must treat invalid values
// as non-actionable.
type Value struct {
	V     float64
	Valid bool
}

// Snapshot bundles every indicator computed for one closed candle. It is
// ephemeral: recomputed per candle, never persisted.
type Snapshot struct {
	Symbol    string
	Timestamp int64

	SMA        Value
	EMAFast    Value
	EMASlow    Value
	RSI        Value
	MACD       Value
	MACDSignal Value
	MACDHist   Value
	BollUpper  Value
	BollMiddle Value
	BollLower  Value
	ATR        Value
}

// Config holds indicator periods. Zero fields fall back to conventional defaults.
type Config struct {
	SMAPeriod  int
	EMAFast    int
	EMASlow    int
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BollPeriod int
	BollStdDev float64
	ATRPeriod  int
	Window     int
}

func (c Config) withDefaults() Config {
	def := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&c.SMAPeriod, 20)
	def(&c.EMAFast, 12)
	def(&c.EMASlow, 26)
	def(&c.RSIPeriod, 14)
	def(&c.MACDFast, 12)
	def(&c.MACDSlow, 26)
	def(&c.MACDSignal, 9)
	def(&c.BollPeriod, 20)
	def(&c.ATRPeriod, 14)
	def(&c.Window, 200)
	if c.BollStdDev <= 0 {
		c.BollStdDev = 2.0
	}
	if c.Window < c.EMASlow {
		c.Window = c.EMASlow
	}
	return c
}

// Engine maintains the trailing candle window and incremental indicator state
// for a single symbol/timeframe pair. Update runs on the symbol's worker
// goroutine; lastTS is atomic because the status API reads it from handler
// goroutines while updates are in flight.
type Engine struct {
	cfg Config

	symbol   string
	lastTS   atomic.Int64
	closes   []float64
	havePrev bool
	prevC    market.Candle

	emaFast *ema
	emaSlow *ema
	macdSig *ema
	rsi     *wilderRSI
	atr     *wilderATR
}

// NewEngine builds an indicator engine for one symbol.
func NewEngine(symbol string, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:     cfg,
		symbol:  symbol,
		closes:  make([]float64, 0, cfg.Window),
		emaFast: newEMA(cfg.EMAFast),
		emaSlow: newEMA(cfg.EMASlow),
		macdSig: newEMA(cfg.MACDSignal),
		rsi:     newWilderRSI(cfg.RSIPeriod),
		atr:     newWilderATR(cfg.ATRPeriod),
	}
}

// Update ingests one closed candle and returns the recomputed snapshot.
// Candles must arrive in strictly increasing timestamp order; anything else is
// rejected with ErrStaleCandle and does not mutate state.
func (e *Engine) Update(c market.Candle) (Snapshot, error) {
	if last := e.lastTS.Load(); c.Timestamp <= last {
		return Snapshot{}, fmt.Errorf("%w: got %d, last accepted %d", ErrStaleCandle, c.Timestamp, last)
	}
	e.lastTS.Store(c.Timestamp)

	close := c.Close.InexactFloat64()
	e.closes = append(e.closes, close)
	if len(e.closes) > e.cfg.Window {
		e.closes = e.closes[len(e.closes)-e.cfg.Window:]
	}

	snap := Snapshot{Symbol: e.symbol, Timestamp: c.Timestamp}

	snap.SMA = SMA(e.closes, e.cfg.SMAPeriod)
	snap.EMAFast = e.emaFast.update(close)
	snap.EMASlow = e.emaSlow.update(close)
	snap.RSI = e.rsi.update(close)
	snap.BollUpper, snap.BollMiddle, snap.BollLower = Bollinger(e.closes, e.cfg.BollPeriod, e.cfg.BollStdDev)

	// MACD line needs both EMAs warm before it means anything; the signal line
	// starts its own warm-up from the first valid MACD value.
	if snap.EMAFast.Valid && snap.EMASlow.Valid {
		line := snap.EMAFast.V - snap.EMASlow.V
		snap.MACD = Value{V: line, Valid: true}
		snap.MACDSignal = e.macdSig.update(line)
		if snap.MACDSignal.Valid {
			snap.MACDHist = Value{V: line - snap.MACDSignal.V, Valid: true}
		}
	}

	if e.havePrev {
		snap.ATR = e.atr.update(c.TrueRange(e.prevC.Close))
	}
	e.prevC = c
	e.havePrev = true

	return snap, nil
}

// LastTimestamp returns the most recently accepted candle time (ms). Safe to
// call concurrently with Update.
func (e *Engine) LastTimestamp() int64 {
	return e.lastTS.Load()
}
