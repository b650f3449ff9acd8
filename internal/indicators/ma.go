package indicators

// SMA calculates the simple moving average over the last period values.
func SMA(values []float64, period int) Value {
	if period <= 0 || len(values) < period {
		return Value{}
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return Value{V: sum / float64(period), Valid: true}
}

// ema is an incremental exponential moving average. The first value is seeded
// with the SMA of the initial period, matching the standard recurrence.
type ema struct {
	period int
	alpha  float64
	count  int
	seed   float64
	value  float64
}

func newEMA(period int) *ema {
	return &ema{
		period: period,
		alpha:  2.0 / (float64(period) + 1.0),
	}
}

func (e *ema) update(v float64) Value {
	e.count++
	switch {
	case e.count < e.period:
		e.seed += v
		return Value{}
	case e.count == e.period:
		e.seed += v
		e.value = e.seed / float64(e.period)
	default:
		e.value = e.alpha*v + (1-e.alpha)*e.value
	}
	return Value{V: e.value, Valid: true}
}
