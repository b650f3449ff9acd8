package indicators

// wilderRSI computes the Relative Strength Index with Wilder smoothing of the
// average gain and loss. Needs period+1 closes before reporting a value.
type wilderRSI struct {
	period   int
	count    int
	prev     float64
	sumGain  float64
	sumLoss  float64
	avgGain  float64
	avgLoss  float64
}

func newWilderRSI(period int) *wilderRSI {
	return &wilderRSI{period: period}
}

func (r *wilderRSI) update(close float64) Value {
	r.count++
	if r.count == 1 {
		r.prev = close
		return Value{}
	}

	change := close - r.prev
	r.prev = close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	// changes seen so far, excluding the first close
	n := r.count - 1
	switch {
	case n < r.period:
		r.sumGain += gain
		r.sumLoss += loss
		return Value{}
	case n == r.period:
		r.sumGain += gain
		r.sumLoss += loss
		r.avgGain = r.sumGain / float64(r.period)
		r.avgLoss = r.sumLoss / float64(r.period)
	default:
		p := float64(r.period)
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}

	if r.avgLoss == 0 {
		return Value{V: 100, Valid: true}
	}
	rs := r.avgGain / r.avgLoss
	return Value{V: 100 - (100 / (1 + rs)), Valid: true}
}
