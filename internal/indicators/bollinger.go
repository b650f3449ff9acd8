package indicators

import "math"

// Bollinger returns the upper, middle and lower bands: SMA(period) ± k·stddev.
// Population standard deviation over the same window as the middle band.
func Bollinger(values []float64, period int, k float64) (upper, middle, lower Value) {
	mid := SMA(values, period)
	if !mid.Valid {
		return Value{}, Value{}, Value{}
	}

	variance := 0.0
	for i := len(values) - period; i < len(values); i++ {
		d := values[i] - mid.V
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))

	upper = Value{V: mid.V + k*std, Valid: true}
	lower = Value{V: mid.V - k*std, Valid: true}
	return upper, mid, lower
}
