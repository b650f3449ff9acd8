package indicators

// wilderATR smooths the true range with Wilder's recurrence, seeded by the
// simple average of the first period true ranges.
type wilderATR struct {
	period int
	count  int
	sum    float64
	value  float64
}

func newWilderATR(period int) *wilderATR {
	return &wilderATR{period: period}
}

func (a *wilderATR) update(tr float64) Value {
	a.count++
	switch {
	case a.count < a.period:
		a.sum += tr
		return Value{}
	case a.count == a.period:
		a.sum += tr
		a.value = a.sum / float64(a.period)
	default:
		p := float64(a.period)
		a.value = (a.value*(p-1) + tr) / p
	}
	return Value{V: a.value, Valid: true}
}
