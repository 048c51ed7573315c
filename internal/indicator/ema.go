package indicator

import "math"

// EMA returns the exponential moving average of values as of the latest row,
// smoothing with span = window over the whole column. Returns NaN for a
// column with no real observations.
func EMA(values []float64, window int) float64 {
	e := newEWM(window)
	for _, v := range values {
		e.push(v)
	}
	return e.value()
}

// emaSeries returns the running EMA at every row. Rows whose input is NaN
// yield NaN without disturbing the smoothing state, so downstream consumers
// see placeholders propagate instead of stale values.
func emaSeries(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	e := newEWM(window)
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = e.push(v)
	}
	return out
}
