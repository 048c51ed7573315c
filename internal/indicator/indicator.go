// Package indicator provides technical indicator calculations over candle
// columns.
//
// EMA, MACD and RSI are pure functions of the whole column from index 0:
// truncating to a lookback window would change the smoothing seed and produce
// a different numeric series, so evaluation always starts at inception.
// Synthetic placeholder rows carry NaN prices; all smoothing here skips NaN
// inputs, treating a placeholder as "no new information" for that interval.
// Only the parabolic SAR carries state between calls.
package indicator

import "math"

// ewm tracks an exponentially weighted mean with span-based smoothing
// (alpha = 2/(span+1)) and adjust-style normalization, matching the usual
// dataframe ewm(span=n).mean() output. NaN inputs leave the state untouched.
type ewm struct {
	decay float64
	num   float64
	den   float64
	n     int // non-NaN observations
}

func newEWM(span int) ewm {
	alpha := 2.0 / (float64(span) + 1)
	return ewm{decay: 1 - alpha}
}

// push feeds one observation and returns the current mean, or NaN while no
// real observation has been seen.
func (e *ewm) push(v float64) float64 {
	if math.IsNaN(v) {
		return e.value()
	}
	e.num = v + e.decay*e.num
	e.den = 1 + e.decay*e.den
	e.n++
	return e.num / e.den
}

func (e *ewm) value() float64 {
	if e.n == 0 {
		return math.NaN()
	}
	return e.num / e.den
}

// count returns how many real observations have been folded in.
func (e *ewm) count() int { return e.n }
