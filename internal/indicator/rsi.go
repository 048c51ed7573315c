package indicator

import "math"

// RSI returns the Relative Strength Index as of the latest row, using
// span-based smoothing of average gains and losses (span = period) rather
// than a plain rolling mean. The result is rounded to 2 decimals.
//
// Returns NaN until at least period real price changes have been observed;
// callers treat a NaN reading as an extreme veto, which keeps the strategy
// out of the market during warmup. An all-gains column reads exactly 100, an
// all-losses column exactly 0.
func RSI(closes []float64, period int) float64 {
	gains := newEWM(period)
	losses := newEWM(period)

	prev := math.NaN()
	for _, v := range closes {
		if math.IsNaN(v) {
			continue
		}
		if !math.IsNaN(prev) {
			delta := v - prev
			if delta > 0 {
				gains.push(delta)
				losses.push(0)
			} else {
				gains.push(0)
				losses.push(-delta)
			}
		}
		prev = v
	}

	if gains.count() < period {
		return math.NaN()
	}

	avgLoss := losses.value()
	if avgLoss == 0 {
		return 100
	}
	rsi := 100 - 100/(1+gains.value()/avgLoss)
	return math.Round(rsi*100) / 100
}
