package indicator

import "math"

// MACD returns the MACD line and histogram as of the latest row.
//
// line = EMA(fast) - EMA(slow) over closes; the histogram is line minus the
// EMA(signal) of the line series. The histogram, not the raw signal line, is
// what the decision rule consumes.
func MACD(closes []float64, fast, slow, signal int) (line, hist float64) {
	fastS := emaSeries(closes, fast)
	slowS := emaSeries(closes, slow)

	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = fastS[i] - slowS[i] // NaN rows propagate
	}

	sig := newEWM(signal)
	for _, v := range macd {
		sig.push(v)
	}

	if len(macd) == 0 {
		return math.NaN(), math.NaN()
	}
	line = macd[len(macd)-1]
	hist = line - sig.value()
	return line, hist
}
