package indicator

import "math"

// SARParams configures the parabolic SAR acceleration schedule.
type SARParams struct {
	Step float64 // acceleration increment per new extreme
	Max  float64 // acceleration cap
	Init float64 // acceleration at trend start
}

// DefaultSARParams returns the conventional 0.02 / 0.2 / 0.02 schedule.
func DefaultSARParams() SARParams {
	return SARParams{Step: 0.02, Max: 0.2, Init: 0.02}
}

// SAR is the stateful parabolic stop-and-reverse level. Unlike the other
// indicators it is not a pure function of the candle columns: it carries the
// current extreme point, acceleration factor and trend direction between
// calls, and must be updated exactly once per candle boundary.
type SAR struct {
	params  SARParams
	af      float64
	ep      float64
	uptrend bool
	values  []float64
}

// NewSAR creates a SAR with the given schedule. Zero params fall back to the
// defaults.
func NewSAR(p SARParams) *SAR {
	if p.Step == 0 {
		p = DefaultSARParams()
	}
	return &SAR{params: p}
}

// Uptrend reports the current trend direction. The decision rule consumes
// only this flag, never the numeric level.
func (s *SAR) Uptrend() bool { return s.uptrend }

// Value returns the latest SAR level, or NaN before the first update.
func (s *SAR) Value() float64 {
	if len(s.values) == 0 {
		return math.NaN()
	}
	return s.values[len(s.values)-1]
}

// Ready reports whether at least one SAR level has been computed.
func (s *SAR) Ready() bool { return len(s.values) > 0 }

// Update advances the SAR by one candle. highs/lows/closes are the full
// columns including the just-closed candle. The first call seeds direction
// from the last two closes and then takes a regular step on top, so it needs
// at least two real candles; later calls append exactly one level each.
func (s *SAR) Update(highs, lows, closes []float64) {
	n := len(closes)

	if len(s.values) == 0 {
		if n < 2 || !s.prime(highs, lows, closes) {
			return
		}
	}

	high, low := highs[n-1], lows[n-1]
	sar := s.values[len(s.values)-1]

	reversal := false
	if s.uptrend {
		if sar > low {
			// Price crossed the stop: flip to downtrend.
			reversal = true
			s.uptrend = false
			sar = math.Max(s.ep, high)
			s.ep = low
			s.af = s.params.Step
		}
	} else {
		if sar < high {
			reversal = true
			s.uptrend = true
			sar = math.Min(s.ep, low)
			s.ep = high
			s.af = s.params.Step
		}
	}

	if !reversal {
		if s.uptrend && high > s.ep {
			s.ep = high
			s.af = math.Min(s.params.Max, s.af+s.params.Step)
		} else if !s.uptrend && low < s.ep {
			s.ep = low
			s.af = math.Min(s.params.Max, s.af+s.params.Step)
		}
	}

	// Clamp against the prior two candles so SAR never jumps inside the
	// recent price range.
	if s.uptrend {
		if m, ok := minRange(lows, n-3, n-1); ok && sar > m {
			sar = m
		}
	} else {
		if m, ok := maxRange(highs, n-3, n-1); ok && sar < m {
			sar = m
		}
	}

	sar += s.af * (s.ep - sar)
	s.values = append(s.values, sar)
}

// prime seeds the first SAR level from the last two candles. Returns false
// when either candle is a placeholder.
func (s *SAR) prime(highs, lows, closes []float64) bool {
	n := len(closes)
	vals := []float64{highs[n-2], lows[n-2], closes[n-2], highs[n-1], lows[n-1], closes[n-1]}
	for _, v := range vals {
		if math.IsNaN(v) {
			return false
		}
	}

	var sar float64
	if closes[n-1] > closes[n-2] {
		s.uptrend = true
		s.ep = highs[n-1]
		sar = lows[n-2]
	} else {
		s.uptrend = false
		s.ep = lows[n-1]
		sar = highs[n-2]
	}
	s.af = s.params.Init
	sar += s.af * (s.ep - sar)
	s.values = append(s.values, sar)
	return true
}

// minRange returns the minimum of vals[from:to] clipped to valid indexes,
// skipping NaN. ok is false when every value in range is NaN.
func minRange(vals []float64, from, to int) (float64, bool) {
	if from < 0 {
		from = 0
	}
	m, ok := math.NaN(), false
	for i := from; i < to && i < len(vals); i++ {
		if math.IsNaN(vals[i]) {
			continue
		}
		if !ok || vals[i] < m {
			m, ok = vals[i], true
		}
	}
	return m, ok
}

func maxRange(vals []float64, from, to int) (float64, bool) {
	if from < 0 {
		from = 0
	}
	m, ok := math.NaN(), false
	for i := from; i < to && i < len(vals); i++ {
		if math.IsNaN(vals[i]) {
			continue
		}
		if !ok || vals[i] > m {
			m, ok = vals[i], true
		}
	}
	return m, ok
}
