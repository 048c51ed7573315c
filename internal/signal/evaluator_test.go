package signal

import (
	"math"
	"testing"
)

func TestMACDScoreTable(t *testing.T) {
	cases := []struct {
		name       string
		line, hist float64
		want       int
	}{
		{"above with positive histogram", 2, 1, 3},
		{"above, histogram negative, line positive", 2, -1, 2},
		{"above, both negative", -1, -2, 1},
		{"below with negative histogram", -3, -1, -3},
		{"below with positive histogram", 1, 2, -2},
	}
	for _, tc := range cases {
		if got := macdScore(tc.line, tc.hist); got != tc.want {
			t.Errorf("%s: macdScore(%v,%v)=%d, want %d", tc.name, tc.line, tc.hist, got, tc.want)
		}
	}
}

func TestRSIScoreTable(t *testing.T) {
	cases := []struct {
		rsi  float64
		want int
	}{
		{75, 3}, {70, 3}, {65, 2}, {55, 1}, {45, 0}, {35, -1}, {29.99, -10}, {0, -10},
	}
	for _, tc := range cases {
		if got := rsiScore(tc.rsi); got != tc.want {
			t.Errorf("rsiScore(%v)=%d, want %d", tc.rsi, got, tc.want)
		}
	}
	if got := rsiScore(math.NaN()); got != -10 {
		t.Errorf("warmup NaN must hit the veto, got %d", got)
	}
}

func TestConfidenceBounds(t *testing.T) {
	// Max: EMA +3, MACD +3, RSI +3, SAR +3. Min: 0, -3, -10, 0.
	maxC := 3 + 3 + 3 + 3
	minC := 0 + -3 + -10 + 0
	if maxC != 12 || minC != -13 {
		t.Fatalf("score table changed: bounds now [%d,%d]", minC, maxC)
	}

	for _, macd := range []int{-3, -2, 1, 2, 3} {
		for _, rsi := range []int{-10, -1, 0, 1, 2, 3} {
			for _, ema := range []int{0, 3} {
				for _, sar := range []int{0, 3} {
					c := macd + rsi + ema + sar
					if c < minC || c > maxC {
						t.Fatalf("confidence %d outside [%d,%d]", c, minC, maxC)
					}
				}
			}
		}
	}
}

func TestEvaluate_StrongUptrendBuys(t *testing.T) {
	// 30 closes strictly increasing by 1 starting at 100, then one more
	// strictly-higher close.
	closes := make([]float64, 31)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	b := Evaluate(closes, DefaultParams(), true)
	if b.EMAScore != 3 {
		t.Errorf("fast EMA must exceed slow EMA, score=%d (fast=%v slow=%v)", b.EMAScore, b.EMAFast, b.EMASlow)
	}
	if b.RSI < 70 || b.RSIScore != 3 {
		t.Errorf("expected RSI>=70 on all-gains closes, got %v (score %d)", b.RSI, b.RSIScore)
	}
	if b.SARScore != 3 {
		t.Errorf("uptrend flag must add 3, got %d", b.SARScore)
	}
	if b.Decision != Buy {
		t.Errorf("expected %s, got %s (confidence %d)", Buy, b.Decision, b.Confidence)
	}
}

func TestEvaluate_DowntrendSells(t *testing.T) {
	closes := make([]float64, 31)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	b := Evaluate(closes, DefaultParams(), false)
	if b.Decision != Sell {
		t.Errorf("expected %s, got %s (confidence %d)", Sell, b.Decision, b.Confidence)
	}
}

func TestEvaluate_VetoOverridesOtherSignals(t *testing.T) {
	// Hand the evaluator a column that is too short for RSI: every other
	// sub-signal may be positive but the veto must keep confidence below
	// the sell threshold.
	closes := []float64{100, 101, 102, 103, 104}
	b := Evaluate(closes, DefaultParams(), true)
	if b.RSIScore != -10 {
		t.Fatalf("expected RSI veto, got %d", b.RSIScore)
	}
	if b.Decision != Sell {
		t.Errorf("veto must force %s, got %s (confidence %d)", Sell, b.Decision, b.Confidence)
	}
}
