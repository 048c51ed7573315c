// Package signal turns indicator readings into a discrete trading decision
// through a weighted confidence score. Each sub-signal contributes an integer
// score; the sum is compared against fixed thresholds. An extremely oversold
// RSI carries a -10 veto that forces a sell/stay-out regardless of the other
// sub-signals.
package signal

import (
	"cryptobot/internal/indicator"
)

// Decision is the three-way outcome of an evaluation.
type Decision string

const (
	Hold Decision = "HOLD"
	Buy  Decision = "BUY_OR_HOLD"
	Sell Decision = "SELL_OR_STAY_OUT"
)

// Confidence thresholds: buy at >= BuyThreshold, sell below SellThreshold.
const (
	BuyThreshold  = 6
	SellThreshold = 3
)

// Params holds the indicator windows one evaluator instance uses.
type Params struct {
	EMAFast    int `json:"ema_fast"`
	EMASlow    int `json:"ema_slow"`
	MACDFast   int `json:"macd_fast"`
	MACDSlow   int `json:"macd_slow"`
	MACDSignal int `json:"macd_signal"`
	RSIPeriod  int `json:"rsi_period"`
}

// DefaultParams returns the conventional windows.
func DefaultParams() Params {
	return Params{EMAFast: 9, EMASlow: 25, MACDFast: 12, MACDSlow: 26, MACDSignal: 9, RSIPeriod: 12}
}

// Breakdown is the per-sub-signal view of one evaluation, exposed read-only
// to the dashboard.
type Breakdown struct {
	EMAFast    float64 `json:"ema_fast"`
	EMASlow    float64 `json:"ema_slow"`
	MACDLine   float64 `json:"macd_line"`
	MACDHist   float64 `json:"macd_hist"`
	RSI        float64 `json:"rsi"`
	SARUptrend bool    `json:"sar_uptrend"`

	EMAScore   int `json:"ema_score"`
	MACDScore  int `json:"macd_score"`
	RSIScore   int `json:"rsi_score"`
	SARScore   int `json:"sar_score"`
	Confidence int `json:"confidence"`

	Decision Decision `json:"decision"`
}

// Evaluate scores the close column against the params plus the SAR trend
// flag and maps the total confidence to a decision.
func Evaluate(closes []float64, p Params, sarUptrend bool) Breakdown {
	b := Breakdown{SARUptrend: sarUptrend}

	b.EMAFast = indicator.EMA(closes, p.EMAFast)
	b.EMASlow = indicator.EMA(closes, p.EMASlow)
	if b.EMAFast > b.EMASlow {
		b.EMAScore = 3
	}

	b.MACDLine, b.MACDHist = indicator.MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	b.MACDScore = macdScore(b.MACDLine, b.MACDHist)

	b.RSI = indicator.RSI(closes, p.RSIPeriod)
	b.RSIScore = rsiScore(b.RSI)

	if sarUptrend {
		b.SARScore = 3
	}

	b.Confidence = b.EMAScore + b.MACDScore + b.RSIScore + b.SARScore
	switch {
	case b.Confidence >= BuyThreshold:
		b.Decision = Buy
	case b.Confidence < SellThreshold:
		b.Decision = Sell
	default:
		b.Decision = Hold
	}
	return b
}

// macdScore grades momentum from the MACD line and histogram.
func macdScore(line, hist float64) int {
	if line > hist {
		switch {
		case hist > 0:
			return 3
		case line > 0:
			return 2
		default:
			return 1
		}
	}
	if hist < 0 {
		return -3
	}
	return -2
}

// rsiScore grades the oscillator band. A NaN reading (warmup) falls through
// every comparison into the -10 veto, keeping the strategy out of the market
// until RSI has enough data.
func rsiScore(rsi float64) int {
	switch {
	case rsi >= 70:
		return 3
	case rsi >= 60:
		return 2
	case rsi >= 50:
		return 1
	case rsi >= 40:
		return 0
	case rsi >= 30:
		return -1
	default:
		return -10
	}
}
