package gateway

import (
	"fmt"
	"strings"

	"cryptobot/internal/indicator"
	"cryptobot/internal/model"
	"cryptobot/internal/signal"
	"cryptobot/internal/strategy"
)

// StartStrategyRequest is the POST /api/strategies body. Zero-valued risk
// fields fall back to the server defaults; indicator windows fall back to
// the conventional ones.
type StartStrategyRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`

	TakeProfit float64 `json:"take_profit,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	BuyPct     float64 `json:"buy_pct,omitempty"`
	RawTrades  bool    `json:"raw_trades,omitempty"`

	EMAFast    int `json:"ema_fast,omitempty"`
	EMASlow    int `json:"ema_slow,omitempty"`
	MACDFast   int `json:"macd_fast,omitempty"`
	MACDSlow   int `json:"macd_slow,omitempty"`
	MACDSignal int `json:"macd_signal,omitempty"`
	RSIPeriod  int `json:"rsi_period,omitempty"`

	SARStep float64 `json:"sar_af_step,omitempty"`
	SARMax  float64 `json:"sar_af_max,omitempty"`
	SARInit float64 `json:"sar_af_init,omitempty"`
}

func (r StartStrategyRequest) toConfig(d Defaults) (strategy.Config, error) {
	if r.Symbol == "" {
		return strategy.Config{}, fmt.Errorf("symbol required")
	}
	interval := model.Interval(r.Interval)
	if !interval.Valid() {
		return strategy.Config{}, fmt.Errorf("invalid interval %q", r.Interval)
	}

	params := signal.DefaultParams()
	if r.EMAFast > 0 {
		params.EMAFast = r.EMAFast
	}
	if r.EMASlow > 0 {
		params.EMASlow = r.EMASlow
	}
	if r.MACDFast > 0 {
		params.MACDFast = r.MACDFast
	}
	if r.MACDSlow > 0 {
		params.MACDSlow = r.MACDSlow
	}
	if r.MACDSignal > 0 {
		params.MACDSignal = r.MACDSignal
	}
	if r.RSIPeriod > 0 {
		params.RSIPeriod = r.RSIPeriod
	}

	sar := indicator.DefaultSARParams()
	if r.SARStep > 0 {
		sar.Step = r.SARStep
	}
	if r.SARMax > 0 {
		sar.Max = r.SARMax
	}
	if r.SARInit > 0 {
		sar.Init = r.SARInit
	}

	cfg := strategy.Config{
		Symbol:     strings.ToUpper(r.Symbol),
		Interval:   interval,
		Params:     params,
		SAR:        sar,
		RawTrades:  r.RawTrades,
		TakeProfit: d.TakeProfit,
		StopLoss:   d.StopLoss,
		BuyPct:     d.BuyPct,
		SeedLimit:  d.SeedLimit,
	}
	if r.TakeProfit > 0 {
		cfg.TakeProfit = r.TakeProfit
	}
	if r.StopLoss > 0 {
		cfg.StopLoss = r.StopLoss
	}
	if r.BuyPct > 0 {
		cfg.BuyPct = r.BuyPct
	}
	return cfg, nil
}
