// Package strategy runs one trading strategy per (symbol, interval) pair:
// it maintains the candle series, re-scores the signal on every ingested
// tick, and manages the single position the strategy is allowed to hold,
// including take-profit / stop-loss checks against live book tickers.
//
// Instances are owned by the engine's event goroutine; only the snapshot
// and log surfaces are safe to touch from other goroutines.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"cryptobot/internal/exchange"
	"cryptobot/internal/indicator"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/ringbuf"
	"cryptobot/internal/series"
	"cryptobot/internal/signal"
)

const (
	defaultSeedLimit = 1000
	defaultLogBuffer = 256
)

// instanceSeq numbers instances so several strategies can run on the same
// (symbol, interval) pair with distinct ids.
var instanceSeq atomic.Int64

// Config describes one strategy instance.
type Config struct {
	Symbol   string
	Interval model.Interval

	Params     signal.Params
	SAR        indicator.SARParams
	TakeProfit float64 // fractional, e.g. 0.02 for 2%
	StopLoss   float64 // fractional, positive
	BuyPct     float64 // share of the quote balance spent per entry

	// RawTrades additionally feeds the series from the symbol's raw trade
	// stream, for sub-interval reaction between kline snapshots.
	RawTrades bool

	SeedLimit int // historical candles fetched at startup
	LogBuffer int // per-instance log ring capacity
}

// Instance is one running strategy.
type Instance struct {
	id       string
	cfg      Config
	contract model.Contract

	series *series.Series
	sar    *indicator.SAR
	exec   *Executor
	mtr    *metrics.Metrics
	logs   *ringbuf.Ring

	intervalMS  int64
	lastSAROpen int64

	// OnEvaluation, when set, receives every closed-candle breakdown.
	// Called from the engine goroutine.
	OnEvaluation func(id string, b signal.Breakdown)

	mu          sync.Mutex
	position    model.Position
	realizedPnL float64
	lastEval    signal.Breakdown
	lastBid     float64
	lastAsk     float64
}

// New creates an instance and seeds its series with historical candles so
// the first evaluation has a full indicator warmup behind it.
func New(ctx context.Context, client exchange.Client, exec *Executor, mtr *metrics.Metrics, cfg Config) (*Instance, error) {
	contract, ok := client.Contract(cfg.Symbol)
	if !ok {
		return nil, fmt.Errorf("unknown symbol %q", cfg.Symbol)
	}
	ms, err := cfg.Interval.Millis()
	if err != nil {
		return nil, err
	}

	ser, err := series.New(cfg.Symbol, cfg.Interval)
	if err != nil {
		return nil, err
	}
	if mtr != nil {
		ser.OnGapFilled = func(n int) { mtr.GapsFilled.Add(float64(n)) }
		ser.OnLateTick = func() { mtr.LateCandles.Inc() }
	}

	seedLimit := cfg.SeedLimit
	if seedLimit <= 0 {
		seedLimit = defaultSeedLimit
	}
	history, err := client.Candles(ctx, cfg.Symbol, cfg.Interval, seedLimit)
	if err != nil {
		return nil, fmt.Errorf("seed %s %s: %w", cfg.Symbol, cfg.Interval, err)
	}
	ser.Seed(history)

	logBuf := cfg.LogBuffer
	if logBuf <= 0 {
		logBuf = defaultLogBuffer
	}

	inst := &Instance{
		id:         fmt.Sprintf("%s-%s-%d", cfg.Symbol, cfg.Interval, instanceSeq.Add(1)),
		cfg:        cfg,
		contract:   contract,
		series:     ser,
		sar:        indicator.NewSAR(cfg.SAR),
		exec:       exec,
		mtr:        mtr,
		logs:       ringbuf.New(logBuf),
		intervalMS: ms,
	}
	inst.position.Status = model.PositionNone
	inst.logf(model.LogInfo, "started with %d seed candles", ser.Len())
	log.Printf("[strategy] %s started, %d seed candles", inst.id, ser.Len())
	return inst, nil
}

// ID returns the instance identifier, "SYMBOL-interval-seq".
func (in *Instance) ID() string { return in.id }

// Symbol returns the traded pair.
func (in *Instance) Symbol() string { return in.cfg.Symbol }

// Interval returns the candle interval.
func (in *Instance) Interval() model.Interval { return in.cfg.Interval }

// Contract returns the instrument metadata.
func (in *Instance) Contract() model.Contract { return in.contract }

// RawTrades reports whether the instance consumes the raw trade stream.
func (in *Instance) RawTrades() bool { return in.cfg.RawTrades }

// OnCandle ingests a candle snapshot from the feed and re-scores the
// signal. A final snapshot, or the opening of a later bucket, closes a
// candle and additionally advances the parabolic SAR.
func (in *Instance) OnCandle(ctx context.Context, c model.Candle, final bool) {
	r := in.series.Ingest(c)
	if in.mtr != nil {
		in.mtr.CandlesTotal.Inc()
	}
	if r == series.NewCandle {
		in.advanceSAR(c.OpenTime - in.intervalMS)
	}
	if final {
		in.advanceSAR(c.OpenTime)
	}
	in.evaluate(ctx)
}

// OnTrade folds a raw trade into the series and re-scores the signal; the
// first trade of a new bucket closes the previous candle.
func (in *Instance) OnTrade(ctx context.Context, t model.Trade) {
	r := in.series.IngestTrade(t)
	if in.mtr != nil {
		in.mtr.TradesTotal.Inc()
	}
	if r == series.NewCandle {
		bucket := t.Time - t.Time%in.intervalMS
		in.advanceSAR(bucket - in.intervalMS)
	}
	in.evaluate(ctx)
}

// OnBookTicker records the best bid/ask and runs the take-profit /
// stop-loss override against the open position.
func (in *Instance) OnBookTicker(ctx context.Context, b model.BookTicker) {
	in.mu.Lock()
	in.lastBid, in.lastAsk = b.Bid, b.Ask
	open := in.position.Status == model.PositionOpen
	entry := in.position.EntryPrice
	in.mu.Unlock()

	if in.mtr != nil {
		in.mtr.TickersTotal.Inc()
	}
	if !open || entry <= 0 || b.Ask <= 0 {
		return
	}

	unpnl := b.Ask/entry - 1
	switch {
	case unpnl >= in.cfg.TakeProfit:
		in.logf(model.LogInfo, "take profit hit: unrealized %+.4f >= %.4f", unpnl, in.cfg.TakeProfit)
		in.sell(ctx, "take_profit")
	case unpnl <= -in.cfg.StopLoss:
		in.logf(model.LogWarning, "stop loss hit: unrealized %+.4f <= -%.4f", unpnl, in.cfg.StopLoss)
		in.sell(ctx, "stop_loss")
	}
}

// Close liquidates any open position. Called when the strategy is stopped
// or the engine shuts down.
func (in *Instance) Close(ctx context.Context) {
	in.mu.Lock()
	open := in.position.Open()
	in.mu.Unlock()
	if !open {
		return
	}
	in.logf(model.LogWarning, "stopping with open position, liquidating")
	in.sell(ctx, "liquidation")
}

// advanceSAR steps the parabolic SAR for one closed bucket. The SAR is the
// only stateful indicator, so it moves exactly once per candle boundary no
// matter how many snapshots close the same bucket.
func (in *Instance) advanceSAR(bucketOpen int64) {
	if bucketOpen <= in.lastSAROpen {
		return
	}
	in.lastSAROpen = bucketOpen
	in.sar.Update(in.series.Highs(), in.series.Lows(), in.series.Closes())
}

// evaluate scores the series, including the in-progress candle, and acts on
// the decision. Runs on every ingested tick.
func (in *Instance) evaluate(ctx context.Context) {
	start := time.Now()
	b := signal.Evaluate(in.series.Closes(), in.cfg.Params, in.sar.Uptrend())
	if in.mtr != nil {
		in.mtr.EvalDur.Observe(time.Since(start).Seconds())
		in.mtr.Decisions.WithLabelValues(in.cfg.Symbol, string(b.Decision)).Inc()
	}

	in.mu.Lock()
	changed := b.Decision != in.lastEval.Decision
	in.lastEval = b
	status := in.position.Status
	in.mu.Unlock()

	if changed {
		in.logf(model.LogDebug, "confidence %d (ema %d, macd %d, rsi %d, sar %d): %s",
			b.Confidence, b.EMAScore, b.MACDScore, b.RSIScore, b.SARScore, b.Decision)
	}
	if in.OnEvaluation != nil {
		in.OnEvaluation(in.id, b)
	}

	switch b.Decision {
	case signal.Buy:
		if status == model.PositionNone {
			in.buy(ctx)
		}
	case signal.Sell:
		if status == model.PositionOpen {
			in.logf(model.LogInfo, "sell signal with open position, exiting")
			in.sell(ctx, "signal")
		}
	}
}

func (in *Instance) buy(ctx context.Context) {
	order, err := in.exec.MarketBuy(ctx, in.id, in.contract, in.cfg.BuyPct)
	if err != nil {
		if errors.Is(err, ErrOrderTooSmall) {
			in.logf(model.LogWarning, "buy skipped: %v", err)
		} else {
			in.logf(model.LogError, "buy failed: %v", err)
		}
		return
	}

	in.mu.Lock()
	in.position = model.Position{
		OrderID:    order.ID,
		EntryPrice: order.Price,
		Quantity:   order.Quantity,
		Status:     model.PositionOpen,
	}
	in.mu.Unlock()
	if in.mtr != nil {
		in.mtr.OpenPositions.Inc()
	}
	in.logf(model.LogInfo, "bought %.8f @ %.8f (order %s)", order.Quantity, order.Price, order.ID)
}

func (in *Instance) sell(ctx context.Context, reason string) {
	in.mu.Lock()
	if in.position.Status != model.PositionOpen {
		in.mu.Unlock()
		return
	}
	in.position.Status = model.PositionPendingClose
	qty := in.position.Quantity
	entry := in.position.EntryPrice
	in.mu.Unlock()

	order, err := in.exec.MarketSell(ctx, in.id, in.contract, qty, entry, reason)
	if err != nil {
		// Position is still held; revert so the next trigger retries.
		in.mu.Lock()
		in.position.Status = model.PositionOpen
		in.mu.Unlock()
		in.logf(model.LogError, "sell (%s) failed: %v", reason, err)
		return
	}

	pnl := order.Quantity * (order.Price - entry)
	in.mu.Lock()
	in.position = model.Position{Status: model.PositionNone}
	in.realizedPnL += pnl
	in.mu.Unlock()
	if in.mtr != nil {
		in.mtr.OpenPositions.Dec()
	}
	in.logf(model.LogInfo, "sold %.8f @ %.8f (%s), pnl %+.4f", order.Quantity, order.Price, reason, pnl)
}

// Snapshot is the read-only dashboard view of an instance.
type Snapshot struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Interval    model.Interval   `json:"interval"`
	Position    model.Position   `json:"position"`
	RealizedPnL float64          `json:"realized_pnl"`
	LastEval    signal.Breakdown `json:"last_eval"`
	Bid         float64          `json:"bid"`
	Ask         float64          `json:"ask"`
	TakeProfit  float64          `json:"take_profit"`
	StopLoss    float64          `json:"stop_loss"`
	Candles     int              `json:"candles"`
}

// Snapshot returns the current state. Safe to call from any goroutine,
// though Candles reflects the engine goroutine's last write.
func (in *Instance) Snapshot() Snapshot {
	in.mu.Lock()
	defer in.mu.Unlock()
	return Snapshot{
		ID:          in.id,
		Symbol:      in.cfg.Symbol,
		Interval:    in.cfg.Interval,
		Position:    in.position,
		RealizedPnL: in.realizedPnL,
		LastEval:    in.lastEval,
		Bid:         in.lastBid,
		Ask:         in.lastAsk,
		TakeProfit:  in.cfg.TakeProfit,
		StopLoss:    in.cfg.StopLoss,
		Candles:     in.series.Len(),
	}
}

// DrainLogs pops all buffered log entries, oldest first. Single consumer.
func (in *Instance) DrainLogs() []model.LogEntry {
	return in.logs.Drain()
}

func (in *Instance) logf(sev model.LogSeverity, format string, args ...any) {
	ok := in.logs.Push(model.LogEntry{
		Message:  fmt.Sprintf(format, args...),
		Severity: sev,
		At:       time.Now(),
	})
	if !ok && in.mtr != nil {
		in.mtr.LogBufOverflow.Inc()
	}
}
