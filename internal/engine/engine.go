// Package engine runs the event loop that owns every strategy instance.
// One goroutine consumes feed events and control commands, so series,
// indicators and the subscription registry are mutated from a single place
// and need no locking. Control surfaces (the gateway) submit closures over
// the command channel and wait for a reply.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cryptobot/internal/exchange"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/signal"
	redisstore "cryptobot/internal/store/redis"
	"cryptobot/internal/strategy"
	"cryptobot/internal/subs"
)

// ErrStopped is returned for control calls after the engine has shut down.
var ErrStopped = errors.New("engine stopped")

// ErrNotFound is returned for operations on an unknown strategy.
var ErrNotFound = errors.New("strategy not found")

const shutdownTimeout = 45 * time.Second

// Config wires the engine's collaborators. Publisher and Health are
// optional.
type Config struct {
	Client    exchange.Client
	Feed      exchange.Feed
	Executor  *strategy.Executor
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Publisher *redisstore.Publisher

	CommandBuffer int
}

// Engine is the single-threaded core of the bot.
type Engine struct {
	client exchange.Client
	feed   exchange.Feed
	exec   *strategy.Executor
	reg    *subs.Registry
	mtr    *metrics.Metrics
	health *metrics.HealthStatus
	pub    *redisstore.Publisher

	instances map[string]*strategy.Instance   // by id
	bySymbol  map[string][]*strategy.Instance // routing index
	tickers   map[string]model.BookTicker     // last seen, watchlist display

	cmds chan func(ctx context.Context)
	done chan struct{}

	// runCtx is the loop's context, captured so callbacks fired from the
	// event goroutine can use it. Set once in Run before anything else.
	runCtx context.Context
}

// New creates an engine. Run must be called before the control surface is
// used.
func New(cfg Config) *Engine {
	buf := cfg.CommandBuffer
	if buf <= 0 {
		buf = 16
	}
	return &Engine{
		client:    cfg.Client,
		feed:      cfg.Feed,
		exec:      cfg.Executor,
		reg:       subs.New(cfg.Feed),
		mtr:       cfg.Metrics,
		health:    cfg.Health,
		pub:       cfg.Publisher,
		instances: make(map[string]*strategy.Instance),
		bySymbol:  make(map[string][]*strategy.Instance),
		tickers:   make(map[string]model.BookTicker),
		cmds:      make(chan func(ctx context.Context), buf),
		done:      make(chan struct{}),
	}
}

// Run drives the event loop until ctx is cancelled or the feed's event
// channel closes. On exit every open position is liquidated.
func (e *Engine) Run(ctx context.Context) {
	e.runCtx = ctx
	defer close(e.done)
	defer e.shutdown()

	events := e.feed.Events()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[engine] context cancelled, shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				log.Printf("[engine] feed closed, shutting down")
				return
			}
			e.handleEvent(ctx, ev)
		case cmd := <-e.cmds:
			cmd(ctx)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev exchange.Event) {
	if e.health != nil {
		e.health.SetLastEventTime(time.Now())
	}

	switch ev.Type {
	case exchange.EventCandle:
		for _, inst := range e.bySymbol[ev.Symbol] {
			if inst.Interval() == ev.Interval {
				inst.OnCandle(ctx, ev.Candle, ev.Final)
			}
		}
		if ev.Final && e.pub != nil {
			start := time.Now()
			e.pub.PublishCandle(ctx, ev.Symbol, ev.Interval, ev.Candle)
			if e.mtr != nil {
				e.mtr.RedisWriteDur.Observe(time.Since(start).Seconds())
			}
		}

	case exchange.EventTrade:
		for _, inst := range e.bySymbol[ev.Symbol] {
			if inst.RawTrades() {
				inst.OnTrade(ctx, ev.Trade)
			}
		}

	case exchange.EventBookTicker:
		e.tickers[ev.Symbol] = ev.Book
		for _, inst := range e.bySymbol[ev.Symbol] {
			inst.OnBookTicker(ctx, ev.Book)
		}

	case exchange.EventConnected:
		log.Printf("[engine] feed connected, replaying subscriptions")
		if e.health != nil {
			e.health.SetWSConnected(true)
		}
		e.reg.Replay()

	case exchange.EventDisconnected:
		if e.health != nil {
			e.health.SetWSConnected(false)
		}
		if e.mtr != nil {
			e.mtr.WSReconnects.Inc()
		}
	}
}

// shutdown liquidates every open position with a fresh deadline; the loop's
// context is already cancelled by the time we get here.
func (e *Engine) shutdown() {
	if len(e.instances) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for id, inst := range e.instances {
		log.Printf("[engine] closing strategy %s", id)
		inst.Close(ctx)
	}
}

// do runs fn on the engine goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	wrapped := func(c context.Context) {
		defer close(done)
		fn(c)
	}
	select {
	case e.cmds <- wrapped:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-e.done:
		return ErrStopped
	}
}

// StartStrategy creates and registers a strategy instance. Seeds history
// over REST before the first event is routed to it. Several instances may
// run on the same (symbol, interval) pair; they share one feed
// subscription.
func (e *Engine) StartStrategy(ctx context.Context, cfg strategy.Config) (strategy.Snapshot, error) {
	var (
		snap strategy.Snapshot
		err  error
	)
	doErr := e.do(ctx, func(c context.Context) {
		inst, newErr := strategy.New(c, e.client, e.exec, e.mtr, cfg)
		if newErr != nil {
			err = newErr
			return
		}
		if e.pub != nil {
			pub := e.pub
			inst.OnEvaluation = func(id string, b signal.Breakdown) {
				pub.PublishSignal(e.runCtx, id, b)
			}
		}

		if subErr := e.reg.SubscribeCandles(cfg.Symbol, cfg.Interval); subErr != nil {
			err = subErr
			return
		}
		if cfg.RawTrades {
			e.reg.SubscribeTrades(cfg.Symbol)
		}
		e.instances[inst.ID()] = inst
		e.bySymbol[cfg.Symbol] = append(e.bySymbol[cfg.Symbol], inst)
		if e.mtr != nil {
			e.mtr.Strategies.Inc()
		}
		log.Printf("[engine] started strategy %s", inst.ID())
		snap = inst.Snapshot()
	})
	if doErr != nil {
		return strategy.Snapshot{}, doErr
	}
	return snap, err
}

// StopStrategy liquidates and removes a strategy. The shared feed
// subscription survives if another instance still uses it.
func (e *Engine) StopStrategy(ctx context.Context, id string) error {
	var err error
	doErr := e.do(ctx, func(c context.Context) {
		inst, ok := e.instances[id]
		if !ok {
			err = ErrNotFound
			return
		}
		inst.Close(c)
		delete(e.instances, id)
		e.bySymbol[inst.Symbol()] = removeInstance(e.bySymbol[inst.Symbol()], inst)
		if len(e.bySymbol[inst.Symbol()]) == 0 {
			delete(e.bySymbol, inst.Symbol())
		}
		e.reg.UnsubscribeCandles(inst.Symbol(), inst.Interval())
		if inst.RawTrades() {
			e.reg.UnsubscribeTrades(inst.Symbol())
		}
		if e.mtr != nil {
			e.mtr.Strategies.Dec()
		}
		log.Printf("[engine] stopped strategy %s", id)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Watch pins a symbol's ticker stream for the dashboard.
func (e *Engine) Watch(ctx context.Context, symbol string) error {
	var err error
	doErr := e.do(ctx, func(context.Context) {
		if _, ok := e.client.Contract(symbol); !ok {
			err = fmt.Errorf("unknown symbol %q", symbol)
			return
		}
		e.reg.Watch(symbol)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Unwatch removes a watchlist symbol. Fails while a strategy holds it.
func (e *Engine) Unwatch(ctx context.Context, symbol string) error {
	var err error
	doErr := e.do(ctx, func(context.Context) {
		err = e.reg.Unwatch(symbol)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// WatchEntry is one watchlist row with its last seen ticker.
type WatchEntry struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// Watchlist returns the watched symbols with their last tickers.
func (e *Engine) Watchlist(ctx context.Context) ([]WatchEntry, error) {
	var out []WatchEntry
	doErr := e.do(ctx, func(context.Context) {
		for _, sym := range e.reg.WatchedSymbols() {
			t := e.tickers[sym]
			out = append(out, WatchEntry{Symbol: sym, Bid: t.Bid, Ask: t.Ask})
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return out, nil
}

// Snapshots returns the state of every running strategy.
func (e *Engine) Snapshots(ctx context.Context) ([]strategy.Snapshot, error) {
	var out []strategy.Snapshot
	doErr := e.do(ctx, func(context.Context) {
		for _, inst := range e.instances {
			out = append(out, inst.Snapshot())
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return out, nil
}

// Snapshot returns the state of one strategy.
func (e *Engine) Snapshot(ctx context.Context, id string) (strategy.Snapshot, error) {
	var (
		snap strategy.Snapshot
		err  error
	)
	doErr := e.do(ctx, func(context.Context) {
		inst, ok := e.instances[id]
		if !ok {
			err = ErrNotFound
			return
		}
		snap = inst.Snapshot()
	})
	if doErr != nil {
		return strategy.Snapshot{}, doErr
	}
	return snap, err
}

// DrainLogs pops a strategy's buffered log entries, oldest first, and
// mirrors them to Redis when a publisher is configured.
func (e *Engine) DrainLogs(ctx context.Context, id string) ([]model.LogEntry, error) {
	var (
		entries []model.LogEntry
		err     error
	)
	doErr := e.do(ctx, func(c context.Context) {
		inst, ok := e.instances[id]
		if !ok {
			err = ErrNotFound
			return
		}
		entries = inst.DrainLogs()
		if e.pub != nil && len(entries) > 0 {
			e.pub.PublishLogs(c, id, entries)
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return entries, err
}

func removeInstance(list []*strategy.Instance, target *strategy.Instance) []*strategy.Instance {
	for i, inst := range list {
		if inst == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
