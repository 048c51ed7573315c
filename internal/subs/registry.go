// Package subs reference-counts live feed subscriptions. One candle-channel
// entry exists per (symbol, interval) pair actually on the wire, shared by
// every strategy watching that pair; a trade-channel entry is shared by the
// strategies ingesting raw trades for a symbol; a ticker-channel entry is
// kept alive while either a watchlist row or any running strategy references
// the symbol.
//
// The registry is owned by the engine's event goroutine; every mutation is
// serialized there, so no locks are needed.
package subs

import (
	"errors"
	"log"
	"sort"

	"cryptobot/internal/exchange"
	"cryptobot/internal/model"
)

// ErrHeldByStrategy is returned when a watchlist row cannot be removed
// because a running strategy still depends on the symbol's ticker stream.
var ErrHeldByStrategy = errors.New("symbol is held by a running strategy")

type candleKey struct {
	Symbol   string
	Interval model.Interval
}

type candleEntry struct {
	refs int
}

type tickerEntry struct {
	watched      bool
	strategyRefs int
}

func (t *tickerEntry) live() bool { return t.watched || t.strategyRefs > 0 }

// Registry tracks which streams are live on the shared feed connection.
type Registry struct {
	feed    exchange.Feed
	candles map[candleKey]*candleEntry
	trades  map[string]int // strategy refs per symbol
	tickers map[string]*tickerEntry
}

// New creates an empty registry over the feed.
func New(feed exchange.Feed) *Registry {
	return &Registry{
		feed:    feed,
		candles: make(map[candleKey]*candleEntry),
		trades:  make(map[string]int),
		tickers: make(map[string]*tickerEntry),
	}
}

// SubscribeCandles adds one strategy reference to the pair's candle stream,
// sending the wire subscribe only for the first subscriber. The symbol's
// ticker stream is referenced alongside, since a strategy needs bid/ask for
// its TP/SL checks.
func (r *Registry) SubscribeCandles(symbol string, interval model.Interval) error {
	r.refTicker(symbol)

	key := candleKey{symbol, interval}
	if e, ok := r.candles[key]; ok {
		e.refs++
		log.Printf("[subs] %s %s already live, refs=%d", symbol, interval, e.refs)
		return nil
	}
	if err := r.feed.Subscribe(exchange.ChannelCandles, symbol, interval); err != nil {
		// Remember the entry anyway: the replay on reconnect will
		// re-send the wire message.
		log.Printf("[subs] subscribe %s %s failed: %v (will replay on reconnect)", symbol, interval, err)
	}
	r.candles[key] = &candleEntry{refs: 1}
	return nil
}

// UnsubscribeCandles drops one strategy reference; at zero the wire
// unsubscribe is sent and the entry removed. The paired ticker reference is
// released as well.
func (r *Registry) UnsubscribeCandles(symbol string, interval model.Interval) {
	key := candleKey{symbol, interval}
	e, ok := r.candles[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs > 0 {
		r.unrefTicker(symbol)
		return
	}
	delete(r.candles, key)
	if err := r.feed.Unsubscribe(exchange.ChannelCandles, symbol, interval); err != nil {
		log.Printf("[subs] unsubscribe %s %s failed: %v", symbol, interval, err)
	}
	r.unrefTicker(symbol)
}

// SubscribeTrades adds one strategy reference to the symbol's raw trade
// stream, sending the wire subscribe only for the first subscriber.
func (r *Registry) SubscribeTrades(symbol string) {
	r.trades[symbol]++
	if r.trades[symbol] > 1 {
		log.Printf("[subs] trades %s already live, refs=%d", symbol, r.trades[symbol])
		return
	}
	if err := r.feed.Subscribe(exchange.ChannelTrades, symbol, ""); err != nil {
		log.Printf("[subs] subscribe trades %s failed: %v (will replay on reconnect)", symbol, err)
	}
}

// UnsubscribeTrades drops one strategy reference; at zero the wire
// unsubscribe is sent and the entry removed.
func (r *Registry) UnsubscribeTrades(symbol string) {
	refs, ok := r.trades[symbol]
	if !ok {
		return
	}
	if refs > 1 {
		r.trades[symbol] = refs - 1
		return
	}
	delete(r.trades, symbol)
	if err := r.feed.Unsubscribe(exchange.ChannelTrades, symbol, ""); err != nil {
		log.Printf("[subs] unsubscribe trades %s failed: %v", symbol, err)
	}
}

// Watch pins the symbol's ticker stream for the dashboard watchlist.
func (r *Registry) Watch(symbol string) {
	e := r.tickers[symbol]
	if e == nil {
		e = &tickerEntry{}
		r.tickers[symbol] = e
		r.subscribeTicker(symbol)
	}
	e.watched = true
}

// Unwatch removes the watchlist pin. It fails with ErrHeldByStrategy while
// any running strategy still references the symbol — an expected operating
// condition surfaced to the user, not a bug.
func (r *Registry) Unwatch(symbol string) error {
	e := r.tickers[symbol]
	if e == nil || !e.watched {
		return nil
	}
	if e.strategyRefs > 0 {
		return ErrHeldByStrategy
	}
	e.watched = false
	r.dropTickerIfDead(symbol, e)
	return nil
}

// Watched reports whether the symbol is pinned by the watchlist.
func (r *Registry) Watched(symbol string) bool {
	e := r.tickers[symbol]
	return e != nil && e.watched
}

// WatchedSymbols returns the watchlist, sorted.
func (r *Registry) WatchedSymbols() []string {
	out := make([]string, 0, len(r.tickers))
	for sym, e := range r.tickers {
		if e.watched {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Replay re-sends subscribe messages for every live entry. Called after a
// reconnect: the wire protocol starts each connection with no
// subscriptions.
func (r *Registry) Replay() {
	for sym := range r.tickers {
		r.subscribeTicker(sym)
	}
	for key := range r.candles {
		if err := r.feed.Subscribe(exchange.ChannelCandles, key.Symbol, key.Interval); err != nil {
			log.Printf("[subs] replay %s %s failed: %v", key.Symbol, key.Interval, err)
		}
	}
	for sym := range r.trades {
		if err := r.feed.Subscribe(exchange.ChannelTrades, sym, ""); err != nil {
			log.Printf("[subs] replay trades %s failed: %v", sym, err)
		}
	}
	log.Printf("[subs] replayed %d ticker, %d candle and %d trade subscriptions",
		len(r.tickers), len(r.candles), len(r.trades))
}

func (r *Registry) refTicker(symbol string) {
	e := r.tickers[symbol]
	if e == nil {
		e = &tickerEntry{}
		r.tickers[symbol] = e
		r.subscribeTicker(symbol)
	}
	e.strategyRefs++
}

func (r *Registry) unrefTicker(symbol string) {
	e := r.tickers[symbol]
	if e == nil {
		return
	}
	e.strategyRefs--
	r.dropTickerIfDead(symbol, e)
}

func (r *Registry) dropTickerIfDead(symbol string, e *tickerEntry) {
	if e.live() {
		return
	}
	delete(r.tickers, symbol)
	if err := r.feed.Unsubscribe(exchange.ChannelTickers, symbol, ""); err != nil {
		log.Printf("[subs] unsubscribe tickers %s failed: %v", symbol, err)
	}
}

func (r *Registry) subscribeTicker(symbol string) {
	if err := r.feed.Subscribe(exchange.ChannelTickers, symbol, ""); err != nil {
		log.Printf("[subs] subscribe tickers %s failed: %v (will replay on reconnect)", symbol, err)
	}
}
