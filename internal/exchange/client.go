// Package exchange defines the boundary to an exchange: a REST client for
// orders, balances and historical candles, and a push feed for live market
// data. The core consumes these interfaces only; per-exchange adapters live
// in subpackages and normalize their wire formats into internal/model
// records, so nothing above this boundary ever branches on exchange
// identity.
package exchange

import (
	"context"

	"cryptobot/internal/model"
)

// Client is the REST surface a strategy needs. Calls are blocking; the engine
// invokes them directly from its event goroutine, accepting that a slow
// round-trip delays other symbols' ticks on the same connection.
type Client interface {
	// Exchange returns the venue name, e.g. "Binance".
	Exchange() string

	// Contract returns the normalized instrument metadata for a symbol.
	Contract(symbol string) (model.Contract, bool)

	// Candles fetches up to limit historical candles, oldest first. Used
	// once at strategy startup to seed the series.
	Candles(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error)

	// Price fetches a best bid/ask snapshot.
	Price(ctx context.Context, symbol string) (model.Price, error)

	// PlaceMarketOrder submits a market order and returns the exchange's
	// view of it, which may not be filled yet.
	PlaceMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty float64) (model.Order, error)

	// OrderStatus polls the current state of an order.
	OrderStatus(ctx context.Context, symbol, orderID string) (model.Order, error)

	// AvailableBalance returns the spendable amount of one asset.
	AvailableBalance(ctx context.Context, asset string) (float64, error)
}

// Channel names the feed streams a subscription can reference.
type Channel string

const (
	ChannelCandles Channel = "candles"
	ChannelTrades  Channel = "trades"
	ChannelTickers Channel = "tickers"
)

// Feed is the push side of the exchange connection. Subscribe/Unsubscribe
// are fire-and-forget control messages; delivery of market data happens on
// the Events channel.
type Feed interface {
	// Subscribe asks the feed to start delivering a channel. interval is
	// ignored for ChannelTrades and ChannelTickers.
	Subscribe(channel Channel, symbol string, interval model.Interval) error

	// Unsubscribe stops delivery of a channel.
	Unsubscribe(channel Channel, symbol string, interval model.Interval) error

	// Events returns the stream of feed events. The channel is closed when
	// Run returns.
	Events() <-chan Event

	// Run drives the connection, reconnecting with a fixed delay on drop,
	// until ctx is cancelled.
	Run(ctx context.Context) error
}

// EventType discriminates feed events.
type EventType int

const (
	EventCandle EventType = iota
	EventTrade
	EventBookTicker
	// EventConnected fires after every successful (re)connect. Live
	// subscriptions are not replayed automatically by the wire protocol;
	// the engine re-establishes them on this event.
	EventConnected
	EventDisconnected
)

// Event is one message from the feed, tagged with symbol and channel.
type Event struct {
	Type     EventType
	Symbol   string
	Interval model.Interval

	Candle model.Candle     // EventCandle
	Final  bool             // EventCandle: bucket closed on the exchange
	Trade  model.Trade      // EventTrade
	Book   model.BookTicker // EventBookTicker
}
