package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptobot/internal/exchange"
	"cryptobot/internal/model"
)

const (
	reconnectDelay = 3 * time.Second
	pingInterval   = 3 * time.Minute
	readTimeout    = 5 * time.Minute
	eventBuffer    = 1024
)

// Feed is the Binance futures market stream. It dials WSURL, parses kline /
// aggTrade / bookTicker messages into normalized events, and reconnects with
// a fixed delay when the connection drops. The wire protocol does not replay
// subscriptions across reconnects, so the feed emits EventConnected after
// every dial and leaves re-subscription to the consumer.
type Feed struct {
	cfg    Config
	events chan exchange.Event

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int

	// OnReconnect is an optional metrics hook fired per reconnect attempt.
	OnReconnect func()
}

// NewFeed creates a feed for the configured stream endpoint.
func NewFeed(cfg Config) *Feed {
	return &Feed{
		cfg:    cfg,
		events: make(chan exchange.Event, eventBuffer),
		nextID: 1,
	}
}

func (f *Feed) Events() <-chan exchange.Event { return f.events }

// Subscribe sends a SUBSCRIBE control message. Returns an error while the
// connection is down; the consumer replays on the next EventConnected.
func (f *Feed) Subscribe(channel exchange.Channel, symbol string, interval model.Interval) error {
	return f.control("SUBSCRIBE", channel, symbol, interval)
}

// Unsubscribe sends an UNSUBSCRIBE control message.
func (f *Feed) Unsubscribe(channel exchange.Channel, symbol string, interval model.Interval) error {
	return f.control("UNSUBSCRIBE", channel, symbol, interval)
}

func (f *Feed) control(method string, channel exchange.Channel, symbol string, interval model.Interval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("binance feed: not connected")
	}
	msg := wsControl{Method: method, Params: []string{streamName(channel, symbol, interval)}, ID: f.nextID}
	f.nextID++
	if err := f.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("binance feed: %s %v: %w", method, msg.Params, err)
	}
	return nil
}

// streamName builds the wire stream identifier for a channel.
func streamName(channel exchange.Channel, symbol string, interval model.Interval) string {
	s := strings.ToLower(symbol)
	switch channel {
	case exchange.ChannelTickers:
		return s + "@bookTicker"
	case exchange.ChannelTrades:
		return s + "@aggTrade"
	default:
		return s + "@kline_" + string(interval)
	}
}

// Run drives the connection until ctx is cancelled, closing Events on exit.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.events)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.WSURL, nil)
		if err != nil {
			log.Printf("[feed] dial %s failed: %v, retrying in %s", f.cfg.WSURL, err, reconnectDelay)
			if f.OnReconnect != nil {
				f.OnReconnect()
			}
			if !sleepCtx(ctx, reconnectDelay) {
				return nil
			}
			continue
		}

		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		log.Printf("[feed] connected to %s", f.cfg.WSURL)
		f.emit(ctx, exchange.Event{Type: exchange.EventConnected})

		f.readLoop(ctx, conn)

		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		conn.Close()
		f.emit(ctx, exchange.Event{Type: exchange.EventDisconnected})

		if err := ctx.Err(); err != nil {
			return nil
		}
		log.Printf("[feed] connection lost, reconnecting in %s", reconnectDelay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}
		if !sleepCtx(ctx, reconnectDelay) {
			return nil
		}
	}
}

// readLoop pumps messages until the connection breaks or ctx is cancelled.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				f.mu.Lock()
				if f.conn == conn {
					conn.WriteMessage(websocket.PingMessage, nil)
				}
				f.mu.Unlock()
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[feed] read error: %v", err)
			}
			return
		}
		f.handleMessage(ctx, raw)
	}
}

// handleMessage parses one wire message. Control acks and unknown events are
// ignored; a malformed message is logged and dropped, never fatal.
func (f *Feed) handleMessage(ctx context.Context, raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[feed] malformed message dropped: %v", err)
		return
	}

	switch env.Event {
	case "bookTicker":
		f.emit(ctx, exchange.Event{
			Type:   exchange.EventBookTicker,
			Symbol: env.Symbol,
			Book: model.BookTicker{
				Symbol: env.Symbol,
				Bid:    parseFloat(env.Bid),
				Ask:    parseFloat(env.Ask),
			},
		})

	case "aggTrade":
		f.emit(ctx, exchange.Event{
			Type:   exchange.EventTrade,
			Symbol: env.Symbol,
			Trade: model.Trade{
				Symbol: env.Symbol,
				Price:  parseFloat(env.Price),
				Qty:    parseFloat(env.Qty),
				Time:   env.TradeTime,
			},
		})

	case "kline":
		if env.Kline == nil {
			return
		}
		k := env.Kline
		f.emit(ctx, exchange.Event{
			Type:     exchange.EventCandle,
			Symbol:   env.Symbol,
			Interval: model.Interval(k.Interval),
			Final:    k.Closed,
			Candle: model.Candle{
				OpenTime: k.StartTime,
				Open:     parseFloat(k.Open),
				High:     parseFloat(k.High),
				Low:      parseFloat(k.Low),
				Close:    parseFloat(k.Close),
				Volume:   parseFloat(k.Volume),
			},
		})
	}
}

// emit delivers an event, dropping it if the consumer is saturated and the
// context ends first.
func (f *Feed) emit(ctx context.Context, ev exchange.Event) {
	select {
	case f.events <- ev:
	case <-ctx.Done():
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
