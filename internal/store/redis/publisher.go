// Package redis publishes candles, signal evaluations and strategy log
// lines to Redis Streams so a dashboard can tail them. The publisher is
// optional: when no address is configured the engine runs without it.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptobot/internal/model"
)

const (
	// Stream trimming: roughly a day of 1m candles plus buffer.
	candleStreamMaxLen = 1500
	logStreamMaxLen    = 2000
	signalStreamMaxLen = 1500
	defaultLatestTTL   = 30 * time.Minute
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes engine output to Redis Streams and PubSub channels.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishCandle performs pipelined writes for a closed candle:
// XADD to the history stream, SET of the latest snapshot, PUBLISH for
// live subscribers.
func (p *Publisher) PublishCandle(ctx context.Context, symbol string, interval model.Interval, c model.Candle) {
	jsonData := string(c.JSON())
	streamKey := fmt.Sprintf("candle:%s:%s", interval, symbol)
	latestKey := fmt.Sprintf("candle:%s:latest:%s", interval, symbol)
	pubsubCh := fmt.Sprintf("pub:candle:%s:%s", interval, symbol)

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: candleStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] candle pipeline error %s %s: %v", symbol, interval, err)
	}
}

// PublishSignal writes a signal evaluation for a strategy. payload must be
// JSON-marshalable (the evaluator's breakdown struct).
func (p *Publisher) PublishSignal(ctx context.Context, strategyID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[redis] signal marshal error: %v", err)
		return
	}
	jsonData := string(data)
	streamKey := "signal:" + strategyID
	pubsubCh := "pub:signal:" + strategyID

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] signal pipeline error %s: %v", strategyID, err)
	}
}

// PublishLogs appends drained strategy log entries to the per-strategy
// stream in one pipeline.
func (p *Publisher) PublishLogs(ctx context.Context, strategyID string, entries []model.LogEntry) {
	if len(entries) == 0 {
		return
	}
	streamKey := "log:" + strategyID

	pipe := p.client.Pipeline()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: logStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(data)},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] log pipeline error %s (%d entries): %v", strategyID, len(entries), err)
	}
}

// Close releases the client connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
