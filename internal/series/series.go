// Package series maintains the rolling OHLCV table for one (symbol, interval)
// pair. Ingestion keeps the invariant that consecutive rows are exactly one
// interval apart: when the feed drops messages, the hole is plugged with
// synthetic NaN-price placeholder candles so indicator windows never shift
// their time alignment.
//
// A Series is owned by exactly one strategy and is only ever touched from the
// engine's event goroutine — no locks needed.
package series

import (
	"fmt"

	"cryptobot/internal/model"
)

// Result tells the caller whether ingestion revised the in-progress candle or
// rolled over to a new bucket. Trend state that is only defined at candle
// boundaries (parabolic SAR) is recomputed on NewCandle only.
type Result int

const (
	SameCandle Result = iota
	NewCandle
)

// Series is an append-only candle table. It never shrinks: a strategy's
// lifetime is bounded by one trading session, so unbounded growth is fine.
type Series struct {
	symbol     string
	interval   model.Interval
	intervalMS int64
	candles    []model.Candle

	// Metrics hooks (optional, set externally)
	OnGapFilled func(n int)
	OnLateTick  func()
}

// New creates an empty series for the pair.
func New(symbol string, interval model.Interval) (*Series, error) {
	ms, err := interval.Millis()
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", symbol, err)
	}
	return &Series{
		symbol:     symbol,
		interval:   interval,
		intervalMS: ms,
		candles:    make([]model.Candle, 0, 512),
	}, nil
}

// Seed ingests a batch of historical candles, typically the REST kline
// response fetched at strategy startup. Gaps inside the batch are filled the
// same way live gaps are.
func (s *Series) Seed(candles []model.Candle) {
	for _, c := range candles {
		s.Ingest(c)
	}
}

// Ingest incorporates a whole-candle snapshot pushed by the feed.
//
// An equal open time revises the in-progress candle: high/low are widened and
// volume is taken from the snapshot, which is authoritative for the whole
// bucket. A later open time appends, filling any skipped interval boundaries
// with placeholders first. An earlier open time is a late message and is
// dropped.
func (s *Series) Ingest(c model.Candle) Result {
	if len(s.candles) == 0 {
		s.candles = append(s.candles, c)
		return NewCandle
	}

	last := &s.candles[len(s.candles)-1]
	switch {
	case c.OpenTime == last.OpenTime:
		if last.IsGap() {
			// A snapshot arrived for a bucket we had written off.
			*last = c
			return SameCandle
		}
		if c.High > last.High {
			last.High = c.High
		}
		if c.Low < last.Low {
			last.Low = c.Low
		}
		last.Close = c.Close
		last.Volume = c.Volume
		return SameCandle

	case c.OpenTime > last.OpenTime:
		s.fillTo(c.OpenTime)
		s.candles = append(s.candles, c)
		return NewCandle

	default:
		if s.OnLateTick != nil {
			s.OnLateTick()
		}
		return SameCandle
	}
}

// IngestTrade incorporates a single raw trade, for feeds that deliver trades
// instead of candle snapshots. Volume accumulates within the bucket.
func (s *Series) IngestTrade(t model.Trade) Result {
	bucket := t.Time - t.Time%s.intervalMS

	if len(s.candles) == 0 {
		s.candles = append(s.candles, candleFromTrade(bucket, t))
		return NewCandle
	}

	last := &s.candles[len(s.candles)-1]
	switch {
	case bucket == last.OpenTime:
		if last.IsGap() {
			*last = candleFromTrade(bucket, t)
			return SameCandle
		}
		if t.Price > last.High {
			last.High = t.Price
		}
		if t.Price < last.Low {
			last.Low = t.Price
		}
		last.Close = t.Price
		last.Volume += t.Qty
		return SameCandle

	case bucket > last.OpenTime:
		s.fillTo(bucket)
		s.candles = append(s.candles, candleFromTrade(bucket, t))
		return NewCandle

	default:
		if s.OnLateTick != nil {
			s.OnLateTick()
		}
		return SameCandle
	}
}

// fillTo appends placeholder candles for every interval boundary strictly
// between the last row and openTime.
func (s *Series) fillTo(openTime int64) {
	last := s.candles[len(s.candles)-1].OpenTime
	n := 0
	for ts := last + s.intervalMS; ts < openTime; ts += s.intervalMS {
		s.candles = append(s.candles, model.Gap(ts))
		n++
	}
	if n > 0 && s.OnGapFilled != nil {
		s.OnGapFilled(n)
	}
}

func candleFromTrade(bucket int64, t model.Trade) model.Candle {
	return model.Candle{
		OpenTime: bucket,
		Open:     t.Price,
		High:     t.Price,
		Low:      t.Price,
		Close:    t.Price,
		Volume:   t.Qty,
	}
}

// Symbol returns the pair this series tracks.
func (s *Series) Symbol() string { return s.symbol }

// Interval returns the series timeframe.
func (s *Series) Interval() model.Interval { return s.interval }

// Len returns the number of rows, placeholders included.
func (s *Series) Len() int { return len(s.candles) }

// Last returns the most recent row. ok is false for an empty series.
func (s *Series) Last() (model.Candle, bool) {
	if len(s.candles) == 0 {
		return model.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// At returns the row at index i counted from the end: At(0) is the latest
// row, At(1) the one before it.
func (s *Series) At(i int) (model.Candle, bool) {
	idx := len(s.candles) - 1 - i
	if idx < 0 {
		return model.Candle{}, false
	}
	return s.candles[idx], true
}

// Closes returns a copy of the close column from inception. Indicator
// evaluation always reads the whole column so the smoothing seed never
// changes between calls.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

// Highs returns a copy of the high column from inception.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.High
	}
	return out
}

// Lows returns a copy of the low column from inception.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Low
	}
	return out
}
