package model

import "fmt"

// Interval is a candle timeframe as the exchange names it, e.g. "1m", "4h".
type Interval string

// Common intervals supported by the feed.
const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
)

var intervalMillis = map[Interval]int64{
	Interval1m:  60_000,
	Interval3m:  3 * 60_000,
	Interval5m:  5 * 60_000,
	Interval15m: 15 * 60_000,
	Interval30m: 30 * 60_000,
	Interval1h:  3_600_000,
	Interval2h:  2 * 3_600_000,
	Interval4h:  4 * 3_600_000,
	Interval6h:  6 * 3_600_000,
	Interval8h:  8 * 3_600_000,
	Interval12h: 12 * 3_600_000,
	Interval1d:  24 * 3_600_000,
}

// Millis returns the interval length in milliseconds, or an error for an
// interval the feed does not support.
func (i Interval) Millis() (int64, error) {
	ms, ok := intervalMillis[i]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", string(i))
	}
	return ms, nil
}

// Valid reports whether the interval is one the feed supports.
func (i Interval) Valid() bool {
	_, ok := intervalMillis[i]
	return ok
}
