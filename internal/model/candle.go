package model

import (
	"encoding/json"
	"math"
)

// Candle represents one OHLCV bucket for a (symbol, interval) pair.
// OpenTime is the bucket start in Unix milliseconds. Prices are float64
// because crypto venues quote fractional prices with per-contract precision.
type Candle struct {
	OpenTime int64   `json:"open_time"` // ms, interval-aligned
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Gap creates a synthetic placeholder candle for a missed interval boundary.
// Prices are NaN and volume is zero so indicator windows keep their time
// alignment without inventing price information.
func Gap(openTime int64) Candle {
	nan := math.NaN()
	return Candle{
		OpenTime: openTime,
		Open:     nan,
		High:     nan,
		Low:      nan,
		Close:    nan,
		Volume:   0,
	}
}

// IsGap reports whether this candle is a synthetic placeholder.
func (c Candle) IsGap() bool {
	return math.IsNaN(c.Close)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
