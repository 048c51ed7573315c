package model

import "time"

// Trade is a single raw trade from the feed's trade channel.
type Trade struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Qty    float64 `json:"qty"`
	Time   int64   `json:"time"` // ms
}

// BookTicker is a best bid/ask update from the feed's ticker channel.
type BookTicker struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// LogSeverity classifies a strategy log entry for the dashboard.
type LogSeverity string

const (
	LogDebug   LogSeverity = "debug"
	LogInfo    LogSeverity = "info"
	LogWarning LogSeverity = "warning"
	LogError   LogSeverity = "error"
)

// LogEntry is one append-only line of a strategy's log stream. The dashboard
// drains entries; they are never mutated after append.
type LogEntry struct {
	Message  string      `json:"message"`
	Severity LogSeverity `json:"severity"`
	At       time.Time   `json:"at"`
}
