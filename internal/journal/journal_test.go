package journal

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"cryptobot/internal/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndQueryFills(t *testing.T) {
	j := openTestJournal(t)

	buy := Fill{
		OrderID:  "1001",
		Strategy: "BTCUSDT-1m",
		Symbol:   "BTCUSDT",
		Exchange: "binance",
		Side:     model.SideBuy,
		Qty:      0.005,
		Price:    64000.5,
		Reason:   "signal",
		FilledAt: time.Now(),
	}
	sell := Fill{
		OrderID:  "1002",
		Strategy: "BTCUSDT-1m",
		Symbol:   "BTCUSDT",
		Exchange: "binance",
		Side:     model.SideSell,
		Qty:      0.005,
		Price:    65000.0,
		PnL:      4.9975,
		Reason:   "take_profit",
		FilledAt: time.Now(),
	}

	if err := j.RecordFill(buy); err != nil {
		t.Fatalf("record buy: %v", err)
	}
	if err := j.RecordFill(sell); err != nil {
		t.Fatalf("record sell: %v", err)
	}

	trades, err := j.Trades(10)
	if err != nil {
		t.Fatalf("query trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	// Newest first.
	if trades[0].OrderID != "1002" || trades[0].Side != "SELL" {
		t.Fatalf("unexpected first row: %+v", trades[0])
	}
	if trades[0].PnL != 4.9975 {
		t.Fatalf("expected pnl 4.9975, got %v", trades[0].PnL)
	}
	if trades[1].OrderID != "1001" || trades[1].Side != "BUY" {
		t.Fatalf("unexpected second row: %+v", trades[1])
	}
}

func TestTradesLimit(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 5; i++ {
		fill := Fill{
			OrderID:  strconv.Itoa(2000 + i),
			Strategy: "ETHUSDT-5m",
			Symbol:   "ETHUSDT",
			Exchange: "binance",
			Side:     model.SideBuy,
			Qty:      0.1,
			Price:    3000,
			Reason:   "signal",
			FilledAt: time.Now(),
		}
		if err := j.RecordFill(fill); err != nil {
			t.Fatalf("record fill %d: %v", i, err)
		}
	}

	trades, err := j.Trades(3)
	if err != nil {
		t.Fatalf("query trades: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(trades))
	}
	if trades[0].OrderID != "2004" {
		t.Fatalf("expected newest order 2004 first, got %s", trades[0].OrderID)
	}
}
