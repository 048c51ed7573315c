package series

import (
	"math"
	"testing"

	"cryptobot/internal/model"
)

const minuteMS = int64(60_000)

func mkCandle(openTime int64, px, vol float64) model.Candle {
	return model.Candle{
		OpenTime: openTime,
		Open:     px,
		High:     px,
		Low:      px,
		Close:    px,
		Volume:   vol,
	}
}

func TestIngest_SameCandleRevision(t *testing.T) {
	s, err := New("BTCUSDT", model.Interval1m)
	if err != nil {
		t.Fatal(err)
	}

	if res := s.Ingest(mkCandle(0, 100, 5)); res != NewCandle {
		t.Fatalf("first ingest: expected NewCandle, got %v", res)
	}

	// Revision of the same bucket: higher high, lower low, new close,
	// volume replaced by the snapshot value.
	rev := model.Candle{OpenTime: 0, Open: 100, High: 110, Low: 95, Close: 105, Volume: 12}
	if res := s.Ingest(rev); res != SameCandle {
		t.Fatalf("revision: expected SameCandle, got %v", res)
	}
	last, _ := s.Last()
	if last.High != 110 || last.Low != 95 || last.Close != 105 {
		t.Errorf("revision not applied: %+v", last)
	}
	if last.Volume != 12 {
		t.Errorf("expected volume replaced with 12, got %v", last.Volume)
	}
	if s.Len() != 1 {
		t.Errorf("revision must not append, len=%d", s.Len())
	}
}

func TestIngest_GapFilling(t *testing.T) {
	s, _ := New("BTCUSDT", model.Interval1m)
	s.Ingest(mkCandle(0, 100, 1))

	// Jump 4 intervals ahead: 3 placeholders expected.
	filled := 0
	s.OnGapFilled = func(n int) { filled += n }
	if res := s.Ingest(mkCandle(4*minuteMS, 104, 1)); res != NewCandle {
		t.Fatalf("expected NewCandle, got %v", res)
	}
	if filled != 3 {
		t.Errorf("expected 3 placeholders, got %d", filled)
	}
	if s.Len() != 5 {
		t.Fatalf("expected 5 rows, got %d", s.Len())
	}

	// Contiguity invariant: open times form an arithmetic sequence.
	for i := 1; i < s.Len(); i++ {
		a, _ := s.At(s.Len() - 1 - (i - 1))
		b, _ := s.At(s.Len() - 1 - i)
		if b.OpenTime-a.OpenTime != minuteMS {
			t.Fatalf("rows %d..%d differ by %d ms", i-1, i, b.OpenTime-a.OpenTime)
		}
	}

	// Placeholders carry NaN prices and zero volume.
	mid, _ := s.At(2)
	if !mid.IsGap() || !math.IsNaN(mid.Close) || mid.Volume != 0 {
		t.Errorf("expected NaN placeholder, got %+v", mid)
	}
}

func TestIngest_LateCandleDropped(t *testing.T) {
	s, _ := New("BTCUSDT", model.Interval1m)
	s.Ingest(mkCandle(0, 100, 1))
	s.Ingest(mkCandle(minuteMS, 101, 1))

	late := 0
	s.OnLateTick = func() { late++ }
	if res := s.Ingest(mkCandle(0, 999, 1)); res != SameCandle {
		t.Fatalf("late candle: expected SameCandle, got %v", res)
	}
	if late != 1 {
		t.Errorf("expected late hook to fire once, fired %d", late)
	}
	first, _ := s.At(1)
	if first.Close != 100 {
		t.Errorf("late candle must not mutate history, close=%v", first.Close)
	}
}

func TestIngestTrade_Accumulates(t *testing.T) {
	s, _ := New("ETHUSDT", model.Interval1m)

	if res := s.IngestTrade(model.Trade{Symbol: "ETHUSDT", Price: 2000, Qty: 1, Time: 30_000}); res != NewCandle {
		t.Fatalf("first trade: expected NewCandle, got %v", res)
	}
	last, _ := s.Last()
	if last.OpenTime != 0 {
		t.Errorf("trade must bucket to interval boundary, got %d", last.OpenTime)
	}

	s.IngestTrade(model.Trade{Price: 2050, Qty: 2, Time: 45_000})
	s.IngestTrade(model.Trade{Price: 1990, Qty: 0.5, Time: 59_000})

	last, _ = s.Last()
	if last.High != 2050 || last.Low != 1990 || last.Close != 1990 {
		t.Errorf("OHLC wrong: %+v", last)
	}
	if last.Volume != 3.5 {
		t.Errorf("trade volume accumulates: expected 3.5, got %v", last.Volume)
	}

	// Next bucket rolls over.
	if res := s.IngestTrade(model.Trade{Price: 2010, Qty: 1, Time: 61_000}); res != NewCandle {
		t.Fatalf("expected NewCandle on bucket rollover, got %v", res)
	}
}

func TestIngestTrade_FillsGapThenRealCandleArrives(t *testing.T) {
	s, _ := New("ETHUSDT", model.Interval1m)
	s.IngestTrade(model.Trade{Price: 2000, Qty: 1, Time: 0})
	// Trade skips two buckets.
	s.IngestTrade(model.Trade{Price: 2100, Qty: 1, Time: 3*minuteMS + 1})
	if s.Len() != 4 {
		t.Fatalf("expected 4 rows, got %d", s.Len())
	}

	// A snapshot for a previously written-off bucket replaces the placeholder.
	gapRow, _ := s.At(1)
	if !gapRow.IsGap() {
		t.Fatalf("expected placeholder one row back, got %+v", gapRow)
	}
}

func TestSeed_ContiguousAfterGappyHistory(t *testing.T) {
	s, _ := New("BTCUSDT", model.Interval1m)
	s.Seed([]model.Candle{
		mkCandle(0, 100, 1),
		mkCandle(minuteMS, 101, 1),
		mkCandle(5*minuteMS, 105, 1), // REST response with a hole
	})
	if s.Len() != 6 {
		t.Fatalf("expected 6 rows after seeding, got %d", s.Len())
	}
	closes := s.Closes()
	if closes[0] != 100 || closes[5] != 105 {
		t.Errorf("seed order wrong: %v", closes)
	}
}
