package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cryptobot/internal/indicator"
	"cryptobot/internal/model"
	"cryptobot/internal/signal"
)

type fakeClient struct {
	contract model.Contract
	balance  float64
	price    model.Price
	history  []model.Candle

	placed      []model.Order
	fillPrice   float64
	fillAfter   int // polls before reaching finalStatus
	finalStatus model.OrderStatus
	polls       int
	placeErr    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		contract: model.Contract{
			Exchange:          "binance",
			Symbol:            "BTCUSDT",
			BaseAsset:         "BTC",
			QuoteAsset:        "USDT",
			PricePrecision:    2,
			QuantityPrecision: 3,
			MinQuantity:       0.001,
		},
		balance:     1000,
		price:       model.Price{Symbol: "BTCUSDT", Bid: 99.9, Ask: 100},
		fillPrice:   100,
		finalStatus: model.OrderFilled,
	}
}

func (f *fakeClient) Exchange() string { return "binance" }

func (f *fakeClient) Contract(symbol string) (model.Contract, bool) {
	if symbol != f.contract.Symbol {
		return model.Contract{}, false
	}
	return f.contract, true
}

func (f *fakeClient) Candles(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error) {
	return f.history, nil
}

func (f *fakeClient) Price(ctx context.Context, symbol string) (model.Price, error) {
	return f.price, nil
}

func (f *fakeClient) PlaceMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty float64) (model.Order, error) {
	if f.placeErr != nil {
		return model.Order{}, f.placeErr
	}
	o := model.Order{
		ID:       fmt.Sprintf("ord-%d", len(f.placed)+1),
		Symbol:   symbol,
		Side:     side,
		Status:   model.OrderNew,
		Quantity: qty,
		Time:     time.Now().UnixMilli(),
	}
	f.placed = append(f.placed, o)
	f.polls = 0
	return o, nil
}

func (f *fakeClient) OrderStatus(ctx context.Context, symbol, orderID string) (model.Order, error) {
	last := f.placed[len(f.placed)-1]
	f.polls++
	if f.polls <= f.fillAfter {
		return last, nil
	}
	last.Status = f.finalStatus
	if f.finalStatus == model.OrderFilled {
		last.Price = f.fillPrice
	}
	return last, nil
}

func (f *fakeClient) AvailableBalance(ctx context.Context, asset string) (float64, error) {
	return f.balance, nil
}

func fastExecutor(client *fakeClient) *Executor {
	e := NewExecutor(client, nil, nil)
	e.pollInterval = time.Millisecond
	e.pollTimeout = 200 * time.Millisecond
	return e
}

// rising 1m candles ending at openTime 0, close stepping up by 1
func risingHistory(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		c := 100 + float64(i)
		out[i] = model.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     c - 1,
			High:     c + 0.5,
			Low:      c - 1.5,
			Close:    c,
			Volume:   10,
		}
	}
	return out
}

func TestMarketBuySizing(t *testing.T) {
	client := newFakeClient()
	exec := fastExecutor(client)

	order, err := exec.MarketBuy(context.Background(), "BTCUSDT-1m", client.contract, 0.5)
	if err != nil {
		t.Fatalf("MarketBuy: %v", err)
	}

	// 1000 * 0.5 / 100 * 0.95 = 4.75, already at 3 decimals
	if order.Quantity != 4.75 {
		t.Fatalf("expected qty 4.75, got %v", order.Quantity)
	}
	if order.Status != model.OrderFilled {
		t.Fatalf("expected filled order, got %s", order.Status)
	}
	if len(client.placed) != 1 || client.placed[0].Side != model.SideBuy {
		t.Fatalf("unexpected placed orders: %+v", client.placed)
	}
}

func TestMarketBuyFloorsQuantity(t *testing.T) {
	client := newFakeClient()
	client.balance = 33.333
	exec := fastExecutor(client)

	// 33.333 * 1.0 / 100 * 0.95 = 0.31666... -> floored to 0.316
	order, err := exec.MarketBuy(context.Background(), "BTCUSDT-1m", client.contract, 1.0)
	if err != nil {
		t.Fatalf("MarketBuy: %v", err)
	}
	if order.Quantity != 0.316 {
		t.Fatalf("expected qty 0.316, got %v", order.Quantity)
	}
}

func TestMarketBuyRejectsBelowMinimum(t *testing.T) {
	client := newFakeClient()
	client.balance = 1 // 1 * 0.5 / 100 * 0.95 = 0.00475 < 10/100
	exec := fastExecutor(client)

	_, err := exec.MarketBuy(context.Background(), "BTCUSDT-1m", client.contract, 0.5)
	if !errors.Is(err, ErrOrderTooSmall) {
		t.Fatalf("expected ErrOrderTooSmall, got %v", err)
	}
	if len(client.placed) != 0 {
		t.Fatal("no order must be sent for an undersized buy")
	}
}

func TestAwaitFillTerminalFailure(t *testing.T) {
	client := newFakeClient()
	client.finalStatus = model.OrderCanceled
	exec := fastExecutor(client)

	_, err := exec.MarketBuy(context.Background(), "BTCUSDT-1m", client.contract, 0.5)
	if !errors.Is(err, ErrOrderFailed) {
		t.Fatalf("expected ErrOrderFailed, got %v", err)
	}
}

func TestAwaitFillTimeout(t *testing.T) {
	client := newFakeClient()
	client.fillAfter = 1 << 30 // never fills
	exec := fastExecutor(client)

	_, err := exec.MarketBuy(context.Background(), "BTCUSDT-1m", client.contract, 0.5)
	if !errors.Is(err, ErrFillTimeout) {
		t.Fatalf("expected ErrFillTimeout, got %v", err)
	}
}

func testConfig() Config {
	return Config{
		Symbol:     "BTCUSDT",
		Interval:   model.Interval1m,
		Params:     signal.DefaultParams(),
		SAR:        indicator.DefaultSARParams(),
		TakeProfit: 0.02,
		StopLoss:   0.03,
		BuyPct:     0.5,
	}
}

func newTestInstance(t *testing.T, client *fakeClient) *Instance {
	t.Helper()
	inst, err := New(context.Background(), client, fastExecutor(client), nil, testConfig())
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	return inst
}

func TestInstanceBuysOnStrongUptrend(t *testing.T) {
	client := newFakeClient()
	client.history = risingHistory(40)
	inst := newTestInstance(t, client)

	// Next two buckets keep rising over a strongly bullish column; only
	// the first evaluation with no position may enter.
	next := model.Candle{OpenTime: 40 * 60_000, Open: 139, High: 140.5, Low: 138.5, Close: 140, Volume: 10}
	after := model.Candle{OpenTime: 41 * 60_000, Open: 140, High: 141.5, Low: 139.5, Close: 141, Volume: 10}
	inst.OnCandle(context.Background(), next, true)
	inst.OnCandle(context.Background(), after, false)

	snap := inst.Snapshot()
	if snap.LastEval.Decision != signal.Buy {
		t.Fatalf("expected buy decision, got %s (confidence %d)", snap.LastEval.Decision, snap.LastEval.Confidence)
	}
	if snap.Position.Status != model.PositionOpen {
		t.Fatalf("expected open position, got %s", snap.Position.Status)
	}
	if len(client.placed) != 1 || client.placed[0].Side != model.SideBuy {
		t.Fatalf("expected exactly one buy, got %+v", client.placed)
	}
}

func TestInstanceEvaluatesEveryTick(t *testing.T) {
	client := newFakeClient()
	client.history = risingHistory(40)
	inst := newTestInstance(t, client)

	// A same-bucket revision of the last seeded candle: no bucket closes,
	// but the signal must still be re-scored and acted on.
	rev := model.Candle{OpenTime: 39 * 60_000, Open: 138, High: 140, Low: 137.5, Close: 139.8, Volume: 12}
	inst.OnCandle(context.Background(), rev, false)

	snap := inst.Snapshot()
	if snap.LastEval.Decision != signal.Buy {
		t.Fatalf("expected buy decision on revision, got %q (confidence %d)", snap.LastEval.Decision, snap.LastEval.Confidence)
	}
	if len(client.placed) != 1 || client.placed[0].Side != model.SideBuy {
		t.Fatalf("expected one buy from an intrabar tick, got %+v", client.placed)
	}
}

func TestSARAdvancesOncePerBucket(t *testing.T) {
	client := newFakeClient()
	client.history = risingHistory(40)
	inst := newTestInstance(t, client)

	closed := model.Candle{OpenTime: 40 * 60_000, Open: 139, High: 140.5, Low: 138.5, Close: 140, Volume: 10}
	inst.OnCandle(context.Background(), closed, true)
	primed := inst.sar.Value()

	// The next bucket opening closes the same candle again: the SAR must
	// hold its level until that bucket itself closes.
	opening := model.Candle{OpenTime: 41 * 60_000, Open: 140, High: 140, Low: 140, Close: 140, Volume: 0}
	inst.OnCandle(context.Background(), opening, false)
	if got := inst.sar.Value(); got != primed {
		t.Fatalf("duplicate close moved the SAR: %v -> %v", primed, got)
	}

	// Closing the new bucket takes exactly one step.
	inst.OnCandle(context.Background(), model.Candle{OpenTime: 41 * 60_000, Open: 140, High: 141.5, Low: 139.5, Close: 141, Volume: 10}, true)
	if got := inst.sar.Value(); got == primed {
		t.Fatal("closed bucket must advance the SAR")
	}
}

func TestTakeProfitForcesSell(t *testing.T) {
	client := newFakeClient()
	client.history = risingHistory(40)
	client.fillPrice = 103
	inst := newTestInstance(t, client)

	inst.position = model.Position{OrderID: "ord-0", EntryPrice: 100, Quantity: 2, Status: model.PositionOpen}

	inst.OnBookTicker(context.Background(), model.BookTicker{Symbol: "BTCUSDT", Bid: 102.9, Ask: 103})

	snap := inst.Snapshot()
	if snap.Position.Status != model.PositionNone {
		t.Fatalf("expected closed position, got %s", snap.Position.Status)
	}
	if len(client.placed) != 1 || client.placed[0].Side != model.SideSell {
		t.Fatalf("expected one sell, got %+v", client.placed)
	}
	want := 2 * (103.0 - 100.0)
	if snap.RealizedPnL != want {
		t.Fatalf("expected realized pnl %v, got %v", want, snap.RealizedPnL)
	}
}

func TestStopLossForcesSell(t *testing.T) {
	client := newFakeClient()
	client.history = risingHistory(40)
	client.fillPrice = 96
	inst := newTestInstance(t, client)

	inst.position = model.Position{OrderID: "ord-0", EntryPrice: 100, Quantity: 1, Status: model.PositionOpen}

	// -2% draw: inside the 3% stop, no action.
	inst.OnBookTicker(context.Background(), model.BookTicker{Symbol: "BTCUSDT", Bid: 97.9, Ask: 98})
	if got := inst.Snapshot().Position.Status; got != model.PositionOpen {
		t.Fatalf("position must survive a -2%% draw, got %s", got)
	}

	// -4% draw trips the stop.
	inst.OnBookTicker(context.Background(), model.BookTicker{Symbol: "BTCUSDT", Bid: 95.9, Ask: 96})
	snap := inst.Snapshot()
	if snap.Position.Status != model.PositionNone {
		t.Fatalf("expected stopped-out position, got %s", snap.Position.Status)
	}
	if snap.RealizedPnL >= 0 {
		t.Fatalf("expected a loss, got %v", snap.RealizedPnL)
	}
}

func TestCloseLiquidatesOpenPosition(t *testing.T) {
	client := newFakeClient()
	client.history = risingHistory(40)
	inst := newTestInstance(t, client)

	inst.position = model.Position{OrderID: "ord-0", EntryPrice: 100, Quantity: 1, Status: model.PositionOpen}

	inst.Close(context.Background())

	if got := inst.Snapshot().Position.Status; got != model.PositionNone {
		t.Fatalf("expected liquidated position, got %s", got)
	}
	if len(client.placed) != 1 || client.placed[0].Side != model.SideSell {
		t.Fatalf("expected one sell, got %+v", client.placed)
	}
}

func TestFailedSellKeepsPosition(t *testing.T) {
	client := newFakeClient()
	client.history = risingHistory(40)
	client.finalStatus = model.OrderRejected
	inst := newTestInstance(t, client)

	inst.position = model.Position{OrderID: "ord-0", EntryPrice: 100, Quantity: 1, Status: model.PositionOpen}

	inst.OnBookTicker(context.Background(), model.BookTicker{Symbol: "BTCUSDT", Bid: 102.9, Ask: 103})

	// Sell failed terminally; the position must stay open for a retry.
	if got := inst.Snapshot().Position.Status; got != model.PositionOpen {
		t.Fatalf("expected position to stay open after failed sell, got %s", got)
	}
}

func TestDrainLogs(t *testing.T) {
	client := newFakeClient()
	client.history = risingHistory(5)
	inst := newTestInstance(t, client)

	entries := inst.DrainLogs()
	if len(entries) == 0 {
		t.Fatal("expected at least the startup log entry")
	}
	if inst.logs.Len() != 0 {
		t.Fatal("drain must empty the ring")
	}
}
