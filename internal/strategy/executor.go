package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math"
	"time"

	"cryptobot/internal/exchange"
	"cryptobot/internal/journal"
	"cryptobot/internal/logger"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
)

const (
	// Exchange-imposed floor on order notional, in quote currency.
	minNotional = 10.0

	// Headroom left on a buy so fees and price drift between the balance
	// read and the fill cannot overdraw the account.
	sizingHeadroom = 0.95

	fillPollInterval = 500 * time.Millisecond
	fillPollTimeout  = 30 * time.Second
)

// ErrOrderTooSmall means the computed buy quantity is below the venue's
// minimum order size or notional. The buy is skipped, not retried.
var ErrOrderTooSmall = errors.New("order size below exchange minimum")

// ErrOrderFailed means the order reached a terminal non-filled state.
var ErrOrderFailed = errors.New("order terminated without filling")

// ErrFillTimeout means the order did not reach a terminal state within the
// polling deadline. The order may still fill; manual reconciliation is
// required.
var ErrFillTimeout = errors.New("timed out waiting for order fill")

// Executor sizes and places market orders and waits for their fills.
type Executor struct {
	client  exchange.Client
	journal *journal.Journal
	metrics *metrics.Metrics

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewExecutor wires an executor over the exchange client. journal and
// metrics may be nil in tests.
func NewExecutor(client exchange.Client, jnl *journal.Journal, mtr *metrics.Metrics) *Executor {
	return &Executor{
		client:       client,
		journal:      jnl,
		metrics:      mtr,
		pollInterval: fillPollInterval,
		pollTimeout:  fillPollTimeout,
	}
}

// MarketBuy spends buyPct of the available quote balance on the contract's
// base asset. The quantity is floored to the contract's quantity step and
// validated against the venue minimums before anything is sent.
func (e *Executor) MarketBuy(ctx context.Context, strategyID string, contract model.Contract, buyPct float64) (model.Order, error) {
	balance, err := e.client.AvailableBalance(ctx, contract.QuoteAsset)
	if err != nil {
		return model.Order{}, fmt.Errorf("read %s balance: %w", contract.QuoteAsset, err)
	}

	price, err := e.client.Price(ctx, contract.Symbol)
	if err != nil {
		return model.Order{}, fmt.Errorf("read %s price: %w", contract.Symbol, err)
	}
	if price.Ask <= 0 {
		return model.Order{}, fmt.Errorf("no ask price for %s", contract.Symbol)
	}

	qty := floorToPrecision(balance*buyPct/price.Ask*sizingHeadroom, contract.QuantityPrecision)

	minQty := minNotional / price.Ask
	if contract.MinQuantity > minQty {
		minQty = contract.MinQuantity
	}
	if qty < minQty {
		if e.metrics != nil {
			e.metrics.OrdersRejected.Inc()
		}
		log.Printf("[executor] %s buy skipped: qty %.8f below minimum %.8f (balance %.2f %s)",
			contract.Symbol, qty, minQty, balance, contract.QuoteAsset)
		return model.Order{}, fmt.Errorf("%w: qty %.8f < min %.8f", ErrOrderTooSmall, qty, minQty)
	}

	return e.place(ctx, strategyID, contract, model.SideBuy, qty, 0, "signal")
}

// MarketSell liquidates qty of the contract's base asset. entryPrice is the
// position's average entry, used to compute the realized PnL from the
// actual fill; reason tags why the sell happened (signal, take_profit,
// stop_loss, liquidation).
func (e *Executor) MarketSell(ctx context.Context, strategyID string, contract model.Contract, qty, entryPrice float64, reason string) (model.Order, error) {
	return e.place(ctx, strategyID, contract, model.SideSell, qty, entryPrice, reason)
}

func (e *Executor) place(ctx context.Context, strategyID string, contract model.Contract, side model.OrderSide, qty, entryPrice float64, reason string) (model.Order, error) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(contract.Symbol, time.Now()))

	order, err := e.client.PlaceMarketOrder(ctx, contract.Symbol, side, qty)
	if err != nil {
		return model.Order{}, fmt.Errorf("place %s %s: %w", side, contract.Symbol, err)
	}
	if e.metrics != nil {
		e.metrics.OrdersPlaced.WithLabelValues(string(side)).Inc()
	}
	slog.Info("order placed",
		append([]any{
			slog.String("symbol", contract.Symbol),
			slog.String("side", string(side)),
			slog.String("order_id", order.ID),
			slog.Float64("qty", qty),
		}, logger.LogWithTrace(ctx)...)...)

	start := time.Now()
	filled, err := e.awaitFill(ctx, contract.Symbol, order.ID)
	if err != nil {
		if e.metrics != nil && errors.Is(err, ErrOrderFailed) {
			e.metrics.OrdersFailed.Inc()
		}
		return filled, err
	}
	if e.metrics != nil {
		e.metrics.OrderFillDur.Observe(time.Since(start).Seconds())
	}

	var pnl float64
	if side == model.SideSell {
		pnl = filled.Quantity * (filled.Price - entryPrice)
	}

	if e.journal != nil {
		fillStart := time.Now()
		if err := e.journal.RecordFill(journal.Fill{
			OrderID:  filled.ID,
			Strategy: strategyID,
			Symbol:   contract.Symbol,
			Exchange: contract.Exchange,
			Side:     side,
			Qty:      filled.Quantity,
			Price:    filled.Price,
			PnL:      pnl,
			Reason:   reason,
			FilledAt: time.UnixMilli(filled.Time),
		}); err != nil {
			log.Printf("[executor] journal write failed for order %s: %v", filled.ID, err)
		} else if e.metrics != nil {
			e.metrics.SQLiteCommitDur.Observe(time.Since(fillStart).Seconds())
		}
	}
	return filled, nil
}

// awaitFill polls the order until it fills, fails terminally, or the
// deadline passes.
func (e *Executor) awaitFill(ctx context.Context, symbol, orderID string) (model.Order, error) {
	deadline := time.NewTimer(e.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	var last model.Order
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			return last, fmt.Errorf("%w: order %s after %s", ErrFillTimeout, orderID, e.pollTimeout)
		case <-ticker.C:
			order, err := e.client.OrderStatus(ctx, symbol, orderID)
			if err != nil {
				// Transient poll errors are retried until the deadline.
				log.Printf("[executor] poll order %s: %v", orderID, err)
				continue
			}
			last = order
			if order.Status == model.OrderFilled {
				return order, nil
			}
			if order.Status.Terminal() {
				return order, fmt.Errorf("%w: order %s status %s", ErrOrderFailed, orderID, order.Status)
			}
		}
	}
}

// floorToPrecision truncates v to the given number of decimal places.
// Exchanges reject quantities finer than the contract's step, so rounding
// down is the only safe direction.
func floorToPrecision(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	pow := math.Pow(10, float64(decimals))
	return math.Floor(v*pow) / pow
}
