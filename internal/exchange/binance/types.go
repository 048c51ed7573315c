package binance

import (
	"encoding/json"
	"strconv"

	"cryptobot/internal/model"
)

// ── REST wire shapes ──

type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol            string         `json:"symbol"`
	BaseAsset         string         `json:"baseAsset"`
	QuoteAsset        string         `json:"quoteAsset"`
	PricePrecision    int            `json:"pricePrecision"`
	QuantityPrecision int            `json:"quantityPrecision"`
	Filters           []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty"`
}

// contract normalizes the instrument metadata.
func (s symbolInfo) contract() model.Contract {
	c := model.Contract{
		Exchange:          exchangeName,
		Symbol:            s.Symbol,
		BaseAsset:         s.BaseAsset,
		QuoteAsset:        s.QuoteAsset,
		PricePrecision:    s.PricePrecision,
		QuantityPrecision: s.QuantityPrecision,
	}
	for _, f := range s.Filters {
		if f.FilterType == "LOT_SIZE" {
			c.MinQuantity = parseFloat(f.MinQty)
		}
	}
	return c
}

type bookTickerResponse struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

type orderResponse struct {
	OrderID    int64  `json:"orderId"`
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	AvgPrice   string `json:"avgPrice"`
	OrigQty    string `json:"origQty"`
	Side       string `json:"side"`
	UpdateTime int64  `json:"updateTime"`
}

// order normalizes the exchange order, folding Binance's status vocabulary
// into the shared set.
func (o orderResponse) order() model.Order {
	return model.Order{
		ID:       strconv.FormatInt(o.OrderID, 10),
		Symbol:   o.Symbol,
		Side:     model.OrderSide(o.Side),
		Status:   normalizeStatus(o.Status),
		Price:    parseFloat(o.AvgPrice),
		Quantity: parseFloat(o.OrigQty),
		Time:     o.UpdateTime,
	}
}

type balanceEntry struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}

func (b balanceEntry) balance() model.Balance {
	return model.Balance{
		Asset:     b.Asset,
		Total:     parseFloat(b.Balance),
		Available: parseFloat(b.AvailableBalance),
	}
}

// normalizeStatus maps Binance order states onto the normalized vocabulary.
// NEW_INSURANCE / NEW_ADL are liquidation artifacts and read as NEW.
func normalizeStatus(s string) model.OrderStatus {
	switch s {
	case "NEW", "NEW_INSURANCE", "NEW_ADL":
		return model.OrderNew
	case "PARTIALLY_FILLED":
		return model.OrderPartiallyFilled
	case "FILLED":
		return model.OrderFilled
	case "CANCELED", "PENDING_CANCEL":
		return model.OrderCanceled
	case "REJECTED":
		return model.OrderRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return model.OrderExpired
	default:
		return model.OrderStatus(s)
	}
}

// parseKlines decodes the klines array-of-arrays payload into candles,
// oldest first.
func parseKlines(raw []byte) ([]model.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		var o, h, l, c, v string
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		json.Unmarshal(row[1], &o)
		json.Unmarshal(row[2], &h)
		json.Unmarshal(row[3], &l)
		json.Unmarshal(row[4], &c)
		json.Unmarshal(row[5], &v)
		out = append(out, model.Candle{
			OpenTime: openTime,
			Open:     parseFloat(o),
			High:     parseFloat(h),
			Low:      parseFloat(l),
			Close:    parseFloat(c),
			Volume:   parseFloat(v),
		})
	}
	return out, nil
}

// ── WebSocket wire shapes ──

type wsEnvelope struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`

	// bookTicker
	Bid string `json:"b"`
	Ask string `json:"a"`

	// aggTrade
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`

	// kline
	Kline *wsKline `json:"k"`
}

type wsKline struct {
	StartTime int64  `json:"t"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

type wsControl struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
