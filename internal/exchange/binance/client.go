// Package binance adapts the Binance USDT-margined futures REST and
// WebSocket APIs to the exchange boundary. All wire parsing and status
// normalization happens here; nothing above sees Binance field names.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cryptobot/internal/model"
)

const exchangeName = "Binance"

// Config holds connection settings for one client/feed pair.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // e.g. https://testnet.binancefuture.com
	WSURL     string // e.g. wss://stream.binancefuture.com/ws
	Timeout   time.Duration
}

// Client is the Binance futures REST client. One caller constructs and owns
// a handle per connection and threads it through explicitly; there is no
// process-wide instance cache.
type Client struct {
	cfg       Config
	http      *http.Client
	contracts map[string]model.Contract
}

// NewClient builds a client and loads the instrument table. Fails when the
// exchange is unreachable or the credentials are rejected, so a broken
// connection never produces a half-constructed client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}

	var info exchangeInfoResponse
	if err := c.get(ctx, "/fapi/v1/exchangeInfo", nil, false, &info); err != nil {
		return nil, fmt.Errorf("binance: load exchange info: %w", err)
	}
	c.contracts = make(map[string]model.Contract, len(info.Symbols))
	for _, s := range info.Symbols {
		c.contracts[s.Symbol] = s.contract()
	}
	return c, nil
}

func (c *Client) Exchange() string { return exchangeName }

func (c *Client) Contract(symbol string) (model.Contract, bool) {
	ct, ok := c.contracts[symbol]
	return ct, ok
}

func (c *Client) Candles(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(interval))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	raw, err := c.request(ctx, http.MethodGet, "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s %s: %w", symbol, interval, err)
	}
	return parseKlines(raw)
}

func (c *Client) Price(ctx context.Context, symbol string) (model.Price, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var bt bookTickerResponse
	if err := c.get(ctx, "/fapi/v1/ticker/bookTicker", params, false, &bt); err != nil {
		return model.Price{}, fmt.Errorf("binance: bookTicker %s: %w", symbol, err)
	}
	return model.Price{Symbol: bt.Symbol, Bid: parseFloat(bt.BidPrice), Ask: parseFloat(bt.AskPrice)}, nil
}

func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty float64) (model.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	var resp orderResponse
	if err := c.post(ctx, "/fapi/v1/order", params, &resp); err != nil {
		return model.Order{}, fmt.Errorf("binance: place %s %s: %w", side, symbol, err)
	}
	return resp.order(), nil
}

func (c *Client) OrderStatus(ctx context.Context, symbol, orderID string) (model.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	var resp orderResponse
	if err := c.get(ctx, "/fapi/v1/order", params, true, &resp); err != nil {
		return model.Order{}, fmt.Errorf("binance: order status %s: %w", orderID, err)
	}
	return resp.order(), nil
}

func (c *Client) AvailableBalance(ctx context.Context, asset string) (float64, error) {
	var entries []balanceEntry
	if err := c.get(ctx, "/fapi/v2/balance", nil, true, &entries); err != nil {
		return 0, fmt.Errorf("binance: balance: %w", err)
	}
	for _, e := range entries {
		if e.Asset == asset {
			return e.balance().Available, nil
		}
	}
	return 0, nil
}

// ── request plumbing ──

func (c *Client) get(ctx context.Context, path string, params url.Values, signed bool, out any) error {
	raw, err := c.request(ctx, http.MethodGet, path, params, signed)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) post(ctx context.Context, path string, params url.Values, out any) error {
	raw, err := c.request(ctx, http.MethodPost, path, params, true)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// request executes one REST call. Signed endpoints get a timestamp plus an
// HMAC-SHA256 signature of the query string.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", c.sign(params.Encode()))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
