package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"arbot/internal/config"
	"arbot/internal/model"
)

const (
	binanceRESTURL = "https://api.binance.us"
	binanceWSURL   = "wss://stream.binance.us:9443/stream"
)

// BinanceClient implements the Client interface for Binance.US.
type BinanceClient struct {
	logger     *slog.Logger
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewBinanceClient creates a new BinanceClient.
func NewBinanceClient(logger *slog.Logger, cfg config.VenueConfig) *BinanceClient {
	return &BinanceClient{
		logger:    logger.With(slog.String("venue", "binance")),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (b *BinanceClient) Name() string {
	return "binance"
}

// binanceSymbol converts "BTC/USDT" into Binance's "BTCUSDT" form.
func binanceSymbol(pair string) string {
	return strings.ReplaceAll(pair, "/", "")
}

// ServerTime hits the public time endpoint.
func (b *BinanceClient) ServerTime(ctx context.Context) (time.Time, error) {
	var raw struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := b.public(ctx, "/api/v3/time", nil, &raw); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(raw.ServerTime), nil
}

// FetchTicker returns the current best bid/ask for a pair.
func (b *BinanceClient) FetchTicker(ctx context.Context, pair string) (model.PriceQuote, error) {
	var raw struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	params := url.Values{"symbol": {binanceSymbol(pair)}}
	if err := b.public(ctx, "/api/v3/ticker/bookTicker", params, &raw); err != nil {
		return model.PriceQuote{}, err
	}
	bid, err := strconv.ParseFloat(raw.BidPrice, 64)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("binance ticker: parse bid: %w", err)
	}
	ask, err := strconv.ParseFloat(raw.AskPrice, 64)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("binance ticker: parse ask: %w", err)
	}
	return model.PriceQuote{
		Venue:     b.Name(),
		Pair:      pair,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
	}, nil
}

// FetchBalances returns total and free balances from the signed account endpoint.
func (b *BinanceClient) FetchBalances(ctx context.Context) (model.VenueAccount, error) {
	var raw struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := b.signed(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &raw); err != nil {
		return model.VenueAccount{}, err
	}
	acct := model.VenueAccount{
		Venue: b.Name(),
		Total: make(map[string]float64),
		Free:  make(map[string]float64),
	}
	for _, bal := range raw.Balances {
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		if free+locked <= 0 {
			continue
		}
		acct.Free[bal.Asset] = free
		acct.Total[bal.Asset] = free + locked
	}
	return acct, nil
}

// CreateLimitOrder places a limit order and returns the venue order id.
func (b *BinanceClient) CreateLimitOrder(ctx context.Context, pair string, side model.Side, amount, price float64) (string, error) {
	params := url.Values{
		"symbol":      {binanceSymbol(pair)},
		"side":        {strings.ToUpper(string(side))},
		"type":        {"LIMIT"},
		"timeInForce": {"GTC"},
		"quantity":    {strconv.FormatFloat(amount, 'f', 8, 64)},
		"price":       {strconv.FormatFloat(price, 'f', 2, 64)},
	}
	return b.placeOrder(ctx, params)
}

// CreateMarketOrder places a market order sized in base currency.
func (b *BinanceClient) CreateMarketOrder(ctx context.Context, pair string, side model.Side, amount float64) (string, error) {
	params := url.Values{
		"symbol":   {binanceSymbol(pair)},
		"side":     {strings.ToUpper(string(side))},
		"type":     {"MARKET"},
		"quantity": {strconv.FormatFloat(amount, 'f', 8, 64)},
	}
	return b.placeOrder(ctx, params)
}

// CreateMarketBuyByCost places a market buy sized by quote-currency spend.
func (b *BinanceClient) CreateMarketBuyByCost(ctx context.Context, pair string, costUSD float64) (string, error) {
	params := url.Values{
		"symbol":        {binanceSymbol(pair)},
		"side":          {"BUY"},
		"type":          {"MARKET"},
		"quoteOrderQty": {strconv.FormatFloat(costUSD, 'f', 2, 64)},
	}
	return b.placeOrder(ctx, params)
}

func (b *BinanceClient) placeOrder(ctx context.Context, params url.Values) (string, error) {
	var raw struct {
		OrderID int64 `json:"orderId"`
	}
	if err := b.signed(ctx, http.MethodPost, "/api/v3/order", params, &raw); err != nil {
		return "", err
	}
	return strconv.FormatInt(raw.OrderID, 10), nil
}

// CancelOrder cancels a resting order.
func (b *BinanceClient) CancelOrder(ctx context.Context, orderID, pair string) error {
	params := url.Values{
		"symbol":  {binanceSymbol(pair)},
		"orderId": {orderID},
	}
	return b.signed(ctx, http.MethodDelete, "/api/v3/order", params, &struct{}{})
}

// public issues an unauthenticated GET and decodes the JSON response.
func (b *BinanceClient) public(ctx context.Context, path string, params url.Values, out any) error {
	u := binanceRESTURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("binance: build request: %w", err)
	}
	return b.do(req, out)
}

// signed issues an authenticated request. Binance signs the full query string
// (including a timestamp) with HMAC-SHA256 of the API secret.
func (b *BinanceClient) signed(ctx context.Context, method, path string, params url.Values, out any) error {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, binanceRESTURL+path+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("binance: build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)
	return b.do(req, out)
}

func (b *BinanceClient) do(req *http.Request, out any) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("binance: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == -2010 {
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, apiErr.Msg)
		}
		return fmt.Errorf("binance: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance: parse response: %w", err)
	}
	return nil
}

// StreamQuotes connects to the combined bookTicker stream and sends best
// bid/ask updates until the context is cancelled.
func (b *BinanceClient) StreamQuotes(ctx context.Context, quotes chan<- model.PriceQuote, pairs []string) error {
	streams := make([]string, 0, len(pairs))
	symbolToPair := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		sym := binanceSymbol(pair)
		streams = append(streams, strings.ToLower(sym)+"@bookTicker")
		symbolToPair[sym] = pair
	}
	wsURL := binanceWSURL + "?streams=" + strings.Join(streams, "/")

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stream shutting down")
			return nil
		default:
		}

		b.logger.Info("connecting to websocket", "url", wsURL, "backoff", backoff)
		c, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			b.logger.Error("websocket connection failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff = minDuration(backoff*2, 16*time.Second)
			}
			continue
		}
		backoff = time.Second
		b.logger.Info("websocket connected")

		b.readBinanceStream(ctx, c, quotes, symbolToPair)
		c.Close()
	}
}

func (b *BinanceClient) readBinanceStream(ctx context.Context, c *websocket.Conn, quotes chan<- model.PriceQuote, symbolToPair map[string]string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.ReadMessage()
		if err != nil {
			b.logger.Error("failed to read message", "error", err)
			return
		}

		var frame struct {
			Data struct {
				Symbol string `json:"s"`
				Bid    string `json:"b"`
				Ask    string `json:"a"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &frame); err != nil {
			b.logger.Warn("failed to parse message", "error", err)
			continue
		}
		pair, ok := symbolToPair[frame.Data.Symbol]
		if !ok {
			continue
		}
		bid, err := strconv.ParseFloat(frame.Data.Bid, 64)
		if err != nil {
			continue
		}
		ask, err := strconv.ParseFloat(frame.Data.Ask, 64)
		if err != nil {
			continue
		}

		quote := model.PriceQuote{
			Venue:     b.Name(),
			Pair:      pair,
			Bid:       bid,
			Ask:       ask,
			Timestamp: time.Now(),
		}
		select {
		case quotes <- quote:
		case <-ctx.Done():
			return
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
