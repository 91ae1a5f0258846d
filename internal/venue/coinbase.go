package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"arbot/internal/config"
	"arbot/internal/model"
)

const (
	coinbaseRESTURL = "https://api.coinbase.com"
	coinbaseWSURL   = "wss://advanced-trade-ws.coinbase.com"
)

// CoinbaseClient implements the Client interface for Coinbase Advanced Trade.
type CoinbaseClient struct {
	logger     *slog.Logger
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewCoinbaseClient creates a new CoinbaseClient.
func NewCoinbaseClient(logger *slog.Logger, cfg config.VenueConfig) *CoinbaseClient {
	return &CoinbaseClient{
		logger:    logger.With(slog.String("venue", "coinbase")),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *CoinbaseClient) Name() string {
	return "coinbase"
}

// coinbaseProduct converts "BTC/USDT" into Coinbase's "BTC-USDT" form.
func coinbaseProduct(pair string) string {
	return strings.ReplaceAll(pair, "/", "-")
}

// ServerTime hits the public time endpoint.
func (c *CoinbaseClient) ServerTime(ctx context.Context) (time.Time, error) {
	var raw struct {
		EpochSeconds string `json:"epochSeconds"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v3/brokerage/time", nil, &raw, false); err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(raw.EpochSeconds, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("coinbase time: parse epoch: %w", err)
	}
	return time.Unix(sec, 0), nil
}

// FetchTicker returns the current best bid/ask for a pair.
func (c *CoinbaseClient) FetchTicker(ctx context.Context, pair string) (model.PriceQuote, error) {
	path := "/api/v3/brokerage/products/" + coinbaseProduct(pair) + "/ticker?limit=1"
	var raw struct {
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	}
	if err := c.request(ctx, http.MethodGet, path, nil, &raw, true); err != nil {
		return model.PriceQuote{}, err
	}
	bid, err := strconv.ParseFloat(raw.BestBid, 64)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("coinbase ticker: parse bid: %w", err)
	}
	ask, err := strconv.ParseFloat(raw.BestAsk, 64)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("coinbase ticker: parse ask: %w", err)
	}
	return model.PriceQuote{
		Venue:     c.Name(),
		Pair:      pair,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
	}, nil
}

// FetchBalances returns total and free balances across brokerage accounts.
func (c *CoinbaseClient) FetchBalances(ctx context.Context) (model.VenueAccount, error) {
	var raw struct {
		Accounts []struct {
			Currency         string `json:"currency"`
			AvailableBalance struct {
				Value string `json:"value"`
			} `json:"available_balance"`
			Hold struct {
				Value string `json:"value"`
			} `json:"hold"`
		} `json:"accounts"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v3/brokerage/accounts", nil, &raw, true); err != nil {
		return model.VenueAccount{}, err
	}
	acct := model.VenueAccount{
		Venue: c.Name(),
		Total: make(map[string]float64),
		Free:  make(map[string]float64),
	}
	for _, a := range raw.Accounts {
		free, _ := strconv.ParseFloat(a.AvailableBalance.Value, 64)
		hold, _ := strconv.ParseFloat(a.Hold.Value, 64)
		if free+hold <= 0 {
			continue
		}
		acct.Free[a.Currency] = free
		acct.Total[a.Currency] = free + hold
	}
	return acct, nil
}

// orderConfiguration mirrors the Advanced Trade order payload.
type orderConfiguration struct {
	LimitGTC  *limitGTC  `json:"limit_limit_gtc,omitempty"`
	MarketIOC *marketIOC `json:"market_market_ioc,omitempty"`
}

type limitGTC struct {
	BaseSize   string `json:"base_size"`
	LimitPrice string `json:"limit_price"`
}

type marketIOC struct {
	BaseSize  string `json:"base_size,omitempty"`
	QuoteSize string `json:"quote_size,omitempty"`
}

// CreateLimitOrder places a limit order and returns the venue order id.
func (c *CoinbaseClient) CreateLimitOrder(ctx context.Context, pair string, side model.Side, amount, price float64) (string, error) {
	cfg := orderConfiguration{LimitGTC: &limitGTC{
		BaseSize:   strconv.FormatFloat(amount, 'f', 8, 64),
		LimitPrice: strconv.FormatFloat(price, 'f', 2, 64),
	}}
	return c.placeOrder(ctx, pair, side, cfg)
}

// CreateMarketOrder places a market order sized in base currency. Coinbase
// only accepts base size on market sells; market buys go through
// CreateMarketBuyByCost.
func (c *CoinbaseClient) CreateMarketOrder(ctx context.Context, pair string, side model.Side, amount float64) (string, error) {
	cfg := orderConfiguration{MarketIOC: &marketIOC{
		BaseSize: strconv.FormatFloat(amount, 'f', 8, 64),
	}}
	return c.placeOrder(ctx, pair, side, cfg)
}

// CreateMarketBuyByCost places a market buy sized by quote-currency spend,
// which is how Coinbase prices market buys.
func (c *CoinbaseClient) CreateMarketBuyByCost(ctx context.Context, pair string, costUSD float64) (string, error) {
	cfg := orderConfiguration{MarketIOC: &marketIOC{
		QuoteSize: strconv.FormatFloat(costUSD, 'f', 2, 64),
	}}
	return c.placeOrder(ctx, pair, model.SideBuy, cfg)
}

func (c *CoinbaseClient) placeOrder(ctx context.Context, pair string, side model.Side, cfg orderConfiguration) (string, error) {
	payload := struct {
		ClientOrderID      string             `json:"client_order_id"`
		ProductID          string             `json:"product_id"`
		Side               string             `json:"side"`
		OrderConfiguration orderConfiguration `json:"order_configuration"`
	}{
		ClientOrderID:      uuid.New().String(),
		ProductID:          coinbaseProduct(pair),
		Side:               strings.ToUpper(string(side)),
		OrderConfiguration: cfg,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("coinbase: marshal order: %w", err)
	}

	var raw struct {
		Success       bool `json:"success"`
		SuccessResp   struct {
			OrderID string `json:"order_id"`
		} `json:"success_response"`
		ErrorResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		} `json:"error_response"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/v3/brokerage/orders", body, &raw, true); err != nil {
		return "", err
	}
	if !raw.Success {
		if strings.Contains(raw.ErrorResp.Error, "INSUFFICIENT_FUND") {
			return "", fmt.Errorf("%w: %s", ErrInsufficientFunds, raw.ErrorResp.Message)
		}
		return "", fmt.Errorf("coinbase: order rejected: %s %s", raw.ErrorResp.Error, raw.ErrorResp.Message)
	}
	return raw.SuccessResp.OrderID, nil
}

// CancelOrder cancels a resting order.
func (c *CoinbaseClient) CancelOrder(ctx context.Context, orderID, pair string) error {
	body, err := json.Marshal(map[string][]string{"order_ids": {orderID}})
	if err != nil {
		return fmt.Errorf("coinbase: marshal cancel: %w", err)
	}
	return c.request(ctx, http.MethodPost, "/api/v3/brokerage/orders/batch_cancel", body, &struct{}{}, true)
}

// request issues a REST call, signing it with the CB-ACCESS scheme when auth
// is required: HMAC-SHA256 over timestamp + method + path + body.
func (c *CoinbaseClient) request(ctx context.Context, method, path string, body []byte, out any, auth bool) error {
	req, err := http.NewRequestWithContext(ctx, method, coinbaseRESTURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("coinbase: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if auth {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		signPath := path
		if i := strings.IndexByte(signPath, '?'); i >= 0 {
			signPath = signPath[:i]
		}
		mac := hmac.New(sha256.New, []byte(c.apiSecret))
		mac.Write([]byte(ts + method + signPath))
		mac.Write(body)
		req.Header.Set("CB-ACCESS-KEY", c.apiKey)
		req.Header.Set("CB-ACCESS-SIGN", hex.EncodeToString(mac.Sum(nil)))
		req.Header.Set("CB-ACCESS-TIMESTAMP", ts)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coinbase: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("coinbase: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coinbase: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("coinbase: parse response: %w", err)
	}
	return nil
}

// StreamQuotes connects to the Advanced Trade websocket ticker channel and
// sends best bid/ask updates until the context is cancelled.
func (c *CoinbaseClient) StreamQuotes(ctx context.Context, quotes chan<- model.PriceQuote, pairs []string) error {
	products := make([]string, 0, len(pairs))
	productToPair := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		p := coinbaseProduct(pair)
		products = append(products, p)
		productToPair[p] = pair
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stream shutting down")
			return nil
		default:
		}

		c.logger.Info("connecting to websocket", "url", coinbaseWSURL, "backoff", backoff)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, coinbaseWSURL, nil)
		if err != nil {
			c.logger.Error("websocket connection failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff = minDuration(backoff*2, 16*time.Second)
			}
			continue
		}
		backoff = time.Second

		subscription := map[string]any{
			"type":        "subscribe",
			"product_ids": products,
			"channel":     "ticker",
		}
		if err := conn.WriteJSON(subscription); err != nil {
			c.logger.Error("failed to send subscription", "error", err)
			conn.Close()
			continue
		}
		c.logger.Info("subscription sent")

		c.readCoinbaseStream(ctx, conn, quotes, productToPair)
		conn.Close()
	}
}

func (c *CoinbaseClient) readCoinbaseStream(ctx context.Context, conn *websocket.Conn, quotes chan<- model.PriceQuote, productToPair map[string]string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			c.logger.Error("failed to read message", "error", err)
			return
		}

		var frame struct {
			Channel string `json:"channel"`
			Events  []struct {
				Tickers []struct {
					ProductID string `json:"product_id"`
					BestBid   string `json:"best_bid"`
					BestAsk   string `json:"best_ask"`
				} `json:"tickers"`
			} `json:"events"`
		}
		if err := json.Unmarshal(message, &frame); err != nil || frame.Channel != "ticker" {
			continue
		}
		for _, ev := range frame.Events {
			for _, t := range ev.Tickers {
				pair, ok := productToPair[t.ProductID]
				if !ok {
					continue
				}
				bid, err := strconv.ParseFloat(t.BestBid, 64)
				if err != nil {
					continue
				}
				ask, err := strconv.ParseFloat(t.BestAsk, 64)
				if err != nil {
					continue
				}
				quote := model.PriceQuote{
					Venue:     c.Name(),
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
	}
}
