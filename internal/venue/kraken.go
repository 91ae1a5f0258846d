package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
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
	krakenRESTURL = "https://api.kraken.com"
	krakenWSURL   = "wss://ws.kraken.com"
)

// KrakenClient implements the Client interface for Kraken.
type KrakenClient struct {
	logger     *slog.Logger
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewKrakenClient creates a new KrakenClient.
func NewKrakenClient(logger *slog.Logger, cfg config.VenueConfig) *KrakenClient {
	return &KrakenClient{
		logger:    logger.With(slog.String("venue", "kraken")),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (k *KrakenClient) Name() string {
	return "kraken"
}

// krakenPair converts "BTC/USDT" into Kraken's "XBTUSDT" form.
func krakenPair(pair string) string {
	p := strings.ReplaceAll(pair, "BTC", "XBT")
	return strings.ReplaceAll(p, "/", "")
}

// krakenAsset normalizes Kraken's asset codes (XXBT, ZUSD) to common ones.
func krakenAsset(asset string) string {
	switch asset {
	case "XXBT", "XBT":
		return "BTC"
	case "ZUSD":
		return "USD"
	default:
		return strings.TrimPrefix(asset, "Z")
	}
}

// ServerTime hits the public time endpoint.
func (k *KrakenClient) ServerTime(ctx context.Context) (time.Time, error) {
	var result struct {
		UnixTime int64 `json:"unixtime"`
	}
	if err := k.public(ctx, "/0/public/Time", nil, &result); err != nil {
		return time.Time{}, err
	}
	return time.Unix(result.UnixTime, 0), nil
}

// FetchTicker returns the current best bid/ask for a pair.
func (k *KrakenClient) FetchTicker(ctx context.Context, pair string) (model.PriceQuote, error) {
	var result map[string]struct {
		Ask []string `json:"a"`
		Bid []string `json:"b"`
	}
	params := url.Values{"pair": {krakenPair(pair)}}
	if err := k.public(ctx, "/0/public/Ticker", params, &result); err != nil {
		return model.PriceQuote{}, err
	}
	for _, t := range result {
		if len(t.Bid) == 0 || len(t.Ask) == 0 {
			break
		}
		bid, err := strconv.ParseFloat(t.Bid[0], 64)
		if err != nil {
			return model.PriceQuote{}, fmt.Errorf("kraken ticker: parse bid: %w", err)
		}
		ask, err := strconv.ParseFloat(t.Ask[0], 64)
		if err != nil {
			return model.PriceQuote{}, fmt.Errorf("kraken ticker: parse ask: %w", err)
		}
		return model.PriceQuote{
			Venue:     k.Name(),
			Pair:      pair,
			Bid:       bid,
			Ask:       ask,
			Timestamp: time.Now(),
		}, nil
	}
	return model.PriceQuote{}, fmt.Errorf("kraken ticker: no data for %s", pair)
}

// FetchBalances returns balances from the private Balance endpoint. Kraken
// reports a single figure per asset; resting orders are already excluded, so
// total and free are the same snapshot.
func (k *KrakenClient) FetchBalances(ctx context.Context) (model.VenueAccount, error) {
	var result map[string]string
	if err := k.private(ctx, "/0/private/Balance", url.Values{}, &result); err != nil {
		return model.VenueAccount{}, err
	}
	acct := model.VenueAccount{
		Venue: k.Name(),
		Total: make(map[string]float64),
		Free:  make(map[string]float64),
	}
	for asset, amountStr := range result {
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil || amount <= 0 {
			continue
		}
		name := krakenAsset(asset)
		acct.Total[name] = amount
		acct.Free[name] = amount
	}
	return acct, nil
}

// CreateLimitOrder places a limit order and returns the venue order id.
func (k *KrakenClient) CreateLimitOrder(ctx context.Context, pair string, side model.Side, amount, price float64) (string, error) {
	params := url.Values{
		"pair":      {krakenPair(pair)},
		"type":      {string(side)},
		"ordertype": {"limit"},
		"volume":    {strconv.FormatFloat(amount, 'f', 8, 64)},
		"price":     {strconv.FormatFloat(price, 'f', 2, 64)},
	}
	return k.addOrder(ctx, params)
}

// CreateMarketOrder places a market order sized in base currency.
func (k *KrakenClient) CreateMarketOrder(ctx context.Context, pair string, side model.Side, amount float64) (string, error) {
	params := url.Values{
		"pair":      {krakenPair(pair)},
		"type":      {string(side)},
		"ordertype": {"market"},
		"volume":    {strconv.FormatFloat(amount, 'f', 8, 64)},
	}
	return k.addOrder(ctx, params)
}

// CreateMarketBuyByCost is not needed on Kraken; market buys are sized in
// base currency like any other order.
func (k *KrakenClient) CreateMarketBuyByCost(ctx context.Context, pair string, costUSD float64) (string, error) {
	ticker, err := k.FetchTicker(ctx, pair)
	if err != nil {
		return "", err
	}
	return k.CreateMarketOrder(ctx, pair, model.SideBuy, costUSD/ticker.Ask)
}

func (k *KrakenClient) addOrder(ctx context.Context, params url.Values) (string, error) {
	var result struct {
		TxID []string `json:"txid"`
	}
	if err := k.private(ctx, "/0/private/AddOrder", params, &result); err != nil {
		return "", err
	}
	if len(result.TxID) == 0 {
		return "", fmt.Errorf("kraken: order accepted without txid")
	}
	return result.TxID[0], nil
}

// CancelOrder cancels a resting order.
func (k *KrakenClient) CancelOrder(ctx context.Context, orderID, pair string) error {
	params := url.Values{"txid": {orderID}}
	return k.private(ctx, "/0/private/CancelOrder", params, &struct{}{})
}

// public issues an unauthenticated GET against the Kraken REST API.
func (k *KrakenClient) public(ctx context.Context, path string, params url.Values, out any) error {
	u := krakenRESTURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("kraken: build request: %w", err)
	}
	return k.do(req, out)
}

// private issues a signed POST. Kraken signs the URI path concatenated with
// SHA256(nonce + POST body) using HMAC-SHA512 of the base64-decoded secret.
func (k *KrakenClient) private(ctx context.Context, path string, params url.Values, out any) error {
	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
	params.Set("nonce", nonce)
	body := params.Encode()

	secret, err := base64.StdEncoding.DecodeString(k.apiSecret)
	if err != nil {
		return fmt.Errorf("kraken: decode api secret: %w", err)
	}
	shaSum := sha256.Sum256([]byte(nonce + body))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(shaSum[:])
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, krakenRESTURL+path, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("kraken: build request: %w", err)
	}
	req.Header.Set("API-Key", k.apiKey)
	req.Header.Set("API-Sign", sign)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return k.do(req, out)
}

func (k *KrakenClient) do(req *http.Request, out any) error {
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kraken: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kraken: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kraken: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Error  []string        `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("kraken: parse response: %w", err)
	}
	if len(envelope.Error) > 0 {
		msg := strings.Join(envelope.Error, "; ")
		if strings.Contains(msg, "Insufficient funds") {
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, msg)
		}
		return fmt.Errorf("kraken: api error: %s", msg)
	}
	if len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("kraken: parse result: %w", err)
		}
	}
	return nil
}

// StreamQuotes connects to the Kraken websocket ticker channel and sends best
// bid/ask updates until the context is cancelled.
func (k *KrakenClient) StreamQuotes(ctx context.Context, quotes chan<- model.PriceQuote, pairs []string) error {
	wsPairs := make([]string, 0, len(pairs))
	wsToPair := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		ws := strings.ReplaceAll(pair, "BTC", "XBT")
		wsPairs = append(wsPairs, ws)
		wsToPair[ws] = pair
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("stream shutting down")
			return nil
		default:
		}

		k.logger.Info("connecting to websocket", "url", krakenWSURL, "backoff", backoff)
		c, _, err := websocket.DefaultDialer.DialContext(ctx, krakenWSURL, nil)
		if err != nil {
			k.logger.Error("websocket connection failed", "error", err)
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
			"event": "subscribe",
			"pair":  wsPairs,
			"subscription": map[string]string{
				"name": "ticker",
			},
		}
		if err := c.WriteJSON(subscription); err != nil {
			k.logger.Error("failed to send subscription", "error", err)
			c.Close()
			continue
		}
		k.logger.Info("subscription sent")

		k.readKrakenStream(ctx, c, quotes, wsToPair)
		c.Close()
	}
}

func (k *KrakenClient) readKrakenStream(ctx context.Context, c *websocket.Conn, quotes chan<- model.PriceQuote, wsToPair map[string]string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.ReadMessage()
		if err != nil {
			k.logger.Error("failed to read message", "error", err)
			return
		}

		// Ticker frames arrive as [channelID, tickerData, channelName, pair];
		// event frames (heartbeat, subscriptionStatus) are JSON objects.
		var frame []json.RawMessage
		if err := json.Unmarshal(message, &frame); err != nil || len(frame) < 4 {
			continue
		}
		var ticker struct {
			Bid []json.Number `json:"b"`
			Ask []json.Number `json:"a"`
		}
		if err := json.Unmarshal(frame[1], &ticker); err != nil {
			continue
		}
		var wsPair string
		if err := json.Unmarshal(frame[len(frame)-1], &wsPair); err != nil {
			continue
		}
		pair, ok := wsToPair[wsPair]
		if !ok || len(ticker.Bid) == 0 || len(ticker.Ask) == 0 {
			continue
		}
		bid, err := ticker.Bid[0].Float64()
		if err != nil {
			continue
		}
		ask, err := ticker.Ask[0].Float64()
		if err != nil {
			continue
		}

		quote := model.PriceQuote{
			Venue:     k.Name(),
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
