package venue

import (
	"context"
	"errors"
	"time"

	"arbot/internal/model"
)

// ErrInsufficientFunds marks venue rejections caused by a funds shortfall.
// Callers treat it as terminal for the trade intent: price adjustment cannot
// create funds, so no retry is attempted.
var ErrInsufficientFunds = errors.New("venue: insufficient funds")

// Client is the standard interface for all venue connectivity. Authentication,
// rate limiting, and wire-protocol detail live behind it.
type Client interface {
	Name() string

	// FetchBalances returns a snapshot of total and free balances.
	FetchBalances(ctx context.Context) (model.VenueAccount, error)

	// FetchTicker returns the current best bid/ask for a pair.
	FetchTicker(ctx context.Context, pair string) (model.PriceQuote, error)

	// CreateLimitOrder places a limit order and returns the venue order id.
	CreateLimitOrder(ctx context.Context, pair string, side model.Side, amount, price float64) (string, error)

	// CreateMarketOrder places a market order sized in base currency.
	CreateMarketOrder(ctx context.Context, pair string, side model.Side, amount float64) (string, error)

	// CreateMarketBuyByCost places a market buy sized by quote-currency spend,
	// for venues that price market buys in cost rather than quantity.
	CreateMarketBuyByCost(ctx context.Context, pair string, costUSD float64) (string, error)

	// CancelOrder cancels a resting order. Best effort; a failed cancel is
	// logged by the caller, not retried.
	CancelOrder(ctx context.Context, orderID, pair string) error

	// ServerTime hits the venue's public time endpoint, used for latency probes.
	ServerTime(ctx context.Context) (time.Time, error)

	// StreamQuotes connects to the venue's websocket ticker stream and sends
	// best bid/ask updates for the given pairs until the context is cancelled.
	StreamQuotes(ctx context.Context, quotes chan<- model.PriceQuote, pairs []string) error
}
