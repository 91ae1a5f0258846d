// Package executor places orders and runs the two arbitrage execution
// strategies. Failures surface as typed outcomes with a reason; the caller
// decides whether to log-and-continue or abort.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"arbot/internal/config"
	"arbot/internal/model"
	"arbot/internal/venue"
)

// Outcome reasons the strategies branch on.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonBelowMinimum      = "below_venue_minimum"
	ReasonUnknownVenue      = "unknown_venue"
)

// marketBuyPremium is the slight premium applied when converting a base
// amount into quote-currency cost for venues that price market buys by spend.
const marketBuyPremium = 1.005

// Placer validates and submits single orders, adapting construction to each
// venue's quirks.
type Placer struct {
	logger *slog.Logger
	venues map[string]venue.Client
	cfgs   map[string]config.VenueConfig
}

// NewPlacer creates a Placer over the connected venue clients.
func NewPlacer(logger *slog.Logger, venues map[string]venue.Client, cfgs map[string]config.VenueConfig) *Placer {
	return &Placer{
		logger: logger.With(slog.String("component", "placer")),
		venues: venues,
		cfgs:   cfgs,
	}
}

// MinAmount returns the minimum tradable base amount for a venue.
func (p *Placer) MinAmount(venueName string) float64 {
	return p.cfgs[venueName].MinTradeAmount
}

// PlaceOrder validates the intent and submits it to the venue. The outcome
// carries success, the venue order id, and a failure reason on rejection.
func (p *Placer) PlaceOrder(ctx context.Context, intent model.OrderIntent) model.OrderOutcome {
	client, ok := p.venues[intent.Venue]
	if !ok {
		return model.OrderOutcome{Reason: ReasonUnknownVenue}
	}
	cfg := p.cfgs[intent.Venue]

	if intent.Amount < cfg.MinTradeAmount {
		p.logger.Warn("amount below venue minimum",
			"venue", intent.Venue,
			"pair", intent.Pair,
			"amount", intent.Amount,
			"minimum", cfg.MinTradeAmount,
		)
		return model.OrderOutcome{Reason: ReasonBelowMinimum}
	}

	var (
		orderID string
		price   = intent.Price
		err     error
	)
	switch {
	case intent.Type == model.OrderTypeLimit:
		// Round down so a retry at a premium never overpays past the
		// venue's price granularity.
		price = roundDownToIncrement(intent.Price, cfg.PriceIncrement)
		orderID, err = client.CreateLimitOrder(ctx, intent.Pair, intent.Side, intent.Amount, price)

	case intent.Side == model.SideBuy && cfg.MarketBuyByCost:
		// Some venues size market buys by quote-currency spend rather than
		// base quantity.
		var ticker model.PriceQuote
		ticker, err = client.FetchTicker(ctx, intent.Pair)
		if err == nil {
			cost := intent.Amount * ticker.Ask * marketBuyPremium
			price = ticker.Ask
			orderID, err = client.CreateMarketBuyByCost(ctx, intent.Pair, cost)
		}

	default:
		orderID, err = client.CreateMarketOrder(ctx, intent.Pair, intent.Side, intent.Amount)
	}

	if err != nil {
		reason := err.Error()
		if errors.Is(err, venue.ErrInsufficientFunds) {
			reason = ReasonInsufficientFunds
		}
		p.logger.Error("order rejected",
			"venue", intent.Venue,
			"pair", intent.Pair,
			"side", intent.Side,
			"amount", intent.Amount,
			"reason", reason,
		)
		return model.OrderOutcome{Reason: reason}
	}

	p.logger.Info("order placed",
		"venue", intent.Venue,
		"pair", intent.Pair,
		"side", intent.Side,
		"type", intent.Type,
		"amount", intent.Amount,
		"price", price,
		"orderID", orderID,
	)
	return model.OrderOutcome{Success: true, OrderID: orderID, Price: price}
}

// Cancel attempts to cancel a resting order. Best effort: a failed cancel is
// logged and not retried; the risk of a stray limit order is bounded by its
// distance from market.
func (p *Placer) Cancel(ctx context.Context, venueName, orderID, pair string) {
	client, ok := p.venues[venueName]
	if !ok {
		return
	}
	if err := client.CancelOrder(ctx, orderID, pair); err != nil {
		p.logger.Warn("cancel failed",
			"venue", venueName,
			"orderID", orderID,
			"error", err,
		)
		return
	}
	p.logger.Info("order cancelled", "venue", venueName, "orderID", orderID)
}

// roundDownToIncrement floors price to a multiple of the venue's price
// granularity. A zero increment leaves the price untouched.
func roundDownToIncrement(price, increment float64) float64 {
	if increment <= 0 {
		return price
	}
	return math.Floor(price/increment) * increment
}
