package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"arbot/internal/model"
)

// highLatencyLegPause allows slower order books to absorb the buy before the
// sell is attempted.
const highLatencyLegPause = time.Second

// HighLatency executes with order chasing: up to maxAttempts tries per pair
// of legs, each retry widening the quoted spread so a fill on slow venues
// still clears fees.
type HighLatency struct {
	logger      *slog.Logger
	placer      OrderPlacer
	fees        FeeReserver
	maxAttempts int
	adjustPct   float64
}

// NewHighLatency creates the high-latency strategy. adjustPct is the
// per-attempt price adjustment in percent.
func NewHighLatency(logger *slog.Logger, placer OrderPlacer, fees FeeReserver, maxAttempts int, adjustPct float64) *HighLatency {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &HighLatency{
		logger:      logger.With(slog.String("executor", "high_latency")),
		placer:      placer,
		fees:        fees,
		maxAttempts: maxAttempts,
		adjustPct:   adjustPct,
	}
}

func (e *HighLatency) Name() string { return "high_latency" }

// ExecuteArbitrage retries the full buy/sell pair, adjusting both quotes a
// step further each attempt. A failed sell cancels the buy before the next
// attempt; an insufficient funds rejection aborts immediately, since retrying
// cannot create funds.
func (e *HighLatency) ExecuteArbitrage(ctx context.Context, opp model.Opportunity) (bool, error) {
	e.logger.Info("executing arbitrage",
		"pair", opp.Pair,
		"buyVenue", opp.BuyVenue,
		"sellVenue", opp.SellVenue,
		"spreadPct", opp.SpreadPct,
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.Reset()

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		adj := e.adjustPct / 100 * float64(attempt)
		buyPrice := opp.BuyPrice * (1 - adj)
		sellPrice := opp.SellPrice * (1 + adj)
		e.logger.Info("attempt",
			"n", attempt+1,
			"max", e.maxAttempts,
			"buyPrice", buyPrice,
			"sellPrice", sellPrice,
		)

		buy := e.placer.PlaceOrder(ctx, limitIntent(opp.BuyVenue, opp.Pair, model.SideBuy, opp.Amount, buyPrice))
		if !buy.Success {
			if buy.Reason == ReasonInsufficientFunds {
				e.logger.Error("buy leg lacks funds, aborting")
				return false, nil
			}
			e.logger.Warn("buy leg failed", "attempt", attempt+1, "reason", buy.Reason)
			if err := e.waitRetry(ctx, bo, attempt); err != nil {
				return false, err
			}
			continue
		}

		if err := sleepCtx(ctx, highLatencyLegPause); err != nil {
			e.placer.Cancel(ctx, opp.BuyVenue, buy.OrderID, opp.Pair)
			return false, err
		}

		sell := e.placer.PlaceOrder(ctx, limitIntent(opp.SellVenue, opp.Pair, model.SideSell, opp.Amount, sellPrice))
		if sell.Success {
			e.fees.EffectiveRate(opp.BuyVenue, opp.Amount*buy.Price)
			e.fees.EffectiveRate(opp.SellVenue, opp.Amount*sell.Price)

			estProfit := (sell.Price - buy.Price) * opp.Amount
			e.logger.Info("arbitrage executed",
				"pair", opp.Pair,
				"attempt", attempt+1,
				"estProfitUSD", estProfit,
			)
			return true, nil
		}

		e.logger.Warn("sell leg failed, cancelling buy", "attempt", attempt+1, "reason", sell.Reason)
		e.placer.Cancel(ctx, opp.BuyVenue, buy.OrderID, opp.Pair)

		if sell.Reason == ReasonInsufficientFunds {
			e.logger.Error("sell leg lacks funds, aborting")
			return false, nil
		}
		if err := e.waitRetry(ctx, bo, attempt); err != nil {
			return false, err
		}
	}

	e.logger.Error("all arbitrage attempts failed", "pair", opp.Pair)
	return false, nil
}

// waitRetry backs off exponentially between attempts; no wait after the last.
func (e *HighLatency) waitRetry(ctx context.Context, bo backoff.BackOff, attempt int) error {
	if attempt >= e.maxAttempts-1 {
		return nil
	}
	return sleepCtx(ctx, bo.NextBackOff())
}
