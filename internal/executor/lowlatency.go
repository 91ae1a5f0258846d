package executor

import (
	"context"
	"log/slog"
	"time"

	"arbot/internal/model"
)

// lowLatencyLegPause lets the buy settle before the sell is attempted.
const lowLatencyLegPause = 50 * time.Millisecond

// LowLatency executes both legs once, at the observed best prices. Speed is
// the point: any failure is terminal for the cycle.
type LowLatency struct {
	logger *slog.Logger
	placer OrderPlacer
	fees   FeeReserver
}

// NewLowLatency creates the low-latency strategy.
func NewLowLatency(logger *slog.Logger, placer OrderPlacer, fees FeeReserver) *LowLatency {
	return &LowLatency{
		logger: logger.With(slog.String("executor", "low_latency")),
		placer: placer,
		fees:   fees,
	}
}

func (e *LowLatency) Name() string { return "low_latency" }

// ExecuteArbitrage places the buy leg, pauses briefly, then places the sell
// leg. If the sell fails the buy is cancelled best-effort.
func (e *LowLatency) ExecuteArbitrage(ctx context.Context, opp model.Opportunity) (bool, error) {
	e.logger.Info("executing arbitrage",
		"pair", opp.Pair,
		"buyVenue", opp.BuyVenue,
		"sellVenue", opp.SellVenue,
		"amount", opp.Amount,
		"buyPrice", opp.BuyPrice,
		"sellPrice", opp.SellPrice,
	)

	buy := e.placer.PlaceOrder(ctx, limitIntent(opp.BuyVenue, opp.Pair, model.SideBuy, opp.Amount, opp.BuyPrice))
	if !buy.Success {
		e.logger.Error("buy leg failed", "reason", buy.Reason)
		return false, nil
	}

	if err := sleepCtx(ctx, lowLatencyLegPause); err != nil {
		e.placer.Cancel(ctx, opp.BuyVenue, buy.OrderID, opp.Pair)
		return false, err
	}

	sell := e.placer.PlaceOrder(ctx, limitIntent(opp.SellVenue, opp.Pair, model.SideSell, opp.Amount, opp.SellPrice))
	if !sell.Success {
		e.logger.Error("sell leg failed, cancelling buy", "reason", sell.Reason)
		e.placer.Cancel(ctx, opp.BuyVenue, buy.OrderID, opp.Pair)
		return false, nil
	}

	// Record fee consumption for both executed legs.
	e.fees.EffectiveRate(opp.BuyVenue, opp.Amount*buy.Price)
	e.fees.EffectiveRate(opp.SellVenue, opp.Amount*sell.Price)

	estProfit := (sell.Price - buy.Price) * opp.Amount
	e.logger.Info("arbitrage executed",
		"pair", opp.Pair,
		"estProfitUSD", estProfit,
	)
	return true, nil
}
