package executor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"arbot/internal/model"
)

// OrderPlacer is the interface through which strategies submit and cancel
// orders. Implemented by Placer; faked in tests.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, intent model.OrderIntent) model.OrderOutcome
	Cancel(ctx context.Context, venueName, orderID, pair string)
}

// FeeReserver records fee consumption for executed legs, so credit-based
// discount programs track what a completed trade actually spent.
type FeeReserver interface {
	EffectiveRate(venue string, tradeValueUSD float64) float64
}

// Executor is the shared contract of the two arbitrage execution strategies.
// The mode controller swaps the active implementation on a latency change.
type Executor interface {
	Name() string
	ExecuteArbitrage(ctx context.Context, opp model.Opportunity) (bool, error)
}

// limitIntent builds a limit order intent for one leg of an opportunity.
func limitIntent(venueName, pair string, side model.Side, amount, price float64) model.OrderIntent {
	return model.OrderIntent{
		ClientID: uuid.New().String(),
		Venue:    venueName,
		Pair:     pair,
		Side:     side,
		Type:     model.OrderTypeLimit,
		Amount:   amount,
		Price:    price,
	}
}

// sleepCtx pauses for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
