package rebalance

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"arbot/internal/config"
	"arbot/internal/ledger"
	"arbot/internal/model"
)

// limitOrderThresholdUSD switches large conversions to limit orders for
// better execution.
const limitOrderThresholdUSD = 1000.0

// OrderPlacer is what the runner needs to submit conversion orders.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, intent model.OrderIntent) model.OrderOutcome
	MinAmount(venueName string) float64
}

// Trade is one executed conversion leg of a rebalance run.
type Trade struct {
	Venue   string
	Pair    string
	Amount  float64
	CostUSD float64
	OrderID string
}

// Runner executes a rebalance by buying the traded asset with stable-value
// balances across venues, committing each spend against the cycle ledger so
// no balance is allocated twice.
type Runner struct {
	logger *slog.Logger
	placer OrderPlacer
	cfg    config.RebalanceConfig
	minUSD float64
}

// NewRunner creates a rebalance Runner. minOrderValueUSD is the smallest
// conversion worth submitting.
func NewRunner(logger *slog.Logger, placer OrderPlacer, cfg config.RebalanceConfig, minOrderValueUSD float64) *Runner {
	return &Runner{
		logger: logger.With(slog.String("component", "rebalance_runner")),
		placer: placer,
		cfg:    cfg,
		minUSD: minOrderValueUSD,
	}
}

// Execute spends the configured fraction of free stable balances on the
// traded asset, largest stablecoin first, splitting across venues when no
// single venue holds enough. Returns the audit record and whether any trade
// executed.
func (r *Runner) Execute(ctx context.Context, led *ledger.Ledger, book model.PriceBook) (model.RebalanceRecord, bool) {
	totals := r.stableTotals(led)
	totalStable := 0.0
	for _, v := range totals {
		totalStable += v
	}
	if totalStable < r.minUSD {
		r.logger.Info("insufficient stable balance for rebalance",
			"totalStableUSD", totalStable,
			"minimumUSD", r.minUSD,
		)
		return model.RebalanceRecord{}, false
	}

	spendBudget := totalStable * r.cfg.StableSpendFrac
	r.logger.Info("executing portfolio rebalance",
		"totalStableUSD", totalStable,
		"spendBudgetUSD", spendBudget,
	)

	// Largest stablecoin balance first.
	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Slice(currencies, func(i, j int) bool { return totals[currencies[i]] > totals[currencies[j]] })

	var trades []Trade
	remaining := spendBudget
	for _, currency := range currencies {
		if remaining <= 0 {
			break
		}
		useValue := math.Min(totals[currency], remaining)
		if useValue < r.minUSD {
			continue
		}
		executed := r.buyWithStable(ctx, led, book, currency, useValue)
		if len(executed) > 0 {
			trades = append(trades, executed...)
			remaining -= useValue
		}
	}

	if len(trades) == 0 {
		r.logger.Warn("rebalance executed no trades")
		return model.RebalanceRecord{}, false
	}

	record := model.RebalanceRecord{Timestamp: time.Now(), TradeCount: len(trades)}
	for _, t := range trades {
		record.TotalBought += t.Amount
		record.TotalSpent += t.CostUSD
	}
	r.logger.Info("rebalance complete",
		"trades", record.TradeCount,
		"totalBought", record.TotalBought,
		"totalSpentUSD", record.TotalSpent,
	)
	return record, true
}

// stableTotals sums uncommitted stable balances per currency across venues.
func (r *Runner) stableTotals(led *ledger.Ledger) map[string]float64 {
	totals := make(map[string]float64)
	for _, acct := range led.Accounts() {
		for _, currency := range stableAssets {
			if v := led.AvailableFunds(acct.Venue, currency); v > 0 {
				totals[currency] += v
			}
		}
	}
	return totals
}

// buyWithStable converts up to useValue of one stablecoin into the traded
// asset, iterating venues and splitting the buy when a single venue lacks
// funds. Each successful order commits its spend in the ledger.
func (r *Runner) buyWithStable(ctx context.Context, led *ledger.Ledger, book model.PriceBook, currency string, useValue float64) []Trade {
	// Most venues quote no direct USD pair for the traded asset.
	target := currency
	if currency == "USD" {
		target = "USDT"
	}
	pair := tradedAsset + "/" + target

	var trades []Trade
	for _, acct := range led.Accounts() {
		if useValue < r.minUSD {
			break
		}
		available := led.AvailableFunds(acct.Venue, target)
		if available <= 0 {
			continue
		}
		venueSpend := math.Min(useValue, available)
		if venueSpend < r.minUSD {
			continue
		}

		quote, ok := book[pair][acct.Venue]
		if !ok || quote.Ask <= 0 {
			r.logger.Warn("no price for conversion", "pair", pair, "venue", acct.Venue)
			continue
		}
		amount := venueSpend / quote.Ask
		if amount < r.placer.MinAmount(acct.Venue) {
			r.logger.Warn("conversion below venue minimum",
				"venue", acct.Venue,
				"amount", amount,
				"minimum", r.placer.MinAmount(acct.Venue),
			)
			continue
		}

		orderType := model.OrderTypeMarket
		price := quote.Ask
		if venueSpend > limitOrderThresholdUSD {
			orderType = model.OrderTypeLimit
		}
		outcome := r.placer.PlaceOrder(ctx, model.OrderIntent{
			ClientID: uuid.New().String(),
			Venue:    acct.Venue,
			Pair:     pair,
			Side:     model.SideBuy,
			Type:     orderType,
			Amount:   amount,
			Price:    price,
		})
		if !outcome.Success {
			r.logger.Warn("conversion failed",
				"venue", acct.Venue,
				"pair", pair,
				"reason", outcome.Reason,
			)
			continue
		}

		if err := led.Commit(acct.Venue, target, venueSpend); err != nil {
			// The order went through; an over-commit here means the caller
			// raced the snapshot. Log loudly and stop spending this cycle.
			r.logger.Error("ledger commit rejected after fill", "error", err)
			break
		}
		trades = append(trades, Trade{
			Venue:   acct.Venue,
			Pair:    pair,
			Amount:  amount,
			CostUSD: venueSpend,
			OrderID: outcome.OrderID,
		})
		useValue -= venueSpend
	}
	return trades
}
