// Package rebalance compares the portfolio's current allocation against
// target allocation and converts idle stable-value holdings into the traded
// asset when divergence warrants it.
package rebalance

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"arbot/internal/config"
	"arbot/internal/ledger"
	"arbot/internal/model"
)

// tradedAsset is the asset arbitrage trades in; stableAssets are valued 1:1.
const tradedAsset = "BTC"

var stableAssets = []string{"USDT", "USDC", "USD"}

func isStable(currency string) bool {
	for _, s := range stableAssets {
		if currency == s {
			return true
		}
	}
	return false
}

// Planner decides whether the portfolio needs rebalancing and produces a
// plan of per-asset buy/sell notionals.
type Planner struct {
	logger *slog.Logger
	cfg    config.RebalanceConfig
}

// NewPlanner creates a Planner with the configured policy.
func NewPlanner(logger *slog.Logger, cfg config.RebalanceConfig) *Planner {
	return &Planner{
		logger: logger.With(slog.String("component", "rebalance")),
		cfg:    cfg,
	}
}

// Allocations values every holding in USD terms and returns each asset's
// share of total portfolio value, plus the per-asset USD values and the
// total. The map is empty when total value is zero or the traded asset has
// no usable price — callers skip the cycle in that case.
func (p *Planner) Allocations(accounts []model.VenueAccount, book model.PriceBook) (map[string]float64, map[string]float64, float64) {
	values := make(map[string]float64)
	total := 0.0

	for _, acct := range accounts {
		for currency, amount := range acct.Total {
			if amount <= 0 {
				continue
			}
			switch {
			case isStable(currency):
				values[currency] += amount
				total += amount
			case currency == tradedAsset:
				v := assetValue(acct.Venue, amount, book)
				if v > 0 {
					values[tradedAsset] += v
					total += v
				}
			}
		}
	}
	if total <= 0 {
		return nil, nil, 0
	}

	allocations := make(map[string]float64, len(values))
	for asset, v := range values {
		allocations[asset] = v / total
	}
	return allocations, values, total
}

// Sorted returns allocations as (asset, share) pairs sorted descending, for
// reporting.
func Sorted(allocations map[string]float64) []struct {
	Asset string
	Share float64
} {
	out := make([]struct {
		Asset string
		Share float64
	}, 0, len(allocations))
	for asset, share := range allocations {
		out = append(out, struct {
			Asset string
			Share float64
		}{asset, share})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Share > out[j].Share })
	return out
}

// assetValue prices a traded-asset holding via the best bid seen on that
// venue, preferring the asset's own pairs and falling back to any pair that
// contains it. Bid is used for conservative valuation.
func assetValue(venueName string, amount float64, book model.PriceBook) float64 {
	for _, pair := range []string{"BTC/USDT", "BTC/USDC", "BTC/USD"} {
		if q, ok := book[pair][venueName]; ok && q.Bid > 0 {
			return amount * q.Bid
		}
	}
	for pair, venues := range book {
		if !strings.Contains(pair, tradedAsset) {
			continue
		}
		if q, ok := venues[venueName]; ok && q.Bid > 0 {
			return amount * q.Bid
		}
	}
	return 0
}

// ShouldRebalance applies the configured allocation-checking policy. Missing
// prices or an empty portfolio fail safe: no rebalance this cycle.
func (p *Planner) ShouldRebalance(led *ledger.Ledger, book model.PriceBook) bool {
	if len(book) == 0 {
		p.logger.Warn("no price data, skipping rebalance check")
		return false
	}
	allocations, _, _ := p.Allocations(led.Accounts(), book)
	if len(allocations) == 0 {
		p.logger.Info("no portfolio value to calculate allocations")
		return false
	}
	p.logger.Info("current allocations", "allocations", allocations)

	if p.cfg.Hybrid {
		return p.checkHybrid(allocations, led)
	}
	return p.checkStatic(allocations)
}

// checkStatic triggers when any asset diverges from its static target by
// more than the threshold.
func (p *Planner) checkStatic(allocations map[string]float64) bool {
	for asset, current := range allocations {
		target, ok := p.cfg.Targets[asset]
		if !ok {
			continue
		}
		if diff := math.Abs(current - target); diff > p.cfg.Threshold {
			p.logger.Info("static divergence",
				"asset", asset,
				"current", current,
				"target", target,
				"diff", diff,
			)
			return true
		}
	}
	return false
}

// checkHybrid triggers when the traded asset is underweight and there are
// stables to act on, when it is overweight (always actionable), or when any
// single asset breaches the concentration limit.
func (p *Planner) checkHybrid(allocations map[string]float64, led *ledger.Ledger) bool {
	current := allocations[tradedAsset]
	target := p.cfg.Targets[tradedAsset]

	switch {
	case current < target-p.cfg.Threshold:
		stable := led.TotalFree(stableAssets...)
		p.logger.Info("traded asset underweight",
			"current", current,
			"target", target,
			"freeStableUSD", stable,
		)
		if stable > p.cfg.MinAmountUSD {
			return true
		}
	case current > target+p.cfg.Threshold:
		p.logger.Info("traded asset overweight", "current", current, "target", target)
		return true
	}

	for asset, share := range allocations {
		if share > p.cfg.ConcentrationLimit {
			p.logger.Warn("asset concentration breach",
				"asset", asset,
				"share", share,
				"limit", p.cfg.ConcentrationLimit,
			)
			return true
		}
	}
	return false
}

// Plan computes per-asset buy/sell notionals from the gap between target
// value and current value, dropping entries below the minimum actionable
// amount. Venue selection is deferred to execution.
func (p *Planner) Plan(accounts []model.VenueAccount, book model.PriceBook) model.RebalancePlan {
	plan := model.RebalancePlan{
		Buys:  make(map[string]float64),
		Sells: make(map[string]float64),
	}
	_, values, total := p.Allocations(accounts, book)
	if total <= 0 {
		return plan
	}

	for asset, targetPct := range p.cfg.Targets {
		diff := total*targetPct - values[asset]
		if math.Abs(diff) < p.cfg.MinAmountUSD {
			continue
		}
		if diff > 0 {
			plan.Buys[asset] = diff
		} else {
			plan.Sells[asset] = -diff
		}
	}
	p.logger.Info("rebalance plan", "buys", plan.Buys, "sells", plan.Sells)
	return plan
}
