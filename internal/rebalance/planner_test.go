package rebalance

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"arbot/internal/config"
	"arbot/internal/ledger"
	"arbot/internal/model"
)

func hybridConfig() config.RebalanceConfig {
	return config.RebalanceConfig{
		Targets:            map[string]float64{"BTC": 0.50, "USDT": 0.25, "USDC": 0.25},
		Threshold:          0.05,
		Hybrid:             true,
		MinAmountUSD:       10.0,
		StableSpendFrac:    0.8,
		ConcentrationLimit: 0.65,
	}
}

func testBook(price float64) model.PriceBook {
	return model.PriceBook{
		"BTC/USDT": {
			"kraken": {Venue: "kraken", Pair: "BTC/USDT", Bid: price, Ask: price + 10, Timestamp: time.Now()},
		},
	}
}

// ledgerWith builds a single-venue ledger holding the given USD value in BTC
// and USDT at a BTC price of 50000.
func ledgerWith(btcUSD, usdtUSD float64) *ledger.Ledger {
	return ledger.NewCycle([]model.VenueAccount{{
		Venue: "kraken",
		Total: map[string]float64{"BTC": btcUSD / 50000, "USDT": usdtUSD},
		Free:  map[string]float64{"BTC": btcUSD / 50000, "USDT": usdtUSD},
	}})
}

func TestPlanner_ShouldRebalance(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	p := NewPlanner(logger, hybridConfig())
	book := testBook(50000)

	t.Run("underweight traded asset with free stables", func(t *testing.T) {
		led := ledgerWith(300, 700)
		assert.True(t, p.ShouldRebalance(led, book))
	})

	t.Run("underweight but no free stables to act on", func(t *testing.T) {
		// Stables count toward allocation but none are free to spend.
		led := ledger.NewCycle([]model.VenueAccount{{
			Venue: "kraken",
			Total: map[string]float64{"BTC": 300.0 / 50000, "USD": 700},
			Free:  map[string]float64{"BTC": 300.0 / 50000},
		}})
		p2 := NewPlanner(logger, config.RebalanceConfig{
			Targets:            map[string]float64{"BTC": 0.50},
			Threshold:          0.05,
			Hybrid:             true,
			MinAmountUSD:       10.0,
			ConcentrationLimit: 0.75,
		})
		assert.False(t, p2.ShouldRebalance(led, book))
	})

	t.Run("on target", func(t *testing.T) {
		led := ledgerWith(500, 500)
		p2 := NewPlanner(logger, config.RebalanceConfig{
			Targets:            map[string]float64{"BTC": 0.50, "USDT": 0.50},
			Threshold:          0.05,
			Hybrid:             true,
			MinAmountUSD:       10.0,
			ConcentrationLimit: 0.65,
		})
		assert.False(t, p2.ShouldRebalance(led, book))
	})

	t.Run("overweight traded asset", func(t *testing.T) {
		led := ledgerWith(800, 200)
		assert.True(t, p.ShouldRebalance(led, book))
	})

	t.Run("concentration breach triggers even near target", func(t *testing.T) {
		// BTC within its band, but USDT at 55% breaches a 50% limit.
		cfg := hybridConfig()
		cfg.ConcentrationLimit = 0.50
		p3 := NewPlanner(logger, cfg)
		assert.True(t, p3.ShouldRebalance(ledgerWith(450, 550), book))
	})

	t.Run("no prices fails safe", func(t *testing.T) {
		led := ledgerWith(300, 700)
		assert.False(t, p.ShouldRebalance(led, model.PriceBook{}))
	})

	t.Run("empty portfolio fails safe", func(t *testing.T) {
		led := ledger.NewCycle(nil)
		assert.False(t, p.ShouldRebalance(led, book))
	})

	t.Run("static policy checks every target", func(t *testing.T) {
		cfg := hybridConfig()
		cfg.Hybrid = false
		p2 := NewPlanner(logger, cfg)

		assert.True(t, p2.ShouldRebalance(ledgerWith(300, 700), book))

		onTarget := ledger.NewCycle([]model.VenueAccount{{
			Venue: "kraken",
			Total: map[string]float64{"BTC": 500.0 / 50000, "USDT": 250, "USDC": 250},
			Free:  map[string]float64{"USDT": 250, "USDC": 250},
		}})
		assert.False(t, p2.ShouldRebalance(onTarget, book))
	})
}

func TestPlanner_Allocations(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	p := NewPlanner(logger, hybridConfig())

	t.Run("values traded asset at venue bid", func(t *testing.T) {
		accounts := []model.VenueAccount{{
			Venue: "kraken",
			Total: map[string]float64{"BTC": 0.01, "USDT": 500},
		}}
		allocations, values, total := p.Allocations(accounts, testBook(50000))
		assert.Equal(t, 1000.0, total)
		assert.Equal(t, 500.0, values["BTC"])
		assert.Equal(t, 0.5, allocations["BTC"])
		assert.Equal(t, 0.5, allocations["USDT"])
	})

	t.Run("unpriceable holdings are excluded", func(t *testing.T) {
		accounts := []model.VenueAccount{{
			Venue: "coinbase", // no quotes for this venue
			Total: map[string]float64{"BTC": 0.01, "USDT": 500},
		}}
		allocations, _, total := p.Allocations(accounts, testBook(50000))
		assert.Equal(t, 500.0, total)
		assert.Equal(t, 1.0, allocations["USDT"])
	})

	t.Run("empty book yields nothing", func(t *testing.T) {
		accounts := []model.VenueAccount{{Venue: "kraken", Total: map[string]float64{"BTC": 0.01}}}
		allocations, _, total := p.Allocations(accounts, model.PriceBook{})
		assert.Zero(t, total)
		assert.Empty(t, allocations)
	})
}

func TestPlanner_Plan(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	p := NewPlanner(logger, hybridConfig())

	t.Run("buys and sells from target gaps", func(t *testing.T) {
		accounts := []model.VenueAccount{{
			Venue: "kraken",
			Total: map[string]float64{"BTC": 300.0 / 50000, "USDT": 700},
		}}
		plan := p.Plan(accounts, testBook(50000))
		assert.InDelta(t, 200.0, plan.Buys["BTC"], 1e-9)
		assert.InDelta(t, 450.0, plan.Sells["USDT"], 1e-9)
		// USDC target exists but holding is zero: buy the full target.
		assert.InDelta(t, 250.0, plan.Buys["USDC"], 1e-9)
	})

	t.Run("gaps below minimum are dropped", func(t *testing.T) {
		accounts := []model.VenueAccount{{
			Venue: "kraken",
			Total: map[string]float64{"BTC": 502.0 / 50000, "USDT": 249, "USDC": 249},
		}}
		plan := p.Plan(accounts, testBook(50000))
		assert.True(t, plan.Empty())
	})
}
