package rebalance

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"arbot/internal/ledger"
	"arbot/internal/model"
)

// fakePlacer accepts every order and records the intents it saw.
type fakePlacer struct {
	mu      sync.Mutex
	intents []model.OrderIntent
	fail    bool
}

func (f *fakePlacer) PlaceOrder(ctx context.Context, intent model.OrderIntent) model.OrderOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return model.OrderOutcome{Reason: "rejected"}
	}
	f.intents = append(f.intents, intent)
	return model.OrderOutcome{Success: true, OrderID: "o1", Price: intent.Price}
}

func (f *fakePlacer) MinAmount(string) float64 { return 0.0001 }

func runnerBook(ask float64) model.PriceBook {
	now := time.Now()
	return model.PriceBook{
		"BTC/USDT": {
			"kraken":  {Venue: "kraken", Pair: "BTC/USDT", Bid: ask - 10, Ask: ask, Timestamp: now},
			"binance": {Venue: "binance", Pair: "BTC/USDT", Bid: ask - 10, Ask: ask, Timestamp: now},
		},
	}
}

func TestRunner_Execute(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("splits spend across venues and commits each leg", func(t *testing.T) {
		placer := &fakePlacer{}
		r := NewRunner(logger, placer, hybridConfig(), 10.0)
		led := ledger.NewCycle([]model.VenueAccount{
			{Venue: "kraken", Free: map[string]float64{"USDT": 600}},
			{Venue: "binance", Free: map[string]float64{"USDT": 400}},
		})

		record, ok := r.Execute(context.Background(), led, runnerBook(50000))
		assert.True(t, ok)
		assert.Equal(t, 2, record.TradeCount)
		// 80% of the 1000 USDT stable total.
		assert.InDelta(t, 800.0, record.TotalSpent, 1e-9)
		assert.InDelta(t, 800.0/50000, record.TotalBought, 1e-9)
		// Whatever the venue order, the unspent 200 stays available.
		assert.InDelta(t, 200.0, led.TotalFree("USDT"), 1e-9)
		for _, intent := range placer.intents {
			assert.Equal(t, "BTC/USDT", intent.Pair)
			assert.Equal(t, model.SideBuy, intent.Side)
			assert.Equal(t, model.OrderTypeMarket, intent.Type)
		}
	})

	t.Run("large conversions use limit orders", func(t *testing.T) {
		placer := &fakePlacer{}
		r := NewRunner(logger, placer, hybridConfig(), 10.0)
		led := ledger.NewCycle([]model.VenueAccount{
			{Venue: "kraken", Free: map[string]float64{"USDT": 2000}},
		})

		record, ok := r.Execute(context.Background(), led, runnerBook(50000))
		assert.True(t, ok)
		assert.Equal(t, 1, record.TradeCount)
		assert.InDelta(t, 1600.0, record.TotalSpent, 1e-9)
		if assert.Len(t, placer.intents, 1) {
			assert.Equal(t, model.OrderTypeLimit, placer.intents[0].Type)
		}
	})

	t.Run("insufficient stable balance does nothing", func(t *testing.T) {
		placer := &fakePlacer{}
		r := NewRunner(logger, placer, hybridConfig(), 10.0)
		led := ledger.NewCycle([]model.VenueAccount{
			{Venue: "kraken", Free: map[string]float64{"USDT": 5}},
		})

		_, ok := r.Execute(context.Background(), led, runnerBook(50000))
		assert.False(t, ok)
		assert.Empty(t, placer.intents)
	})

	t.Run("rejected orders leave funds uncommitted", func(t *testing.T) {
		placer := &fakePlacer{fail: true}
		r := NewRunner(logger, placer, hybridConfig(), 10.0)
		led := ledger.NewCycle([]model.VenueAccount{
			{Venue: "kraken", Free: map[string]float64{"USDT": 600}},
		})

		_, ok := r.Execute(context.Background(), led, runnerBook(50000))
		assert.False(t, ok)
		assert.InDelta(t, 600.0, led.TotalFree("USDT"), 1e-9)
	})

	t.Run("missing price skips the venue", func(t *testing.T) {
		placer := &fakePlacer{}
		r := NewRunner(logger, placer, hybridConfig(), 10.0)
		led := ledger.NewCycle([]model.VenueAccount{
			{Venue: "kraken", Free: map[string]float64{"USDT": 600}},
			{Venue: "coinbase", Free: map[string]float64{"USDT": 400}},
		})

		record, ok := r.Execute(context.Background(), led, runnerBook(50000))
		assert.True(t, ok)
		assert.Equal(t, 1, record.TradeCount)
		if assert.Len(t, placer.intents, 1) {
			assert.Equal(t, "kraken", placer.intents[0].Venue)
		}
	})
}
