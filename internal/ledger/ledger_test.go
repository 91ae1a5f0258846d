package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"arbot/internal/model"
)

func testAccounts() []model.VenueAccount {
	return []model.VenueAccount{
		{
			Venue: "kraken",
			Total: map[string]float64{"USDT": 1000, "BTC": 0.5},
			Free:  map[string]float64{"USDT": 800, "BTC": 0.5},
		},
		{
			Venue: "binance",
			Total: map[string]float64{"USDT": 500},
			Free:  map[string]float64{"USDT": 500},
		},
	}
}

func TestLedger_Commit(t *testing.T) {
	t.Run("commits reduce availability", func(t *testing.T) {
		led := NewCycle(testAccounts())
		assert.Equal(t, 800.0, led.AvailableFunds("kraken", "USDT"))

		assert.NoError(t, led.Commit("kraken", "USDT", 300))
		assert.Equal(t, 500.0, led.AvailableFunds("kraken", "USDT"))

		assert.NoError(t, led.Commit("kraken", "USDT", 500))
		assert.Equal(t, 0.0, led.AvailableFunds("kraken", "USDT"))
	})

	t.Run("over-commit is rejected and records nothing", func(t *testing.T) {
		led := NewCycle(testAccounts())
		assert.NoError(t, led.Commit("kraken", "USDT", 700))

		err := led.Commit("kraken", "USDT", 200)
		assert.ErrorIs(t, err, ErrOverCommit)
		assert.Equal(t, 100.0, led.AvailableFunds("kraken", "USDT"))
	})

	t.Run("non-positive commit is rejected", func(t *testing.T) {
		led := NewCycle(testAccounts())
		assert.Error(t, led.Commit("kraken", "USDT", 0))
		assert.Error(t, led.Commit("kraken", "USDT", -5))
		assert.Equal(t, 800.0, led.AvailableFunds("kraken", "USDT"))
	})

	t.Run("commits are isolated per venue and currency", func(t *testing.T) {
		led := NewCycle(testAccounts())
		assert.NoError(t, led.Commit("kraken", "USDT", 800))
		assert.Equal(t, 500.0, led.AvailableFunds("binance", "USDT"))
		assert.Equal(t, 0.5, led.AvailableFunds("kraken", "BTC"))
	})

	t.Run("unknown venue has no funds", func(t *testing.T) {
		led := NewCycle(testAccounts())
		assert.Equal(t, 0.0, led.AvailableFunds("coinbase", "USDT"))
		assert.Error(t, led.Commit("coinbase", "USDT", 1))
	})
}

func TestLedger_TotalFree(t *testing.T) {
	led := NewCycle(testAccounts())
	assert.Equal(t, 1300.0, led.TotalFree("USDT"))
	assert.Equal(t, 1300.5, led.TotalFree("USDT", "BTC"))

	assert.NoError(t, led.Commit("binance", "USDT", 500))
	assert.Equal(t, 800.0, led.TotalFree("USDT"))
}
