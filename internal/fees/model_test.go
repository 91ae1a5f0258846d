package fees

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"arbot/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func creditConfig() config.FeesConfig {
	return config.FeesConfig{
		DefaultTakerRate: 0.001,
		Programs: map[string]config.FeeProgramConfig{
			"binance": {
				Program:          "credit",
				StandardRate:     0.001,
				DiscountRate:     0.0002,
				CreditCeilingUSD: 1.0,
			},
			"kraken": {
				Program:      "flat",
				StandardRate: 0.0026,
				DiscountRate: 0.0016,
			},
		},
	}
}

func TestModel_EffectiveRate(t *testing.T) {
	t.Run("unknown venue uses default rate", func(t *testing.T) {
		m := NewModel(testLogger(), creditConfig())
		assert.Equal(t, 0.001, m.EffectiveRate("coinbase", 500))
	})

	t.Run("flat program always discounts", func(t *testing.T) {
		m := NewModel(testLogger(), creditConfig())
		assert.Equal(t, 0.0016, m.EffectiveRate("kraken", 500))
		assert.Equal(t, 0.0016, m.EffectiveRate("kraken", 1e9))
	})

	t.Run("credit program discounts until exhausted", func(t *testing.T) {
		m := NewModel(testLogger(), creditConfig())

		// Each $500 trade reserves $0.10 of the $1 credit.
		for i := 0; i < 10; i++ {
			assert.Equal(t, 0.0002, m.EffectiveRate("binance", 500))
		}
		assert.InDelta(t, 0.0, m.CreditRemaining("binance"), 1e-12)

		// Credit gone, standard rate applies.
		assert.Equal(t, 0.001, m.EffectiveRate("binance", 500))
	})

	t.Run("quote rate reserves nothing", func(t *testing.T) {
		m := NewModel(testLogger(), creditConfig())

		for i := 0; i < 100; i++ {
			assert.Equal(t, 0.0002, m.QuoteRate("binance", 500))
		}
		assert.InDelta(t, 1.0, m.CreditRemaining("binance"), 1e-12)
	})

	t.Run("credit resets on new month", func(t *testing.T) {
		m := NewModel(testLogger(), creditConfig())
		current := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return current }

		for i := 0; i < 10; i++ {
			m.EffectiveRate("binance", 500)
		}
		assert.Equal(t, 0.001, m.EffectiveRate("binance", 500))

		current = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, 0.0002, m.EffectiveRate("binance", 500))
		assert.InDelta(t, 0.9, m.CreditRemaining("binance"), 1e-12)
	})
}

func TestModel_LoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fee_state.json")

	m := NewModel(testLogger(), creditConfig())
	m.EffectiveRate("binance", 500)
	usedBefore := 1.0 - m.CreditRemaining("binance")
	assert.NoError(t, m.Save(path))

	t.Run("restore persisted consumption", func(t *testing.T) {
		fresh := NewModel(testLogger(), creditConfig())
		assert.NoError(t, fresh.Load(path))
		assert.InDelta(t, usedBefore, 1.0-fresh.CreditRemaining("binance"), 1e-12)
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		fresh := NewModel(testLogger(), creditConfig())
		assert.NoError(t, fresh.Load(filepath.Join(t.TempDir(), "nope.json")))
		assert.InDelta(t, 1.0, fresh.CreditRemaining("binance"), 1e-12)
	})

	t.Run("unconfigured venues are not restored", func(t *testing.T) {
		cfg := creditConfig()
		delete(cfg.Programs, "binance")
		fresh := NewModel(testLogger(), cfg)
		assert.NoError(t, fresh.Load(path))
		assert.Equal(t, 0.001, fresh.EffectiveRate("binance", 500))
	})
}
