package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Arbitrage ArbitrageConfig
	Rebalance RebalanceConfig
	Mode      ModeConfig
	Fees      FeesConfig
	Database  DatabaseConfig
	Venues    map[string]VenueConfig
}

// ArbitrageConfig defines opportunity detection and execution settings.
type ArbitrageConfig struct {
	TradingPairs      []string `mapstructure:"trading_pairs"`
	PositionSizeUSD   float64  `mapstructure:"position_size_usd"`
	MinNetProfitPct   float64  `mapstructure:"min_net_profit_pct"`
	MinOrderValueUSD  float64  `mapstructure:"min_order_value_usd"`
	GoldVaultPct      float64  `mapstructure:"gold_vault_pct"`
	QuoteFreshnessSec float64  `mapstructure:"quote_freshness_sec"`
	ChaserAttempts    int      `mapstructure:"chaser_attempts"`
	PriceAdjustPct    float64  `mapstructure:"price_adjust_pct"`
}

// RebalanceConfig defines portfolio rebalancing policy.
type RebalanceConfig struct {
	Targets            map[string]float64 `mapstructure:"targets"`
	Threshold          float64            `mapstructure:"threshold"`
	Hybrid             bool               `mapstructure:"hybrid"`
	MinAmountUSD       float64            `mapstructure:"min_amount_usd"`
	StableSpendFrac    float64            `mapstructure:"stable_spend_frac"`
	ConcentrationLimit float64            `mapstructure:"concentration_limit"`
}

// ModeConfig defines latency measurement and mode switching.
type ModeConfig struct {
	LatencyThresholdMS  float64 `mapstructure:"latency_threshold_ms"`
	DefaultLatencyMS    float64 `mapstructure:"default_latency_ms"`
	CheckEveryCycles    int     `mapstructure:"check_every_cycles"`
	RequestTimeoutSec   float64 `mapstructure:"request_timeout_sec"`
	LowLatencySleepSec  float64 `mapstructure:"low_latency_sleep_sec"`
	HighLatencySleepSec float64 `mapstructure:"high_latency_sleep_sec"`
}

// FeesConfig defines the fee model state file and per-venue discount programs.
type FeesConfig struct {
	StatePath        string                      `mapstructure:"state_path"`
	DefaultTakerRate float64                     `mapstructure:"default_taker_rate"`
	Programs         map[string]FeeProgramConfig `mapstructure:"programs"`
}

// FeeProgramConfig defines one venue's fee discount program.
type FeeProgramConfig struct {
	Program          string  `mapstructure:"program"`
	StandardRate     float64 `mapstructure:"standard_rate"`
	DiscountRate     float64 `mapstructure:"discount_rate"`
	CreditCeilingUSD float64 `mapstructure:"credit_ceiling_usd"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// VenueConfig defines settings for a specific venue.
type VenueConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	APISecret       string  `mapstructure:"api_secret"`
	MinTradeAmount  float64 `mapstructure:"min_trade_amount"`
	PriceIncrement  float64 `mapstructure:"price_increment"`
	MarketBuyByCost bool    `mapstructure:"market_buy_by_cost"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("arbitrage.trading_pairs", []string{"BTC/USDT", "BTC/USDC"})
	viper.SetDefault("arbitrage.position_size_usd", 500.0)
	viper.SetDefault("arbitrage.min_net_profit_pct", 0.05)
	viper.SetDefault("arbitrage.min_order_value_usd", 10.0)
	viper.SetDefault("arbitrage.gold_vault_pct", 0.10)
	viper.SetDefault("arbitrage.quote_freshness_sec", 5.0)
	viper.SetDefault("arbitrage.chaser_attempts", 3)
	viper.SetDefault("arbitrage.price_adjust_pct", 0.05)

	viper.SetDefault("rebalance.targets", map[string]float64{"BTC": 0.50, "USDT": 0.25, "USDC": 0.25})
	viper.SetDefault("rebalance.threshold", 0.05)
	viper.SetDefault("rebalance.hybrid", true)
	viper.SetDefault("rebalance.min_amount_usd", 10.0)
	viper.SetDefault("rebalance.stable_spend_frac", 0.8)
	viper.SetDefault("rebalance.concentration_limit", 0.65)

	viper.SetDefault("mode.latency_threshold_ms", 100.0)
	viper.SetDefault("mode.default_latency_ms", 150.0)
	viper.SetDefault("mode.check_every_cycles", 30)
	viper.SetDefault("mode.request_timeout_sec", 5.0)
	viper.SetDefault("mode.low_latency_sleep_sec", 1.0)
	viper.SetDefault("mode.high_latency_sleep_sec", 5.0)

	viper.SetDefault("fees.state_path", "fee_state.json")
	viper.SetDefault("fees.default_taker_rate", 0.001)
}
