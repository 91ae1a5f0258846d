package venue

import (
	"fmt"
	"log/slog"

	"arbot/internal/config"
)

// NewClient creates a new venue client based on the given name and configuration.
func NewClient(name string, logger *slog.Logger, cfg config.VenueConfig) (Client, error) {
	switch name {
	case "kraken":
		return NewKrakenClient(logger, cfg), nil
	case "binance":
		return NewBinanceClient(logger, cfg), nil
	case "coinbase":
		return NewCoinbaseClient(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unknown venue: %s", name)
	}
}
