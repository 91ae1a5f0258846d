// Package feed supplies per-cycle price books from the venues, either by
// REST polling (high-latency mode) or websocket streaming (low-latency mode).
package feed

import (
	"context"

	"arbot/internal/model"
)

// Feed is the data-feed contract the control loop consumes. A missing quote
// for a venue simply means no data for that venue this cycle.
type Feed interface {
	// Start brings up any background machinery (streams, caches).
	Start(ctx context.Context) error

	// GetPrices returns the current best bid/ask per venue for each pair.
	GetPrices(ctx context.Context, pairs []string) (model.PriceBook, error)

	// Stop tears the feed down. Safe to call once after Start.
	Stop()
}
