package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"arbot/internal/model"
	"arbot/internal/venue"
)

// RESTPollingFeed fetches tickers on demand, fanning out across venues so a
// cycle waits for the slowest venue, not the sum of all of them.
type RESTPollingFeed struct {
	logger  *slog.Logger
	venues  []venue.Client
	timeout time.Duration
}

// NewRESTPollingFeed creates a polling feed with a per-call timeout. A venue
// that exceeds it contributes no data that cycle instead of stalling it.
func NewRESTPollingFeed(logger *slog.Logger, venues []venue.Client, timeout time.Duration) *RESTPollingFeed {
	return &RESTPollingFeed{
		logger:  logger.With(slog.String("component", "rest_feed")),
		venues:  venues,
		timeout: timeout,
	}
}

// Start is a no-op; polling happens inside GetPrices.
func (f *RESTPollingFeed) Start(ctx context.Context) error {
	f.logger.Info("starting REST polling data feed")
	return nil
}

// GetPrices polls every venue for every pair concurrently.
func (f *RESTPollingFeed) GetPrices(ctx context.Context, pairs []string) (model.PriceBook, error) {
	book := make(model.PriceBook, len(pairs))
	for _, pair := range pairs {
		book[pair] = make(map[string]model.PriceQuote)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range f.venues {
		for _, pair := range pairs {
			v, pair := v, pair
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(gctx, f.timeout)
				defer cancel()

				quote, err := v.FetchTicker(callCtx, pair)
				if err != nil {
					// Missing data for the cycle, never a cycle failure.
					f.logger.Warn("ticker fetch failed",
						"venue", v.Name(),
						"pair", pair,
						"error", err,
					)
					return nil
				}
				mu.Lock()
				book[pair][v.Name()] = quote
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return book, nil
}

// Stop is a no-op for the polling feed.
func (f *RESTPollingFeed) Stop() {
	f.logger.Info("stopping REST polling feed")
}
