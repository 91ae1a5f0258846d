package feed

import (
	"context"
	"log/slog"
	"sync"

	"arbot/internal/model"
	"arbot/internal/venue"
)

// WebSocketFeed keeps streaming connections to every venue and serves the
// latest observed quotes from an in-memory book.
type WebSocketFeed struct {
	logger *slog.Logger
	venues []venue.Client
	pairs  []string

	mu   sync.RWMutex
	book model.PriceBook

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebSocketFeed creates a streaming feed for the given pairs.
func NewWebSocketFeed(logger *slog.Logger, venues []venue.Client, pairs []string) *WebSocketFeed {
	return &WebSocketFeed{
		logger: logger.With(slog.String("component", "ws_feed")),
		venues: venues,
		pairs:  pairs,
		book:   make(model.PriceBook),
	}
}

// Start launches one stream per venue plus a collector that folds incoming
// quotes into the shared book.
func (f *WebSocketFeed) Start(ctx context.Context) error {
	f.logger.Info("starting websocket data feed", "venues", len(f.venues), "pairs", f.pairs)
	streamCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	quotes := make(chan model.PriceQuote, 256)
	var wg sync.WaitGroup
	for _, v := range f.venues {
		wg.Add(1)
		go func(v venue.Client) {
			defer wg.Done()
			if err := v.StreamQuotes(streamCtx, quotes, f.pairs); err != nil {
				f.logger.Error("stream ended with error", "venue", v.Name(), "error", err)
			}
		}(v)
	}
	go func() {
		wg.Wait()
		close(quotes)
	}()
	go f.collect(quotes)
	return nil
}

func (f *WebSocketFeed) collect(quotes <-chan model.PriceQuote) {
	defer close(f.done)
	for q := range quotes {
		f.mu.Lock()
		if f.book[q.Pair] == nil {
			f.book[q.Pair] = make(map[string]model.PriceQuote)
		}
		f.book[q.Pair][q.Venue] = q
		f.mu.Unlock()
	}
}

// GetPrices returns a copy of the latest streamed quotes for the requested
// pairs. Staleness filtering is the consumer's concern; the feed reports
// observation timestamps as received.
func (f *WebSocketFeed) GetPrices(ctx context.Context, pairs []string) (model.PriceBook, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	book := make(model.PriceBook, len(pairs))
	for _, pair := range pairs {
		book[pair] = make(map[string]model.PriceQuote)
		for venueName, q := range f.book[pair] {
			book[pair][venueName] = q
		}
	}
	return book, nil
}

// Stop cancels the streams and waits for the collector to drain.
func (f *WebSocketFeed) Stop() {
	f.logger.Info("stopping websocket feed")
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
}
