package detector

import (
	"log/slog"
	"sort"
	"time"

	"arbot/internal/config"
	"arbot/internal/fees"
	"arbot/internal/model"
)

// Detector scans fresh cross-venue quotes for fee-net-profitable trade
// candidates.
type Detector struct {
	logger    *slog.Logger
	fees      *fees.Model
	cfg       config.ArbitrageConfig
	freshness time.Duration
	minAmount func(venue string) float64
}

// New creates a Detector. minAmount reports the minimum tradable base amount
// for a venue; candidates below it are discarded.
func New(logger *slog.Logger, feeModel *fees.Model, cfg config.ArbitrageConfig, minAmount func(venue string) float64) *Detector {
	return &Detector{
		logger:    logger.With(slog.String("component", "detector")),
		fees:      feeModel,
		cfg:       cfg,
		freshness: time.Duration(cfg.QuoteFreshnessSec * float64(time.Second)),
		minAmount: minAmount,
	}
}

// Detect returns all candidates whose net profit percentage exceeds the
// configured minimum, across the given pairs, sorted best first.
func (d *Detector) Detect(book model.PriceBook, now time.Time) []model.Opportunity {
	var opps []model.Opportunity
	for pair, venues := range book {
		if opp, ok := d.detectPair(pair, venues, now); ok {
			opps = append(opps, opp)
		}
	}
	sort.Slice(opps, func(i, j int) bool { return opps[i].NetPct > opps[j].NetPct })
	return opps
}

// Best returns the single most profitable candidate, if any. The control loop
// executes at most one opportunity per cycle to bound exposure.
func Best(opps []model.Opportunity) (model.Opportunity, bool) {
	if len(opps) == 0 {
		return model.Opportunity{}, false
	}
	best := opps[0]
	for _, o := range opps[1:] {
		if o.NetPct > best.NetPct {
			best = o
		}
	}
	return best, true
}

// detectPair picks the lowest ask and highest bid across venues with fresh
// quotes. Checking min-ask against max-bid covers both directions of every
// venue pair: whichever direction has a positive raw spread survives.
func (d *Detector) detectPair(pair string, venues map[string]model.PriceQuote, now time.Time) (model.Opportunity, bool) {
	var buy, sell model.PriceQuote
	fresh := 0
	for _, q := range venues {
		if !q.Fresh(now, d.freshness) || q.Bid <= 0 || q.Ask <= 0 {
			continue
		}
		fresh++
		if buy.Ask == 0 || q.Ask < buy.Ask {
			buy = q
		}
		if q.Bid > sell.Bid {
			sell = q
		}
	}
	if fresh < 2 || buy.Venue == sell.Venue {
		return model.Opportunity{}, false
	}

	spread := sell.Bid - buy.Ask
	if spread <= 0 {
		return model.Opportunity{}, false
	}
	spreadPct := spread / buy.Ask * 100

	// Both legs are taker orders; the combined fee comes off the spread.
	feeRate := d.fees.QuoteRate(buy.Venue, d.cfg.PositionSizeUSD) +
		d.fees.QuoteRate(sell.Venue, d.cfg.PositionSizeUSD)
	feePct := feeRate * 100
	netPct := spreadPct - feePct
	if netPct <= d.cfg.MinNetProfitPct {
		return model.Opportunity{}, false
	}

	amount := d.cfg.PositionSizeUSD / buy.Ask
	if amount < d.minAmount(buy.Venue) || amount < d.minAmount(sell.Venue) {
		d.logger.Debug("candidate below venue minimum",
			"pair", pair, "amount", amount, "buyVenue", buy.Venue, "sellVenue", sell.Venue)
		return model.Opportunity{}, false
	}

	opp := model.Opportunity{
		Pair:      pair,
		BuyVenue:  buy.Venue,
		SellVenue: sell.Venue,
		BuyPrice:  buy.Ask,
		SellPrice: sell.Bid,
		Amount:    amount,
		Spread:    spread,
		SpreadPct: spreadPct,
		FeePct:    feePct,
		NetPct:    netPct,
	}
	d.logger.Info("opportunity found",
		"pair", pair,
		"buyVenue", opp.BuyVenue,
		"sellVenue", opp.SellVenue,
		"buyPrice", opp.BuyPrice,
		"sellPrice", opp.SellPrice,
		"spreadPct", opp.SpreadPct,
		"netPct", opp.NetPct,
	)
	return opp, true
}
