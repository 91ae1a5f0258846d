package model

import "time"

// Side is the direction of a single order leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType selects between market and limit order placement.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// PriceQuote is the best bid/ask observed on one venue for one pair.
type PriceQuote struct {
	Venue     string
	Pair      string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Fresh reports whether the quote was observed within the given window.
func (q PriceQuote) Fresh(now time.Time, window time.Duration) bool {
	return !q.Timestamp.IsZero() && now.Sub(q.Timestamp) <= window
}

// PriceBook maps pair -> venue -> latest quote, as returned by a data feed.
type PriceBook map[string]map[string]PriceQuote

// VenueAccount is an immutable per-cycle snapshot of one venue's balances.
type VenueAccount struct {
	Venue string
	Total map[string]float64
	Free  map[string]float64
}

// Opportunity is a fee-adjusted cross-venue trade candidate.
type Opportunity struct {
	Pair      string
	BuyVenue  string
	SellVenue string
	BuyPrice  float64
	SellPrice float64
	Amount    float64
	Spread    float64
	SpreadPct float64
	FeePct    float64
	NetPct    float64
}

// RebalancePlan lists per-asset buy and sell notionals in USD terms.
// Venue selection for each leg is deferred to execution time.
type RebalancePlan struct {
	Buys  map[string]float64
	Sells map[string]float64
}

// Empty reports whether the plan contains no actionable legs.
func (p RebalancePlan) Empty() bool {
	return len(p.Buys) == 0 && len(p.Sells) == 0
}

// OrderIntent describes a single order before submission.
type OrderIntent struct {
	ClientID string
	Venue    string
	Pair     string
	Side     Side
	Type     OrderType
	Amount   float64
	Price    float64
}

// OrderOutcome is the realized result of an OrderIntent.
type OrderOutcome struct {
	Success bool
	OrderID string
	Price   float64
	Reason  string
}

// ExecutedTrade is one completed (or failed) arbitrage execution, persisted
// for audit and exposed through the status snapshot.
type ExecutedTrade struct {
	ID            int64     `db:"id"`
	Timestamp     time.Time `db:"timestamp"`
	Pair          string    `db:"pair"`
	BuyVenue      string    `db:"buy_venue"`
	SellVenue     string    `db:"sell_venue"`
	BuyPrice      float64   `db:"buy_price"`
	SellPrice     float64   `db:"sell_price"`
	Amount        float64   `db:"amount"`
	EstProfitUSD  float64   `db:"est_profit_usd"`
	VaultAccrual  float64   `db:"vault_accrual_usd"`
	Success       bool      `db:"success"`
	FailureReason string    `db:"failure_reason"`
}

// RebalanceRecord is the audit row written after a successful rebalance run.
type RebalanceRecord struct {
	ID          int64     `db:"id"`
	Timestamp   time.Time `db:"timestamp"`
	TradeCount  int       `db:"trade_count"`
	TotalBought float64   `db:"total_bought"`
	TotalSpent  float64   `db:"total_spent_usd"`
}
