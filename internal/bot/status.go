package bot

import (
	"sync"

	"arbot/internal/mode"
	"arbot/internal/model"
)

// tradeHistoryCap bounds the rolling trade history kept for status polling.
const tradeHistoryCap = 50

// Status is the read-only view of the bot exposed to external displays. It is
// polled, never pushed; a RWMutex guards it against the control loop's writes.
type Status struct {
	mu              sync.RWMutex
	cycle           int
	mode            mode.Mode
	latencyMS       float64
	opportunities   []model.Opportunity
	plan            model.RebalancePlan
	trades          []model.ExecutedTrade
	vaultAccruedUSD float64
}

// Snapshot is a copy of the bot state at one point in time.
type Snapshot struct {
	Cycle           int
	Mode            mode.Mode
	LatencyMS       float64
	Opportunities   []model.Opportunity
	Plan            model.RebalancePlan
	Trades          []model.ExecutedTrade
	VaultAccruedUSD float64
}

// NewStatus creates an empty status holder.
func NewStatus() *Status {
	return &Status{}
}

// Snapshot returns a copy safe to hand to a display.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Cycle:           s.cycle,
		Mode:            s.mode,
		LatencyMS:       s.latencyMS,
		Opportunities:   append([]model.Opportunity(nil), s.opportunities...),
		Plan:            s.plan,
		Trades:          append([]model.ExecutedTrade(nil), s.trades...),
		VaultAccruedUSD: s.vaultAccruedUSD,
	}
}

func (s *Status) setCycle(cycle int, m mode.Mode, latencyMS float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle = cycle
	s.mode = m
	s.latencyMS = latencyMS
}

func (s *Status) setOpportunities(opps []model.Opportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunities = opps
}

func (s *Status) setPlan(plan model.RebalancePlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = plan
}

func (s *Status) addTrade(trade model.ExecutedTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
	if len(s.trades) > tradeHistoryCap {
		s.trades = s.trades[len(s.trades)-tradeHistoryCap:]
	}
	s.vaultAccruedUSD += trade.VaultAccrual
}
