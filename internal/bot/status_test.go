package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"arbot/internal/mode"
	"arbot/internal/model"
)

func TestStatus_Snapshot(t *testing.T) {
	s := NewStatus()

	s.setCycle(7, mode.HighLatency, 180.5)
	s.setOpportunities([]model.Opportunity{{Pair: "BTC/USDT", NetPct: 0.12}})
	s.addTrade(model.ExecutedTrade{Pair: "BTC/USDT", Success: true, EstProfitUSD: 2.9, VaultAccrual: 0.29})

	snap := s.Snapshot()
	assert.Equal(t, 7, snap.Cycle)
	assert.Equal(t, mode.HighLatency, snap.Mode)
	assert.Equal(t, 180.5, snap.LatencyMS)
	assert.Len(t, snap.Opportunities, 1)
	assert.Len(t, snap.Trades, 1)
	assert.InDelta(t, 0.29, snap.VaultAccruedUSD, 1e-12)
}

func TestStatus_TradeHistoryCap(t *testing.T) {
	s := NewStatus()
	for i := 0; i < tradeHistoryCap+10; i++ {
		s.addTrade(model.ExecutedTrade{ID: int64(i), VaultAccrual: 0.01})
	}

	snap := s.Snapshot()
	assert.Len(t, snap.Trades, tradeHistoryCap)
	// Oldest entries roll off, accrual keeps the full history.
	assert.Equal(t, int64(10), snap.Trades[0].ID)
	assert.InDelta(t, float64(tradeHistoryCap+10)*0.01, snap.VaultAccruedUSD, 1e-9)
}
