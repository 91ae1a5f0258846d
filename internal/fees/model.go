package fees

import (
	"log/slog"
	"time"

	"arbot/internal/config"
)

// Program identifies the kind of fee discount a venue offers.
type Program string

const (
	// ProgramFlat applies the discounted rate unconditionally.
	ProgramFlat Program = "flat"
	// ProgramCredit applies the discounted rate while monthly fee credit lasts.
	ProgramCredit Program = "credit"
)

// VenueFeeState holds one venue's discount program and consumption, persisted
// across restarts and reset monthly.
type VenueFeeState struct {
	Program          Program `json:"program"`
	StandardRate     float64 `json:"standard_rate"`
	DiscountRate     float64 `json:"discount_rate"`
	CreditCeilingUSD float64 `json:"credit_ceiling_usd"`
	CreditUsedUSD    float64 `json:"credit_used_usd"`
	LastReset        string  `json:"last_reset"` // year-month, e.g. "2026-09"
}

// Model computes effective taker fee rates per venue. State mutates in memory
// only; persistence happens through explicit Load/Save calls.
type Model struct {
	logger      *slog.Logger
	defaultRate float64
	states      map[string]*VenueFeeState
	now         func() time.Time
}

// NewModel creates a fee model from the configured discount programs.
// Venues without a configured program fall back to the default taker rate.
func NewModel(logger *slog.Logger, cfg config.FeesConfig) *Model {
	m := &Model{
		logger:      logger.With(slog.String("component", "fees")),
		defaultRate: cfg.DefaultTakerRate,
		states:      make(map[string]*VenueFeeState),
		now:         time.Now,
	}
	for venue, p := range cfg.Programs {
		m.states[venue] = &VenueFeeState{
			Program:          Program(p.Program),
			StandardRate:     p.StandardRate,
			DiscountRate:     p.DiscountRate,
			CreditCeilingUSD: p.CreditCeilingUSD,
			LastReset:        m.now().Format("2006-01"),
		}
	}
	return m
}

// EffectiveRate returns the taker fee rate this venue would charge for a trade
// of the given USD value. For credit programs the projected fee is reserved
// against the monthly credit when the discounted rate applies.
func (m *Model) EffectiveRate(venue string, tradeValueUSD float64) float64 {
	st, ok := m.states[venue]
	if !ok {
		return m.defaultRate
	}

	m.resetIfNewMonth(venue, st)

	switch st.Program {
	case ProgramFlat:
		return st.DiscountRate
	case ProgramCredit:
		fee := tradeValueUSD * st.DiscountRate
		if st.CreditUsedUSD+fee <= st.CreditCeilingUSD {
			st.CreditUsedUSD += fee
			return st.DiscountRate
		}
		m.logger.Info("fee credit exhausted, using standard rate",
			"venue", venue,
			"creditUsed", st.CreditUsedUSD,
			"creditCeiling", st.CreditCeilingUSD,
		)
		return st.StandardRate
	default:
		return st.StandardRate
	}
}

// QuoteRate returns the rate a trade of the given value would pay without
// reserving any credit. Used during opportunity scanning, where most
// candidates are never executed.
func (m *Model) QuoteRate(venue string, tradeValueUSD float64) float64 {
	st, ok := m.states[venue]
	if !ok {
		return m.defaultRate
	}
	m.resetIfNewMonth(venue, st)
	switch st.Program {
	case ProgramFlat:
		return st.DiscountRate
	case ProgramCredit:
		if st.CreditUsedUSD+tradeValueUSD*st.DiscountRate <= st.CreditCeilingUSD {
			return st.DiscountRate
		}
		return st.StandardRate
	default:
		return st.StandardRate
	}
}

// CreditRemaining returns the unspent monthly fee credit for a venue.
// Venues without a credit program report zero.
func (m *Model) CreditRemaining(venue string) float64 {
	st, ok := m.states[venue]
	if !ok || st.Program != ProgramCredit {
		return 0
	}
	m.resetIfNewMonth(venue, st)
	return st.CreditCeilingUSD - st.CreditUsedUSD
}

// resetIfNewMonth restores the full credit ceiling when the stored year-month
// differs from the current one.
func (m *Model) resetIfNewMonth(venue string, st *VenueFeeState) {
	month := m.now().Format("2006-01")
	if st.LastReset == month {
		return
	}
	m.logger.Info("monthly fee credit reset",
		"venue", venue,
		"previousMonth", st.LastReset,
		"creditUsed", st.CreditUsedUSD,
	)
	st.CreditUsedUSD = 0
	st.LastReset = month
}
