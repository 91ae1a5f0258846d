// Package ledger tracks per-cycle account snapshots and funds already
// committed to planned trades, so two decisions made in the same cycle can
// never spend the same balance twice.
package ledger

import (
	"errors"
	"fmt"

	"arbot/internal/model"
)

// ErrOverCommit is returned when a commit would push the cumulative committed
// amount above the free balance recorded at cycle start.
var ErrOverCommit = errors.New("ledger: commit exceeds free balance")

// Ledger is created empty at the start of every decision cycle and discarded
// at the end. It is owned by the control loop and is not safe for concurrent
// use; no cross-cycle sharing is permitted.
type Ledger struct {
	accounts  map[string]model.VenueAccount
	committed map[string]map[string]float64
}

// NewCycle builds a ledger over fresh balance snapshots for one cycle.
func NewCycle(accounts []model.VenueAccount) *Ledger {
	l := &Ledger{
		accounts:  make(map[string]model.VenueAccount, len(accounts)),
		committed: make(map[string]map[string]float64, len(accounts)),
	}
	for _, a := range accounts {
		l.accounts[a.Venue] = a
	}
	return l
}

// Account returns the snapshot for a venue, if present this cycle.
func (l *Ledger) Account(venue string) (model.VenueAccount, bool) {
	a, ok := l.accounts[venue]
	return a, ok
}

// Accounts returns all snapshots taken this cycle.
func (l *Ledger) Accounts() []model.VenueAccount {
	out := make([]model.VenueAccount, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a)
	}
	return out
}

// AvailableFunds returns the venue's free balance minus whatever has already
// been committed against that (venue, currency) earlier in the cycle.
func (l *Ledger) AvailableFunds(venue, currency string) float64 {
	a, ok := l.accounts[venue]
	if !ok {
		return 0
	}
	free := a.Free[currency]
	used := l.committed[venue][currency]
	if used >= free {
		return 0
	}
	return free - used
}

// Commit earmarks funds for a planned trade. Callers are expected to cap the
// requested amount to AvailableFunds first; a request beyond that is rejected
// with ErrOverCommit and records nothing.
func (l *Ledger) Commit(venue, currency string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: non-positive commit %f for %s/%s", amount, venue, currency)
	}
	if amount > l.AvailableFunds(venue, currency) {
		return fmt.Errorf("%w: %s/%s amount %f available %f",
			ErrOverCommit, venue, currency, amount, l.AvailableFunds(venue, currency))
	}
	if l.committed[venue] == nil {
		l.committed[venue] = make(map[string]float64)
	}
	l.committed[venue][currency] += amount
	return nil
}

// TotalFree sums free balances across all venues for the given currencies,
// net of in-cycle commitments.
func (l *Ledger) TotalFree(currencies ...string) float64 {
	total := 0.0
	for venue := range l.accounts {
		for _, c := range currencies {
			total += l.AvailableFunds(venue, c)
		}
	}
	return total
}
