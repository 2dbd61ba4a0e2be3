// Package fifo holds the single consumption-planning algorithm shared by the
// live sell path and the audit repair. Both call Plan, so the two paths
// cannot drift apart: whatever the book does, the audit recomputes with the
// same code.
package fifo

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Lot is the minimal view of an inventory lot the planner needs.
type Lot struct {
	ID           string
	OpenPrice    decimal.Decimal
	QtyRemaining decimal.Decimal
	OpenedAt     time.Time
}

// Allocation is one planned draw: take Quantity from lot ID.
type Allocation struct {
	ID        string
	Quantity  decimal.Decimal
	OpenPrice decimal.Decimal
}

// ErrInsufficient is returned by Plan when the lots cannot cover the
// requested quantity. The caller maps it to its own error taxonomy.
type ErrInsufficient struct {
	Requested decimal.Decimal
	Covered   decimal.Decimal
}

func (e *ErrInsufficient) Error() string {
	return "insufficient lot inventory: requested " + e.Requested.String() + ", have " + e.Covered.String()
}

// Plan computes the oldest-first consumption of qty across the given lots.
// Lots are ordered by OpenedAt ascending with ID ascending as the
// tie-break, which keeps the ordering total even when timestamps collide.
// Lots with zero remaining quantity are skipped. The input slice is not
// modified.
//
// Plan is all-or-nothing: when the lots cannot cover qty it returns
// *ErrInsufficient and no allocations.
func Plan(lots []Lot, qty decimal.Decimal) ([]Allocation, error) {
	ordered := make([]Lot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].OpenedAt.Equal(ordered[j].OpenedAt) {
			return ordered[i].OpenedAt.Before(ordered[j].OpenedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	remaining := qty
	allocs := make([]Allocation, 0, len(ordered))
	for _, lot := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !lot.QtyRemaining.IsPositive() {
			continue
		}
		take := decimal.Min(lot.QtyRemaining, remaining)
		allocs = append(allocs, Allocation{
			ID:        lot.ID,
			Quantity:  take,
			OpenPrice: lot.OpenPrice,
		})
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		return nil, &ErrInsufficient{Requested: qty, Covered: qty.Sub(remaining)}
	}
	return allocs, nil
}

// RealizedPnl is the per-allocation PnL delta before fees:
// consumed × (sellPrice − openPrice).
func RealizedPnl(a Allocation, sellPrice decimal.Decimal) decimal.Decimal {
	return a.Quantity.Mul(sellPrice.Sub(a.OpenPrice))
}
