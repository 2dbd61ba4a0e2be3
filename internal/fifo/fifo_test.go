package fifo

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func lot(id, qty string, openedAt time.Time) Lot {
	return Lot{ID: id, OpenPrice: d("100"), QtyRemaining: d(qty), OpenedAt: openedAt}
}

func TestPlanConsumesOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lots := []Lot{
		lot("b", "0.005", base.Add(time.Hour)),
		lot("a", "0.005", base),
	}

	allocs, err := Plan(lots, d("0.007"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(allocs) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocs))
	}
	if allocs[0].ID != "a" || !allocs[0].Quantity.Equal(d("0.005")) {
		t.Errorf("first allocation = %s %s, want a 0.005", allocs[0].ID, allocs[0].Quantity)
	}
	if allocs[1].ID != "b" || !allocs[1].Quantity.Equal(d("0.002")) {
		t.Errorf("second allocation = %s %s, want b 0.002", allocs[1].ID, allocs[1].Quantity)
	}
}

func TestPlanTieBreaksOnID(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lots := []Lot{
		lot("02", "1", at),
		lot("01", "1", at),
	}

	allocs, err := Plan(lots, d("1.5"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if allocs[0].ID != "01" {
		t.Errorf("tie-break consumed %s first, want 01", allocs[0].ID)
	}
}

func TestPlanSkipsEmptyLots(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lots := []Lot{
		lot("a", "0", base),
		lot("b", "1", base.Add(time.Minute)),
	}

	allocs, err := Plan(lots, d("0.5"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(allocs) != 1 || allocs[0].ID != "b" {
		t.Fatalf("expected single allocation from b, got %+v", allocs)
	}
}

func TestPlanAllOrNothing(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lots := []Lot{
		lot("a", "0.005", base),
		lot("b", "0.005", base.Add(time.Minute)),
	}

	allocs, err := Plan(lots, d("0.02"))
	if allocs != nil {
		t.Fatalf("expected no allocations on shortfall, got %+v", allocs)
	}
	var insufficient *ErrInsufficient
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected *ErrInsufficient, got %v", err)
	}
	if !insufficient.Requested.Equal(d("0.02")) || !insufficient.Covered.Equal(d("0.01")) {
		t.Errorf("shortfall = requested %s covered %s", insufficient.Requested, insufficient.Covered)
	}
}

func TestPlanExactCoverage(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lots := []Lot{lot("a", "0.01", base)}

	allocs, err := Plan(lots, d("0.01"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(allocs) != 1 || !allocs[0].Quantity.Equal(d("0.01")) {
		t.Fatalf("expected full single allocation, got %+v", allocs)
	}
}

func TestPlanDoesNotMutateInput(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lots := []Lot{
		lot("b", "1", base.Add(time.Hour)),
		lot("a", "1", base),
	}

	if _, err := Plan(lots, d("1.5")); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if lots[0].ID != "b" || lots[1].ID != "a" {
		t.Error("input slice order changed")
	}
}

func TestRealizedPnl(t *testing.T) {
	a := Allocation{ID: "a", Quantity: d("0.005"), OpenPrice: d("100000")}

	pnl := RealizedPnl(a, d("110000"))
	if !pnl.Equal(d("50")) {
		t.Errorf("pnl = %s, want 50", pnl)
	}

	loss := RealizedPnl(a, d("90000"))
	if !loss.Equal(d("-50")) {
		t.Errorf("pnl = %s, want -50", loss)
	}
}
