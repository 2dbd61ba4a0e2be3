package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/xe"
)

func newPositionBook(t *testing.T) *PositionBookService {
	t.Helper()
	return NewPositionBookService(newTestDB(t), testLogger())
}

func TestOpenLotKeepsSeparateCostBasis(t *testing.T) {
	book := newPositionBook(t)
	ctx := context.Background()

	first, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("0.005"), d("100000"), "exec-1", LotConfig{})
	if err != nil {
		t.Fatalf("OpenLot: %v", err)
	}
	second, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("0.005"), d("100000"), "exec-2", LotConfig{})
	if err != nil {
		t.Fatalf("OpenLot: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("two buys at the same price must not merge into one lot")
	}

	lots, err := book.GetOpenLots(ctx, "acct", "BTCUSDT")
	if err != nil {
		t.Fatalf("GetOpenLots: %v", err)
	}
	if len(lots) != 2 {
		t.Fatalf("expected 2 lots, got %d", len(lots))
	}
	if lots[0].ID != first.ID {
		t.Error("lots not ordered oldest first")
	}
}

func TestOpenLotRejectsNonPositive(t *testing.T) {
	book := newPositionBook(t)
	ctx := context.Background()

	if _, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("0"), d("100"), "e", LotConfig{}); !errors.Is(err, xe.ErrInvalidAmount) {
		t.Errorf("zero qty: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("1"), d("-100"), "e", LotConfig{}); !errors.Is(err, xe.ErrInvalidAmount) {
		t.Errorf("negative price: expected ErrInvalidAmount, got %v", err)
	}
}

func TestConsumeForSellSpansLots(t *testing.T) {
	book := newPositionBook(t)
	ctx := context.Background()

	first, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("0.005"), d("100000"), "exec-1", LotConfig{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("0.005"), d("100000"), "exec-2", LotConfig{})
	if err != nil {
		t.Fatal(err)
	}

	result, err := book.ConsumeForSell(ctx, "acct", "BTCUSDT", d("0.007"), d("110000"), d("0"), "exec-3")
	if err != nil {
		t.Fatalf("ConsumeForSell: %v", err)
	}
	if len(result.Consumptions) != 2 {
		t.Fatalf("expected 2 consumptions, got %d", len(result.Consumptions))
	}
	if result.Consumptions[0].PositionID != first.ID || !result.Consumptions[0].Quantity.Equal(d("0.005")) {
		t.Errorf("first consumption = %s %s", result.Consumptions[0].PositionID, result.Consumptions[0].Quantity)
	}
	if result.Consumptions[1].PositionID != second.ID || !result.Consumptions[1].Quantity.Equal(d("0.002")) {
		t.Errorf("second consumption = %s %s", result.Consumptions[1].PositionID, result.Consumptions[1].Quantity)
	}

	// 0.005 * 10000 + 0.002 * 10000
	if !result.RealizedPnl.Equal(d("70")) {
		t.Errorf("realized pnl = %s, want 70", result.RealizedPnl)
	}

	oldest, err := book.GetLot(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if oldest.Status != models.PositionClosed || !oldest.QtyRemaining.IsZero() {
		t.Errorf("oldest lot = %s remaining %s, want CLOSED/0", oldest.Status, oldest.QtyRemaining)
	}

	newest, err := book.GetLot(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if newest.Status != models.PositionPartiallyClosed || !newest.QtyRemaining.Equal(d("0.003")) {
		t.Errorf("newest lot = %s remaining %s, want PARTIALLY_CLOSED/0.003", newest.Status, newest.QtyRemaining)
	}
}

func TestConsumeForSellFeeApportionment(t *testing.T) {
	book := newPositionBook(t)
	ctx := context.Background()

	if _, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("0.005"), d("100000"), "exec-1", LotConfig{}); err != nil {
		t.Fatal(err)
	}
	if _, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("0.005"), d("100000"), "exec-2", LotConfig{}); err != nil {
		t.Fatal(err)
	}

	result, err := book.ConsumeForSell(ctx, "acct", "BTCUSDT", d("0.007"), d("110000"), d("7"), "exec-3")
	if err != nil {
		t.Fatalf("ConsumeForSell: %v", err)
	}

	feeSum := d("0")
	for _, c := range result.Consumptions {
		feeSum = feeSum.Add(c.FeeShare)
	}
	if !feeSum.Equal(d("7")) {
		t.Errorf("fee shares sum to %s, want exactly 7", feeSum)
	}

	// 70 gross pnl minus the full fee.
	if !result.RealizedPnl.Equal(d("63")) {
		t.Errorf("realized pnl = %s, want 63", result.RealizedPnl)
	}
}

func TestConsumeForSellInsufficientInventory(t *testing.T) {
	db := newTestDB(t)
	book := NewPositionBookService(db, testLogger())
	ctx := context.Background()

	if _, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("0.005"), d("100000"), "exec-1", LotConfig{}); err != nil {
		t.Fatal(err)
	}

	_, err := book.ConsumeForSell(ctx, "acct", "BTCUSDT", d("0.02"), d("110000"), d("0"), "exec-2")
	if !errors.Is(err, xe.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}

	// All-or-nothing: the lot is untouched and no rows were written.
	lots, _ := book.GetOpenLots(ctx, "acct", "BTCUSDT")
	if len(lots) != 1 || !lots[0].QtyRemaining.Equal(d("0.005")) {
		t.Errorf("lot mutated on failed sell: %+v", lots)
	}
	var count int64
	if err := db.Table("position_consumptions").Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected no consumption rows, got %d", count)
	}
}

func TestConsumeForSellBooksTrades(t *testing.T) {
	book := newPositionBook(t)
	ctx := context.Background()

	if _, err := book.OpenLot(ctx, "acct", "BTCUSDT", d("0.01"), d("100000"), "exec-1", LotConfig{}); err != nil {
		t.Fatal(err)
	}
	if _, err := book.ConsumeForSell(ctx, "acct", "BTCUSDT", d("0.01"), d("105000"), d("0"), "exec-2"); err != nil {
		t.Fatal(err)
	}

	trades, err := book.GetRecentTrades(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecentTrades: %v", err)
	}
	// One buy booking from the open, one sell booking from the consumption.
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	var sell models.Trade
	for _, tr := range trades {
		if tr.Side == models.OrderSideSell {
			sell = tr
		}
	}
	if !sell.Pnl.Equal(d("50")) {
		t.Errorf("sell trade pnl = %s, want 50", sell.Pnl)
	}
}
