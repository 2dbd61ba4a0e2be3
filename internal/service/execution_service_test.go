package service

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/xe"
	"github.com/mayconvmartins/mvcashnode-sub004/pkg/exchange"
)

type executionFixture struct {
	db           *gorm.DB
	executions   *ExecutionService
	reservations *ReservationService
	book         *PositionBookService
	paper        *exchange.PaperExchange
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()
	db := newTestDB(t)
	paper := exchange.NewPaperExchange()
	reservations := NewReservationService(db, nil, testLogger())
	book := NewPositionBookService(db, testLogger())
	return &executionFixture{
		db:           db,
		executions:   NewExecutionService(db, reservations, book, paper, testLogger()),
		reservations: reservations,
		book:         book,
		paper:        paper,
	}
}

func TestRecordBuyConfirmsReservationAndOpensLot(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	if err := f.reservations.Deposit(ctx, "acct", "USDT", d("1000")); err != nil {
		t.Fatal(err)
	}
	if err := f.reservations.ReserveForBuy(ctx, "acct", "USDT", d("510"), "order-1"); err != nil {
		t.Fatal(err)
	}

	exec, err := f.executions.RecordExecution(ctx, ExecutionInput{
		TradeJobID:  "job-1",
		AccountID:   "acct",
		Symbol:      "BTCUSDT",
		QuoteAsset:  "USDT",
		Side:        models.OrderSideBuy,
		ExecutedQty: d("0.005"),
		AvgPrice:    d("100000"),
		FeeQuote:    d("1"),
		OrderRef:    "order-1",
	})
	if err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}

	// Cost 501 confirmed out of the 510 escrow; 9 still reserved until the
	// executor cancels the remainder.
	bal, _ := f.reservations.GetBalance(ctx, "acct", "USDT")
	if !bal.Available.Equal(d("490")) || !bal.Reserved.Equal(d("9")) {
		t.Errorf("balance = %s/%s, want 490/9", bal.Available, bal.Reserved)
	}

	lots, err := f.book.GetOpenLots(ctx, "acct", "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(lots) != 1 {
		t.Fatalf("expected 1 lot, got %d", len(lots))
	}
	if lots[0].ExecutionRef != exec.ID || !lots[0].Quantity.Equal(d("0.005")) {
		t.Errorf("lot = ref %s qty %s", lots[0].ExecutionRef, lots[0].Quantity)
	}
}

func TestRecordBuyRequiresReservation(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	if err := f.reservations.Deposit(ctx, "acct", "USDT", d("1000")); err != nil {
		t.Fatal(err)
	}

	_, err := f.executions.RecordExecution(ctx, ExecutionInput{
		TradeJobID:  "job-1",
		AccountID:   "acct",
		Symbol:      "BTCUSDT",
		QuoteAsset:  "USDT",
		Side:        models.OrderSideBuy,
		ExecutedQty: d("0.005"),
		AvgPrice:    d("100000"),
		OrderRef:    "never-reserved",
	})
	if !errors.Is(err, xe.ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
}

func TestRecordSellConsumesAndCredits(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	if err := f.reservations.Deposit(ctx, "acct", "USDT", d("1000")); err != nil {
		t.Fatal(err)
	}
	if err := f.reservations.ReserveForBuy(ctx, "acct", "USDT", d("500"), "order-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.executions.RecordExecution(ctx, ExecutionInput{
		TradeJobID:  "job-1",
		AccountID:   "acct",
		Symbol:      "BTCUSDT",
		QuoteAsset:  "USDT",
		Side:        models.OrderSideBuy,
		ExecutedQty: d("0.005"),
		AvgPrice:    d("100000"),
		OrderRef:    "order-1",
	}); err != nil {
		t.Fatal(err)
	}

	// Sell the whole lot at 110000: proceeds 550 return to available.
	if _, err := f.executions.RecordExecution(ctx, ExecutionInput{
		TradeJobID:  "job-2",
		AccountID:   "acct",
		Symbol:      "BTCUSDT",
		QuoteAsset:  "USDT",
		Side:        models.OrderSideSell,
		ExecutedQty: d("0.005"),
		AvgPrice:    d("110000"),
	}); err != nil {
		t.Fatalf("RecordExecution sell: %v", err)
	}

	bal, _ := f.reservations.GetBalance(ctx, "acct", "USDT")
	if !bal.Available.Equal(d("1050")) || !bal.Reserved.IsZero() {
		t.Errorf("balance = %s/%s, want 1050/0", bal.Available, bal.Reserved)
	}

	if err := f.reservations.VerifyConservation(ctx, "acct", "USDT"); err != nil {
		t.Errorf("VerifyConservation: %v", err)
	}

	lots, _ := f.book.GetOpenLots(ctx, "acct", "BTCUSDT")
	if len(lots) != 0 {
		t.Errorf("expected no open lots after full sell, got %d", len(lots))
	}
}

func TestRecordSellInsufficientInventoryRollsBack(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	_, err := f.executions.RecordExecution(ctx, ExecutionInput{
		TradeJobID:  "job-1",
		AccountID:   "acct",
		Symbol:      "BTCUSDT",
		QuoteAsset:  "USDT",
		Side:        models.OrderSideSell,
		ExecutedQty: d("0.005"),
		AvgPrice:    d("110000"),
	})
	if !errors.Is(err, xe.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}

	var count int64
	if err := f.db.Table("executions").Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("execution row survived a failed sell, count = %d", count)
	}
}

func TestRecordSellFailedCreditLeavesNoTrace(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	if err := f.reservations.Deposit(ctx, "acct", "USDT", d("1000")); err != nil {
		t.Fatal(err)
	}
	if err := f.reservations.ReserveForBuy(ctx, "acct", "USDT", d("510"), "order-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.executions.RecordExecution(ctx, ExecutionInput{
		TradeJobID:  "job-1",
		AccountID:   "acct",
		Symbol:      "BTCUSDT",
		QuoteAsset:  "USDT",
		Side:        models.OrderSideBuy,
		ExecutedQty: d("0.005"),
		AvgPrice:    d("100000"),
		OrderRef:    "order-1",
	}); err != nil {
		t.Fatal(err)
	}

	// A fee above the gross makes the credit step fail after the book has
	// been consumed. The whole sale must roll back: no execution row, no
	// consumption, the lot untouched, so a re-driven job starts clean.
	in := ExecutionInput{
		TradeJobID:  "job-2",
		AccountID:   "acct",
		Symbol:      "BTCUSDT",
		QuoteAsset:  "USDT",
		Side:        models.OrderSideSell,
		ExecutedQty: d("0.005"),
		AvgPrice:    d("100000"),
		FeeQuote:    d("600"),
	}
	if _, err := f.executions.RecordExecution(ctx, in); !errors.Is(err, xe.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount from the credit step, got %v", err)
	}

	if _, err := f.executions.GetExecutionByJob(ctx, "job-2"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("failed sell left an execution row behind: %v", err)
	}
	var consumptions int64
	if err := f.db.Table("position_consumptions").Count(&consumptions).Error; err != nil {
		t.Fatal(err)
	}
	if consumptions != 0 {
		t.Errorf("failed sell left %d consumption rows behind", consumptions)
	}
	lots, _ := f.book.GetOpenLots(ctx, "acct", "BTCUSDT")
	if len(lots) != 1 || !lots[0].QtyRemaining.Equal(d("0.005")) {
		t.Fatalf("failed sell consumed the lot: %+v", lots)
	}

	// The re-driven job settles in full instead of short-circuiting on a
	// half-recorded execution.
	in.FeeQuote = d("1")
	if _, err := f.executions.RecordExecution(ctx, in); err != nil {
		t.Fatalf("re-driven sell: %v", err)
	}

	bal, _ := f.reservations.GetBalance(ctx, "acct", "USDT")
	if !bal.Available.Equal(d("989")) {
		t.Errorf("available = %s, want 989 after the 499 credit", bal.Available)
	}
	if err := f.reservations.VerifyConservation(ctx, "acct", "USDT"); err != nil {
		t.Errorf("VerifyConservation: %v", err)
	}
}

func TestRecordExecutionIdempotentOnJobID(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	if err := f.reservations.Deposit(ctx, "acct", "USDT", d("1000")); err != nil {
		t.Fatal(err)
	}
	if err := f.reservations.ReserveForBuy(ctx, "acct", "USDT", d("500"), "order-1"); err != nil {
		t.Fatal(err)
	}

	in := ExecutionInput{
		TradeJobID:  "job-1",
		AccountID:   "acct",
		Symbol:      "BTCUSDT",
		QuoteAsset:  "USDT",
		Side:        models.OrderSideBuy,
		ExecutedQty: d("0.005"),
		AvgPrice:    d("100000"),
		OrderRef:    "order-1",
	}
	first, err := f.executions.RecordExecution(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.executions.RecordExecution(ctx, in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("replay created a new execution: %s vs %s", first.ID, second.ID)
	}

	lots, _ := f.book.GetOpenLots(ctx, "acct", "BTCUSDT")
	if len(lots) != 1 {
		t.Errorf("replay duplicated the lot, got %d lots", len(lots))
	}
}

func TestPlaceMarketOrderThroughPaperExchange(t *testing.T) {
	f := newExecutionFixture(t)
	ctx := context.Background()

	if err := f.reservations.Deposit(ctx, "acct", "USDT", d("1000")); err != nil {
		t.Fatal(err)
	}
	if err := f.reservations.ReserveForBuy(ctx, "acct", "USDT", d("510"), "order-1"); err != nil {
		t.Fatal(err)
	}
	f.paper.SetPrice("BTCUSDT", d("100000"))

	exec, err := f.executions.PlaceMarketOrder(ctx, "acct", "BTCUSDT", "USDT", models.OrderSideBuy, d("0.005"), "order-1")
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if !exec.ExecutedQty.Equal(d("0.005")) || !exec.AvgPrice.Equal(d("100000")) {
		t.Errorf("execution = qty %s price %s", exec.ExecutedQty, exec.AvgPrice)
	}
	if len(exec.RawResponse) == 0 {
		t.Error("raw venue response not persisted")
	}

	lots, _ := f.book.GetOpenLots(ctx, "acct", "BTCUSDT")
	if len(lots) != 1 {
		t.Fatalf("expected 1 lot, got %d", len(lots))
	}
}
