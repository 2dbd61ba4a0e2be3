package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBalanceDelta(t *testing.T) {
	amount := decimal.NewFromInt(100)

	cases := []struct {
		kind TransactionKind
		want decimal.Decimal
	}{
		{TransactionDeposit, amount},
		{TransactionSellReturn, amount},
		{TransactionWithdrawal, amount.Neg()},
		{TransactionBuyConfirm, amount.Neg()},
		{TransactionBuyReserve, decimal.Zero},
		{TransactionBuyCancel, decimal.Zero},
	}

	for _, tc := range cases {
		if got := BalanceDelta(tc.kind, amount); !got.Equal(tc.want) {
			t.Errorf("BalanceDelta(%s) = %s, want %s", tc.kind, got, tc.want)
		}
	}
}

func TestBalanceTotal(t *testing.T) {
	b := Balance{
		Available: decimal.NewFromInt(800),
		Reserved:  decimal.NewFromInt(200),
	}
	if !b.Total().Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Total = %s, want 1000", b.Total())
	}
}
