package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the closed set of ledger mutations. Anything the
// engine does to a balance is exactly one of these.
type TransactionKind string

const (
	TransactionDeposit    TransactionKind = "DEPOSIT"
	TransactionWithdrawal TransactionKind = "WITHDRAWAL"
	TransactionBuyReserve TransactionKind = "BUY_RESERVE"
	TransactionBuyConfirm TransactionKind = "BUY_CONFIRM"
	TransactionBuyCancel  TransactionKind = "BUY_CANCEL"
	TransactionSellReturn TransactionKind = "SELL_RETURN"
)

// LedgerTransaction is an append-only ledger entry. Rows are never updated
// or deleted; the log is the sole source of truth for replay and audit.
// Amount is signed: the delta applied to available+reserved.
type LedgerTransaction struct {
	ID        string          `gorm:"primaryKey;type:varchar(26)" json:"id"`
	VaultID   string          `gorm:"type:varchar(26);not null;index:idx_ledger_vault_asset" json:"vault_id"`
	Asset     string          `gorm:"type:varchar(20);not null;index:idx_ledger_vault_asset" json:"asset"`
	Kind      TransactionKind `gorm:"type:varchar(20);not null" json:"kind"`
	Amount    decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"amount"`
	OrderRef  string          `gorm:"type:varchar(64);index" json:"order_ref"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}

// BalanceDelta returns the signed change to available+reserved that a
// transaction of the given kind and magnitude applies. Reserve and confirm
// only move value between the two columns or out of the vault respectively,
// so the mapping is not the identity.
func BalanceDelta(kind TransactionKind, amount decimal.Decimal) decimal.Decimal {
	switch kind {
	case TransactionDeposit, TransactionSellReturn:
		return amount
	case TransactionWithdrawal, TransactionBuyConfirm:
		return amount.Neg()
	case TransactionBuyReserve, TransactionBuyCancel:
		// available <-> reserved moves, total unchanged
		return decimal.Zero
	default:
		return decimal.Zero
	}
}
