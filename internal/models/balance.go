package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is one (vault, asset) row. Available and reserved are a
// materialized view of the ledger transaction log and must always be
// reconstructible from it; only the reservation engine mutates them.
type Balance struct {
	ID        string          `gorm:"primaryKey;type:varchar(26)" json:"id"`
	VaultID   string          `gorm:"type:varchar(26);not null;index:idx_balances_vault_asset,unique" json:"vault_id"`
	Asset     string          `gorm:"type:varchar(20);not null;index:idx_balances_vault_asset,unique" json:"asset"`
	Available decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"available"`
	Reserved  decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"reserved"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Balance) TableName() string {
	return "balances"
}

// Total is available + reserved, the quantity the conservation invariant
// checks against the summed transaction log.
func (b *Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Reserved)
}
