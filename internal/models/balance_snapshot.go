package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot is a periodic copy of a balance row, written by the
// background loop for dashboard history charts. Informational only.
type BalanceSnapshot struct {
	ID         string          `gorm:"primaryKey;type:varchar(26)" json:"id"`
	VaultID    string          `gorm:"type:varchar(26);not null;index" json:"vault_id"`
	Asset      string          `gorm:"type:varchar(20);not null" json:"asset"`
	Available  decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"available"`
	Reserved   decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"reserved"`
	RecordedAt time.Time       `gorm:"not null;index" json:"recorded_at"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (BalanceSnapshot) TableName() string {
	return "balance_snapshots"
}
