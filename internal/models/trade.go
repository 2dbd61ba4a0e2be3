package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a realized-PnL booking, one per lot consumption (and one per lot
// open with zero PnL). Reporting reads these; the ledger and position tables
// stay the accounting source of truth.
type Trade struct {
	ID          string          `gorm:"primaryKey;type:varchar(26)" json:"id"`
	AccountID   string          `gorm:"type:varchar(26);not null;index" json:"account_id"`
	Symbol      string          `gorm:"type:varchar(20);not null;index" json:"symbol"`
	Side        OrderSide       `gorm:"type:varchar(4);not null" json:"side"`
	Price       decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"price"`
	Quantity    decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"quantity"`
	Fee         decimal.Decimal `gorm:"type:decimal(38,18)" json:"fee"`
	Pnl         decimal.Decimal `gorm:"type:decimal(38,18)" json:"pnl"`
	PositionID  string          `gorm:"type:varchar(26);index" json:"position_id"`
	ExecutionID string          `gorm:"type:varchar(26);index" json:"execution_id"`
	ExecutedAt  time.Time       `gorm:"not null;index" json:"executed_at"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
