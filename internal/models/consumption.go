package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionConsumption records one sell execution drawing quantity from one
// lot. The set of rows for an execution is what the audit sweep compares
// against the execution's filled quantity and the FIFO order.
//
// Reversed rows are kept (flagged, never deleted) so a repaired execution
// still shows its full history.
type PositionConsumption struct {
	ID          string          `gorm:"primaryKey;type:varchar(26)" json:"id"`
	ExecutionID string          `gorm:"type:varchar(26);not null;index" json:"execution_id"`
	PositionID  string          `gorm:"type:varchar(26);not null;index" json:"position_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"quantity"`
	SellPrice   decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"sell_price"`
	RealizedPnl decimal.Decimal `gorm:"type:decimal(38,18)" json:"realized_pnl"`
	FeeShare    decimal.Decimal `gorm:"type:decimal(38,18)" json:"fee_share"`
	Reversed    bool            `gorm:"not null;default:false" json:"reversed"`
	ReversedBy  string          `gorm:"type:varchar(26)" json:"reversed_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (PositionConsumption) TableName() string {
	return "position_consumptions"
}
