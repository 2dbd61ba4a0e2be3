package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ExecutionKind separates trade-job fills from residue group closes. Residue
// closes draw from a consolidated lot, not the FIFO book, so the audit sweep
// reconciles only TRADE executions.
type ExecutionKind string

const (
	ExecutionTrade        ExecutionKind = "TRADE"
	ExecutionResidueClose ExecutionKind = "RESIDUE_CLOSE"
)

// Execution is the immutable record of a filled (or partially filled) order
// reported by the trade executor. One sell execution may consume several
// lots; the consumption rows reference it and the audit sweep reconciles
// them against ExecutedQty.
type Execution struct {
	ID          string          `gorm:"primaryKey;type:varchar(26)" json:"id"`
	TradeJobID  string          `gorm:"type:varchar(64);not null;index" json:"trade_job_id"`
	AccountID   string          `gorm:"type:varchar(26);not null;index:idx_executions_account_symbol" json:"account_id"`
	Symbol      string          `gorm:"type:varchar(20);not null;index:idx_executions_account_symbol" json:"symbol"`
	Side        OrderSide       `gorm:"type:varchar(4);not null;index" json:"side"`
	Kind        ExecutionKind   `gorm:"type:varchar(16);not null;default:TRADE" json:"kind"`
	ExecutedQty decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"executed_qty"`
	AvgPrice    decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"avg_price"`
	FeeQty      decimal.Decimal `gorm:"type:decimal(38,18)" json:"fee_qty"`
	RawResponse datatypes.JSON  `json:"raw_response"`
	ExecutedAt  time.Time       `gorm:"not null;index" json:"executed_at"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Execution) TableName() string {
	return "executions"
}
