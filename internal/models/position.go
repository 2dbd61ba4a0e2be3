package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lot lifecycle. CLOSED and RESIDUE are terminal but
// rows stay queryable for history; lots are never physically deleted.
type PositionStatus string

const (
	PositionOpen            PositionStatus = "OPEN"
	PositionPartiallyClosed PositionStatus = "PARTIALLY_CLOSED"
	PositionClosed          PositionStatus = "CLOSED"
	PositionResidue         PositionStatus = "RESIDUE"
)

// Position is one FIFO inventory lot. Each buy execution creates its own lot
// even at an identical price, preserving cost-basis lineage for per-lot
// realized PnL. Sells consume lots oldest first.
type Position struct {
	ID           string          `gorm:"primaryKey;type:varchar(26)" json:"id"`
	AccountID    string          `gorm:"type:varchar(26);not null;index:idx_positions_account_symbol" json:"account_id"`
	Symbol       string          `gorm:"type:varchar(20);not null;index:idx_positions_account_symbol" json:"symbol"`
	Status       PositionStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	OpenPrice    decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"open_price"`
	Quantity     decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"quantity"`
	QtyRemaining decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"qty_remaining"`
	ExecutionRef string          `gorm:"type:varchar(64);index" json:"execution_ref"`

	// Optional exit configuration carried from the order that opened the lot.
	StopLoss      decimal.Decimal `gorm:"type:decimal(38,18)" json:"stop_loss"`
	TakeProfit    decimal.Decimal `gorm:"type:decimal(38,18)" json:"take_profit"`
	TrailingDelta decimal.Decimal `gorm:"type:decimal(38,18)" json:"trailing_delta"`

	OpenedAt  time.Time `gorm:"not null;index" json:"opened_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// Consumable reports whether the lot can still be drawn down by a sell.
func (p *Position) Consumable() bool {
	return (p.Status == PositionOpen || p.Status == PositionPartiallyClosed) &&
		p.QtyRemaining.IsPositive()
}
