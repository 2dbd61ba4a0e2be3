package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ResidueTransferStatus string

const (
	ResidueTransferPending   ResidueTransferStatus = "PENDING"
	ResidueTransferCompleted ResidueTransferStatus = "COMPLETED"
	ResidueTransferFailed    ResidueTransferStatus = "FAILED"
)

// ResidueTransfer is the audit trail of dust consolidation: one row per
// quantity move from a source lot into the consolidated RESIDUE lot.
// Consolidation is otherwise destructive to per-lot history, so these rows
// are what makes it reversible on paper.
type ResidueTransfer struct {
	ID         string                `gorm:"primaryKey;type:varchar(26)" json:"id"`
	SourceID   string                `gorm:"type:varchar(26);not null;index" json:"source_id"`
	TargetID   string                `gorm:"type:varchar(26);not null;index" json:"target_id"`
	Quantity   decimal.Decimal       `gorm:"type:decimal(38,18);not null" json:"quantity"`
	Status     ResidueTransferStatus `gorm:"type:varchar(12);not null;index" json:"status"`
	FailReason string                `gorm:"type:varchar(255)" json:"fail_reason"`
	CreatedAt  time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ResidueTransfer) TableName() string {
	return "residue_transfers"
}
