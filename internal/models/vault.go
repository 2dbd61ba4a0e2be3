package models

import (
	"time"
)

// TradingMode separates live funds from simulated ones. A vault never
// switches mode; each owner gets at most one vault per mode.
type TradingMode string

const (
	TradingModeLive      TradingMode = "live"
	TradingModeSimulated TradingMode = "simulated"
)

// Vault is the per-owner, per-mode container of asset balances.
// Identity is immutable; vaults are never deleted.
type Vault struct {
	ID        string      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	OwnerID   string      `gorm:"type:varchar(26);not null;index:idx_vaults_owner_mode,unique" json:"owner_id"`
	Mode      TradingMode `gorm:"type:varchar(10);not null;index:idx_vaults_owner_mode,unique" json:"mode"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Vault) TableName() string {
	return "vaults"
}
