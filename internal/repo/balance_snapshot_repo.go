package repo

import (
	"context"

	"github.com/go-orz/orz"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
)

func NewBalanceSnapshotRepo(db *gorm.DB) *BalanceSnapshotRepo {
	return &BalanceSnapshotRepo{
		Repository: orz.NewRepository[models.BalanceSnapshot, string](db),
	}
}

type BalanceSnapshotRepo struct {
	orz.Repository[models.BalanceSnapshot, string]
}

func (r BalanceSnapshotRepo) FindRecentByVault(ctx context.Context, vaultID string, limit int) (items []models.BalanceSnapshot, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("vault_id = ?", vaultID).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
