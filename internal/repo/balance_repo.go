package repo

import (
	"context"

	"github.com/go-orz/orz"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
)

func NewBalanceRepo(db *gorm.DB) *BalanceRepo {
	return &BalanceRepo{
		Repository: orz.NewRepository[models.Balance, string](db),
	}
}

type BalanceRepo struct {
	orz.Repository[models.Balance, string]
}

// FindForUpdate reads the (vault, asset) row under an exclusive row lock.
// Must run inside a transaction; the blocking read closes the
// check-then-act race on the available/reserved check.
func (r BalanceRepo) FindForUpdate(ctx context.Context, vaultID, asset string) (m models.Balance, err error) {
	db := r.GetDB(ctx)
	err = lockForUpdate(db.Table(r.GetTableName())).
		Where("vault_id = ? AND asset = ?", vaultID, asset).
		First(&m).Error
	return m, err
}

// FindByVaultAndAsset is the plain (non-locking) read for queries.
func (r BalanceRepo) FindByVaultAndAsset(ctx context.Context, vaultID, asset string) (m models.Balance, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("vault_id = ? AND asset = ?", vaultID, asset).
		First(&m).Error
	return m, err
}

func (r BalanceRepo) FindAllByVault(ctx context.Context, vaultID string) (items []models.Balance, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("vault_id = ?", vaultID).
		Order("asset ASC").
		Find(&items).Error
	return items, err
}
