package repo

import (
	"context"

	"github.com/go-orz/orz"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
)

func NewVaultRepo(db *gorm.DB) *VaultRepo {
	return &VaultRepo{
		Repository: orz.NewRepository[models.Vault, string](db),
	}
}

type VaultRepo struct {
	orz.Repository[models.Vault, string]
}

// FindByOwnerAndMode returns the unique vault for an owner in a trading mode.
func (r VaultRepo) FindByOwnerAndMode(ctx context.Context, ownerID string, mode models.TradingMode) (m models.Vault, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("owner_id = ? AND mode = ?", ownerID, mode).
		First(&m).Error
	return m, err
}
