package repo

import (
	"context"
	"time"

	"github.com/go-orz/orz"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
)

func NewPositionRepo(db *gorm.DB) *PositionRepo {
	return &PositionRepo{
		Repository: orz.NewRepository[models.Position, string](db),
	}
}

type PositionRepo struct {
	orz.Repository[models.Position, string]
}

// FindConsumableForUpdate returns the OPEN/PARTIALLY_CLOSED lots for an
// (account, symbol) oldest first, locked for update. The id ASC tie-break
// keeps the ordering total when two lots share an opened_at timestamp.
func (r PositionRepo) FindConsumableForUpdate(ctx context.Context, accountID, symbol string) (items []models.Position, err error) {
	db := r.GetDB(ctx)
	err = lockForUpdate(db.Table(r.GetTableName())).
		Where("account_id = ? AND symbol = ? AND status IN ?", accountID, symbol,
			[]models.PositionStatus{models.PositionOpen, models.PositionPartiallyClosed}).
		Order("opened_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// FindOpenBySymbol is the non-locking variant used by queries and the dust
// candidate scan.
func (r PositionRepo) FindOpenBySymbol(ctx context.Context, accountID, symbol string) (items []models.Position, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("account_id = ? AND symbol = ? AND status IN ?", accountID, symbol,
			[]models.PositionStatus{models.PositionOpen, models.PositionPartiallyClosed}).
		Order("opened_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// FindAllOpen returns every consumable lot across accounts, for the dust scan.
func (r PositionRepo) FindAllOpen(ctx context.Context) (items []models.Position, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("status IN ?", []models.PositionStatus{models.PositionOpen, models.PositionPartiallyClosed}).
		Order("opened_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// FindOpenedBefore returns every lot for (account, symbol) opened at or
// before t, regardless of current status, oldest first. The audit sweep
// reconstructs the lot set as of an execution from this.
func (r PositionRepo) FindOpenedBefore(ctx context.Context, accountID, symbol string, t time.Time) (items []models.Position, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("account_id = ? AND symbol = ? AND opened_at <= ?", accountID, symbol, t).
		Order("opened_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

// FindResidueGroup returns the consolidated RESIDUE lot for (account,
// symbol), if one exists.
func (r PositionRepo) FindResidueGroup(ctx context.Context, accountID, symbol string) (m models.Position, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("account_id = ? AND symbol = ? AND status = ?", accountID, symbol, models.PositionResidue).
		First(&m).Error
	return m, err
}

// FindByIdForUpdate locks a single lot row.
func (r PositionRepo) FindByIdForUpdate(ctx context.Context, id string) (m models.Position, err error) {
	db := r.GetDB(ctx)
	err = lockForUpdate(db.Table(r.GetTableName())).
		Where("id = ?", id).
		First(&m).Error
	return m, err
}
