package repo

import (
	"context"

	"github.com/go-orz/orz"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
)

func NewResidueTransferRepo(db *gorm.DB) *ResidueTransferRepo {
	return &ResidueTransferRepo{
		Repository: orz.NewRepository[models.ResidueTransfer, string](db),
	}
}

type ResidueTransferRepo struct {
	orz.Repository[models.ResidueTransfer, string]
}

// FindBySources returns every move out of the given source lots, any status.
// A transfer's quantity sits in the consolidated lot from the moment the row
// is written, so quantity accounting must count all of them.
func (r ResidueTransferRepo) FindBySources(ctx context.Context, sourceIDs []string) (items []models.ResidueTransfer, err error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("source_id IN ?", sourceIDs).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// FindByTargets returns every move into the given target lots, any status.
// A lot with inbound moves is a consolidation group, whatever its current
// status says.
func (r ResidueTransferRepo) FindByTargets(ctx context.Context, targetIDs []string) (items []models.ResidueTransfer, err error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("target_id IN ?", targetIDs).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// FindPendingByTarget returns the PENDING moves into a consolidated lot.
func (r ResidueTransferRepo) FindPendingByTarget(ctx context.Context, targetID string) (items []models.ResidueTransfer, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("target_id = ? AND status = ?", targetID, models.ResidueTransferPending).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// UpdateStatusByTarget moves the whole transfer chain of a consolidated lot
// to the given status.
func (r ResidueTransferRepo) UpdateStatusByTarget(ctx context.Context, targetID string, from, to models.ResidueTransferStatus) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("target_id = ? AND status = ?", targetID, from).
		Update("status", to).Error
}
