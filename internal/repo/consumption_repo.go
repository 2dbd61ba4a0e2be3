package repo

import (
	"context"

	"github.com/go-orz/orz"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
)

func NewConsumptionRepo(db *gorm.DB) *ConsumptionRepo {
	return &ConsumptionRepo{
		Repository: orz.NewRepository[models.PositionConsumption, string](db),
	}
}

type ConsumptionRepo struct {
	orz.Repository[models.PositionConsumption, string]
}

// FindActiveByExecution returns the non-reversed consumption rows for an
// execution in the order they were written.
func (r ConsumptionRepo) FindActiveByExecution(ctx context.Context, executionID string) (items []models.PositionConsumption, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("execution_id = ? AND reversed = ?", executionID, false).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// FindActiveByExecutions loads the active rows for a batch of executions in
// one query, for sweep classification.
func (r ConsumptionRepo) FindActiveByExecutions(ctx context.Context, executionIDs []string) (items []models.PositionConsumption, err error) {
	if len(executionIDs) == 0 {
		return nil, nil
	}
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("execution_id IN ? AND reversed = ?", executionIDs, false).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// FindActiveByPositions returns active consumptions drawn from any of the
// given lots, ordered by insertion. Used to replay a lot's draw-down history.
func (r ConsumptionRepo) FindActiveByPositions(ctx context.Context, positionIDs []string) (items []models.PositionConsumption, err error) {
	if len(positionIDs) == 0 {
		return nil, nil
	}
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("position_id IN ? AND reversed = ?", positionIDs, false).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// MarkReversed flags a consumption row as undone by a repair, keeping it
// queryable for history.
func (r ConsumptionRepo) MarkReversed(ctx context.Context, id, reversedBy string) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]any{"reversed": true, "reversed_by": reversedBy}).Error
}
