package repo

import (
	"context"
	"time"

	"github.com/go-orz/orz"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
)

func NewExecutionRepo(db *gorm.DB) *ExecutionRepo {
	return &ExecutionRepo{
		Repository: orz.NewRepository[models.Execution, string](db),
	}
}

type ExecutionRepo struct {
	orz.Repository[models.Execution, string]
}

// FindSellsSince returns trade sell executions executed at or after the
// cutoff, oldest first. This is the audit sweep's working set; residue group
// closes draw from consolidated lots and are not reconciled against the
// FIFO book.
func (r ExecutionRepo) FindSellsSince(ctx context.Context, cutoff time.Time) (items []models.Execution, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("side = ? AND kind <> ? AND executed_at >= ?",
			models.OrderSideSell, models.ExecutionResidueClose, cutoff).
		Order("executed_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r ExecutionRepo) FindByTradeJobID(ctx context.Context, tradeJobID string) (m models.Execution, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("trade_job_id = ?", tradeJobID).
		First(&m).Error
	return m, err
}
