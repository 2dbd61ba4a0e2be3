package repo

import (
	"context"

	"github.com/go-orz/orz"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
)

func NewTradeRepo(db *gorm.DB) *TradeRepo {
	return &TradeRepo{
		Repository: orz.NewRepository[models.Trade, string](db),
	}
}

type TradeRepo struct {
	orz.Repository[models.Trade, string]
}

// FindRecentTrades returns the latest realized-PnL bookings.
func (r TradeRepo) FindRecentTrades(ctx context.Context, limit int) (items []models.Trade, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Order("executed_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// FindByExecution returns the bookings tied to one execution, oldest first.
func (r TradeRepo) FindByExecution(ctx context.Context, executionID string) (items []models.Trade, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("execution_id = ?", executionID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}
