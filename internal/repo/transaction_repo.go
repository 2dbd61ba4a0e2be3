package repo

import (
	"context"

	"github.com/go-orz/orz"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
)

func NewTransactionRepo(db *gorm.DB) *TransactionRepo {
	return &TransactionRepo{
		Repository: orz.NewRepository[models.LedgerTransaction, string](db),
	}
}

type TransactionRepo struct {
	orz.Repository[models.LedgerTransaction, string]
}

// FindByVaultAndAsset returns the log slice for one (vault, asset) in
// commit order. The primary key is a ULID, monotonic within a commit
// ordering at millisecond grain, so id ASC keeps the replay order total.
func (r TransactionRepo) FindByVaultAndAsset(ctx context.Context, vaultID, asset string) (items []models.LedgerTransaction, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("vault_id = ? AND asset = ?", vaultID, asset).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// FindByOrderRef returns the reservation-lifecycle entries for an order,
// oldest first.
func (r TransactionRepo) FindByOrderRef(ctx context.Context, vaultID, asset, orderRef string) (items []models.LedgerTransaction, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("vault_id = ? AND asset = ? AND order_ref = ?", vaultID, asset, orderRef).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// SumBalanceDeltas replays the log for one (vault, asset) and returns the
// signed total. Used by invariant checks and tests; the materialized
// balance row must always equal this.
func (r TransactionRepo) SumBalanceDeltas(ctx context.Context, vaultID, asset string) (decimal.Decimal, error) {
	items, err := r.FindByVaultAndAsset(ctx, vaultID, asset)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, tx := range items {
		total = total.Add(models.BalanceDelta(tx.Kind, tx.Amount.Abs()))
	}
	return total, nil
}
