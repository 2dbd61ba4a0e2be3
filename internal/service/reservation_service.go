package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/alert"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/repo"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/xe"
)

// ReservationService is the only writer of balances and the ledger log.
// Every operation is one atomic transaction with deadlock retry: lock the
// balance row, check, mutate, append exactly one ledger entry.
type ReservationService struct {
	logger *zap.Logger

	*orz.Service

	vaults   *repo.VaultRepo
	balances *repo.BalanceRepo
	ledger   *repo.TransactionRepo

	alerter *alert.Alerter
}

func NewReservationService(db *gorm.DB, alerter *alert.Alerter, logger *zap.Logger) *ReservationService {
	return &ReservationService{
		logger:   logger,
		Service:  orz.NewService(db),
		vaults:   repo.NewVaultRepo(db),
		balances: repo.NewBalanceRepo(db),
		ledger:   repo.NewTransactionRepo(db),
		alerter:  alerter,
	}
}

// EnsureVault returns the vault for (owner, mode), creating it on first use.
func (s *ReservationService) EnsureVault(ctx context.Context, ownerID string, mode models.TradingMode) (models.Vault, error) {
	vault, err := s.vaults.FindByOwnerAndMode(ctx, ownerID, mode)
	if err == nil {
		return vault, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Vault{}, err
	}

	vault = models.Vault{
		ID:      ulid.Make().String(),
		OwnerID: ownerID,
		Mode:    mode,
	}
	if err := s.vaults.Create(ctx, &vault); err != nil {
		// Lost a creation race: the other writer's row wins.
		if existing, ferr := s.vaults.FindByOwnerAndMode(ctx, ownerID, mode); ferr == nil {
			return existing, nil
		}
		return models.Vault{}, err
	}
	return vault, nil
}

// GetBalance returns the (vault, asset) balance row without locking.
func (s *ReservationService) GetBalance(ctx context.Context, vaultID, asset string) (models.Balance, error) {
	bal, err := s.balances.FindByVaultAndAsset(ctx, vaultID, asset)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Balance{}, xe.ErrBalanceNotFound
	}
	return bal, err
}

// GetBalances returns all balance rows of a vault.
func (s *ReservationService) GetBalances(ctx context.Context, vaultID string) ([]models.Balance, error) {
	return s.balances.FindAllByVault(ctx, vaultID)
}

// GetTransactions returns the ledger log for (vault, asset) in commit order.
func (s *ReservationService) GetTransactions(ctx context.Context, vaultID, asset string) ([]models.LedgerTransaction, error) {
	return s.ledger.FindByVaultAndAsset(ctx, vaultID, asset)
}

// Deposit credits available funds, creating the balance row on first use.
func (s *ReservationService) Deposit(ctx context.Context, vaultID, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return xe.ErrInvalidAmount
	}

	return runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		bal, err := s.lockOrCreateBalance(ctx, vaultID, asset)
		if err != nil {
			return err
		}

		bal.Available = bal.Available.Add(amount)
		if err := s.saveChecked(ctx, &bal); err != nil {
			return err
		}

		return s.appendEntry(ctx, vaultID, asset, models.TransactionDeposit, amount, "")
	})
}

// Withdraw debits available funds. Anything already escrowed is excluded
// from what can leave the vault.
func (s *ReservationService) Withdraw(ctx context.Context, vaultID, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return xe.ErrInvalidAmount
	}

	return runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		bal, err := s.lockBalance(ctx, vaultID, asset)
		if err != nil {
			return err
		}

		if bal.Available.Sub(bal.Reserved).LessThan(amount) {
			return xe.ErrInsufficientAvailableBalance
		}

		bal.Available = bal.Available.Sub(amount)
		if err := s.saveChecked(ctx, &bal); err != nil {
			return err
		}

		return s.appendEntry(ctx, vaultID, asset, models.TransactionWithdrawal, amount.Neg(), "")
	})
}

// ReserveForBuy escrows funds for an in-flight buy order: moves amount from
// available to reserved under the row lock.
func (s *ReservationService) ReserveForBuy(ctx context.Context, vaultID, asset string, amount decimal.Decimal, orderRef string) error {
	if !amount.IsPositive() {
		return xe.ErrInvalidAmount
	}

	return runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		bal, err := s.lockBalance(ctx, vaultID, asset)
		if err != nil {
			return err
		}

		if bal.Available.Sub(bal.Reserved).LessThan(amount) {
			return xe.ErrInsufficientAvailableBalance
		}

		bal.Available = bal.Available.Sub(amount)
		bal.Reserved = bal.Reserved.Add(amount)
		if err := s.saveChecked(ctx, &bal); err != nil {
			return err
		}

		return s.appendEntry(ctx, vaultID, asset, models.TransactionBuyReserve, amount.Neg(), orderRef)
	})
}

// ConfirmBuy finalizes a reservation: the escrowed funds leave the vault
// into the position. Confirming more than the order's outstanding
// reservation, or confirming a finalized reservation again, fails loudly.
func (s *ReservationService) ConfirmBuy(ctx context.Context, vaultID, asset string, amount decimal.Decimal, orderRef string) error {
	return runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		return s.confirmBuyInTx(ctx, vaultID, asset, amount, orderRef)
	})
}

// confirmBuyInTx is the body of ConfirmBuy; the caller supplies the
// enclosing transaction. The execution intake runs it in the same unit of
// work as the lot open so a failure on either side rolls both back.
func (s *ReservationService) confirmBuyInTx(ctx context.Context, vaultID, asset string, amount decimal.Decimal, orderRef string) error {
	if !amount.IsPositive() {
		return xe.ErrInvalidAmount
	}

	bal, err := s.lockBalance(ctx, vaultID, asset)
	if err != nil {
		return err
	}

	outstanding, err := s.outstandingReservation(ctx, vaultID, asset, orderRef)
	if err != nil {
		return err
	}
	if outstanding.LessThan(amount) || bal.Reserved.LessThan(amount) {
		return xe.ErrReservationNotFound
	}

	bal.Reserved = bal.Reserved.Sub(amount)
	if err := s.saveChecked(ctx, &bal); err != nil {
		return err
	}

	return s.appendEntry(ctx, vaultID, asset, models.TransactionBuyConfirm, amount.Neg(), orderRef)
}

// CancelBuy releases a reservation back to available. Cancelling a
// reservation that was already confirmed or cancelled is a caller bug and
// is rejected, never silently tolerated.
func (s *ReservationService) CancelBuy(ctx context.Context, vaultID, asset string, amount decimal.Decimal, orderRef string) error {
	if !amount.IsPositive() {
		return xe.ErrInvalidAmount
	}

	return runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		bal, err := s.lockBalance(ctx, vaultID, asset)
		if err != nil {
			return err
		}

		outstanding, err := s.outstandingReservation(ctx, vaultID, asset, orderRef)
		if err != nil {
			return err
		}
		if outstanding.LessThan(amount) || bal.Reserved.LessThan(amount) {
			return xe.ErrReservationNotFound
		}

		bal.Reserved = bal.Reserved.Sub(amount)
		bal.Available = bal.Available.Add(amount)
		if err := s.saveChecked(ctx, &bal); err != nil {
			return err
		}

		return s.appendEntry(ctx, vaultID, asset, models.TransactionBuyCancel, amount, orderRef)
	})
}

// CreditOnSell credits sale proceeds to available.
func (s *ReservationService) CreditOnSell(ctx context.Context, vaultID, asset string, amount decimal.Decimal, orderRef string) error {
	return runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		return s.creditOnSellInTx(ctx, vaultID, asset, amount, orderRef)
	})
}

// creditOnSellInTx is the body of CreditOnSell; the caller supplies the
// enclosing transaction. The sell intake and the residue close run it in the
// same unit of work as their book mutations, so a sale is either fully
// settled or not recorded at all.
func (s *ReservationService) creditOnSellInTx(ctx context.Context, vaultID, asset string, amount decimal.Decimal, orderRef string) error {
	if !amount.IsPositive() {
		return xe.ErrInvalidAmount
	}

	bal, err := s.lockOrCreateBalance(ctx, vaultID, asset)
	if err != nil {
		return err
	}

	bal.Available = bal.Available.Add(amount)
	if err := s.saveChecked(ctx, &bal); err != nil {
		return err
	}

	return s.appendEntry(ctx, vaultID, asset, models.TransactionSellReturn, amount, orderRef)
}

// VerifyConservation replays the ledger log for (vault, asset) and compares
// it with the materialized balance. A mismatch is an invariant violation:
// it alerts and returns the fatal error without touching the balance.
func (s *ReservationService) VerifyConservation(ctx context.Context, vaultID, asset string) error {
	bal, err := s.balances.FindByVaultAndAsset(ctx, vaultID, asset)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	replayed, err := s.ledger.SumBalanceDeltas(ctx, vaultID, asset)
	if err != nil {
		return err
	}

	if !bal.Total().Equal(replayed) {
		detail := fmt.Sprintf("materialized total %s != replayed log total %s", bal.Total(), replayed)
		s.logger.Error("conservation check failed",
			zap.String("vault_id", vaultID),
			zap.String("asset", asset),
			zap.String("detail", detail))
		s.alerter.InvariantViolated(vaultID, asset, detail)
		return xe.ErrInvariantViolation
	}
	return nil
}

// lockBalance reads the balance row under an exclusive lock; the row must
// already exist.
func (s *ReservationService) lockBalance(ctx context.Context, vaultID, asset string) (models.Balance, error) {
	bal, err := s.balances.FindForUpdate(ctx, vaultID, asset)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Balance{}, xe.ErrInsufficientAvailableBalance
	}
	return bal, err
}

// lockOrCreateBalance is lockBalance for operations that may see the
// (vault, asset) pair for the first time. A lost creation race falls back
// to locking the winner's row.
func (s *ReservationService) lockOrCreateBalance(ctx context.Context, vaultID, asset string) (models.Balance, error) {
	bal, err := s.balances.FindForUpdate(ctx, vaultID, asset)
	if err == nil {
		return bal, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Balance{}, err
	}

	bal = models.Balance{
		ID:        ulid.Make().String(),
		VaultID:   vaultID,
		Asset:     asset,
		Available: decimal.Zero,
		Reserved:  decimal.Zero,
	}
	if err := s.balances.Create(ctx, &bal); err != nil {
		return s.balances.FindForUpdate(ctx, vaultID, asset)
	}
	return bal, nil
}

// saveChecked persists the mutated balance after enforcing the non-negative
// invariants. Violations abort the transaction (never clamp) and alert.
func (s *ReservationService) saveChecked(ctx context.Context, bal *models.Balance) error {
	if bal.Available.IsNegative() || bal.Reserved.IsNegative() || bal.Reserved.GreaterThan(bal.Total()) {
		detail := fmt.Sprintf("available=%s reserved=%s", bal.Available, bal.Reserved)
		s.logger.Error("balance invariant violated, aborting",
			zap.String("vault_id", bal.VaultID),
			zap.String("asset", bal.Asset),
			zap.String("detail", detail))
		s.alerter.InvariantViolated(bal.VaultID, bal.Asset, detail)
		return xe.ErrInvariantViolation
	}
	return s.balances.Save(ctx, bal)
}

// appendEntry writes the single ledger row of the enclosing operation.
func (s *ReservationService) appendEntry(ctx context.Context, vaultID, asset string, kind models.TransactionKind, amount decimal.Decimal, orderRef string) error {
	entry := models.LedgerTransaction{
		ID:       ulid.Make().String(),
		VaultID:  vaultID,
		Asset:    asset,
		Kind:     kind,
		Amount:   amount,
		OrderRef: orderRef,
	}
	return s.ledger.Create(ctx, &entry)
}

// outstandingReservation derives the reservation state of an order from
// the ledger log: reserves minus confirms minus cancels. Zero means the
// lifecycle is terminal (or never started) for that order ref.
func (s *ReservationService) outstandingReservation(ctx context.Context, vaultID, asset, orderRef string) (decimal.Decimal, error) {
	if orderRef == "" {
		return decimal.Zero, xe.ErrReservationNotFound
	}

	entries, err := s.ledger.FindByOrderRef(ctx, vaultID, asset, orderRef)
	if err != nil {
		return decimal.Zero, err
	}

	outstanding := decimal.Zero
	for _, entry := range entries {
		switch entry.Kind {
		case models.TransactionBuyReserve:
			outstanding = outstanding.Add(entry.Amount.Abs())
		case models.TransactionBuyConfirm, models.TransactionBuyCancel:
			outstanding = outstanding.Sub(entry.Amount.Abs())
		}
	}
	return outstanding, nil
}
