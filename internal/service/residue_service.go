package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/config"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/repo"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/xe"
	"github.com/mayconvmartins/mvcashnode-sub004/pkg/exchange"
)

// ResidueService sweeps dust out of the FIFO book. A lot becomes a residue
// candidate when BOTH thresholds hold: qty_remaining below a percentage of
// its original quantity AND below a USD value at the current mark price.
// Candidates are folded per (account, symbol) into one RESIDUE lot, each
// move journaled as a ResidueTransfer so consolidation stays reconstructible.
type ResidueService struct {
	logger *zap.Logger

	*orz.Service

	positions    *repo.PositionRepo
	transfers    *repo.ResidueTransferRepo
	executions   *repo.ExecutionRepo
	consumptions *repo.ConsumptionRepo
	trades       *repo.TradeRepo

	reservations *ReservationService
	exchange     exchange.Exchange
	conf         config.ResidueConf
}

func NewResidueService(db *gorm.DB, reservations *ReservationService, ex exchange.Exchange, conf config.ResidueConf, logger *zap.Logger) *ResidueService {
	if conf.ThresholdPercent <= 0 {
		conf.ThresholdPercent = 1
	}
	if conf.ThresholdUSD <= 0 {
		conf.ThresholdUSD = 1
	}
	if conf.MinCloseUSD <= 0 {
		conf.MinCloseUSD = 5
	}
	if conf.PriceMaxAgeMin <= 0 {
		conf.PriceMaxAgeMin = 5
	}
	return &ResidueService{
		logger:       logger,
		Service:      orz.NewService(db),
		positions:    repo.NewPositionRepo(db),
		transfers:    repo.NewResidueTransferRepo(db),
		executions:   repo.NewExecutionRepo(db),
		consumptions: repo.NewConsumptionRepo(db),
		trades:       repo.NewTradeRepo(db),
		reservations: reservations,
		exchange:     ex,
		conf:         conf,
	}
}

// Candidate is one dust lot selected for consolidation.
type Candidate struct {
	Lot       models.Position
	MarkPrice decimal.Decimal
	ValueUSD  decimal.Decimal
}

// IdentifyCandidates scans every consumable lot and returns the ones under
// both residue thresholds. A symbol whose mark price is missing or older
// than the freshness bound is skipped entirely: a stale price is never a
// basis for classifying a lot as dust.
func (s *ResidueService) IdentifyCandidates(ctx context.Context) ([]Candidate, error) {
	lots, err := s.positions.FindAllOpen(ctx)
	if err != nil {
		return nil, err
	}

	pctThreshold := decimal.NewFromFloat(s.conf.ThresholdPercent).Div(decimal.NewFromInt(100))
	usdThreshold := decimal.NewFromFloat(s.conf.ThresholdUSD)
	maxAge := time.Duration(s.conf.PriceMaxAgeMin) * time.Minute

	tickers := make(map[string]*exchange.Ticker)
	staleSymbols := make(map[string]bool)

	var candidates []Candidate
	for _, lot := range lots {
		if staleSymbols[lot.Symbol] {
			continue
		}
		ticker, ok := tickers[lot.Symbol]
		if !ok {
			ticker, err = s.exchange.FetchTicker(ctx, lot.Symbol)
			if err != nil || time.Since(ticker.At) > maxAge {
				s.logger.Warn("mark price unavailable or stale, skipping symbol",
					zap.String("symbol", lot.Symbol),
					zap.Error(err))
				staleSymbols[lot.Symbol] = true
				continue
			}
			tickers[lot.Symbol] = ticker
		}

		if lot.Quantity.IsZero() {
			continue
		}
		fraction := lot.QtyRemaining.Div(lot.Quantity)
		value := lot.QtyRemaining.Mul(ticker.Price)
		if fraction.LessThan(pctThreshold) && value.LessThan(usdThreshold) {
			candidates = append(candidates, Candidate{
				Lot:       lot,
				MarkPrice: ticker.Price,
				ValueUSD:  value,
			})
		}
	}
	return candidates, nil
}

// ConsolidationReport summarizes a Consolidate run.
type ConsolidationReport struct {
	Candidates int
	Moved      int
	Failed     int
}

// Consolidate folds the current candidates into their per-(account, symbol)
// RESIDUE lots. Every move runs in its own transaction: one failed lot is
// journaled as a FAILED transfer and does not hold up the rest.
func (s *ResidueService) Consolidate(ctx context.Context) (*ConsolidationReport, error) {
	candidates, err := s.IdentifyCandidates(ctx)
	if err != nil {
		return nil, err
	}

	report := &ConsolidationReport{Candidates: len(candidates)}
	for _, c := range candidates {
		if err := s.moveToResidue(ctx, c.Lot); err != nil {
			report.Failed++
			s.logger.Error("residue move failed",
				zap.String("lot_id", c.Lot.ID),
				zap.String("symbol", c.Lot.Symbol),
				zap.Error(err))
			continue
		}
		report.Moved++
	}

	if report.Candidates > 0 {
		s.logger.Info("residue consolidation finished",
			zap.Int("candidates", report.Candidates),
			zap.Int("moved", report.Moved),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

// moveToResidue transfers one lot's remaining quantity into the consolidated
// lot for its (account, symbol), creating the consolidated lot on first use.
// The source is re-checked under lock: a concurrent sell may have consumed
// it since the scan.
func (s *ResidueService) moveToResidue(ctx context.Context, candidate models.Position) error {
	return runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		source, err := s.positions.FindByIdForUpdate(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if !source.Consumable() {
			return nil
		}

		group, err := s.positions.FindResidueGroup(ctx, source.AccountID, source.Symbol)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			group = models.Position{
				ID:           ulid.Make().String(),
				AccountID:    source.AccountID,
				Symbol:       source.Symbol,
				Status:       models.PositionResidue,
				OpenPrice:    source.OpenPrice,
				Quantity:     decimal.Zero,
				QtyRemaining: decimal.Zero,
				OpenedAt:     source.OpenedAt,
			}
			if err := s.positions.Create(ctx, &group); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		moved := source.QtyRemaining

		// Quantity-weighted average keeps the group's cost basis honest
		// across sources bought at different prices.
		newQty := group.QtyRemaining.Add(moved)
		if newQty.IsPositive() {
			group.OpenPrice = group.OpenPrice.Mul(group.QtyRemaining).
				Add(source.OpenPrice.Mul(moved)).
				Div(newQty)
		}
		group.Quantity = group.Quantity.Add(moved)
		group.QtyRemaining = newQty
		if source.OpenedAt.Before(group.OpenedAt) {
			group.OpenedAt = source.OpenedAt
		}
		if err := s.positions.Save(ctx, &group); err != nil {
			return err
		}

		source.QtyRemaining = decimal.Zero
		source.Status = models.PositionClosed
		if err := s.positions.Save(ctx, &source); err != nil {
			return err
		}

		transfer := models.ResidueTransfer{
			ID:       ulid.Make().String(),
			SourceID: source.ID,
			TargetID: group.ID,
			Quantity: moved,
			Status:   models.ResidueTransferPending,
		}
		return s.transfers.Create(ctx, &transfer)
	})
}

// CloseResidueGroup market-sells a consolidated lot and credits the
// proceeds. The group must clear both the configured close floor and the
// venue's minimum notional; below either it stays parked until more dust
// accumulates.
//
// The sale is recorded as a RESIDUE_CLOSE execution with its consumption and
// trade rows, and the whole settlement runs in one transaction with the
// credit. One job id per group keeps a replayed close from crediting twice.
func (s *ResidueService) CloseResidueGroup(ctx context.Context, accountID, symbol, quoteAsset string) error {
	group, err := s.positions.FindResidueGroup(ctx, accountID, symbol)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return xe.ErrVaultNotFound
	}
	if err != nil {
		return err
	}
	if !group.QtyRemaining.IsPositive() {
		return nil
	}

	jobID := fmt.Sprintf("residue-%s", group.ID)
	if _, err := s.executions.FindByTradeJobID(ctx, jobID); err == nil {
		s.logger.Info("residue group already settled, skipping",
			zap.String("group_id", group.ID))
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	ticker, err := s.exchange.FetchTicker(ctx, symbol)
	if err != nil {
		return err
	}
	if time.Since(ticker.At) > time.Duration(s.conf.PriceMaxAgeMin)*time.Minute {
		return xe.ErrStaleMarkPrice
	}

	notional := group.QtyRemaining.Mul(ticker.Price)
	if notional.LessThan(decimal.NewFromFloat(s.conf.MinCloseUSD)) {
		return xe.ErrBelowMinimumNotional
	}
	info, err := s.exchange.FetchSymbolInfo(ctx, symbol)
	if err != nil {
		return err
	}
	if notional.LessThan(info.MinNotional) {
		return xe.ErrBelowMinimumNotional
	}

	order, err := s.exchange.CreateOrder(ctx, symbol, exchange.OrderSideSell, group.QtyRemaining)
	if err != nil {
		s.markTransfersFailed(ctx, group.ID, err)
		return err
	}

	proceeds := order.ExecutedQty.Mul(order.AvgPrice).Sub(order.Fee)
	executedAt := order.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now()
	}
	exec := models.Execution{
		ID:          ulid.Make().String(),
		TradeJobID:  jobID,
		AccountID:   accountID,
		Symbol:      symbol,
		Side:        models.OrderSideSell,
		Kind:        models.ExecutionResidueClose,
		ExecutedQty: order.ExecutedQty,
		AvgPrice:    order.AvgPrice,
		FeeQty:      order.Fee,
		RawResponse: datatypes.JSON(order.Raw),
		ExecutedAt:  executedAt,
	}

	err = runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		locked, err := s.positions.FindByIdForUpdate(ctx, group.ID)
		if err != nil {
			return err
		}

		if err := s.executions.Create(ctx, &exec); err != nil {
			return err
		}

		pnl := order.ExecutedQty.Mul(order.AvgPrice.Sub(locked.OpenPrice)).Sub(order.Fee)
		consumption := models.PositionConsumption{
			ID:          ulid.Make().String(),
			ExecutionID: exec.ID,
			PositionID:  locked.ID,
			Quantity:    order.ExecutedQty,
			SellPrice:   order.AvgPrice,
			RealizedPnl: pnl,
			FeeShare:    order.Fee,
		}
		if err := s.consumptions.Create(ctx, &consumption); err != nil {
			return err
		}

		trade := models.Trade{
			ID:          ulid.Make().String(),
			AccountID:   accountID,
			Symbol:      symbol,
			Side:        models.OrderSideSell,
			Price:       order.AvgPrice,
			Quantity:    order.ExecutedQty,
			Fee:         order.Fee,
			Pnl:         pnl,
			PositionID:  locked.ID,
			ExecutionID: exec.ID,
			ExecutedAt:  executedAt,
		}
		if err := s.trades.Create(ctx, &trade); err != nil {
			return err
		}

		locked.QtyRemaining = decimal.Zero
		locked.Status = models.PositionClosed
		if err := s.positions.Save(ctx, &locked); err != nil {
			return err
		}

		if err := s.transfers.UpdateStatusByTarget(ctx, group.ID,
			models.ResidueTransferPending, models.ResidueTransferCompleted); err != nil {
			return err
		}

		return s.reservations.creditOnSellInTx(ctx, accountID, quoteAsset, proceeds, exec.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("residue group closed",
		zap.String("group_id", group.ID),
		zap.String("execution_id", exec.ID),
		zap.String("symbol", symbol),
		zap.String("qty", order.ExecutedQty.String()),
		zap.String("proceeds", proceeds.String()))
	return nil
}

func (s *ResidueService) markTransfersFailed(ctx context.Context, targetID string, cause error) {
	transfers, err := s.transfers.FindPendingByTarget(ctx, targetID)
	if err != nil {
		s.logger.Error("failed to load pending residue transfers", zap.Error(err))
		return
	}
	for i := range transfers {
		transfers[i].Status = models.ResidueTransferFailed
		transfers[i].FailReason = cause.Error()
		if err := s.transfers.Save(ctx, &transfers[i]); err != nil {
			s.logger.Error("failed to mark residue transfer", zap.Error(err))
		}
	}
}
