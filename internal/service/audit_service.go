package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/alert"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/config"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/fifo"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/repo"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/xe"
)

// AuditIssue classifies one sell execution against its consumption rows.
type AuditIssue string

const (
	AuditOK           AuditIssue = "OK"
	AuditMissingFills AuditIssue = "MISSING_FILLS"
	AuditMismatch     AuditIssue = "MISMATCH"
	AuditFifoError    AuditIssue = "FIFO_ERROR"
)

// LotState is a lot's remaining quantity at one point of a repair, reported
// as the before/after pair on the finding.
type LotState struct {
	LotID        string          `json:"lot_id"`
	QtyRemaining decimal.Decimal `json:"qty_remaining"`
}

// ExecutionFinding is the per-execution outcome of a sweep.
type ExecutionFinding struct {
	ExecutionID string          `json:"execution_id"`
	TradeJobID  string          `json:"trade_job_id"`
	Symbol      string          `json:"symbol"`
	Issue       AuditIssue      `json:"issue"`
	Expected    decimal.Decimal `json:"expected"`
	Recorded    decimal.Decimal `json:"recorded"`
	Repaired    bool            `json:"repaired"`
	Detail      string          `json:"detail,omitempty"`
	LotsBefore  []LotState      `json:"lots_before,omitempty"`
	LotsAfter   []LotState      `json:"lots_after,omitempty"`
}

// SweepReport summarizes one audit run.
type SweepReport struct {
	Checked  int                `json:"checked"`
	Problems int                `json:"problems"`
	Repaired int                `json:"repaired"`
	Errors   []string           `json:"errors,omitempty"`
	Findings []ExecutionFinding `json:"findings"`
}

// AuditService reconciles recorded consumption rows against sell executions
// and repairs drift. A repair reverses the execution's rows (flagging, never
// deleting), restores the touched lots, and replays the sell through the
// same FIFO planner the live path uses, against the lot set as it stood when
// the execution happened. Running the sweep twice is safe: a repaired
// execution classifies OK on the next pass.
type AuditService struct {
	logger *zap.Logger

	*orz.Service

	executions   *repo.ExecutionRepo
	consumptions *repo.ConsumptionRepo
	positions    *repo.PositionRepo
	trades       *repo.TradeRepo
	transfers    *repo.ResidueTransferRepo

	alerter *alert.Alerter
	conf    config.AuditConf
}

func NewAuditService(db *gorm.DB, alerter *alert.Alerter, conf config.AuditConf, logger *zap.Logger) *AuditService {
	if conf.LookbackHours <= 0 {
		conf.LookbackHours = 24
	}
	if conf.IntervalMinutes <= 0 {
		conf.IntervalMinutes = 60
	}
	return &AuditService{
		logger:       logger,
		Service:      orz.NewService(db),
		executions:   repo.NewExecutionRepo(db),
		consumptions: repo.NewConsumptionRepo(db),
		positions:    repo.NewPositionRepo(db),
		trades:       repo.NewTradeRepo(db),
		transfers:    repo.NewResidueTransferRepo(db),
		alerter:      alerter,
		conf:         conf,
	}
}

// Sweep runs with the configured lookback window and repair mode.
func (s *AuditService) Sweep(ctx context.Context) (*SweepReport, error) {
	return s.SweepWindow(ctx, time.Duration(s.conf.LookbackHours)*time.Hour, s.conf.DryRun)
}

// DefaultDryRun reports whether sweeps run in dry-run mode unless a caller
// says otherwise.
func (s *AuditService) DefaultDryRun() bool {
	return s.conf.DryRun
}

// SweepWindow classifies every sell execution inside the lookback window
// and, unless dry-run, repairs the ones that drifted. One broken execution
// never blocks the rest: its error is collected and the sweep moves on.
func (s *AuditService) SweepWindow(ctx context.Context, lookback time.Duration, dryRun bool) (*SweepReport, error) {
	if lookback <= 0 {
		lookback = time.Duration(s.conf.LookbackHours) * time.Hour
	}
	cutoff := time.Now().Add(-lookback)
	sells, err := s.executions.FindSellsSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Checked: len(sells)}
	for _, exec := range sells {
		finding, err := s.classify(ctx, exec)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", exec.ID, err))
			continue
		}

		if finding.Issue != AuditOK {
			report.Problems++
			s.logger.Warn("audit found inconsistent execution",
				zap.String("execution_id", exec.ID),
				zap.String("issue", string(finding.Issue)),
				zap.String("expected", finding.Expected.String()),
				zap.String("recorded", finding.Recorded.String()))

			if !dryRun {
				before, after, err := s.repair(ctx, exec)
				if err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("%s: repair: %v", exec.ID, err))
				} else {
					finding.Repaired = true
					finding.LotsBefore = before
					finding.LotsAfter = after
					report.Repaired++
				}
			}
		}
		report.Findings = append(report.Findings, finding)
	}

	if report.Problems > 0 || len(report.Errors) > 0 {
		s.alerter.AuditReport(report.Checked, report.Problems, report.Repaired, len(report.Errors))
	}
	s.logger.Info("audit sweep finished",
		zap.Int("checked", report.Checked),
		zap.Int("problems", report.Problems),
		zap.Int("repaired", report.Repaired),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// classify compares an execution's active consumption rows against its
// filled quantity and against the allocation the FIFO planner would have
// produced over the book as it stood at execution time.
func (s *AuditService) classify(ctx context.Context, exec models.Execution) (ExecutionFinding, error) {
	finding := ExecutionFinding{
		ExecutionID: exec.ID,
		TradeJobID:  exec.TradeJobID,
		Symbol:      exec.Symbol,
		Issue:       AuditOK,
		Expected:    exec.ExecutedQty,
	}

	active, err := s.consumptions.FindActiveByExecution(ctx, exec.ID)
	if err != nil {
		return finding, err
	}
	for _, c := range active {
		finding.Recorded = finding.Recorded.Add(c.Quantity)
	}

	switch {
	case len(active) == 0 && exec.ExecutedQty.IsPositive():
		finding.Issue = AuditMissingFills
		finding.Detail = "filled execution has no consumption rows"
		return finding, nil
	case !finding.Recorded.Equal(exec.ExecutedQty):
		finding.Issue = AuditMismatch
		finding.Detail = fmt.Sprintf("consumed %s of %s filled",
			finding.Recorded, exec.ExecutedQty)
		return finding, nil
	}

	expected, err := s.planAsOf(ctx, exec)
	if err != nil {
		return finding, err
	}

	// Compare per-lot totals, not row order: rows written in any order are
	// fine as long as each lot gave exactly what the oldest-first plan
	// demands. Only a genuinely skipped or over-drawn lot is drift.
	want := make(map[string]decimal.Decimal, len(expected))
	for _, alloc := range expected {
		want[alloc.ID] = want[alloc.ID].Add(alloc.Quantity)
	}
	got := make(map[string]decimal.Decimal, len(active))
	for _, c := range active {
		got[c.PositionID] = got[c.PositionID].Add(c.Quantity)
	}
	if len(got) != len(want) {
		finding.Issue = AuditFifoError
		finding.Detail = "consumption does not follow lot age order"
		return finding, nil
	}
	for id, qty := range want {
		if !got[id].Equal(qty) {
			finding.Issue = AuditFifoError
			finding.Detail = fmt.Sprintf("lot %s gave %s, oldest-first demands %s", id, got[id], qty)
			return finding, nil
		}
	}
	return finding, nil
}

// planAsOf replays the FIFO planner over the lot set as of exec's timestamp,
// with every earlier sell's active consumptions and earlier residue moves
// applied, and exec's own rows excluded.
func (s *AuditService) planAsOf(ctx context.Context, exec models.Execution) ([]fifo.Allocation, error) {
	lots, err := s.positions.FindOpenedBefore(ctx, exec.AccountID, exec.Symbol, exec.ExecutedAt)
	if err != nil {
		return nil, err
	}

	candidates := make([]string, 0, len(lots))
	for _, lot := range lots {
		if lot.Status == models.PositionResidue {
			continue
		}
		candidates = append(candidates, lot.ID)
	}
	// A closed consolidation group passes the status filter, but it was never
	// part of the FIFO book. Inbound transfers identify it regardless of what
	// its status says today.
	inbound, err := s.transfers.FindByTargets(ctx, candidates)
	if err != nil {
		return nil, err
	}
	groups := make(map[string]bool, len(inbound))
	for _, tr := range inbound {
		groups[tr.TargetID] = true
	}

	input := make([]fifo.Lot, 0, len(lots))
	lotIDs := make([]string, 0, len(lots))
	byID := make(map[string]int, len(lots))
	for _, lot := range lots {
		if lot.Status == models.PositionResidue || groups[lot.ID] {
			continue
		}
		byID[lot.ID] = len(input)
		input = append(input, fifo.Lot{
			ID:           lot.ID,
			OpenPrice:    lot.OpenPrice,
			QtyRemaining: lot.Quantity,
			OpenedAt:     lot.OpenedAt,
		})
		lotIDs = append(lotIDs, lot.ID)
	}

	consumed, err := s.consumptions.FindActiveByPositions(ctx, lotIDs)
	if err != nil {
		return nil, err
	}

	execTimes := map[string]time.Time{exec.ID: exec.ExecutedAt}
	for _, c := range consumed {
		if c.ExecutionID == exec.ID {
			continue
		}
		at, ok := execTimes[c.ExecutionID]
		if !ok {
			other, err := s.executions.FindById(ctx, c.ExecutionID)
			if err != nil {
				return nil, err
			}
			at = other.ExecutedAt
			execTimes[c.ExecutionID] = at
		}
		if at.Before(exec.ExecutedAt) {
			i := byID[c.PositionID]
			input[i].QtyRemaining = input[i].QtyRemaining.Sub(c.Quantity)
		}
	}

	transfers, err := s.transfers.FindBySources(ctx, lotIDs)
	if err != nil {
		return nil, err
	}
	for _, tr := range transfers {
		if tr.CreatedAt.Before(exec.ExecutedAt) {
			i := byID[tr.SourceID]
			input[i].QtyRemaining = input[i].QtyRemaining.Sub(tr.Quantity)
		}
	}

	return fifo.Plan(input, exec.ExecutedQty)
}

// repair rebuilds one execution's consumption set in a single transaction:
// reverse what was recorded, book compensating trades, replay the planner
// as of the execution, then recompute the touched lots from their surviving
// consumption history. Any failure rolls the whole repair back. The returned
// lot states are the touched lots before and after the repair.
func (s *AuditService) repair(ctx context.Context, exec models.Execution) ([]LotState, []LotState, error) {
	repairID := ulid.Make().String()
	var before, after []LotState

	err := runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		before, after = nil, nil
		active, err := s.consumptions.FindActiveByExecution(ctx, exec.ID)
		if err != nil {
			return err
		}

		touched := make(map[string]bool)
		for _, c := range active {
			if err := s.consumptions.MarkReversed(ctx, c.ID, repairID); err != nil {
				return err
			}
			touched[c.PositionID] = true

			reversal := models.Trade{
				ID:          ulid.Make().String(),
				AccountID:   exec.AccountID,
				Symbol:      exec.Symbol,
				Side:        models.OrderSideSell,
				Price:       c.SellPrice,
				Quantity:    c.Quantity.Neg(),
				Fee:         c.FeeShare.Neg(),
				Pnl:         c.RealizedPnl.Neg(),
				PositionID:  c.PositionID,
				ExecutionID: exec.ID,
				ExecutedAt:  exec.ExecutedAt,
			}
			if err := s.trades.Create(ctx, &reversal); err != nil {
				return err
			}
		}

		allocs, err := s.planAsOf(ctx, exec)
		if err != nil {
			return err
		}

		feeLeft := exec.FeeQty
		for i, alloc := range allocs {
			feeShare := feeLeft
			if i < len(allocs)-1 {
				feeShare = exec.FeeQty.Mul(alloc.Quantity).Div(exec.ExecutedQty).Round(18)
			}
			feeLeft = feeLeft.Sub(feeShare)

			pnl := fifo.RealizedPnl(alloc, exec.AvgPrice).Sub(feeShare)

			consumption := models.PositionConsumption{
				ID:          ulid.Make().String(),
				ExecutionID: exec.ID,
				PositionID:  alloc.ID,
				Quantity:    alloc.Quantity,
				SellPrice:   exec.AvgPrice,
				RealizedPnl: pnl,
				FeeShare:    feeShare,
			}
			if err := s.consumptions.Create(ctx, &consumption); err != nil {
				return err
			}
			touched[alloc.ID] = true

			trade := models.Trade{
				ID:          ulid.Make().String(),
				AccountID:   exec.AccountID,
				Symbol:      exec.Symbol,
				Side:        models.OrderSideSell,
				Price:       exec.AvgPrice,
				Quantity:    alloc.Quantity,
				Fee:         feeShare,
				Pnl:         pnl,
				PositionID:  alloc.ID,
				ExecutionID: exec.ID,
				ExecutedAt:  exec.ExecutedAt,
			}
			if err := s.trades.Create(ctx, &trade); err != nil {
				return err
			}
		}

		ids := make([]string, 0, len(touched))
		for id := range touched {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			lot, err := s.positions.FindById(ctx, id)
			if err != nil {
				return err
			}
			before = append(before, LotState{LotID: id, QtyRemaining: lot.QtyRemaining})

			fixed, err := s.recomputeLot(ctx, id)
			if err != nil {
				return err
			}
			after = append(after, LotState{LotID: id, QtyRemaining: fixed.QtyRemaining})
		}

		s.logger.Info("execution repaired",
			zap.String("execution_id", exec.ID),
			zap.String("repair_id", repairID),
			zap.Int("reversed", len(active)),
			zap.Int("replayed", len(allocs)))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// recomputeLot rederives a lot's remaining quantity and status from its
// surviving consumption rows and its residue moves: what was sold and what
// was consolidated are both gone from the lot. Consolidated residue lots are
// left alone; the transfer journal, not consumptions, owns their quantity.
//
// When the corrected consumptions plus the moved quantity exceed the lot,
// the book and the residue group disagree about who holds the difference.
// Reopening the lot would mint inventory out of thin air, so the repair is
// refused: the error rolls the whole repair back and surfaces on the sweep
// report for an operator.
func (s *AuditService) recomputeLot(ctx context.Context, id string) (models.Position, error) {
	lot, err := s.positions.FindByIdForUpdate(ctx, id)
	if err != nil {
		return models.Position{}, err
	}
	if lot.Status == models.PositionResidue {
		s.logger.Warn("repair touched a consolidated residue lot, skipping recompute",
			zap.String("lot_id", id))
		return lot, nil
	}

	consumed := decimal.Zero
	rows, err := s.consumptions.FindActiveByPositions(ctx, []string{id})
	if err != nil {
		return models.Position{}, err
	}
	for _, c := range rows {
		consumed = consumed.Add(c.Quantity)
	}

	transferred := decimal.Zero
	moves, err := s.transfers.FindBySources(ctx, []string{id})
	if err != nil {
		return models.Position{}, err
	}
	for _, tr := range moves {
		transferred = transferred.Add(tr.Quantity)
	}

	remaining := lot.Quantity.Sub(consumed).Sub(transferred)
	if remaining.IsNegative() {
		s.logger.Error("repair would create inventory, refusing",
			zap.String("lot_id", id),
			zap.String("quantity", lot.Quantity.String()),
			zap.String("consumed", consumed.String()),
			zap.String("consolidated", transferred.String()))
		return models.Position{}, fmt.Errorf(
			"lot %s: consumed %s plus consolidated %s exceed quantity %s: %w",
			id, consumed, transferred, lot.Quantity, xe.ErrInvariantViolation)
	}

	lot.QtyRemaining = remaining
	switch {
	case consumed.Add(transferred).IsZero():
		lot.Status = models.PositionOpen
	case remaining.IsPositive():
		lot.Status = models.PositionPartiallyClosed
	default:
		lot.Status = models.PositionClosed
	}
	if err := s.positions.Save(ctx, &lot); err != nil {
		return models.Position{}, err
	}
	return lot, nil
}
