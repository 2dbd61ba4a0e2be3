package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/repo"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/xe"
	"github.com/mayconvmartins/mvcashnode-sub004/pkg/exchange"
)

// ExecutionService is the intake for filled orders. Recording a buy confirms
// its reservation and opens a lot; recording a sell consumes lots FIFO and
// credits the proceeds. Intake is idempotent on trade job id: replaying an
// executor callback returns the already-recorded execution.
type ExecutionService struct {
	logger *zap.Logger

	*orz.Service

	executions *repo.ExecutionRepo

	reservations *ReservationService
	book         *PositionBookService
	exchange     exchange.Exchange
}

func NewExecutionService(db *gorm.DB, reservations *ReservationService, book *PositionBookService, ex exchange.Exchange, logger *zap.Logger) *ExecutionService {
	return &ExecutionService{
		logger:       logger,
		Service:      orz.NewService(db),
		executions:   repo.NewExecutionRepo(db),
		reservations: reservations,
		book:         book,
		exchange:     ex,
	}
}

// ExecutionInput carries one fill report from the trade executor.
type ExecutionInput struct {
	TradeJobID string
	AccountID  string
	Symbol     string
	QuoteAsset string
	Side       models.OrderSide

	ExecutedQty decimal.Decimal
	AvgPrice    decimal.Decimal
	FeeQuote    decimal.Decimal

	// OrderRef names the buy reservation this fill settles. Required for
	// buys, ignored for sells.
	OrderRef string

	Raw        []byte
	ExecutedAt time.Time

	LotConfig LotConfig
}

// RecordExecution books one fill into the ledger and the position book.
func (s *ExecutionService) RecordExecution(ctx context.Context, in ExecutionInput) (*models.Execution, error) {
	if in.TradeJobID == "" || in.AccountID == "" || in.Symbol == "" || in.QuoteAsset == "" {
		return nil, xe.ErrInvalidParams
	}
	if !in.ExecutedQty.IsPositive() || !in.AvgPrice.IsPositive() || in.FeeQuote.IsNegative() {
		return nil, xe.ErrInvalidAmount
	}

	existing, err := s.executions.FindByTradeJobID(ctx, in.TradeJobID)
	if err == nil {
		s.logger.Info("execution already recorded, returning existing",
			zap.String("trade_job_id", in.TradeJobID),
			zap.String("execution_id", existing.ID))
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if in.ExecutedAt.IsZero() {
		in.ExecutedAt = time.Now()
	}
	exec := models.Execution{
		ID:          ulid.Make().String(),
		TradeJobID:  in.TradeJobID,
		AccountID:   in.AccountID,
		Symbol:      in.Symbol,
		Side:        in.Side,
		Kind:        models.ExecutionTrade,
		ExecutedQty: in.ExecutedQty,
		AvgPrice:    in.AvgPrice,
		FeeQty:      in.FeeQuote,
		RawResponse: datatypes.JSON(in.Raw),
		ExecutedAt:  in.ExecutedAt,
	}

	switch in.Side {
	case models.OrderSideBuy:
		err = s.recordBuy(ctx, &exec, in)
	case models.OrderSideSell:
		err = s.recordSell(ctx, &exec, in)
	default:
		return nil, xe.ErrInvalidParams
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("execution recorded",
		zap.String("execution_id", exec.ID),
		zap.String("trade_job_id", in.TradeJobID),
		zap.String("side", string(in.Side)),
		zap.String("qty", in.ExecutedQty.String()),
		zap.String("avg_price", in.AvgPrice.String()))
	return &exec, nil
}

// recordBuy settles the reservation for the actual cost including fee and
// opens the lot, all in one transaction: a failure on any step leaves no
// execution row behind, so a re-driven job starts clean instead of hitting
// the idempotency short-circuit half-settled. The confirmed amount may be
// below the reserved amount; the executor cancels the remainder when the
// job retires.
func (s *ExecutionService) recordBuy(ctx context.Context, exec *models.Execution, in ExecutionInput) error {
	if in.OrderRef == "" {
		return xe.ErrInvalidParams
	}
	cost := in.ExecutedQty.Mul(in.AvgPrice).Add(in.FeeQuote)
	return runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		if err := s.reservations.confirmBuyInTx(ctx, in.AccountID, in.QuoteAsset, cost, in.OrderRef); err != nil {
			return err
		}
		if err := s.executions.Create(ctx, exec); err != nil {
			return err
		}
		_, err := s.book.openLotInTx(ctx, in.AccountID, in.Symbol, in.ExecutedQty, in.AvgPrice, exec.ID, in.LotConfig)
		return err
	})
}

// recordSell runs the execution row, the FIFO consumption, and the proceeds
// credit as one transaction. An inventory shortfall aborts before any
// balance is touched, and a failed credit rolls the consumption and the
// execution row back with it: replaying the job re-drives the whole sale
// rather than finding a half-settled record.
func (s *ExecutionService) recordSell(ctx context.Context, exec *models.Execution, in ExecutionInput) error {
	proceeds := in.ExecutedQty.Mul(in.AvgPrice).Sub(in.FeeQuote)
	var result *ConsumeResult
	err := runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		if err := s.executions.Create(ctx, exec); err != nil {
			return err
		}
		var err error
		result, err = s.book.consumeForSellInTx(ctx, in.AccountID, in.Symbol,
			in.ExecutedQty, in.AvgPrice, in.FeeQuote, exec.ID)
		if err != nil {
			return err
		}
		return s.reservations.creditOnSellInTx(ctx, in.AccountID, in.QuoteAsset, proceeds, exec.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("sell settled",
		zap.String("execution_id", exec.ID),
		zap.String("proceeds", proceeds.String()),
		zap.String("realized_pnl", result.RealizedPnl.String()))
	return nil
}

// GetExecution returns one execution by id.
func (s *ExecutionService) GetExecution(ctx context.Context, id string) (models.Execution, error) {
	return s.executions.FindById(ctx, id)
}

// GetExecutionByJob returns the execution recorded for a trade job, if any.
func (s *ExecutionService) GetExecutionByJob(ctx context.Context, tradeJobID string) (models.Execution, error) {
	return s.executions.FindByTradeJobID(ctx, tradeJobID)
}

// PlaceMarketOrder sends a market order through the exchange and records the
// resulting fill. This is the path the residue closer and manual operations
// share with the executor.
func (s *ExecutionService) PlaceMarketOrder(ctx context.Context, accountID, symbol, quoteAsset string, side models.OrderSide, qty decimal.Decimal, orderRef string) (*models.Execution, error) {
	result, err := s.exchange.CreateOrder(ctx, symbol, exchange.OrderSide(side), qty)
	if err != nil {
		return nil, err
	}
	return s.RecordExecution(ctx, ExecutionInput{
		TradeJobID:  result.OrderID,
		AccountID:   accountID,
		Symbol:      symbol,
		QuoteAsset:  quoteAsset,
		Side:        side,
		ExecutedQty: result.ExecutedQty,
		AvgPrice:    result.AvgPrice,
		FeeQuote:    result.Fee,
		OrderRef:    orderRef,
		Raw:         result.Raw,
		ExecutedAt:  result.ExecutedAt,
	})
}
