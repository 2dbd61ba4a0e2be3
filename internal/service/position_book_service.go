package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/fifo"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/repo"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/xe"
)

// PositionBookService maintains the FIFO inventory book: one lot per buy
// execution, sells consume oldest first through fifo.Plan. No component
// writes lots or consumption rows except this service and the audit repair.
type PositionBookService struct {
	logger *zap.Logger

	*orz.Service

	positions    *repo.PositionRepo
	consumptions *repo.ConsumptionRepo
	trades       *repo.TradeRepo
}

func NewPositionBookService(db *gorm.DB, logger *zap.Logger) *PositionBookService {
	return &PositionBookService{
		logger:       logger,
		Service:      orz.NewService(db),
		positions:    repo.NewPositionRepo(db),
		consumptions: repo.NewConsumptionRepo(db),
		trades:       repo.NewTradeRepo(db),
	}
}

// LotConfig is the optional exit configuration carried onto a new lot.
type LotConfig struct {
	StopLoss      decimal.Decimal
	TakeProfit    decimal.Decimal
	TrailingDelta decimal.Decimal
}

// OpenLot records a buy execution as a fresh lot. Lots are never merged,
// even at an identical price: each buy keeps its own cost basis.
func (s *PositionBookService) OpenLot(ctx context.Context, accountID, symbol string, qty, price decimal.Decimal, executionRef string, cfg LotConfig) (*models.Position, error) {
	var lot *models.Position
	err := runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		var err error
		lot, err = s.openLotInTx(ctx, accountID, symbol, qty, price, executionRef, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// openLotInTx is the body of OpenLot; the caller supplies the enclosing
// transaction.
func (s *PositionBookService) openLotInTx(ctx context.Context, accountID, symbol string, qty, price decimal.Decimal, executionRef string, cfg LotConfig) (*models.Position, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return nil, xe.ErrInvalidAmount
	}

	lot := models.Position{
		ID:            ulid.Make().String(),
		AccountID:     accountID,
		Symbol:        symbol,
		Status:        models.PositionOpen,
		OpenPrice:     price,
		Quantity:      qty,
		QtyRemaining:  qty,
		ExecutionRef:  executionRef,
		StopLoss:      cfg.StopLoss,
		TakeProfit:    cfg.TakeProfit,
		TrailingDelta: cfg.TrailingDelta,
		OpenedAt:      time.Now(),
	}

	if err := s.positions.Create(ctx, &lot); err != nil {
		return nil, err
	}
	trade := models.Trade{
		ID:          ulid.Make().String(),
		AccountID:   accountID,
		Symbol:      symbol,
		Side:        models.OrderSideBuy,
		Price:       price,
		Quantity:    qty,
		PositionID:  lot.ID,
		ExecutionID: executionRef,
		ExecutedAt:  lot.OpenedAt,
	}
	if err := s.trades.Create(ctx, &trade); err != nil {
		return nil, err
	}

	s.logger.Info("lot opened",
		zap.String("lot_id", lot.ID),
		zap.String("symbol", symbol),
		zap.String("qty", qty.String()),
		zap.String("price", price.String()))

	return &lot, nil
}

// ConsumeResult reports what a sell drew from the book.
type ConsumeResult struct {
	Consumptions []models.PositionConsumption
	RealizedPnl  decimal.Decimal
	Fee          decimal.Decimal
}

// ConsumeForSell draws qty from the open lots of (account, symbol) oldest
// first. Hard error when inventory cannot cover the quantity: no partial
// success, nothing written. The fee is apportioned across consumed lots by
// quantity, with the remainder on the last lot so the shares sum exactly.
func (s *PositionBookService) ConsumeForSell(ctx context.Context, accountID, symbol string, qty, sellPrice, fee decimal.Decimal, executionRef string) (*ConsumeResult, error) {
	var result *ConsumeResult
	err := runRetryableTx(ctx, s.Service, s.logger, func(ctx context.Context) error {
		var err error
		result, err = s.consumeForSellInTx(ctx, accountID, symbol, qty, sellPrice, fee, executionRef)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// consumeForSellInTx is the body of ConsumeForSell; the caller supplies the
// enclosing transaction. The sell intake runs it in the same unit of work as
// the proceeds credit.
func (s *PositionBookService) consumeForSellInTx(ctx context.Context, accountID, symbol string, qty, sellPrice, fee decimal.Decimal, executionRef string) (*ConsumeResult, error) {
	if !qty.IsPositive() || !sellPrice.IsPositive() {
		return nil, xe.ErrInvalidAmount
	}
	if fee.IsNegative() {
		return nil, xe.ErrInvalidAmount
	}

	lots, err := s.positions.FindConsumableForUpdate(ctx, accountID, symbol)
	if err != nil {
		return nil, err
	}

	planInput := make([]fifo.Lot, 0, len(lots))
	byID := make(map[string]*models.Position, len(lots))
	for i := range lots {
		lot := &lots[i]
		byID[lot.ID] = lot
		planInput = append(planInput, fifo.Lot{
			ID:           lot.ID,
			OpenPrice:    lot.OpenPrice,
			QtyRemaining: lot.QtyRemaining,
			OpenedAt:     lot.OpenedAt,
		})
	}

	allocs, err := fifo.Plan(planInput, qty)
	if err != nil {
		var insufficient *fifo.ErrInsufficient
		if errors.As(err, &insufficient) {
			return nil, xe.ErrInsufficientInventory
		}
		return nil, err
	}

	result := &ConsumeResult{Fee: fee}
	feeLeft := fee
	now := time.Now()

	for i, alloc := range allocs {
		lot := byID[alloc.ID]

		feeShare := feeLeft
		if i < len(allocs)-1 {
			feeShare = fee.Mul(alloc.Quantity).Div(qty).Round(18)
		}
		feeLeft = feeLeft.Sub(feeShare)

		pnl := fifo.RealizedPnl(alloc, sellPrice).Sub(feeShare)

		lot.QtyRemaining = lot.QtyRemaining.Sub(alloc.Quantity)
		if lot.QtyRemaining.IsZero() {
			lot.Status = models.PositionClosed
		} else {
			lot.Status = models.PositionPartiallyClosed
		}
		if err := s.positions.Save(ctx, lot); err != nil {
			return nil, err
		}

		consumption := models.PositionConsumption{
			ID:          ulid.Make().String(),
			ExecutionID: executionRef,
			PositionID:  lot.ID,
			Quantity:    alloc.Quantity,
			SellPrice:   sellPrice,
			RealizedPnl: pnl,
			FeeShare:    feeShare,
		}
		if err := s.consumptions.Create(ctx, &consumption); err != nil {
			return nil, err
		}

		trade := models.Trade{
			ID:          ulid.Make().String(),
			AccountID:   accountID,
			Symbol:      symbol,
			Side:        models.OrderSideSell,
			Price:       sellPrice,
			Quantity:    alloc.Quantity,
			Fee:         feeShare,
			Pnl:         pnl,
			PositionID:  lot.ID,
			ExecutionID: executionRef,
			ExecutedAt:  now,
		}
		if err := s.trades.Create(ctx, &trade); err != nil {
			return nil, err
		}

		result.Consumptions = append(result.Consumptions, consumption)
		result.RealizedPnl = result.RealizedPnl.Add(pnl)
	}

	s.logger.Info("sell consumed",
		zap.String("symbol", symbol),
		zap.String("qty", qty.String()),
		zap.Int("lots", len(result.Consumptions)),
		zap.String("realized_pnl", result.RealizedPnl.String()))

	return result, nil
}

// GetOpenLots returns the consumable lots of (account, symbol) in FIFO order.
func (s *PositionBookService) GetOpenLots(ctx context.Context, accountID, symbol string) ([]models.Position, error) {
	return s.positions.FindOpenBySymbol(ctx, accountID, symbol)
}

// GetLot returns one lot by id.
func (s *PositionBookService) GetLot(ctx context.Context, id string) (models.Position, error) {
	return s.positions.FindById(ctx, id)
}

// GetRecentTrades returns the latest realized-PnL bookings.
func (s *PositionBookService) GetRecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	return s.trades.FindRecentTrades(ctx, limit)
}
