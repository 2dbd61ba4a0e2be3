//go:build wireinject
// +build wireinject

package internal

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/config"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/handler"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/service"
)

var (
	handlerSet = wire.NewSet(
		handler.NewLedgerHandler,
	)

	ledgerSet = wire.NewSet(
		provideExchange,
		provideAlerter,
		provideResidueConf,
		provideAuditConf,
		provideConfigValue,
		service.NewReservationService,
		service.NewPositionBookService,
		service.NewExecutionService,
		service.NewResidueService,
		service.NewAuditService,
		service.NewLedgerLoop,
	)
)

func InitializeApp(logger *zap.Logger, db *gorm.DB, conf *config.Config) (*AppComponents, error) {
	wire.Build(
		handlerSet,
		ledgerSet,
		wire.Struct(new(AppComponents), "*"),
	)
	return nil, nil
}
