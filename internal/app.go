package internal

import (
	"fmt"
	"net/http"

	"github.com/go-orz/orz"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/config"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/handler"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/service"
	"github.com/mayconvmartins/mvcashnode-sub004/pkg/nostd"
)

func Run(configPath string) error {
	app := NewCashnodeApp()

	framework, err := orz.NewFramework(
		orz.WithConfig(configPath),
		orz.WithLoggerFromConfig(),
		orz.WithDatabase(),
		orz.WithHTTP(),
		orz.WithApplication(app),
	)
	if err != nil {
		return err
	}

	return framework.Run()
}

func NewCashnodeApp() orz.Application {
	return &CashnodeApp{}
}

var _ orz.Application = (*CashnodeApp)(nil)

type AppComponents struct {
	LedgerHandler *handler.LedgerHandler

	ReservationService  *service.ReservationService
	PositionBookService *service.PositionBookService
	ExecutionService    *service.ExecutionService
	ResidueService      *service.ResidueService
	AuditService        *service.AuditService
	LedgerLoop          *service.LedgerLoop
}

type CashnodeApp struct {
	components *AppComponents
	conf       *config.Config
}

func (r *CashnodeApp) GetComponents() *AppComponents {
	return r.components
}

func (r *CashnodeApp) Configure(app *orz.App) error {
	logger := app.Logger()
	e := app.GetEcho()
	db := app.GetDatabase()

	var conf config.Config
	err := app.GetConfig().App.Unmarshal(&conf)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %v", err)
	}

	components, err := InitializeApp(logger, db, &conf)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %v", err)
	}
	r.components = components
	r.conf = &conf

	if err := db.AutoMigrate(
		models.Vault{}, models.Balance{}, models.LedgerTransaction{},
		models.Position{}, models.PositionConsumption{}, models.ResidueTransfer{},
		models.Execution{}, models.Trade{}, models.BalanceSnapshot{},
	); err != nil {
		logger.Fatal("database auto migrate failed", zap.Error(err))
	}

	if err := r.Init(logger); err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	e.HidePort = true
	e.HideBanner = true

	e.Use(middleware.Gzip())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper:      middleware.DefaultSkipper,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			sugar := logger.Sugar()
			sugar.Error(fmt.Sprintf("[PANIC RECOVER] %v %s\n", err, stack))
			return err
		},
	}))
	e.Use(WithErrorHandler(logger))
	customValidator := nostd.CustomValidator{Validator: validator.New()}
	if err := customValidator.TransInit(); err != nil {
		logger.Sugar().Fatal("failed to init custom validator", zap.Error(err))
	}
	e.Validator = &customValidator

	api := e.Group("/api")
	{
		if r.components.LedgerHandler != nil {
			r.components.LedgerHandler.RegisterRoutes(api)
		}
	}

	return nil
}

func (r *CashnodeApp) Init(logger *zap.Logger) error {
	logger.Info("=================================================")
	logger.Info("Cashnode Ledger Starting...")
	logger.Info("=================================================")

	components := r.GetComponents()
	if components == nil {
		return fmt.Errorf("components not initialized")
	}

	if components.LedgerLoop == nil {
		return fmt.Errorf("ledger loop not available")
	}

	if err := components.LedgerLoop.Start(); err != nil {
		return fmt.Errorf("failed to start ledger loop: %v", err)
	}
	return nil
}
