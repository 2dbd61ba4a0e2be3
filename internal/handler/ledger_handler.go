package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/models"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/service"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/xe"
)

// LedgerHandler exposes the vault ledger, position book, and audit sweep
// over HTTP. All mutating routes are thin wrappers: validation here, every
// rule in the services.
type LedgerHandler struct {
	logger *zap.Logger

	reservations *service.ReservationService
	book         *service.PositionBookService
	executions   *service.ExecutionService
	residue      *service.ResidueService
	audit        *service.AuditService
}

func NewLedgerHandler(
	reservations *service.ReservationService,
	book *service.PositionBookService,
	executions *service.ExecutionService,
	residue *service.ResidueService,
	audit *service.AuditService,
	logger *zap.Logger,
) *LedgerHandler {
	return &LedgerHandler{
		logger:       logger,
		reservations: reservations,
		book:         book,
		executions:   executions,
		residue:      residue,
		audit:        audit,
	}
}

func (h *LedgerHandler) RegisterRoutes(g *echo.Group) {
	ledger := g.Group("/ledger")

	ledger.POST("/vaults", h.EnsureVault)
	ledger.GET("/vaults/:vaultId/balances", h.GetBalances)
	ledger.GET("/vaults/:vaultId/balances/:asset", h.GetBalance)
	ledger.GET("/vaults/:vaultId/transactions", h.GetTransactions)

	ledger.POST("/deposit", h.Deposit)
	ledger.POST("/withdraw", h.Withdraw)
	ledger.POST("/reserve", h.Reserve)
	ledger.POST("/confirm", h.Confirm)
	ledger.POST("/cancel", h.Cancel)

	ledger.GET("/positions", h.GetPositions)
	ledger.GET("/trades", h.GetTrades)
	ledger.POST("/executions", h.RecordExecution)

	audit := g.Group("/audit")
	audit.POST("/sweep", h.RunSweep)
	audit.GET("/residue/candidates", h.GetResidueCandidates)
	audit.POST("/residue/consolidate", h.Consolidate)
	audit.POST("/residue/close", h.CloseResidue)
}

type ensureVaultRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
	Mode    string `json:"mode" validate:"required,oneof=live simulated"`
}

// EnsureVault creates the (owner, mode) vault on first use.
// POST /api/ledger/vaults
func (h *LedgerHandler) EnsureVault(c echo.Context) error {
	var req ensureVaultRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	vault, err := h.reservations.EnsureVault(c.Request().Context(), req.OwnerID, models.TradingMode(req.Mode))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, vault)
}

// GetBalances returns every balance row of a vault.
// GET /api/ledger/vaults/:vaultId/balances
func (h *LedgerHandler) GetBalances(c echo.Context) error {
	balances, err := h.reservations.GetBalances(c.Request().Context(), c.Param("vaultId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, balances)
}

// GetBalance returns one (vault, asset) balance.
// GET /api/ledger/vaults/:vaultId/balances/:asset
func (h *LedgerHandler) GetBalance(c echo.Context) error {
	bal, err := h.reservations.GetBalance(c.Request().Context(), c.Param("vaultId"), c.Param("asset"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bal)
}

// GetTransactions returns the append-only ledger log of a (vault, asset).
// GET /api/ledger/vaults/:vaultId/transactions?asset=USDT
func (h *LedgerHandler) GetTransactions(c echo.Context) error {
	asset := c.QueryParam("asset")
	if asset == "" {
		return xe.ErrInvalidParams
	}
	entries, err := h.reservations.GetTransactions(c.Request().Context(), c.Param("vaultId"), asset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

type fundsRequest struct {
	VaultID string          `json:"vault_id" validate:"required"`
	Asset   string          `json:"asset" validate:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

type reservationRequest struct {
	VaultID  string          `json:"vault_id" validate:"required"`
	Asset    string          `json:"asset" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	OrderRef string          `json:"order_ref" validate:"required"`
}

// Deposit credits available funds.
// POST /api/ledger/deposit
func (h *LedgerHandler) Deposit(c echo.Context) error {
	var req fundsRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.reservations.Deposit(c.Request().Context(), req.VaultID, req.Asset, req.Amount); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orzOK())
}

// Withdraw debits available funds.
// POST /api/ledger/withdraw
func (h *LedgerHandler) Withdraw(c echo.Context) error {
	var req fundsRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.reservations.Withdraw(c.Request().Context(), req.VaultID, req.Asset, req.Amount); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orzOK())
}

// Reserve escrows funds for an in-flight buy order.
// POST /api/ledger/reserve
func (h *LedgerHandler) Reserve(c echo.Context) error {
	var req reservationRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.reservations.ReserveForBuy(c.Request().Context(), req.VaultID, req.Asset, req.Amount, req.OrderRef); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orzOK())
}

// Confirm finalizes a reservation.
// POST /api/ledger/confirm
func (h *LedgerHandler) Confirm(c echo.Context) error {
	var req reservationRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.reservations.ConfirmBuy(c.Request().Context(), req.VaultID, req.Asset, req.Amount, req.OrderRef); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orzOK())
}

// Cancel releases a reservation back to available funds.
// POST /api/ledger/cancel
func (h *LedgerHandler) Cancel(c echo.Context) error {
	var req reservationRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.reservations.CancelBuy(c.Request().Context(), req.VaultID, req.Asset, req.Amount, req.OrderRef); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orzOK())
}

// GetPositions returns the consumable lots of an (account, symbol) in FIFO
// order.
// GET /api/ledger/positions?account_id=...&symbol=BTCUSDT
func (h *LedgerHandler) GetPositions(c echo.Context) error {
	accountID := c.QueryParam("account_id")
	symbol := c.QueryParam("symbol")
	if accountID == "" || symbol == "" {
		return xe.ErrInvalidParams
	}
	lots, err := h.book.GetOpenLots(c.Request().Context(), accountID, symbol)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lots)
}

// GetTrades returns recent realized-PnL bookings.
// GET /api/ledger/trades?limit=100
func (h *LedgerHandler) GetTrades(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			limit = n
		}
	}
	trades, err := h.book.GetRecentTrades(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trades)
}

type recordExecutionRequest struct {
	TradeJobID  string          `json:"trade_job_id" validate:"required"`
	AccountID   string          `json:"account_id" validate:"required"`
	Symbol      string          `json:"symbol" validate:"required"`
	QuoteAsset  string          `json:"quote_asset" validate:"required"`
	Side        string          `json:"side" validate:"required,oneof=BUY SELL"`
	ExecutedQty decimal.Decimal `json:"executed_qty"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	FeeQuote    decimal.Decimal `json:"fee_quote"`
	OrderRef    string          `json:"order_ref"`
}

// RecordExecution books one fill reported by the trade executor.
// POST /api/ledger/executions
func (h *LedgerHandler) RecordExecution(c echo.Context) error {
	var req recordExecutionRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	exec, err := h.executions.RecordExecution(c.Request().Context(), service.ExecutionInput{
		TradeJobID:  req.TradeJobID,
		AccountID:   req.AccountID,
		Symbol:      req.Symbol,
		QuoteAsset:  req.QuoteAsset,
		Side:        models.OrderSide(req.Side),
		ExecutedQty: req.ExecutedQty,
		AvgPrice:    req.AvgPrice,
		FeeQuote:    req.FeeQuote,
		OrderRef:    req.OrderRef,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exec)
}

type sweepRequest struct {
	DryRun        *bool `json:"dry_run"`
	LookbackHours int   `json:"lookback_hours" validate:"omitempty,min=1"`
}

// RunSweep triggers an audit sweep outside the schedule. Body is optional;
// omitted fields fall back to the configured window and dry-run mode.
// POST /api/audit/sweep
func (h *LedgerHandler) RunSweep(c echo.Context) error {
	var req sweepRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return err
		}
		if err := c.Validate(&req); err != nil {
			return err
		}
	}

	dryRun := h.audit.DefaultDryRun()
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}
	report, err := h.audit.SweepWindow(c.Request().Context(), time.Duration(req.LookbackHours)*time.Hour, dryRun)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// GetResidueCandidates lists the dust lots currently under both thresholds.
// GET /api/audit/residue/candidates
func (h *LedgerHandler) GetResidueCandidates(c echo.Context) error {
	candidates, err := h.residue.IdentifyCandidates(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidates)
}

// Consolidate folds the current dust candidates into their residue lots.
// POST /api/audit/residue/consolidate
func (h *LedgerHandler) Consolidate(c echo.Context) error {
	report, err := h.residue.Consolidate(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

type closeResidueRequest struct {
	AccountID  string `json:"account_id" validate:"required"`
	Symbol     string `json:"symbol" validate:"required"`
	QuoteAsset string `json:"quote_asset" validate:"required"`
}

// CloseResidue market-sells a consolidated residue lot.
// POST /api/audit/residue/close
func (h *LedgerHandler) CloseResidue(c echo.Context) error {
	var req closeResidueRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.residue.CloseResidueGroup(c.Request().Context(), req.AccountID, req.Symbol, req.QuoteAsset); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orzOK())
}
