package xe

import "github.com/go-orz/orz"

var (
	ErrInvalidParams = orz.NewError(10400, "invalid parameters")
	ErrInvalidAmount = orz.NewError(10401, "amount must be positive")

	ErrInsufficientAvailableBalance = orz.NewError(20001, "insufficient available balance")
	ErrReservationNotFound          = orz.NewError(20002, "reservation not found or already finalized")
	ErrInsufficientInventory        = orz.NewError(20003, "insufficient open inventory for sell quantity")
	ErrBelowMinimumNotional         = orz.NewError(20004, "value below exchange minimum order notional")

	// ErrLockConflict is transient: retried internally up to the bound and
	// only then surfaced. Callers may re-drive the job.
	ErrLockConflict = orz.NewError(20005, "row lock conflict, retries exhausted")

	// ErrInvariantViolation is fatal for the (vault, asset) it names.
	// Processing must stop and the operator is alerted; balances are never
	// clamped back into range.
	ErrInvariantViolation = orz.NewError(20006, "ledger invariant violated")

	ErrVaultNotFound   = orz.NewError(20007, "vault not found")
	ErrBalanceNotFound = orz.NewError(20008, "balance not found")
	ErrStaleMarkPrice  = orz.NewError(20009, "mark price unavailable or stale")
)
