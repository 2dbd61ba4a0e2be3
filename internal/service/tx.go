package service

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/go-orz/orz"
	"go.uber.org/zap"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/xe"
)

// Deadlock-retry policy shared by every mutating ledger operation: a unit
// of work is retried only on the lock-conflict error class, up to 3
// attempts with 50-200ms jittered backoff. Anything else aborts and
// propagates immediately.
const (
	txMaxAttempts = 3
	txBackoffMin  = 50 * time.Millisecond
	txBackoffMax  = 200 * time.Millisecond
)

// lockConflictMarkers covers the drivers gorm runs against here: sqlite
// busy/locked, mysql 1213/1205 text, postgres serialization and deadlock.
var lockConflictMarkers = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"deadlock",
	"lock wait timeout",
	"could not serialize access",
}

func isLockConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range lockConflictMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// runRetryableTx executes fn inside a database transaction, retrying the
// whole unit of work on lock conflicts. After the bound it surfaces
// xe.ErrLockConflict; the caller treats that as transient and may re-drive
// the job.
func runRetryableTx(ctx context.Context, svc *orz.Service, logger *zap.Logger, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = svc.Transaction(ctx, fn)
		if err == nil || !isLockConflict(err) {
			return err
		}

		if attempt == txMaxAttempts {
			break
		}

		backoff := txBackoffMin + time.Duration(rand.Int63n(int64(txBackoffMax-txBackoffMin)))
		logger.Warn("lock conflict, retrying transaction",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger.Error("lock conflict retries exhausted", zap.Error(err))
	return xe.ErrLockConflict
}
