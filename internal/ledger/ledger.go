// Package ledger implements the credit ledger engine: balance mutation plus
// audit-log append against the non-transactional store, with a compensating
// write when the append fails after the balance write succeeded.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/littlewriters/credits-service/internal/cache"
	"github.com/littlewriters/credits-service/internal/domain/credits"
	"github.com/littlewriters/credits-service/internal/storage"
	"github.com/littlewriters/credits-service/pkg/logger"
)

// Engine mutates user balances. It is the only writer of the credits column.
//
// The read/check/write sequence is not serialized across calls: two
// concurrent consuming calls for the same user can both pass the sufficiency
// check against a stale balance. The store offers no row locking to prevent
// it, so the window is documented here rather than hidden.
type Engine struct {
	users storage.UserStore
	logs  storage.UsageLogStore
	cache *cache.Cache
	log   *logger.Logger
}

// New creates a ledger engine. The cache may be nil (engines then skip
// invalidation).
func New(users storage.UserStore, logs storage.UsageLogStore, c *cache.Cache, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Engine{users: users, logs: logs, cache: c, log: log}
}

// AdjustCredits applies delta to the user's balance and returns the new
// balance. Consuming adjustments (delta < 0) also append a usage-log entry
// with the consumed amount; if that append fails the balance write is
// compensated so the caller observes no change at all.
func (e *Engine) AdjustCredits(ctx context.Context, userID string, delta int, actionKind string) (int, error) {
	if actionKind == "" {
		actionKind = credits.ActionManual
	}

	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	if delta < 0 && user.Credits+delta < 0 {
		return 0, credits.ErrInsufficientCredits
	}

	newBalance := user.Credits + delta
	if err := e.users.UpdateUserCredits(ctx, userID, newBalance); err != nil {
		return 0, err
	}

	if delta < 0 {
		entry := credits.UsageLogEntry{
			UserID:          userID,
			ActionType:      actionKind,
			CreditsConsumed: -delta,
			Timestamp:       time.Now().UTC(),
		}
		if err := e.logs.CreateUsageLog(ctx, entry); err != nil {
			return 0, e.compensate(ctx, userID, user.Credits, err)
		}
	}

	e.invalidate(userID)
	return newBalance, nil
}

// compensate restores the pre-operation balance after a failed audit write.
// Once begun it runs to completion: either the balance is restored, or the
// divergence is flagged at error severity for manual reconciliation.
func (e *Engine) compensate(ctx context.Context, userID string, priorBalance int, cause error) error {
	if err := e.users.UpdateUserCredits(ctx, userID, priorBalance); err != nil {
		e.log.WithError(err).WithFields(map[string]interface{}{
			"user_id":       userID,
			"prior_balance": priorBalance,
		}).Error("balance compensation failed: balance decremented without audit log")
		return credits.WrapError(credits.KindInconsistency,
			fmt.Sprintf("audit log write failed and balance restore failed for user %s", userID), err)
	}

	e.log.WithError(cause).Warnf("audit log write failed, balance restored for user %s", userID)
	return credits.WrapError(credits.KindTransient, "audit log write failed, operation rolled back", cause)
}

func (e *Engine) invalidate(userID string) {
	if e.cache == nil {
		return
	}
	e.cache.InvalidateSubject(userID)
}
