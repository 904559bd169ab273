package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

const defaultLockTimeout = 30 * time.Second

// LockKey implements IClient. It serializes all transactions that contend on
// the same logical key, e.g. one tenant's subscription state or one coupon's
// redemption counter. pg_advisory_xact_lock holds until the surrounding
// transaction commits or rolls back, so there is no separate unlock step.
func (c *Client) LockKey(ctx context.Context, scope types.LockScope, params map[string]interface{}) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ierr.NewError("advisory lock requested outside a transaction").
			WithHint("LockKey must be called within WithTx").
			Mark(ierr.ErrInternal)
	}

	key := types.GenerateLockKey(scope, params)

	timeoutMs := defaultLockTimeout.Milliseconds()
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline).Milliseconds(); remaining > 0 && remaining < timeoutMs {
			timeoutMs = remaining
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", timeoutMs)); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to set lock timeout").
			Mark(ierr.ErrDatabase)
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		if isLockTimeoutError(err) {
			return ierr.WithError(err).
				WithHintf("Timed out waiting for lock on %s", key).
				WithReportableDetails(map[string]interface{}{
					"lock_key": key,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
		return ierr.WithError(err).
			WithHintf("Failed to acquire lock on %s", key).
			Mark(ierr.ErrDatabase)
	}

	c.logger.Debugw("acquired advisory lock", "lock_key", key)
	return nil
}

func isLockTimeoutError(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		// 55P03 lock_not_available
		return pqErr.Code == "55P03"
	}
	return false
}
