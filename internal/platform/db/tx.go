package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLockContention indicates a row lock could not be acquired within the
// configured lock timeout. Callers may retry the whole unit of work.
var ErrLockContention = errors.New("platform/db: lock contention, retry")

// lock_not_available / deadlock_detected / serialization_failure
const (
	pgCodeLockNotAvailable     = "55P03"
	pgCodeDeadlock             = "40P01"
	pgCodeSerializationFailure = "40001"
)

// WithTx executes a function within a transaction using the RepeatableRead
// isolation level. Row locks taken inside fn fail fast after lockTimeout
// instead of waiting indefinitely.
func WithTx(ctx context.Context, pool *pgxpool.Pool, lockTimeout time.Duration, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("platform/db: set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return TranslateLockError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// TranslateLockError converts lock-wait, deadlock and repeatable-read
// serialization failures into ErrLockContention while passing every other
// error through unchanged.
func TranslateLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeLockNotAvailable, pgCodeDeadlock, pgCodeSerializationFailure:
			return fmt.Errorf("%w: %s", ErrLockContention, pgErr.Message)
		}
	}
	return err
}
