package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// DefaultRetries is used when WithTx receives a non-positive retry budget.
const DefaultRetries = 3

// retryBaseDelay is the first backoff step; each attempt doubles it plus jitter.
var retryBaseDelay = 10 * time.Millisecond

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// WithTx executes fn in a RepeatableRead transaction. Serialization failures
// and deadlocks re-run fn up to retries times; fn must therefore be safe to
// repeat. When the budget is exhausted the error wraps
// shared.ErrConcurrencyConflict.
func WithTx(ctx context.Context, pool TxBeginner, retries int, fn func(pgx.Tx) error) error {
	if retries <= 0 {
		retries = DefaultRetries
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		err := runTx(ctx, pool, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == retries-1 || !backoff(ctx, attempt) {
			break
		}
	}
	return fmt.Errorf("%w: %v", shared.ErrConcurrencyConflict, lastErr)
}

func runTx(ctx context.Context, pool TxBeginner, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

func backoff(ctx context.Context, attempt int) bool {
	delay := retryBaseDelay << attempt
	if delay > 0 {
		delay += rand.N(delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// IsRetryable reports whether err carries a serialization or deadlock SQLSTATE.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
