package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExec struct {
	sql  []string
	args [][]any
	err  error
	tag  pgconn.CommandTag
}

func (e *recordingExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql = append(e.sql, sql)
	e.args = append(e.args, args)
	return e.tag, e.err
}

func (e *recordingExec) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: pgx.ErrNoRows}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func TestIdempotencyDuplicateIsConflict(t *testing.T) {
	exec := &recordingExec{err: &pgconn.PgError{Code: "23505"}}
	store := NewIdempotencyStore(exec)
	err := store.CheckAndInsert(context.Background(), "k1", "sales")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestIdempotencyRequiresKeyAndModule(t *testing.T) {
	store := NewIdempotencyStore(&recordingExec{})
	require.Error(t, store.CheckAndInsert(context.Background(), "", "sales"))
	require.Error(t, store.CheckAndInsert(context.Background(), "k", ""))
}

func TestIdempotencyLookupMissingKey(t *testing.T) {
	store := NewIdempotencyStore(&recordingExec{})
	_, err := store.Lookup(context.Background(), "k", "sales")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIdempotencyCleanupUsesCutoff(t *testing.T) {
	exec := &recordingExec{tag: pgconn.NewCommandTag("DELETE 4")}
	store := NewIdempotencyStore(exec)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	n, err := store.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
	require.Equal(t, fixed.Add(-24*time.Hour), exec.args[0][0])
}

func TestNilStoresAreSafe(t *testing.T) {
	var store *IdempotencyStore
	require.NoError(t, store.Delete(context.Background(), "k"))
	n, err := store.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)

	var audit *AuditLogger
	require.Error(t, audit.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
}

func TestAuditRecordValidatesAndWrites(t *testing.T) {
	exec := &recordingExec{}
	logger := NewAuditLogger(exec)
	err := logger.Record(context.Background(), AuditLog{Action: "void"})
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "entity, entity_id")
	require.Empty(t, exec.sql)

	err = logger.Record(context.Background(), AuditLog{ActorID: 7, Action: "invoice:void", Entity: "invoice", EntityID: "12", Meta: map[string]any{"reason": "typo"}})
	require.NoError(t, err)
	require.Len(t, exec.sql, 1)
	require.JSONEq(t, `{"reason":"typo"}`, string(exec.args[0][4].([]byte)))
	require.Nil(t, exec.args[0][5])

	require.NoError(t, logger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
	require.Nil(t, exec.args[1][4].([]byte))

	exec.err = errors.New("boom")
	require.ErrorContains(t, logger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}), "boom")
}
