package fiscal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiscalpos/fiscalpos/internal/platform/db"
)

const rangeColumns = `id, authorization_code, prefix, valid_from, valid_to, initial_correlative, final_correlative, current_correlative, pending, active, created_at, updated_at`

// Repository persists fiscal ranges in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	retries int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, retries int) *Repository {
	return &Repository{pool: pool, retries: retries}
}

// AdminTxRepository extends TxRepository with range maintenance.
type AdminTxRepository interface {
	TxRepository
	InsertRange(ctx context.Context, rng Range) (Range, error)
	UpdateRange(ctx context.Context, rng Range) (Range, error)
	SetActive(ctx context.Context, id int64, active bool) (Range, error)
}

type txRepository struct {
	q db.Querier
}

// NewTxRepository binds the range statements to a transaction.
func NewTxRepository(q db.Querier) AdminTxRepository {
	return &txRepository{q: q}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, AdminTxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.retries, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *Repository) GetRange(ctx context.Context, id int64) (Range, error) {
	return scanRange(r.pool.QueryRow(ctx, `SELECT `+rangeColumns+` FROM fiscal_ranges WHERE id=$1`, id), id)
}

func (r *Repository) ListRanges(ctx context.Context, activeOnly bool) ([]Range, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+rangeColumns+` FROM fiscal_ranges WHERE ($1 = false OR active) ORDER BY id DESC`, activeOnly)
	if err != nil {
		return nil, err
	}
	return collectRanges(rows)
}

func (r *txRepository) GetRangeForUpdate(ctx context.Context, id int64) (Range, error) {
	return scanRange(r.q.QueryRow(ctx, `SELECT `+rangeColumns+` FROM fiscal_ranges WHERE id=$1 FOR UPDATE`, id), id)
}

func (r *txRepository) ListSelectableRanges(ctx context.Context) ([]Range, error) {
	rows, err := r.q.Query(ctx, `SELECT `+rangeColumns+` FROM fiscal_ranges WHERE active AND pending > 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectRanges(rows)
}

func (r *txRepository) UpdateCursor(ctx context.Context, id, current, pending int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE fiscal_ranges SET current_correlative=$2, pending=$3, updated_at=NOW() WHERE id=$1`, id, current, pending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrRangeNotFound, id)
	}
	return nil
}

func (r *txRepository) InsertRange(ctx context.Context, rng Range) (Range, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO fiscal_ranges (authorization_code, prefix, valid_from, valid_to, initial_correlative, final_correlative, current_correlative, pending, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING `+rangeColumns,
		rng.AuthorizationCode, rng.Prefix, rng.ValidFrom, rng.ValidTo, rng.Initial, rng.Final, rng.Current, rng.Pending, rng.Active)
	return scanRange(row, 0)
}

func (r *txRepository) UpdateRange(ctx context.Context, rng Range) (Range, error) {
	row := r.q.QueryRow(ctx, `UPDATE fiscal_ranges SET authorization_code=$2, prefix=$3, valid_from=$4, valid_to=$5, initial_correlative=$6, final_correlative=$7, current_correlative=$8, pending=$9, updated_at=NOW()
WHERE id=$1 RETURNING `+rangeColumns,
		rng.ID, rng.AuthorizationCode, rng.Prefix, rng.ValidFrom, rng.ValidTo, rng.Initial, rng.Final, rng.Current, rng.Pending)
	return scanRange(row, rng.ID)
}

func (r *txRepository) SetActive(ctx context.Context, id int64, active bool) (Range, error) {
	row := r.q.QueryRow(ctx, `UPDATE fiscal_ranges SET active=$2, updated_at=NOW() WHERE id=$1 RETURNING `+rangeColumns, id, active)
	return scanRange(row, id)
}

func scanRange(row pgx.Row, id int64) (Range, error) {
	var rng Range
	err := row.Scan(&rng.ID, &rng.AuthorizationCode, &rng.Prefix, &rng.ValidFrom, &rng.ValidTo, &rng.Initial, &rng.Final, &rng.Current, &rng.Pending, &rng.Active, &rng.CreatedAt, &rng.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Range{}, fmt.Errorf("%w %d", ErrRangeNotFound, id)
		}
		return Range{}, err
	}
	return rng, nil
}

func collectRanges(rows pgx.Rows) ([]Range, error) {
	defer rows.Close()
	ranges := []Range{}
	for rows.Next() {
		rng, err := scanRange(rows, 0)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rng)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ranges, nil
}
