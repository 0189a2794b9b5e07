package shifts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/catalog"
	"github.com/fiscalpos/fiscalpos/internal/platform/db"
)

const shiftColumns = `id, user_id, shift_type, start_time, end_time, initial_amount, final_cash, final_card, final_amount, expected_amount, difference, is_open`

// Repository persists shifts and reads the ledger for previews.
type Repository struct {
	pool    *pgxpool.Pool
	retries int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, retries int) *Repository {
	return &Repository{pool: pool, retries: retries}
}

// TxRepository exposes transactional statements.
type TxRepository interface {
	LockUser(ctx context.Context, userID int64) error
	FindOpen(ctx context.Context, userID int64) (Shift, error)
	InsertShift(ctx context.Context, shift Shift) (int64, error)
	GetShiftForUpdate(ctx context.Context, id int64) (Shift, error)
	UpdateShift(ctx context.Context, shift Shift) error
}

type txRepository struct {
	q db.Querier
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.retries, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

// GetShift loads one shift.
func (r *Repository) GetShift(ctx context.Context, id int64) (Shift, error) {
	shift, err := scanShift(r.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Shift{}, fmt.Errorf("%w %d", ErrShiftNotFound, id)
	}
	return shift, err
}

// GetOpenShift returns the open shift of userID.
func (r *Repository) GetOpenShift(ctx context.Context, userID int64) (Shift, error) {
	return findOpen(ctx, r.pool, userID)
}

// ListShifts returns the most recent shifts, optionally for one user.
func (r *Repository) ListShifts(ctx context.Context, userID int64, limit int) ([]Shift, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+shiftColumns+` FROM shifts
WHERE ($1 = 0 OR user_id = $1) ORDER BY start_time DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	shifts := []Shift{}
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	return shifts, rows.Err()
}

// WindowTotals aggregates what userID invoiced and collected in [from, to).
// Payments count by the issue date of their invoice, voided or not.
func (r *Repository) WindowTotals(ctx context.Context, userID int64, from, to time.Time) (WindowTotals, error) {
	totals := WindowTotals{Cash: decimal.Zero, Card: decimal.Zero, InvoicedTotal: decimal.Zero}
	rows, err := r.pool.Query(ctx, `SELECT pt.category, COALESCE(SUM(p.amount), 0)
FROM invoice_payments p
JOIN invoices i ON i.id = p.invoice_id
JOIN payment_types pt ON pt.id = p.payment_type_id
WHERE i.cashier_id = $1 AND i.issued_at >= $2 AND i.issued_at < $3
GROUP BY pt.category`, userID, from, to)
	if err != nil {
		return WindowTotals{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category string
			amount   decimal.Decimal
		)
		if err := rows.Scan(&category, &amount); err != nil {
			return WindowTotals{}, err
		}
		if catalog.PaymentCategory(category) == catalog.CategoryCash {
			totals.Cash = totals.Cash.Add(amount)
		} else {
			totals.Card = totals.Card.Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return WindowTotals{}, err
	}

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total), 0), COUNT(*) FILTER (WHERE NOT printed)
FROM invoices WHERE cashier_id = $1 AND issued_at >= $2 AND issued_at < $3 AND NOT voided`, userID, from, to).
		Scan(&totals.InvoiceCount, &totals.InvoicedTotal, &totals.UnprintedCount)
	if err != nil {
		return WindowTotals{}, err
	}
	return totals, nil
}

// LockUser serializes shift opening per user for the rest of the transaction.
func (r *txRepository) LockUser(ctx context.Context, userID int64) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('shift:' || $1::text, 0))`, userID)
	return err
}

func (r *txRepository) FindOpen(ctx context.Context, userID int64) (Shift, error) {
	return findOpen(ctx, r.q, userID)
}

func (r *txRepository) InsertShift(ctx context.Context, shift Shift) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO shifts (user_id, shift_type, start_time, initial_amount, final_cash, final_card, final_amount, expected_amount, difference, is_open)
VALUES ($1,$2,$3,$4,0,0,0,0,0,true) RETURNING id`, shift.UserID, shift.ShiftType, shift.StartTime, shift.InitialAmount).Scan(&id)
	return id, err
}

func (r *txRepository) GetShiftForUpdate(ctx context.Context, id int64) (Shift, error) {
	shift, err := scanShift(r.q.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Shift{}, fmt.Errorf("%w %d", ErrShiftNotFound, id)
	}
	return shift, err
}

func (r *txRepository) UpdateShift(ctx context.Context, shift Shift) error {
	_, err := r.q.Exec(ctx, `UPDATE shifts SET end_time=$2, final_cash=$3, final_card=$4, final_amount=$5, expected_amount=$6, difference=$7, is_open=$8 WHERE id=$1`,
		shift.ID, shift.EndTime, shift.FinalCash, shift.FinalCard, shift.FinalAmount, shift.ExpectedAmount, shift.Difference, shift.IsOpen)
	return err
}

func findOpen(ctx context.Context, q db.Querier, userID int64) (Shift, error) {
	shift, err := scanShift(q.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE user_id=$1 AND is_open ORDER BY start_time DESC LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Shift{}, ErrNoOpenShift
	}
	return shift, err
}

func scanShift(row pgx.Row) (Shift, error) {
	var s Shift
	err := row.Scan(&s.ID, &s.UserID, &s.ShiftType, &s.StartTime, &s.EndTime, &s.InitialAmount, &s.FinalCash, &s.FinalCard,
		&s.FinalAmount, &s.ExpectedAmount, &s.Difference, &s.IsOpen)
	return s, err
}
