package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiscalpos/fiscalpos/internal/catalog"
	"github.com/fiscalpos/fiscalpos/internal/inventory"
	"github.com/fiscalpos/fiscalpos/internal/ledger"
	"github.com/fiscalpos/fiscalpos/internal/platform/db"
)

const billColumns = `id, number, provider_id, created_by, billed_at, subtotal, exempt_base, taxable15_base, tax15, taxable18_base, tax18, total, outstanding, status, voided, COALESCE(void_reason, ''), credit_days, due_date`

// Repository persists purchase bills in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	retries int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, retries int) *Repository {
	return &Repository{pool: pool, retries: retries}
}

// TxRepository exposes the statements a bill transaction runs.
type TxRepository interface {
	inventory.TxRepository
	catalog.Reader
	NextSequence(ctx context.Context, name string) (int64, error)
	InsertBill(ctx context.Context, bill Bill) (int64, error)
	InsertLine(ctx context.Context, line BillLine) (int64, error)
	InsertPayment(ctx context.Context, payment BillPayment) (int64, error)
	GetBillForUpdate(ctx context.Context, id int64) (Bill, error)
	ListLines(ctx context.Context, billID int64) ([]BillLine, error)
	UpdateBalance(ctx context.Context, bill Bill) error
}

type txRepository struct {
	inventory.TxRepository
	*catalog.Repository
	q db.Querier
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.retries, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			TxRepository: inventory.NewTxRepository(tx),
			Repository:   catalog.NewRepository(tx),
			q:            tx,
		})
	})
}

// GetBill loads a bill with its lines and payments.
func (r *Repository) GetBill(ctx context.Context, id int64) (Bill, error) {
	bill, err := scanBill(r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM purchase_bills WHERE id=$1`, id), id)
	if err != nil {
		return Bill{}, err
	}
	if bill.Lines, err = listLines(ctx, r.pool, id); err != nil {
		return Bill{}, err
	}
	if bill.Payments, err = listPayments(ctx, r.pool, id); err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// ListBills returns bill headers matching filter, newest first.
func (r *Repository) ListBills(ctx context.Context, filter ListFilter) ([]Bill, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != 0 {
		add("status=$%d", int(filter.Status))
	}
	if filter.ProviderID != 0 {
		add("provider_id=$%d", filter.ProviderID)
	}
	if !filter.From.IsZero() {
		add("billed_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("billed_at < $%d", filter.To)
	}
	query := `SELECT ` + billColumns + ` FROM purchase_bills`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY billed_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bills := []Bill{}
	for rows.Next() {
		bill, err := scanBill(rows, 0)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

// NextSequence increments the named counter. The upsert holds the row lock
// until the surrounding transaction ends, so numbers are gap-free per commit.
func (r *txRepository) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := r.q.QueryRow(ctx, `INSERT INTO document_sequences (name, last_value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, name).Scan(&value)
	return value, err
}

func (r *txRepository) InsertBill(ctx context.Context, bill Bill) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO purchase_bills (number, provider_id, created_by, billed_at, subtotal, exempt_base, taxable15_base, tax15, taxable18_base, tax18, total, outstanding, status, voided, credit_days, due_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,false,$14,$15,NOW(),NOW()) RETURNING id`,
		bill.Number, bill.ProviderID, bill.CreatedBy, bill.Date, bill.Subtotal, bill.ExemptBase, bill.Taxable15Base, bill.Tax15,
		bill.Taxable18Base, bill.Tax18, bill.Total, bill.Outstanding, int(bill.Status), bill.CreditDays, bill.DueDate).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line BillLine) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO purchase_bill_lines (bill_id, product_id, quantity, unit_cost, tax_id, tax_rate, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		line.BillID, line.ProductID, line.Quantity, line.UnitCost, line.TaxID, line.TaxRate, line.LineTotal).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPayment(ctx context.Context, payment BillPayment) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO purchase_bill_payments (bill_id, payment_type_id, amount, paid_at) VALUES ($1,$2,$3,$4) RETURNING id`,
		payment.BillID, payment.PaymentTypeID, payment.Amount, payment.PaidAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetBillForUpdate(ctx context.Context, id int64) (Bill, error) {
	return scanBill(r.q.QueryRow(ctx, `SELECT `+billColumns+` FROM purchase_bills WHERE id=$1 FOR UPDATE`, id), id)
}

func (r *txRepository) ListLines(ctx context.Context, billID int64) ([]BillLine, error) {
	return listLines(ctx, r.q, billID)
}

func (r *txRepository) UpdateBalance(ctx context.Context, bill Bill) error {
	tag, err := r.q.Exec(ctx, `UPDATE purchase_bills SET outstanding=$2, status=$3, voided=$4, void_reason=NULLIF($5, ''), updated_at=NOW() WHERE id=$1`,
		bill.ID, bill.Outstanding, int(bill.Status), bill.Voided, bill.VoidReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrBillNotFound, bill.ID)
	}
	return nil
}

func scanBill(row pgx.Row, id int64) (Bill, error) {
	var (
		bill   Bill
		status int
	)
	err := row.Scan(&bill.ID, &bill.Number, &bill.ProviderID, &bill.CreatedBy, &bill.Date, &bill.Subtotal, &bill.ExemptBase,
		&bill.Taxable15Base, &bill.Tax15, &bill.Taxable18Base, &bill.Tax18, &bill.Total, &bill.Outstanding, &status,
		&bill.Voided, &bill.VoidReason, &bill.CreditDays, &bill.DueDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, fmt.Errorf("%w %d", ErrBillNotFound, id)
		}
		return Bill{}, err
	}
	bill.Status = ledger.Status(status)
	return bill, nil
}

func listLines(ctx context.Context, q db.Querier, billID int64) ([]BillLine, error) {
	rows, err := q.Query(ctx, `SELECT id, bill_id, product_id, quantity, unit_cost, tax_id, tax_rate, line_total
FROM purchase_bill_lines WHERE bill_id=$1 ORDER BY id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []BillLine{}
	for rows.Next() {
		var l BillLine
		if err := rows.Scan(&l.ID, &l.BillID, &l.ProductID, &l.Quantity, &l.UnitCost, &l.TaxID, &l.TaxRate, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func listPayments(ctx context.Context, q db.Querier, billID int64) ([]BillPayment, error) {
	rows, err := q.Query(ctx, `SELECT id, bill_id, payment_type_id, amount, paid_at FROM purchase_bill_payments WHERE bill_id=$1 ORDER BY paid_at, id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := []BillPayment{}
	for rows.Next() {
		var p BillPayment
		if err := rows.Scan(&p.ID, &p.BillID, &p.PaymentTypeID, &p.Amount, &p.PaidAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
