package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiscalpos/fiscalpos/internal/catalog"
	"github.com/fiscalpos/fiscalpos/internal/fiscal"
	"github.com/fiscalpos/fiscalpos/internal/inventory"
	"github.com/fiscalpos/fiscalpos/internal/ledger"
	"github.com/fiscalpos/fiscalpos/internal/platform/db"
)

const invoiceColumns = `id, number, correlative, fiscal_range_id, COALESCE(customer_id, 0), cashier_id, issued_at, subtotal, discount_total, exempt_base, taxable15_base, tax15, taxable18_base, tax18, total, outstanding, status, voided, COALESCE(void_reason, ''), credit_days, due_date, printed`

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	retries int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, retries int) *Repository {
	return &Repository{pool: pool, retries: retries}
}

// TxRepository is everything an invoice transaction touches: the fiscal
// range row, stock balances, reference data and the invoice tables.
type TxRepository interface {
	fiscal.TxRepository
	inventory.TxRepository
	catalog.Reader
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertLine(ctx context.Context, line LineItem) (int64, error)
	InsertPayment(ctx context.Context, payment Payment) (int64, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	ListLines(ctx context.Context, invoiceID int64) ([]LineItem, error)
	UpdateBalance(ctx context.Context, inv Invoice) error
}

type txRepository struct {
	q         db.Querier
	ranges    fiscal.TxRepository
	stock     inventory.TxRepository
	reference *catalog.Repository
}

func newTxRepository(q db.Querier) *txRepository {
	return &txRepository{
		q:         q,
		ranges:    fiscal.NewTxRepository(q),
		stock:     inventory.NewTxRepository(q),
		reference: catalog.NewRepository(q),
	}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.retries, func(tx pgx.Tx) error {
		return fn(ctx, newTxRepository(tx))
	})
}

// GetInvoice loads an invoice with its lines and payments.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id), id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Lines, err = listLines(ctx, r.pool, id); err != nil {
		return Invoice{}, err
	}
	if inv.Payments, err = listPayments(ctx, r.pool, id); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// ListInvoices returns invoice headers matching filter, newest first.
func (r *Repository) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
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
	if filter.CustomerID != 0 {
		add("customer_id=$%d", filter.CustomerID)
	}
	if filter.CashierID != 0 {
		add("cashier_id=$%d", filter.CashierID)
	}
	if !filter.From.IsZero() {
		add("issued_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("issued_at < $%d", filter.To)
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY issued_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows, 0)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// MarkPrinted flags the invoice as handed to the customer on paper.
func (r *Repository) MarkPrinted(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET printed=true, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrInvoiceNotFound, id)
	}
	return nil
}

func (r *txRepository) GetRangeForUpdate(ctx context.Context, id int64) (fiscal.Range, error) {
	return r.ranges.GetRangeForUpdate(ctx, id)
}

func (r *txRepository) ListSelectableRanges(ctx context.Context) ([]fiscal.Range, error) {
	return r.ranges.ListSelectableRanges(ctx)
}

func (r *txRepository) UpdateCursor(ctx context.Context, id, current, pending int64) error {
	return r.ranges.UpdateCursor(ctx, id, current, pending)
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, productID int64) (inventory.Balance, error) {
	return r.stock.GetBalanceForUpdate(ctx, productID)
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance inventory.Balance) error {
	return r.stock.UpsertBalance(ctx, balance)
}

func (r *txRepository) InsertMovement(ctx context.Context, entry inventory.StockCardEntry) error {
	return r.stock.InsertMovement(ctx, entry)
}

func (r *txRepository) GetTax(ctx context.Context, id int64) (catalog.Tax, error) {
	return r.reference.GetTax(ctx, id)
}

func (r *txRepository) GetDiscount(ctx context.Context, id int64) (catalog.Discount, error) {
	return r.reference.GetDiscount(ctx, id)
}

func (r *txRepository) GetPaymentType(ctx context.Context, id int64) (catalog.PaymentType, error) {
	return r.reference.GetPaymentType(ctx, id)
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO invoices (number, correlative, fiscal_range_id, customer_id, cashier_id, issued_at, subtotal, discount_total, exempt_base, taxable15_base, tax15, taxable18_base, tax18, total, outstanding, status, voided, credit_days, due_date, printed, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,false,$17,$18,false,NOW(),NOW()) RETURNING id`,
		inv.Number, inv.Correlative, inv.FiscalRangeID, nullInt(inv.CustomerID), inv.CashierID, inv.Date,
		inv.Subtotal, inv.DiscountTotal, inv.ExemptBase, inv.Taxable15Base, inv.Tax15, inv.Taxable18Base, inv.Tax18,
		inv.Total, inv.Outstanding, int(inv.Status), inv.CreditDays, inv.DueDate).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line LineItem) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, product_id, quantity, unit_price, tax_id, tax_rate, discount_id, discount_pct, discount_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		line.InvoiceID, line.ProductID, line.Quantity, line.UnitPrice, line.TaxID, line.TaxRate, nullInt(line.DiscountID),
		line.DiscountPct, line.DiscountAmount, line.LineTotal).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPayment(ctx context.Context, payment Payment) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO invoice_payments (invoice_id, payment_type_id, amount, paid_at) VALUES ($1,$2,$3,$4) RETURNING id`,
		payment.InvoiceID, payment.PaymentTypeID, payment.Amount, payment.PaidAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id), id)
}

func (r *txRepository) ListLines(ctx context.Context, invoiceID int64) ([]LineItem, error) {
	return listLines(ctx, r.q, invoiceID)
}

func (r *txRepository) UpdateBalance(ctx context.Context, inv Invoice) error {
	tag, err := r.q.Exec(ctx, `UPDATE invoices SET outstanding=$2, status=$3, voided=$4, void_reason=NULLIF($5, ''), updated_at=NOW() WHERE id=$1`,
		inv.ID, inv.Outstanding, int(inv.Status), inv.Voided, inv.VoidReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrInvoiceNotFound, inv.ID)
	}
	return nil
}

func scanInvoice(row pgx.Row, id int64) (Invoice, error) {
	var (
		inv    Invoice
		status int
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.Correlative, &inv.FiscalRangeID, &inv.CustomerID, &inv.CashierID, &inv.Date,
		&inv.Subtotal, &inv.DiscountTotal, &inv.ExemptBase, &inv.Taxable15Base, &inv.Tax15, &inv.Taxable18Base, &inv.Tax18,
		&inv.Total, &inv.Outstanding, &status, &inv.Voided, &inv.VoidReason, &inv.CreditDays, &inv.DueDate, &inv.Printed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%w %d", ErrInvoiceNotFound, id)
		}
		return Invoice{}, err
	}
	inv.Status = ledger.Status(status)
	return inv, nil
}

func listLines(ctx context.Context, q db.Querier, invoiceID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, product_id, quantity, unit_price, tax_id, tax_rate, COALESCE(discount_id, 0), discount_pct, discount_amount, line_total
FROM invoice_lines WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []LineItem{}
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.TaxID, &l.TaxRate, &l.DiscountID, &l.DiscountPct, &l.DiscountAmount, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func listPayments(ctx context.Context, q db.Querier, invoiceID int64) ([]Payment, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, payment_type_id, amount, paid_at FROM invoice_payments WHERE invoice_id=$1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := []Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.PaymentTypeID, &p.Amount, &p.PaidAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
