// Package catalog reads the reference data the fiscal core prices and
// classifies with: taxes, discounts and payment types. Maintenance of these
// tables happens elsewhere.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/ledger"
	"github.com/fiscalpos/fiscalpos/internal/platform/db"
	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// PaymentCategory groups payment types for shift reconciliation.
type PaymentCategory string

const (
	CategoryCash     PaymentCategory = "cash"
	CategoryCard     PaymentCategory = "card"
	CategoryTransfer PaymentCategory = "transfer"
)

// Valid reports whether c is a known category.
func (c PaymentCategory) Valid() bool {
	return c == CategoryCash || c == CategoryCard || c == CategoryTransfer
}

// PaymentType is a tender accepted at the register.
type PaymentType struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Category PaymentCategory `json:"category"`
}

// Tax is an ISV rate expressed in percent.
type Tax struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Rate decimal.Decimal `json:"rate"`
}

// Discount is a percentage discount applied to a line.
type Discount struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Percent decimal.Decimal `json:"percent"`
}

var (
	ErrTaxNotFound         = fmt.Errorf("%w: tax", shared.ErrNotFound)
	ErrDiscountNotFound    = fmt.Errorf("%w: discount", shared.ErrNotFound)
	ErrPaymentTypeNotFound = fmt.Errorf("%w: payment type", shared.ErrNotFound)
)

// Reader resolves reference data. Both the pool-backed Repository and the
// transaction-bound readers satisfy it.
type Reader interface {
	GetTax(ctx context.Context, id int64) (Tax, error)
	GetDiscount(ctx context.Context, id int64) (Discount, error)
	GetPaymentType(ctx context.Context, id int64) (PaymentType, error)
}

// Repository reads reference tables through any pgx querier.
type Repository struct {
	q db.Querier
}

// NewRepository binds the reader to a pool or transaction.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) GetTax(ctx context.Context, id int64) (Tax, error) {
	var t Tax
	err := r.q.QueryRow(ctx, `SELECT id, name, rate FROM taxes WHERE id=$1`, id).Scan(&t.ID, &t.Name, &t.Rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tax{}, fmt.Errorf("%w %d", ErrTaxNotFound, id)
		}
		return Tax{}, err
	}
	if !ledger.SupportedRate(t.Rate) {
		return Tax{}, fmt.Errorf("%w: tax %d has unsupported rate %s", shared.ErrValidation, id, t.Rate.String())
	}
	return t, nil
}

func (r *Repository) GetDiscount(ctx context.Context, id int64) (Discount, error) {
	var d Discount
	err := r.q.QueryRow(ctx, `SELECT id, name, percent FROM discounts WHERE id=$1`, id).Scan(&d.ID, &d.Name, &d.Percent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Discount{}, fmt.Errorf("%w %d", ErrDiscountNotFound, id)
		}
		return Discount{}, err
	}
	return d, nil
}

func (r *Repository) GetPaymentType(ctx context.Context, id int64) (PaymentType, error) {
	var p PaymentType
	err := r.q.QueryRow(ctx, `SELECT id, name, category FROM payment_types WHERE id=$1`, id).Scan(&p.ID, &p.Name, &p.Category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentType{}, fmt.Errorf("%w %d", ErrPaymentTypeNotFound, id)
		}
		return PaymentType{}, err
	}
	return p, nil
}

// Static is an in-memory Reader, used by tests and fixtures.
type Static struct {
	Taxes        map[int64]Tax
	Discounts    map[int64]Discount
	PaymentTypes map[int64]PaymentType
}

func (s Static) GetTax(_ context.Context, id int64) (Tax, error) {
	if t, ok := s.Taxes[id]; ok {
		return t, nil
	}
	return Tax{}, fmt.Errorf("%w %d", ErrTaxNotFound, id)
}

func (s Static) GetDiscount(_ context.Context, id int64) (Discount, error) {
	if d, ok := s.Discounts[id]; ok {
		return d, nil
	}
	return Discount{}, fmt.Errorf("%w %d", ErrDiscountNotFound, id)
}

func (s Static) GetPaymentType(_ context.Context, id int64) (PaymentType, error) {
	if p, ok := s.PaymentTypes[id]; ok {
		return p, nil
	}
	return PaymentType{}, fmt.Errorf("%w %d", ErrPaymentTypeNotFound, id)
}

// Fixture returns the reference data seeded by the initial migration.
func Fixture() Static {
	return Static{
		Taxes: map[int64]Tax{
			1: {ID: 1, Name: "Exento", Rate: decimal.Zero},
			2: {ID: 2, Name: "ISV 15%", Rate: ledger.Rate15},
			3: {ID: 3, Name: "ISV 18%", Rate: ledger.Rate18},
		},
		Discounts: map[int64]Discount{
			1: {ID: 1, Name: "Tercera edad", Percent: decimal.NewFromInt(25)},
			2: {ID: 2, Name: "Promocion", Percent: decimal.NewFromInt(10)},
		},
		PaymentTypes: map[int64]PaymentType{
			1: {ID: 1, Name: "Efectivo", Category: CategoryCash},
			2: {ID: 2, Name: "Tarjeta", Category: CategoryCard},
			3: {ID: 3, Name: "Transferencia", Category: CategoryTransfer},
		},
	}
}
