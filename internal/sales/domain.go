package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/ledger"
	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// Invoice is a fiscal sales document numbered from a CAI range.
type Invoice struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	Correlative   int64           `json:"correlative"`
	FiscalRangeID int64           `json:"fiscal_range_id"`
	CustomerID    int64           `json:"customer_id"`
	CashierID     int64           `json:"cashier_id"`
	Date          time.Time       `json:"date"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	ExemptBase    decimal.Decimal `json:"exempt_base"`
	Taxable15Base decimal.Decimal `json:"taxable15_base"`
	Tax15         decimal.Decimal `json:"tax15"`
	Taxable18Base decimal.Decimal `json:"taxable18_base"`
	Tax18         decimal.Decimal `json:"tax18"`
	Total         decimal.Decimal `json:"total"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	Status        ledger.Status   `json:"status"`
	Voided        bool            `json:"voided"`
	VoidReason    string          `json:"void_reason,omitempty"`
	CreditDays    int             `json:"credit_days"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	Printed       bool            `json:"printed"`
	Lines         []LineItem      `json:"lines"`
	Payments      []Payment       `json:"payments"`
}

// Balance returns the ledger view of the invoice.
func (inv Invoice) Balance() ledger.Balance {
	return ledger.Balance{Total: inv.Total, Outstanding: inv.Outstanding, Voided: inv.Voided}
}

// LineItem is an immutable sold line.
type LineItem struct {
	ID             int64           `json:"id"`
	InvoiceID      int64           `json:"invoice_id"`
	ProductID      int64           `json:"product_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxID          int64           `json:"tax_id"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	DiscountID     int64           `json:"discount_id,omitempty"`
	DiscountPct    decimal.Decimal `json:"discount_pct"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// Payment is an append-only settlement of an invoice.
type Payment struct {
	ID            int64           `json:"id"`
	InvoiceID     int64           `json:"invoice_id"`
	PaymentTypeID int64           `json:"payment_type_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        time.Time       `json:"paid_at"`
}

// LineInput is a line as entered at the register. DiscountID is optional.
type LineInput struct {
	ProductID  int64
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	TaxID      int64
	DiscountID int64
}

// PaymentInput is a tender captured with the sale or afterwards.
type PaymentInput struct {
	PaymentTypeID int64
	Amount        decimal.Decimal
}

// PaymentPlan holds credit terms and payments captured at creation.
type PaymentPlan struct {
	CreditDays int
	Payments   []PaymentInput
}

// CreateInvoiceInput is the request to issue an invoice. FiscalRangeID pins
// a range; zero selects the active one.
type CreateInvoiceInput struct {
	CustomerID     int64
	CashierID      int64
	FiscalRangeID  int64
	Lines          []LineInput
	Plan           PaymentPlan
	IdempotencyKey string
}

// ListFilter narrows ListInvoices.
type ListFilter struct {
	Status     ledger.Status
	CustomerID int64
	CashierID  int64
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

var (
	ErrInvoiceNotFound = fmt.Errorf("%w: invoice", shared.ErrNotFound)
	ErrNoLines         = fmt.Errorf("%w: invoice requires at least one line", shared.ErrValidation)
)
