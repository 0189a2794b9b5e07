// Package purchasing records vendor bills: stock received from providers,
// the amount owed for it and the payments made against that debt.
package purchasing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/ledger"
	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// SequenceName is the document_sequences row that numbers bills.
const SequenceName = "purchase_bill"

// Bill is a purchase document. It shares the invoice status machine.
type Bill struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	ProviderID    int64           `json:"provider_id"`
	CreatedBy     int64           `json:"created_by"`
	Date          time.Time       `json:"date"`
	Subtotal      decimal.Decimal `json:"subtotal"`
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
	Lines         []BillLine      `json:"lines"`
	Payments      []BillPayment   `json:"payments"`
}

// Balance returns the ledger view of the bill.
func (b Bill) Balance() ledger.Balance {
	return ledger.Balance{Total: b.Total, Outstanding: b.Outstanding, Voided: b.Voided}
}

// BillLine is a received product line.
type BillLine struct {
	ID        int64           `json:"id"`
	BillID    int64           `json:"bill_id"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TaxID     int64           `json:"tax_id"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// BillPayment is a payment made to the provider.
type BillPayment struct {
	ID            int64           `json:"id"`
	BillID        int64           `json:"bill_id"`
	PaymentTypeID int64           `json:"payment_type_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        time.Time       `json:"paid_at"`
}

// LineInput is a line of a provider delivery.
type LineInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	TaxID     int64
}

// PaymentInput is a payment captured with the bill.
type PaymentInput struct {
	PaymentTypeID int64
	Amount        decimal.Decimal
}

// PaymentPlan holds credit terms and payments made on receipt.
type PaymentPlan struct {
	CreditDays int
	Payments   []PaymentInput
}

// CreateBillInput is the request to register a bill.
type CreateBillInput struct {
	ProviderID int64
	CreatedBy  int64
	Lines      []LineInput
	Plan       PaymentPlan
}

// ListFilter narrows ListBills.
type ListFilter struct {
	Status     ledger.Status
	ProviderID int64
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

var (
	ErrBillNotFound = fmt.Errorf("%w: purchase bill", shared.ErrNotFound)
	ErrNoLines      = fmt.Errorf("%w: purchase bill requires at least one line", shared.ErrValidation)
)

// FormatNumber renders a bill sequence value.
func FormatNumber(seq int64) string {
	return fmt.Sprintf("%08d", seq)
}
