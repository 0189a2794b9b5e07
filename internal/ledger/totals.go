package ledger

import "github.com/shopspring/decimal"

// Tax rates recognised by the Honduran sales tax (ISV).
var (
	RateExempt = decimal.Zero
	Rate15     = decimal.NewFromInt(15)
	Rate18     = decimal.NewFromInt(18)
)

var hundred = decimal.NewFromInt(100)

// LineInput is the pricing data of a single document line.
type LineInput struct {
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
	DiscountPct decimal.Decimal
}

// LineAmounts is the computed pricing of one line.
type LineAmounts struct {
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Net      decimal.Decimal
}

// Totals is the document-level tax breakdown.
type Totals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	ExemptBase    decimal.Decimal
	Taxable15Base decimal.Decimal
	Tax15         decimal.Decimal
	Taxable18Base decimal.Decimal
	Tax18         decimal.Decimal
	Total         decimal.Decimal
}

// PriceLine computes gross, discount and net amounts for a line, rounded to cents.
func PriceLine(in LineInput) LineAmounts {
	gross := in.Quantity.Mul(in.UnitPrice).Round(2)
	discount := gross.Mul(in.DiscountPct).Div(hundred).Round(2)
	return LineAmounts{Gross: gross, Discount: discount, Net: gross.Sub(discount)}
}

// Summarize groups line nets by tax rate and returns the document totals.
// Rates other than 15 and 18 are treated as exempt; callers validate rates first.
func Summarize(lines []LineInput) Totals {
	t := Totals{
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		ExemptBase:    decimal.Zero,
		Taxable15Base: decimal.Zero,
		Taxable18Base: decimal.Zero,
	}
	for _, line := range lines {
		amounts := PriceLine(line)
		t.Subtotal = t.Subtotal.Add(amounts.Gross)
		t.DiscountTotal = t.DiscountTotal.Add(amounts.Discount)
		switch {
		case line.TaxRate.Equal(Rate15):
			t.Taxable15Base = t.Taxable15Base.Add(amounts.Net)
		case line.TaxRate.Equal(Rate18):
			t.Taxable18Base = t.Taxable18Base.Add(amounts.Net)
		default:
			t.ExemptBase = t.ExemptBase.Add(amounts.Net)
		}
	}
	t.Tax15 = t.Taxable15Base.Mul(Rate15).Div(hundred).Round(2)
	t.Tax18 = t.Taxable18Base.Mul(Rate18).Div(hundred).Round(2)
	t.Total = t.Subtotal.Sub(t.DiscountTotal).Add(t.Tax15).Add(t.Tax18)
	return t
}

// SupportedRate reports whether rate is exempt, 15% or 18%.
func SupportedRate(rate decimal.Decimal) bool {
	return rate.IsZero() || rate.Equal(Rate15) || rate.Equal(Rate18)
}
