package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSummarizeGroupsByRate(t *testing.T) {
	totals := Summarize([]LineInput{
		{Quantity: d("2"), UnitPrice: d("50.00"), TaxRate: Rate15, DiscountPct: decimal.Zero},
		{Quantity: d("1"), UnitPrice: d("200.00"), TaxRate: Rate18, DiscountPct: d("10")},
		{Quantity: d("3"), UnitPrice: d("10.00"), TaxRate: RateExempt, DiscountPct: decimal.Zero},
	})

	require.True(t, totals.Subtotal.Equal(d("330.00")))
	require.True(t, totals.DiscountTotal.Equal(d("20.00")))
	require.True(t, totals.Taxable15Base.Equal(d("100.00")))
	require.True(t, totals.Tax15.Equal(d("15.00")))
	require.True(t, totals.Taxable18Base.Equal(d("180.00")))
	require.True(t, totals.Tax18.Equal(d("32.40")))
	require.True(t, totals.ExemptBase.Equal(d("30.00")))
	require.True(t, totals.Total.Equal(d("357.40")))
}

func TestSummarizeRoundsTaxToCents(t *testing.T) {
	totals := Summarize([]LineInput{
		{Quantity: d("1"), UnitPrice: d("0.33"), TaxRate: Rate15, DiscountPct: decimal.Zero},
	})
	// 0.33 * 0.15 = 0.0495
	require.True(t, totals.Tax15.Equal(d("0.05")))
	require.True(t, totals.Total.Equal(d("0.38")))
}

func TestSummarizeEmpty(t *testing.T) {
	totals := Summarize(nil)
	require.True(t, totals.Total.IsZero())
}

func TestSupportedRate(t *testing.T) {
	require.True(t, SupportedRate(d("15.00")))
	require.True(t, SupportedRate(decimal.Zero))
	require.False(t, SupportedRate(d("12")))
}
