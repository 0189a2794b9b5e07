package ledger

import "github.com/shopspring/decimal"

// Stored precision of money and quantity columns.
const (
	MoneyScale    int32 = 2
	QuantityScale int32 = 4
)

// CheckAmount rejects money values that would lose precision in storage.
// Trailing zeros are fine: 10.500 is a valid amount.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(MoneyScale)) {
		return ErrAmountScale
	}
	return nil
}

// CheckQuantity rejects quantities finer than the stock columns hold.
func CheckQuantity(qty decimal.Decimal) error {
	if !qty.Equal(qty.Round(QuantityScale)) {
		return ErrQuantityScale
	}
	return nil
}
