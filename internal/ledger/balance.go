package ledger

import "github.com/shopspring/decimal"

// Balance is the mutable part of an invoice or bill. It only changes through
// ApplyPayment and Void so Status can never drift from Outstanding.
type Balance struct {
	Total       decimal.Decimal
	Outstanding decimal.Decimal
	Voided      bool
}

// NewBalance opens a balance for total with the payments captured at creation.
func NewBalance(total decimal.Decimal, prepaid ...decimal.Decimal) (Balance, error) {
	if err := CheckAmount(total); err != nil {
		return Balance{}, err
	}
	b := Balance{Total: total, Outstanding: total}
	sum := decimal.Zero
	for _, amount := range prepaid {
		if amount.Sign() <= 0 {
			return Balance{}, ErrNonPositiveAmount
		}
		if err := CheckAmount(amount); err != nil {
			return Balance{}, err
		}
		sum = sum.Add(amount)
	}
	if sum.GreaterThan(total) {
		return Balance{}, ErrPrepaidExceeds
	}
	b.Outstanding = total.Sub(sum)
	return b, nil
}

// Status derives the document state.
func (b Balance) Status() Status {
	return Derive(b.Outstanding, b.Voided)
}

// Paid returns the amount settled so far. A voided balance reports zero
// outstanding, so Paid is only meaningful before Void.
func (b Balance) Paid() decimal.Decimal {
	return b.Total.Sub(b.Outstanding)
}

// CanPay checks the payment preconditions without mutating b.
func (b Balance) CanPay(amount decimal.Decimal) error {
	switch b.Status() {
	case StatusCancelled:
		return ErrVoided
	case StatusPaid:
		return ErrAlreadyPaid
	}
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if amount.GreaterThan(b.Outstanding) {
		return ErrExceedsOutstanding
	}
	return nil
}

// ApplyPayment decrements the outstanding amount by amount.
func (b *Balance) ApplyPayment(amount decimal.Decimal) error {
	if err := b.CanPay(amount); err != nil {
		return err
	}
	b.Outstanding = b.Outstanding.Sub(amount)
	if b.Outstanding.Sign() < 0 {
		b.Outstanding = decimal.Zero
	}
	return nil
}

// Void moves the balance to the terminal cancelled state.
func (b *Balance) Void() error {
	if b.Voided {
		return ErrAlreadyVoided
	}
	b.Voided = true
	b.Outstanding = decimal.Zero
	return nil
}
