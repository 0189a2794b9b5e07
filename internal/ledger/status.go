// Package ledger holds the outstanding-balance state machine shared by sales
// invoices and purchase bills.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// Status enumerates document states. Values are persisted as small integers.
type Status int

const (
	StatusCreated   Status = 1
	StatusPaid      Status = 2
	StatusCancelled Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusPaid:
		return "PAID"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	return s >= StatusCreated && s <= StatusCancelled
}

// Derive computes the status from the outstanding amount and the void flag.
func Derive(outstanding decimal.Decimal, voided bool) Status {
	switch {
	case voided:
		return StatusCancelled
	case outstanding.Sign() <= 0:
		return StatusPaid
	default:
		return StatusCreated
	}
}

var (
	ErrVoided             = fmt.Errorf("%w: cannot pay a voided document", shared.ErrInvalidState)
	ErrAlreadyPaid        = fmt.Errorf("%w: already fully paid", shared.ErrInvalidState)
	ErrAlreadyVoided      = fmt.Errorf("%w: already cancelled", shared.ErrInvalidState)
	ErrNonPositiveAmount  = fmt.Errorf("%w: amount must be greater than zero", shared.ErrValidation)
	ErrExceedsOutstanding = fmt.Errorf("%w: amount exceeds outstanding balance", shared.ErrValidation)
	ErrPrepaidExceeds     = fmt.Errorf("%w: payments exceed document total", shared.ErrValidation)
	ErrAmountScale        = fmt.Errorf("%w: amount has more than 2 decimals", shared.ErrValidation)
	ErrQuantityScale      = fmt.Errorf("%w: quantity has more than 4 decimals", shared.ErrValidation)
)
