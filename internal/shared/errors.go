package shared

import "errors"

// Error categories returned by the fiscal core. Domain packages wrap these with
// a specific message so callers can branch with errors.Is on the category.
var (
	// ErrNotFound indicates a missing invoice, bill, shift or fiscal range.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation on a cancelled, paid or closed entity.
	ErrInvalidState = errors.New("invalid state")
	// ErrCapacityExhausted indicates no usable fiscal range remains.
	ErrCapacityExhausted = errors.New("capacity exhausted")
	// ErrValidation indicates malformed input or an amount rule violation.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrencyConflict indicates a lost race on a locked row; callers may retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// Category returns the taxonomy sentinel err belongs to, or nil when err is
// not a business-rule failure.
func Category(err error) error {
	for _, target := range []error{ErrNotFound, ErrInvalidState, ErrCapacityExhausted, ErrValidation, ErrConcurrencyConflict} {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

// UserSafeMessage returns err's message for business-rule failures and a
// generic text for anything else.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if Category(err) != nil {
		return err.Error()
	}
	return "internal error"
}
