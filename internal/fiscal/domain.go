// Package fiscal owns the CAI authorization ranges issued by the tax
// authority and hands out their sequential correlatives.
package fiscal

import (
	"fmt"
	"time"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// Range is a CAI block of invoice numbers. Current is the next correlative
// to hand out; Initial <= Current <= Final+1 always holds.
type Range struct {
	ID                int64     `json:"id"`
	AuthorizationCode string    `json:"authorization_code"`
	Prefix            string    `json:"prefix"`
	ValidFrom         time.Time `json:"valid_from"`
	ValidTo           time.Time `json:"valid_to"`
	Initial           int64     `json:"initial"`
	Final             int64     `json:"final"`
	Current           int64     `json:"current"`
	Pending           int64     `json:"pending"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FormatNumber renders the printed invoice number for correlative.
func (r Range) FormatNumber(correlative int64) string {
	return fmt.Sprintf("%s%08d", r.Prefix, correlative)
}

// Consumed reports whether any correlative has been issued.
func (r Range) Consumed() bool {
	return r.Current > r.Initial
}

// Expired reports whether the authorization deadline has passed at now.
// ValidTo is inclusive for the whole day.
func (r Range) Expired(now time.Time) bool {
	if r.ValidTo.IsZero() {
		return false
	}
	y, m, d := r.ValidTo.Date()
	deadline := time.Date(y, m, d, 0, 0, 0, 0, r.ValidTo.Location()).AddDate(0, 0, 1)
	return !now.Before(deadline)
}

// DaysToExpiry counts whole days from now until the deadline; negative once expired.
func (r Range) DaysToExpiry(now time.Time) int {
	y, m, d := r.ValidTo.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ny, nm, nd := now.In(r.ValidTo.Location()).Date()
	start := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

func pendingFor(final, current int64) int64 {
	if p := final - current + 1; p > 0 {
		return p
	}
	return 0
}

// Allocation is a correlative handed out for one invoice.
type Allocation struct {
	Correlative int64
	Number      string
	Range       Range
}

// CreateRangeInput carries a new CAI as typed by the administrator.
type CreateRangeInput struct {
	AuthorizationCode string
	Prefix            string
	ValidFrom         time.Time
	ValidTo           time.Time
	Initial           int64
	Final             int64
	Active            bool
}

// UpdateRangeInput replaces the editable fields of a range.
type UpdateRangeInput struct {
	AuthorizationCode string
	Prefix            string
	ValidFrom         time.Time
	ValidTo           time.Time
	Initial           int64
	Final             int64
}

// CapacityReport summarises how much life an active range has left.
type CapacityReport struct {
	RangeID           int64     `json:"range_id"`
	AuthorizationCode string    `json:"authorization_code"`
	Prefix            string    `json:"prefix"`
	Pending           int64     `json:"pending"`
	Total             int64     `json:"total"`
	ValidTo           time.Time `json:"valid_to"`
	DaysToExpiry      int       `json:"days_to_expiry"`
	Expired           bool      `json:"expired"`
}

var (
	ErrRangeNotFound  = fmt.Errorf("%w: fiscal range", shared.ErrNotFound)
	ErrRangeInactive  = fmt.Errorf("%w: fiscal range is not active", shared.ErrInvalidState)
	ErrRangeExpired   = fmt.Errorf("%w: fiscal range authorization has expired", shared.ErrInvalidState)
	ErrRangeExhausted = fmt.Errorf("%w: fiscal range has no pending correlatives", shared.ErrCapacityExhausted)
	ErrNoActiveRange  = fmt.Errorf("%w: no active fiscal range with pending correlatives", shared.ErrCapacityExhausted)
	ErrRangeConsumed  = fmt.Errorf("%w: fiscal range has issued correlatives", shared.ErrInvalidState)
)

func ambiguousRanges(n int) error {
	return fmt.Errorf("%w: ambiguous: %d active fiscal ranges", shared.ErrCapacityExhausted, n)
}
