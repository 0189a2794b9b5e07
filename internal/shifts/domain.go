// Package shifts opens and closes cashier shifts and reconciles the cash and
// card collected during a shift against what the cashier reports.
package shifts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// Shift is a cashier work session.
type Shift struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	ShiftType      string          `json:"shift_type"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
	InitialAmount  decimal.Decimal `json:"initial_amount"`
	FinalCash      decimal.Decimal `json:"final_cash"`
	FinalCard      decimal.Decimal `json:"final_card"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	Difference     decimal.Decimal `json:"difference"`
	IsOpen         bool            `json:"is_open"`
}

// Close freezes the reconciliation fields. The receiver must be open.
func (s *Shift) Close(reportedCash, reportedCard, expectedTotal decimal.Decimal, at time.Time) error {
	if !s.IsOpen {
		return fmt.Errorf("%w %d", ErrShiftClosed, s.ID)
	}
	s.FinalCash = reportedCash
	s.FinalCard = reportedCard
	s.FinalAmount = reportedCash.Add(reportedCard).Add(s.InitialAmount)
	s.ExpectedAmount = expectedTotal
	s.Difference = expectedTotal.Sub(s.FinalAmount)
	s.EndTime = &at
	s.IsOpen = false
	return nil
}

// ClosingPreview is the expected drawer content for a shift window.
type ClosingPreview struct {
	UserID         int64           `json:"user_id"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	InitialAmount  decimal.Decimal `json:"initial_amount"`
	ExpectedCash   decimal.Decimal `json:"expected_cash"`
	ExpectedCard   decimal.Decimal `json:"expected_card"`
	ExpectedTotal  decimal.Decimal `json:"expected_total"`
	InvoiceCount   int             `json:"invoice_count"`
	InvoicedTotal  decimal.Decimal `json:"invoiced_total"`
	UnprintedCount int             `json:"unprinted_count"`
}

// WindowTotals is the raw aggregate read for a cashier over [From, To).
// Card includes transfers.
type WindowTotals struct {
	Cash           decimal.Decimal
	Card           decimal.Decimal
	InvoiceCount   int
	InvoicedTotal  decimal.Decimal
	UnprintedCount int
}

var (
	ErrShiftNotFound    = fmt.Errorf("%w: shift", shared.ErrNotFound)
	ErrNoOpenShift      = fmt.Errorf("%w: no open shift", shared.ErrNotFound)
	ErrShiftClosed      = fmt.Errorf("%w: shift already closed", shared.ErrInvalidState)
	ErrShiftAlreadyOpen = fmt.Errorf("%w: user already has an open shift", shared.ErrInvalidState)
)
