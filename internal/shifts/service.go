package shifts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

const maxShiftTypeLen = 32

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetShift(ctx context.Context, id int64) (Shift, error)
	GetOpenShift(ctx context.Context, userID int64) (Shift, error)
	ListShifts(ctx context.Context, userID int64, limit int) ([]Shift, error)
	WindowTotals(ctx context.Context, userID int64, from, to time.Time) (WindowTotals, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportQueue schedules the printable closing report of a shift.
type ReportQueue interface {
	EnqueueShiftReport(ctx context.Context, shiftID int64) error
}

// Service reconciles cashier shifts.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	reports  ReportQueue
	logger   *slog.Logger
	previews singleflight.Group
	now      func() time.Time
}

// NewService constructs a shift service. audit and reports may be nil.
func NewService(repo RepositoryPort, audit AuditPort, reports ReportQueue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, reports: reports, logger: logger, now: time.Now}
}

// OpenShift starts a shift for userID with initialAmount in the drawer.
func (s *Service) OpenShift(ctx context.Context, userID int64, shiftType string, initialAmount decimal.Decimal) (Shift, error) {
	shiftType = strings.TrimSpace(shiftType)
	switch {
	case userID <= 0:
		return Shift{}, fmt.Errorf("%w: user required", shared.ErrValidation)
	case shiftType == "" || len(shiftType) > maxShiftTypeLen:
		return Shift{}, fmt.Errorf("%w: shift type must be 1-%d characters", shared.ErrValidation, maxShiftTypeLen)
	case initialAmount.Sign() < 0:
		return Shift{}, fmt.Errorf("%w: initial amount must not be negative", shared.ErrValidation)
	}
	shift := Shift{
		UserID:        userID,
		ShiftType:     shiftType,
		StartTime:     s.now(),
		InitialAmount: initialAmount.Round(2),
		IsOpen:        true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		open, err := tx.FindOpen(ctx, userID)
		switch {
		case err == nil:
			return fmt.Errorf("%w (shift %d)", ErrShiftAlreadyOpen, open.ID)
		case !errors.Is(err, ErrNoOpenShift):
			return err
		}
		shift.ID, err = tx.InsertShift(ctx, shift)
		return err
	})
	if err != nil {
		return Shift{}, err
	}
	s.record(ctx, userID, "shift:open", shift.ID, map[string]any{"initial_amount": shift.InitialAmount.String(), "shift_type": shift.ShiftType})
	s.logger.Info("shift opened", slog.Int64("shift_id", shift.ID), slog.Int64("user_id", userID))
	return shift, nil
}

// CloseShift reconciles and closes a shift. A closed shift is never changed.
func (s *Service) CloseShift(ctx context.Context, shiftID int64, reportedCash, reportedCard, expectedTotal decimal.Decimal) (Shift, error) {
	if reportedCash.Sign() < 0 || reportedCard.Sign() < 0 || expectedTotal.Sign() < 0 {
		return Shift{}, fmt.Errorf("%w: amounts must not be negative", shared.ErrValidation)
	}
	var shift Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		shift, err = tx.GetShiftForUpdate(ctx, shiftID)
		if err != nil {
			return err
		}
		if err := shift.Close(reportedCash.Round(2), reportedCard.Round(2), expectedTotal.Round(2), s.now()); err != nil {
			return err
		}
		return tx.UpdateShift(ctx, shift)
	})
	if err != nil {
		return Shift{}, err
	}

	s.record(ctx, shift.UserID, "shift:close", shift.ID, map[string]any{
		"final_amount":    shift.FinalAmount.String(),
		"expected_amount": shift.ExpectedAmount.String(),
		"difference":      shift.Difference.String(),
	})
	logAttrs := []any{
		slog.Int64("shift_id", shift.ID),
		slog.Int64("user_id", shift.UserID),
		slog.String("difference", shift.Difference.String()),
	}
	if shift.Difference.IsZero() {
		s.logger.Info("shift closed", logAttrs...)
	} else {
		s.logger.Warn("shift closed with difference", logAttrs...)
	}
	if s.reports != nil {
		if err := s.reports.EnqueueShiftReport(ctx, shift.ID); err != nil {
			s.logger.Warn("enqueue shift report", slog.Int64("shift_id", shift.ID), slog.Any("error", err))
		}
	}
	return shift, nil
}

// GetShiftClosingPreview computes what the drawer of userID should hold for
// a shift started at shiftStart. Identical concurrent requests share one read.
func (s *Service) GetShiftClosingPreview(ctx context.Context, userID int64, shiftStart time.Time, initialAmount decimal.Decimal) (ClosingPreview, error) {
	if userID <= 0 {
		return ClosingPreview{}, fmt.Errorf("%w: user required", shared.ErrValidation)
	}
	if shiftStart.IsZero() {
		return ClosingPreview{}, fmt.Errorf("%w: shift start required", shared.ErrValidation)
	}
	key := strconv.FormatInt(userID, 10) + "|" + strconv.FormatInt(shiftStart.UnixNano(), 10) + "|" + initialAmount.String()
	detached := context.WithoutCancel(ctx)
	ch := s.previews.DoChan(key, func() (any, error) {
		return s.preview(detached, userID, shiftStart, initialAmount)
	})
	select {
	case <-ctx.Done():
		return ClosingPreview{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ClosingPreview{}, res.Err
		}
		return res.Val.(ClosingPreview), nil
	}
}

func (s *Service) preview(ctx context.Context, userID int64, from time.Time, initialAmount decimal.Decimal) (ClosingPreview, error) {
	to := s.now()
	totals, err := s.repo.WindowTotals(ctx, userID, from, to)
	if err != nil {
		return ClosingPreview{}, err
	}
	return buildPreview(userID, from, to, initialAmount, totals), nil
}

func buildPreview(userID int64, from, to time.Time, initialAmount decimal.Decimal, totals WindowTotals) ClosingPreview {
	return ClosingPreview{
		UserID:         userID,
		From:           from,
		To:             to,
		InitialAmount:  initialAmount,
		ExpectedCash:   totals.Cash,
		ExpectedCard:   totals.Card,
		ExpectedTotal:  initialAmount.Add(totals.Cash).Add(totals.Card),
		InvoiceCount:   totals.InvoiceCount,
		InvoicedTotal:  totals.InvoicedTotal,
		UnprintedCount: totals.UnprintedCount,
	}
}

// PreviewOpenShift previews the current open shift of userID.
func (s *Service) PreviewOpenShift(ctx context.Context, userID int64) (ClosingPreview, error) {
	shift, err := s.repo.GetOpenShift(ctx, userID)
	if err != nil {
		return ClosingPreview{}, err
	}
	return s.GetShiftClosingPreview(ctx, userID, shift.StartTime, shift.InitialAmount)
}

// ClosingReport returns a closed shift with the ledger totals of its window.
func (s *Service) ClosingReport(ctx context.Context, shiftID int64) (Shift, ClosingPreview, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return Shift{}, ClosingPreview{}, err
	}
	if shift.IsOpen || shift.EndTime == nil {
		return Shift{}, ClosingPreview{}, fmt.Errorf("%w: shift %d is still open", shared.ErrInvalidState, shiftID)
	}
	totals, err := s.repo.WindowTotals(ctx, shift.UserID, shift.StartTime, *shift.EndTime)
	if err != nil {
		return Shift{}, ClosingPreview{}, err
	}
	return shift, buildPreview(shift.UserID, shift.StartTime, *shift.EndTime, shift.InitialAmount, totals), nil
}

// GetOpenShift returns the open shift of userID.
func (s *Service) GetOpenShift(ctx context.Context, userID int64) (Shift, error) {
	return s.repo.GetOpenShift(ctx, userID)
}

// GetShift loads a shift.
func (s *Service) GetShift(ctx context.Context, id int64) (Shift, error) {
	return s.repo.GetShift(ctx, id)
}

// ListShifts returns recent shifts; userID zero lists every user.
func (s *Service) ListShifts(ctx context.Context, userID int64, limit int) ([]Shift, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListShifts(ctx, userID, limit)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, shiftID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "shift",
		EntityID: strconv.FormatInt(shiftID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Int64("shift_id", shiftID), slog.Any("error", err))
	}
}
