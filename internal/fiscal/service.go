package fiscal

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/fiscalpos/fiscalpos/internal/observability"
	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, AdminTxRepository) error) error
	GetRange(ctx context.Context, id int64) (Range, error)
	ListRanges(ctx context.Context, activeOnly bool) ([]Range, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached range selections after admin changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service administers fiscal ranges.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   Invalidator
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service. audit, cache and metrics may be nil.
func NewService(repo RepositoryPort, audit AuditPort, cache Invalidator, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// CreateRange registers a new CAI.
func (s *Service) CreateRange(ctx context.Context, actorID int64, input CreateRangeInput) (Range, error) {
	rng, err := buildRange(input)
	if err != nil {
		return Range{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx AdminTxRepository) error {
		rng, err = tx.InsertRange(ctx, rng)
		return err
	})
	if err != nil {
		return Range{}, err
	}
	s.afterMutation(ctx, actorID, "fiscal_range:create", rng)
	return rng, nil
}

// UpdateRange edits a range, honouring the consumption lock.
func (s *Service) UpdateRange(ctx context.Context, actorID, id int64, input UpdateRangeInput) (Range, error) {
	var updated Range
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx AdminTxRepository) error {
		existing, err := tx.GetRangeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := applyUpdate(existing, input)
		if err != nil {
			return err
		}
		updated, err = tx.UpdateRange(ctx, next)
		return err
	})
	if err != nil {
		return Range{}, err
	}
	s.afterMutation(ctx, actorID, "fiscal_range:update", updated)
	return updated, nil
}

// SetActive toggles whether a range may be selected for new invoices.
func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) (Range, error) {
	var rng Range
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx AdminTxRepository) error {
		if _, err := tx.GetRangeForUpdate(ctx, id); err != nil {
			return err
		}
		var err error
		rng, err = tx.SetActive(ctx, id, active)
		return err
	})
	if err != nil {
		return Range{}, err
	}
	action := "fiscal_range:deactivate"
	if active {
		action = "fiscal_range:activate"
	}
	s.afterMutation(ctx, actorID, action, rng)
	return rng, nil
}

// GetRange loads one range.
func (s *Service) GetRange(ctx context.Context, id int64) (Range, error) {
	return s.repo.GetRange(ctx, id)
}

// ListRanges lists ranges, newest first.
func (s *Service) ListRanges(ctx context.Context, activeOnly bool) ([]Range, error) {
	return s.repo.ListRanges(ctx, activeOnly)
}

// Allocate takes a correlative in its own transaction. Invoices never use
// this path; it serves administrative corrections and smoke tests.
func (s *Service) Allocate(ctx context.Context, id int64) (Allocation, error) {
	var alloc Allocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx AdminTxRepository) error {
		var err error
		alloc, err = AllocateNext(ctx, tx, id, s.now())
		return err
	})
	if err != nil {
		return Allocation{}, err
	}
	s.metrics.CorrelativeAllocated(alloc.Range.ID, alloc.Range.Pending)
	return alloc, nil
}

// Capacity reports pending correlatives and days to expiry of every active range.
func (s *Service) Capacity(ctx context.Context) ([]CapacityReport, error) {
	ranges, err := s.repo.ListRanges(ctx, true)
	if err != nil {
		return nil, err
	}
	now := s.now()
	reports := make([]CapacityReport, 0, len(ranges))
	for _, rng := range ranges {
		reports = append(reports, CapacityReport{
			RangeID:           rng.ID,
			AuthorizationCode: rng.AuthorizationCode,
			Prefix:            rng.Prefix,
			Pending:           rng.Pending,
			Total:             rng.Final - rng.Initial + 1,
			ValidTo:           rng.ValidTo,
			DaysToExpiry:      rng.DaysToExpiry(now),
			Expired:           rng.Expired(now),
		})
		s.metrics.SetRangePending(rng.ID, rng.Pending)
	}
	return reports, nil
}

func (s *Service) afterMutation(ctx context.Context, actorID int64, action string, rng Range) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("fiscal range cache bump failed", slog.Int64("range_id", rng.ID), slog.Any("error", err))
		}
	}
	s.metrics.SetRangePending(rng.ID, rng.Pending)
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fiscal_range",
		EntityID: strconv.FormatInt(rng.ID, 10),
		Meta: map[string]any{
			"authorization_code": rng.AuthorizationCode,
			"prefix":             rng.Prefix,
			"initial":            rng.Initial,
			"final":              rng.Final,
			"active":             rng.Active,
		},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// IsConfigurationError reports whether err means no single range can be used.
func IsConfigurationError(err error) bool {
	return errors.Is(err, shared.ErrCapacityExhausted)
}

