package fiscal

import (
	"context"
	"log/slog"
	"time"
)

// TxRepository exposes the range statements that must run inside the
// transaction of the document being numbered.
type TxRepository interface {
	GetRangeForUpdate(ctx context.Context, id int64) (Range, error)
	ListSelectableRanges(ctx context.Context) ([]Range, error)
	UpdateCursor(ctx context.Context, id, current, pending int64) error
}

// AllocateNext takes the next correlative from range id. The range row is
// locked for the rest of tx, so concurrent callers serialise on it. The
// allocation is only durable if tx commits.
func AllocateNext(ctx context.Context, tx TxRepository, id int64, now time.Time) (Allocation, error) {
	rng, err := tx.GetRangeForUpdate(ctx, id)
	if err != nil {
		return Allocation{}, err
	}
	if !rng.Active {
		return Allocation{}, ErrRangeInactive
	}
	if rng.Pending <= 0 || rng.Current > rng.Final {
		return Allocation{}, ErrRangeExhausted
	}
	if rng.Expired(now) {
		return Allocation{}, ErrRangeExpired
	}
	correlative := rng.Current
	rng.Current++
	rng.Pending = pendingFor(rng.Final, rng.Current)
	if err := tx.UpdateCursor(ctx, rng.ID, rng.Current, rng.Pending); err != nil {
		return Allocation{}, err
	}
	return Allocation{Correlative: correlative, Number: rng.FormatNumber(correlative), Range: rng}, nil
}

// SelectActive returns the only range that is active with pending capacity.
// Zero or several candidates are a configuration problem for the operator.
func SelectActive(ctx context.Context, tx TxRepository) (Range, error) {
	ranges, err := tx.ListSelectableRanges(ctx)
	if err != nil {
		return Range{}, err
	}
	switch len(ranges) {
	case 0:
		return Range{}, ErrNoActiveRange
	case 1:
		return ranges[0], nil
	default:
		return Range{}, ambiguousRanges(len(ranges))
	}
}

// SelectionCache remembers the range chosen by SelectActive.
type SelectionCache interface {
	ActiveRangeID(ctx context.Context) (int64, bool, error)
	SetActiveRangeID(ctx context.Context, id int64) error
	Forget(ctx context.Context) error
}

// Resolver picks the range for a new invoice and allocates from it.
type Resolver struct {
	cache  SelectionCache
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver builds a Resolver. cache may be nil.
func NewResolver(cache SelectionCache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cache: cache, logger: logger, now: time.Now}
}

// Allocate numbers a document on tx. A non-zero rangeID pins the range;
// otherwise the unique active range is selected under tx on every call.
// The cache only records the last selection.
func (r *Resolver) Allocate(ctx context.Context, tx TxRepository, rangeID int64) (Allocation, error) {
	now := r.now()
	if rangeID != 0 {
		return AllocateNext(ctx, tx, rangeID, now)
	}
	cached, hit := r.cachedSelection(ctx)
	rng, err := SelectActive(ctx, tx)
	if err != nil {
		if hit {
			r.forget(ctx)
		}
		return Allocation{}, err
	}
	if hit && cached != rng.ID {
		r.logger.Info("active fiscal range changed", slog.Int64("cached_range_id", cached), slog.Int64("range_id", rng.ID))
	}
	alloc, err := AllocateNext(ctx, tx, rng.ID, now)
	if err != nil {
		return Allocation{}, err
	}
	switch {
	case alloc.Range.Pending <= 0:
		if hit {
			r.forget(ctx)
		}
	case r.cache != nil && (!hit || cached != rng.ID):
		if err := r.cache.SetActiveRangeID(ctx, rng.ID); err != nil {
			r.logger.Warn("fiscal range cache write failed", slog.Any("error", err))
		}
	}
	return alloc, nil
}

func (r *Resolver) cachedSelection(ctx context.Context) (int64, bool) {
	if r.cache == nil {
		return 0, false
	}
	id, ok, err := r.cache.ActiveRangeID(ctx)
	if err != nil {
		r.logger.Warn("fiscal range cache read failed", slog.Any("error", err))
		return 0, false
	}
	return id, ok
}

func (r *Resolver) forget(ctx context.Context) {
	if err := r.cache.Forget(ctx); err != nil {
		r.logger.Warn("fiscal range cache reset failed", slog.Any("error", err))
	}
}
