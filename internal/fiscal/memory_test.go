package fiscal

import (
	"context"
	"fmt"
	"sort"
)

// memoryRepo is an in-memory RepositoryPort whose WithTx discards writes
// when the callback fails.
type memoryRepo struct {
	ranges map[int64]Range
	nextID int64
}

type memoryTx struct {
	ranges map[int64]Range
	repo   *memoryRepo
}

func newMemoryRepo(ranges ...Range) *memoryRepo {
	repo := &memoryRepo{ranges: make(map[int64]Range)}
	for _, rng := range ranges {
		repo.nextID++
		if rng.ID == 0 {
			rng.ID = repo.nextID
		}
		repo.ranges[rng.ID] = rng
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, AdminTxRepository) error) error {
	tx := r.begin()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.ranges = tx.ranges
	return nil
}

func (r *memoryRepo) begin() *memoryTx {
	staged := make(map[int64]Range, len(r.ranges))
	for id, rng := range r.ranges {
		staged[id] = rng
	}
	return &memoryTx{ranges: staged, repo: r}
}

func (r *memoryRepo) GetRange(_ context.Context, id int64) (Range, error) {
	if rng, ok := r.ranges[id]; ok {
		return rng, nil
	}
	return Range{}, fmt.Errorf("%w %d", ErrRangeNotFound, id)
}

func (r *memoryRepo) ListRanges(_ context.Context, activeOnly bool) ([]Range, error) {
	var out []Range
	for _, rng := range r.ranges {
		if activeOnly && !rng.Active {
			continue
		}
		out = append(out, rng)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (tx *memoryTx) GetRangeForUpdate(_ context.Context, id int64) (Range, error) {
	if rng, ok := tx.ranges[id]; ok {
		return rng, nil
	}
	return Range{}, fmt.Errorf("%w %d", ErrRangeNotFound, id)
}

func (tx *memoryTx) ListSelectableRanges(_ context.Context) ([]Range, error) {
	var out []Range
	for _, rng := range tx.ranges {
		if rng.Active && rng.Pending > 0 {
			out = append(out, rng)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) UpdateCursor(_ context.Context, id, current, pending int64) error {
	rng, ok := tx.ranges[id]
	if !ok {
		return fmt.Errorf("%w %d", ErrRangeNotFound, id)
	}
	rng.Current = current
	rng.Pending = pending
	tx.ranges[id] = rng
	return nil
}

func (tx *memoryTx) InsertRange(_ context.Context, rng Range) (Range, error) {
	tx.repo.nextID++
	rng.ID = tx.repo.nextID
	tx.ranges[rng.ID] = rng
	return rng, nil
}

func (tx *memoryTx) UpdateRange(_ context.Context, rng Range) (Range, error) {
	if _, ok := tx.ranges[rng.ID]; !ok {
		return Range{}, fmt.Errorf("%w %d", ErrRangeNotFound, rng.ID)
	}
	tx.ranges[rng.ID] = rng
	return rng, nil
}

func (tx *memoryTx) SetActive(_ context.Context, id int64, active bool) (Range, error) {
	rng, ok := tx.ranges[id]
	if !ok {
		return Range{}, fmt.Errorf("%w %d", ErrRangeNotFound, id)
	}
	rng.Active = active
	tx.ranges[id] = rng
	return rng, nil
}
