package shifts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memoryRepo struct {
	mu          sync.Mutex
	shifts      map[int64]Shift
	nextID      int64
	totals      WindowTotals
	windowCalls atomic.Int32
	gate        chan struct{}
	lastWindow  [2]time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{shifts: map[int64]Shift{}}
}

type memoryTx struct {
	staged map[int64]Shift
	repo   *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := make(map[int64]Shift, len(r.shifts))
	for k, v := range r.shifts {
		staged[k] = v
	}
	if err := fn(ctx, &memoryTx{staged: staged, repo: r}); err != nil {
		return err
	}
	r.shifts = staged
	return nil
}

func (r *memoryRepo) GetShift(_ context.Context, id int64) (Shift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shift, ok := r.shifts[id]
	if !ok {
		return Shift{}, fmt.Errorf("%w %d", ErrShiftNotFound, id)
	}
	return shift, nil
}

func (r *memoryRepo) GetOpenShift(_ context.Context, userID int64) (Shift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return openIn(r.shifts, userID)
}

func (r *memoryRepo) ListShifts(_ context.Context, userID int64, limit int) ([]Shift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Shift
	for id := r.nextID; id > 0 && len(out) < limit; id-- {
		if shift, ok := r.shifts[id]; ok && (userID == 0 || shift.UserID == userID) {
			out = append(out, shift)
		}
	}
	return out, nil
}

func (r *memoryRepo) WindowTotals(ctx context.Context, _ int64, from, to time.Time) (WindowTotals, error) {
	r.windowCalls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if err := ctx.Err(); err != nil {
		return WindowTotals{}, err
	}
	r.mu.Lock()
	r.lastWindow = [2]time.Time{from, to}
	r.mu.Unlock()
	return r.totals, nil
}

func openIn(shifts map[int64]Shift, userID int64) (Shift, error) {
	for _, shift := range shifts {
		if shift.UserID == userID && shift.IsOpen {
			return shift, nil
		}
	}
	return Shift{}, ErrNoOpenShift
}

func (tx *memoryTx) LockUser(context.Context, int64) error { return nil }

func (tx *memoryTx) FindOpen(_ context.Context, userID int64) (Shift, error) {
	return openIn(tx.staged, userID)
}

func (tx *memoryTx) InsertShift(_ context.Context, shift Shift) (int64, error) {
	tx.repo.nextID++
	shift.ID = tx.repo.nextID
	tx.staged[shift.ID] = shift
	return shift.ID, nil
}

func (tx *memoryTx) GetShiftForUpdate(_ context.Context, id int64) (Shift, error) {
	shift, ok := tx.staged[id]
	if !ok {
		return Shift{}, fmt.Errorf("%w %d", ErrShiftNotFound, id)
	}
	return shift, nil
}

func (tx *memoryTx) UpdateShift(_ context.Context, shift Shift) error {
	tx.staged[shift.ID] = shift
	return nil
}

type reportSpy struct {
	ids []int64
	err error
}

func (q *reportSpy) EnqueueShiftReport(_ context.Context, shiftID int64) error {
	q.ids = append(q.ids, shiftID)
	return q.err
}

type auditSpy struct{ actions []string }

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func newTestService() (*Service, *memoryRepo, *reportSpy, *auditSpy) {
	repo := newMemoryRepo()
	reports := &reportSpy{}
	audit := &auditSpy{}
	svc := NewService(repo, audit, reports, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, repo, reports, audit
}

func TestOpenShift(t *testing.T) {
	svc, _, _, audit := newTestService()
	ctx := context.Background()

	shift, err := svc.OpenShift(ctx, 7, " morning ", dec("500"))
	require.NoError(t, err)
	assert.True(t, shift.IsOpen)
	assert.Equal(t, "morning", shift.ShiftType)
	assert.Nil(t, shift.EndTime)

	_, err = svc.OpenShift(ctx, 7, "evening", dec("100"))
	require.ErrorIs(t, err, ErrShiftAlreadyOpen)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	other, err := svc.OpenShift(ctx, 8, "morning", decimal.Zero)
	require.NoError(t, err)
	assert.NotEqual(t, shift.ID, other.ID)
	assert.Equal(t, []string{"shift:open", "shift:open"}, audit.actions)
}

func TestOpenShiftValidation(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.OpenShift(ctx, 7, "morning", dec("-0.01"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.OpenShift(ctx, 0, "morning", decimal.Zero)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.OpenShift(ctx, 7, "  ", decimal.Zero)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, repo.shifts)
}

func TestCloseShiftComputesDifference(t *testing.T) {
	svc, _, reports, _ := newTestService()
	ctx := context.Background()
	opened, err := svc.OpenShift(ctx, 7, "morning", dec("500"))
	require.NoError(t, err)

	closed, err := svc.CloseShift(ctx, opened.ID, dec("1200"), dec("800"), dec("2550"))
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)
	require.NotNil(t, closed.EndTime)
	assert.True(t, closed.FinalAmount.Equal(dec("2500")))
	assert.True(t, closed.ExpectedAmount.Equal(dec("2550")))
	assert.True(t, closed.Difference.Equal(dec("50")))
	assert.Equal(t, []int64{opened.ID}, reports.ids)

	// A new shift can be opened once the previous one is closed.
	_, err = svc.OpenShift(ctx, 7, "evening", decimal.Zero)
	require.NoError(t, err)
}

func TestCloseShiftTwiceLeavesFirstCloseIntact(t *testing.T) {
	svc, _, reports, _ := newTestService()
	ctx := context.Background()
	opened, err := svc.OpenShift(ctx, 7, "morning", dec("100"))
	require.NoError(t, err)
	first, err := svc.CloseShift(ctx, opened.ID, dec("50"), dec("50"), dec("200"))
	require.NoError(t, err)

	svc.now = func() time.Time { return first.EndTime.Add(time.Hour) }
	_, err = svc.CloseShift(ctx, opened.ID, dec("999"), dec("0"), dec("0"))
	require.ErrorIs(t, err, ErrShiftClosed)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	got, err := svc.GetShift(ctx, opened.ID)
	require.NoError(t, err)
	assert.True(t, got.EndTime.Equal(*first.EndTime))
	assert.True(t, got.Difference.Equal(first.Difference))
	assert.True(t, got.FinalCash.Equal(dec("50")))
	assert.Len(t, reports.ids, 1)
}

func TestCloseShiftEnqueueFailureDoesNotFailClose(t *testing.T) {
	svc, _, reports, _ := newTestService()
	reports.err = fmt.Errorf("redis down")
	ctx := context.Background()
	opened, err := svc.OpenShift(ctx, 7, "morning", decimal.Zero)
	require.NoError(t, err)

	closed, err := svc.CloseShift(ctx, opened.ID, decimal.Zero, decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)
}

func TestCloseShiftValidationAndMissing(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CloseShift(ctx, 1, dec("-1"), decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CloseShift(ctx, 42, decimal.Zero, decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestClosingPreview(t *testing.T) {
	svc, repo, _, _ := newTestService()
	now := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	repo.totals = WindowTotals{
		Cash:           dec("1500"),
		Card:           dec("700"),
		InvoiceCount:   4,
		InvoicedTotal:  dec("2600"),
		UnprintedCount: 1,
	}
	start := now.Add(-8 * time.Hour)

	preview, err := svc.GetShiftClosingPreview(context.Background(), 7, start, dec("300"))
	require.NoError(t, err)
	assert.True(t, preview.ExpectedCash.Equal(dec("1500")))
	assert.True(t, preview.ExpectedCard.Equal(dec("700")))
	assert.True(t, preview.ExpectedTotal.Equal(dec("2500")))
	assert.Equal(t, 4, preview.InvoiceCount)
	assert.Equal(t, 1, preview.UnprintedCount)
	assert.Equal(t, [2]time.Time{start, now}, repo.lastWindow)

	_, err = svc.GetShiftClosingPreview(context.Background(), 7, time.Time{}, decimal.Zero)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestClosingPreviewCollapsesConcurrentCalls(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.gate = make(chan struct{})
	start := time.Now().Add(-time.Hour)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]ClosingPreview, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GetShiftClosingPreview(context.Background(), 7, start, dec("10"))
		}(i)
	}
	require.Eventually(t, func() bool { return repo.windowCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.Equal(t, int32(1), repo.windowCalls.Load())
	for i := range errs {
		require.NoError(t, errs[i])
		assert.True(t, results[i].ExpectedTotal.Equal(dec("10")))
	}
}

func TestClosingPreviewSurvivesFirstCallerCancel(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.gate = make(chan struct{})
	repo.totals = WindowTotals{Cash: dec("25")}
	start := time.Now().Add(-time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetShiftClosingPreview(ctx, 7, start, dec("10"))
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return repo.windowCalls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan ClosingPreview, 1)
	secondErr := make(chan error, 1)
	go func() {
		preview, err := svc.GetShiftClosingPreview(context.Background(), 7, start, dec("10"))
		second <- preview
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(repo.gate)

	require.NoError(t, <-secondErr)
	assert.True(t, (<-second).ExpectedTotal.Equal(dec("35")))
	assert.Equal(t, int32(1), repo.windowCalls.Load())
}

func TestClosingReportUsesShiftWindow(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()
	opened, err := svc.OpenShift(ctx, 7, "morning", dec("100"))
	require.NoError(t, err)

	_, _, err = svc.ClosingReport(ctx, opened.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	closed, err := svc.CloseShift(ctx, opened.ID, dec("100"), decimal.Zero, dec("100"))
	require.NoError(t, err)
	repo.totals = WindowTotals{Cash: dec("40"), Card: dec("60")}

	shift, preview, err := svc.ClosingReport(ctx, opened.ID)
	require.NoError(t, err)
	assert.Equal(t, closed.ID, shift.ID)
	assert.True(t, preview.To.Equal(*closed.EndTime))
	assert.True(t, preview.ExpectedTotal.Equal(dec("200")))
}

func TestHandlerShiftFlow(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.totals = WindowTotals{Cash: dec("250"), Card: decimal.Zero}
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodPost, "/", `{"user_id":7,"shift_type":"morning","initial_amount":"100"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(http.MethodPost, "/", `{"user_id":7,"shift_type":"morning","initial_amount":"100"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = call(http.MethodGet, "/open?user_id=7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(http.MethodGet, "/preview?user_id=7", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview ClosingPreview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.True(t, preview.ExpectedTotal.Equal(dec("350")))

	rec = call(http.MethodGet, "/preview?user_id=7&start=not-a-time", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(http.MethodPost, "/1/close", `{"reported_cash":"250","reported_card":"0","expected_total":"350"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var shift Shift
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shift))
	assert.True(t, shift.Difference.IsZero())

	rec = call(http.MethodPost, "/1/close", `{"reported_cash":"250","reported_card":"0","expected_total":"350"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = call(http.MethodGet, "/open?user_id=7", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(http.MethodGet, "/?user_id=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
