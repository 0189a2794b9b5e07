package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

type memoryRepo struct {
	balances map[int64]Balance
	cards    []StockCardEntry
}

type memoryTx struct {
	repo     *memoryRepo
	balances map[int64]Balance
	cards    []StockCardEntry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[int64]Balance)}
}

// WithTx stages writes and only publishes them when fn succeeds.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, balances: make(map[int64]Balance)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, bal := range tx.balances {
		r.balances[id] = bal
	}
	r.cards = append(r.cards, tx.cards...)
	return nil
}

func (r *memoryRepo) GetBalance(_ context.Context, productID int64) (Balance, error) {
	if bal, ok := r.balances[productID]; ok {
		return bal, nil
	}
	return Balance{ProductID: productID}, nil
}

func (r *memoryRepo) GetStockCard(_ context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	var result []StockCardEntry
	for _, c := range r.cards {
		if c.ProductID == filter.ProductID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (tx *memoryTx) GetBalanceForUpdate(_ context.Context, productID int64) (Balance, error) {
	if bal, ok := tx.balances[productID]; ok {
		return bal, nil
	}
	if bal, ok := tx.repo.balances[productID]; ok {
		return bal, nil
	}
	return Balance{ProductID: productID}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(_ context.Context, balance Balance) error {
	tx.balances[balance.ProductID] = balance
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, entry StockCardEntry) error {
	tx.cards = append(tx.cards, entry)
	return nil
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyTracksBalanceAndCard(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := Apply(ctx, tx, Movement{Type: MovementPurchase, ProductID: 1, QtyChange: qty("10"), RefModule: "purchasing", RefID: 4}, false)
		require.NoError(t, err)
		require.True(t, entry.QtyIn.Equal(qty("10")))
		require.True(t, entry.QtyOut.IsZero())

		entry, err = Apply(ctx, tx, Movement{Type: MovementSale, ProductID: 1, QtyChange: qty("-3")}, false)
		require.NoError(t, err)
		require.True(t, entry.QtyOut.Equal(qty("3")))
		require.True(t, entry.BalanceQty.Equal(qty("7")))
		require.True(t, strings.HasPrefix(entry.Code, "MV-"))
		return nil
	})
	require.NoError(t, err)
	require.True(t, repo.balances[1].Qty.Equal(qty("7")))
	require.Len(t, repo.cards, 2)
}

func TestApplyRefusesNegativeStock(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := Apply(ctx, tx, Movement{Type: MovementSale, ProductID: 2, QtyChange: qty("-1")}, false)
		return err
	})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	var negErr *NegativeStockError
	require.True(t, errors.As(err, &negErr))
	require.Equal(t, int64(2), negErr.ProductID)
	require.Empty(t, repo.cards)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := Apply(ctx, tx, Movement{Type: MovementSale, ProductID: 2, QtyChange: qty("-1")}, true)
		return err
	})
	require.NoError(t, err)
	require.True(t, repo.balances[2].Qty.Equal(qty("-1")))
}

func TestApplyValidatesMovement(t *testing.T) {
	tx := &memoryTx{repo: newMemoryRepo(), balances: map[int64]Balance{}}
	_, err := Apply(context.Background(), tx, Movement{Type: MovementSale, ProductID: 1}, false)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = Apply(context.Background(), tx, Movement{Type: "TRANSFER", ProductID: 1, QtyChange: qty("1")}, false)
	require.ErrorIs(t, err, shared.ErrValidation)
}

type auditSpy struct{ logs []shared.AuditLog }

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestPostAdjustment(t *testing.T) {
	repo := newMemoryRepo()
	audit := &auditSpy{}
	svc := NewService(repo, audit, nil, ServiceConfig{})
	ctx := context.Background()

	entry, err := svc.PostAdjustment(ctx, AdjustmentInput{ProductID: 1, Qty: qty("5"), Note: "count", ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, MovementAdjust, entry.Type)
	require.Len(t, audit.logs, 1)

	_, err = svc.PostAdjustment(ctx, AdjustmentInput{ProductID: 1, Qty: qty("-6")})
	require.ErrorIs(t, err, ErrNegativeStock)

	bal, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.True(t, bal.Qty.Equal(qty("5")))

	_, err = svc.GetStockCard(ctx, StockCardFilter{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestHandlerAdjustment(t *testing.T) {
	repo := newMemoryRepo()
	h := NewHandler(nilLogger(), NewService(repo, nil, nil, ServiceConfig{}))
	r := chi.NewRouter()
	h.MountRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/adjustments", strings.NewReader(`{"product_id":9,"qty":"2.5","actor_id":1}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/products/9", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"2.5"`)

	req = httptest.NewRequest(http.MethodPost, "/adjustments", strings.NewReader(`{"product_id":9,"qty":"-10","actor_id":1}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func nilLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
