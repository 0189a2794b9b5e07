package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiscalpos/fiscalpos/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	retries int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, retries int) *Repository {
	return &Repository{pool: pool, retries: retries}
}

// TxRepository exposes transactional operations used by Apply. Sales and
// purchasing embed it in their own transaction repositories.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, entry StockCardEntry) error
}

type txRepository struct {
	q db.Querier
}

// NewTxRepository binds the inventory statements to a transaction.
func NewTxRepository(q db.Querier) TxRepository {
	return &txRepository{q: q}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.retries, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetBalance returns the on-hand quantity, zero for products never moved.
func (r *Repository) GetBalance(ctx context.Context, productID int64) (Balance, error) {
	bal := Balance{ProductID: productID}
	err := r.pool.QueryRow(ctx, `SELECT qty, updated_at FROM stock_balances WHERE product_id=$1`, productID).Scan(&bal.Qty, &bal.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, err
	}
	return bal, nil
}

func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT code, movement_type, product_id, qty_in, qty_out, balance_qty, ref_module, COALESCE(ref_id, 0), note, COALESCE(actor_id, 0), posted_at
FROM stock_movements
WHERE product_id=$1 AND posted_at BETWEEN COALESCE($2, '-infinity'::timestamptz) AND COALESCE($3, 'infinity'::timestamptz)
ORDER BY posted_at ASC, id ASC
LIMIT $4`, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cards := []StockCardEntry{}
	for rows.Next() {
		var entry StockCardEntry
		if err := rows.Scan(&entry.Code, &entry.Type, &entry.ProductID, &entry.QtyIn, &entry.QtyOut, &entry.BalanceQty, &entry.RefModule, &entry.RefID, &entry.Note, &entry.ActorID, &entry.PostedAt); err != nil {
			return nil, err
		}
		cards = append(cards, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, productID int64) (Balance, error) {
	var bal Balance
	err := r.q.QueryRow(ctx, `SELECT product_id, qty, updated_at FROM stock_balances WHERE product_id=$1 FOR UPDATE`, productID).
		Scan(&bal.ProductID, &bal.Qty, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.q.Exec(ctx, `INSERT INTO stock_balances (product_id, qty, updated_at)
VALUES ($1,$2,NOW())
ON CONFLICT (product_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`, balance.ProductID, balance.Qty)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, entry StockCardEntry) error {
	_, err := r.q.Exec(ctx, `INSERT INTO stock_movements (code, movement_type, product_id, qty_in, qty_out, balance_qty, ref_module, ref_id, note, actor_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, entry.Code, string(entry.Type), entry.ProductID, entry.QtyIn, entry.QtyOut, entry.BalanceQty,
		entry.RefModule, nullInt(entry.RefID), entry.Note, nullInt(entry.ActorID), entry.PostedAt)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
