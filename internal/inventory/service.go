package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, productID int64) (Balance, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, allowNeg: cfg.AllowNegativeStock}
}

// Apply posts mv on tx: it locks the balance row, applies the change and
// appends the stock card entry. It never opens a transaction of its own.
func Apply(ctx context.Context, tx TxRepository, mv Movement, allowNegative bool) (StockCardEntry, error) {
	if mv.ProductID == 0 {
		return StockCardEntry{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if mv.QtyChange.IsZero() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if !mv.Type.Valid() {
		return StockCardEntry{}, fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, mv.Type)
	}
	balance, err := tx.GetBalanceForUpdate(ctx, mv.ProductID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return StockCardEntry{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{ProductID: mv.ProductID, Qty: decimal.Zero}
	}
	newQty := balance.Qty.Add(mv.QtyChange)
	if !allowNegative && newQty.Sign() < 0 {
		return StockCardEntry{}, &NegativeStockError{ProductID: mv.ProductID, Available: balance.Qty, Change: mv.QtyChange}
	}
	postedAt := mv.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now().UTC()
	}
	code := mv.Code
	if code == "" {
		code = "MV-" + uuid.NewString()
	}
	balance.Qty = newQty
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return StockCardEntry{}, err
	}
	entry := StockCardEntry{
		Code:       code,
		Type:       mv.Type,
		ProductID:  mv.ProductID,
		QtyIn:      decimal.Max(mv.QtyChange, decimal.Zero),
		QtyOut:     decimal.Max(mv.QtyChange.Neg(), decimal.Zero),
		BalanceQty: newQty,
		RefModule:  mv.RefModule,
		RefID:      mv.RefID,
		Note:       mv.Note,
		ActorID:    mv.ActorID,
		PostedAt:   postedAt,
	}
	if err := tx.InsertMovement(ctx, entry); err != nil {
		return StockCardEntry{}, err
	}
	return entry, nil
}

// PostAdjustment posts an adjustment which may be positive or negative.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (StockCardEntry, error) {
	if input.ProductID == 0 {
		return StockCardEntry{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if input.Qty.IsZero() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	var card StockCardEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		card, err = Apply(ctx, tx, Movement{
			Code:      input.Code,
			Type:      MovementAdjust,
			ProductID: input.ProductID,
			QtyChange: input.Qty,
			RefModule: "inventory",
			Note:      input.Note,
			ActorID:   input.ActorID,
		}, s.allowNeg)
		return err
	})
	if err != nil {
		return StockCardEntry{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("inventory:%s", MovementAdjust),
			Entity:   "stock_movement",
			EntityID: card.Code,
			Meta: map[string]any{
				"product_id": input.ProductID,
				"qty":        input.Qty.String(),
				"note":       input.Note,
			},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.String("code", card.Code), slog.Any("error", err))
		}
	}
	return card, nil
}

// GetBalance returns the on-hand quantity of a product.
func (s *Service) GetBalance(ctx context.Context, productID int64) (Balance, error) {
	if productID == 0 {
		return Balance{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	return s.repo.GetBalance(ctx, productID)
}

// GetStockCard lists stock card entries.
func (s *Service) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	if filter.ProductID == 0 {
		return nil, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	return s.repo.GetStockCard(ctx, filter)
}
