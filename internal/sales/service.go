package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/fiscal"
	"github.com/fiscalpos/fiscalpos/internal/inventory"
	"github.com/fiscalpos/fiscalpos/internal/ledger"
	"github.com/fiscalpos/fiscalpos/internal/observability"
	"github.com/fiscalpos/fiscalpos/internal/shared"
)

const idempotencyModule = "sales"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error)
	MarkPrinted(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards invoice creation against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Complete(ctx context.Context, key, module, ref string) error
	Lookup(ctx context.Context, key, module string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Allocator numbers an invoice inside its transaction.
type Allocator interface {
	Allocate(ctx context.Context, tx fiscal.TxRepository, rangeID int64) (fiscal.Allocation, error)
}

// Service provides the invoice ledger.
type Service struct {
	repo        RepositoryPort
	allocator   Allocator
	idempotency IdempotencyPort
	audit       AuditPort
	metrics     *observability.Metrics
	logger      *slog.Logger
	allowNeg    bool
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService constructs a sales service. idempotency, audit and metrics may be nil.
func NewService(repo RepositoryPort, allocator Allocator, idempotency IdempotencyPort, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		allocator:   allocator,
		idempotency: idempotency,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		allowNeg:    cfg.AllowNegativeStock,
		now:         time.Now,
	}
}

// ============================================================================
// INVOICE CREATION
// ============================================================================

// CreateInvoice issues an invoice. Correlative allocation, lines, stock
// deduction and creation payments commit together or not at all.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if err := validateCreate(input); err != nil {
		return Invoice{}, err
	}
	key := input.IdempotencyKey
	if key != "" {
		if _, err := uuid.Parse(key); err != nil {
			return Invoice{}, fmt.Errorf("%w: idempotency key must be a UUID", shared.ErrValidation)
		}
		if s.idempotency != nil {
			if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					return s.replay(ctx, key, err)
				}
				return Invoice{}, err
			}
		}
	}

	var (
		inv   Invoice
		alloc fiscal.Allocation
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, alloc, err = s.issue(ctx, tx, input)
		return err
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
				s.logger.Warn("idempotency key cleanup failed", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		if fiscal.IsConfigurationError(err) {
			s.logger.Error("no usable fiscal range", slog.Int64("cashier_id", input.CashierID), slog.Any("error", err))
		}
		return Invoice{}, err
	}
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.Complete(ctx, key, idempotencyModule, strconv.FormatInt(inv.ID, 10)); err != nil {
			s.logger.Warn("idempotency key completion failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	s.metrics.CorrelativeAllocated(alloc.Range.ID, alloc.Range.Pending)
	s.metrics.InvoiceIssued(inv.Status.String())
	s.record(ctx, input.CashierID, "invoice:create", inv, map[string]any{
		"number":          inv.Number,
		"total":           inv.Total.String(),
		"outstanding":     inv.Outstanding.String(),
		"fiscal_range_id": inv.FiscalRangeID,
	})
	s.logger.Info("invoice issued",
		slog.Int64("invoice_id", inv.ID),
		slog.String("number", inv.Number),
		slog.String("total", inv.Total.String()),
		slog.String("status", inv.Status.String()))
	return inv, nil
}

func (s *Service) replay(ctx context.Context, key string, conflict error) (Invoice, error) {
	ref, err := s.idempotency.Lookup(ctx, key, idempotencyModule)
	if err != nil || ref == "" {
		return Invoice{}, conflict
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return Invoice{}, conflict
	}
	s.logger.Info("replayed invoice creation", slog.String("key", key), slog.Int64("invoice_id", id))
	return s.repo.GetInvoice(ctx, id)
}

func validateCreate(input CreateInvoiceInput) error {
	if input.CashierID <= 0 {
		return fmt.Errorf("%w: cashier required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return ErrNoLines
	}
	for i, line := range input.Lines {
		switch {
		case line.ProductID <= 0:
			return fmt.Errorf("%w: line %d: product required", shared.ErrValidation, i+1)
		case line.Quantity.Sign() <= 0:
			return fmt.Errorf("%w: line %d: quantity must be greater than zero", shared.ErrValidation, i+1)
		case line.UnitPrice.Sign() < 0:
			return fmt.Errorf("%w: line %d: unit price must not be negative", shared.ErrValidation, i+1)
		case ledger.CheckQuantity(line.Quantity) != nil:
			return fmt.Errorf("line %d: %w", i+1, ledger.ErrQuantityScale)
		case ledger.CheckAmount(line.UnitPrice) != nil:
			return fmt.Errorf("line %d: unit price: %w", i+1, ledger.ErrAmountScale)
		case line.TaxID <= 0:
			return fmt.Errorf("%w: line %d: tax required", shared.ErrValidation, i+1)
		}
	}
	if input.Plan.CreditDays < 0 {
		return fmt.Errorf("%w: credit days must not be negative", shared.ErrValidation)
	}
	for i, p := range input.Plan.Payments {
		if p.Amount.Sign() <= 0 {
			return fmt.Errorf("payment %d: %w", i+1, ledger.ErrNonPositiveAmount)
		}
		if err := ledger.CheckAmount(p.Amount); err != nil {
			return fmt.Errorf("payment %d: %w", i+1, err)
		}
	}
	return nil
}

// issue runs inside the invoice transaction.
func (s *Service) issue(ctx context.Context, tx TxRepository, input CreateInvoiceInput) (Invoice, fiscal.Allocation, error) {
	lines, totals, err := priceLines(ctx, tx, input.Lines)
	if err != nil {
		return Invoice{}, fiscal.Allocation{}, err
	}
	prepaid := make([]decimal.Decimal, 0, len(input.Plan.Payments))
	for _, p := range input.Plan.Payments {
		prepaid = append(prepaid, p.Amount)
	}
	balance, err := ledger.NewBalance(totals.Total, prepaid...)
	if err != nil {
		return Invoice{}, fiscal.Allocation{}, err
	}
	for _, p := range input.Plan.Payments {
		if _, err := tx.GetPaymentType(ctx, p.PaymentTypeID); err != nil {
			return Invoice{}, fiscal.Allocation{}, err
		}
	}

	alloc, err := s.allocator.Allocate(ctx, tx, input.FiscalRangeID)
	if err != nil {
		return Invoice{}, fiscal.Allocation{}, err
	}
	now := s.now()
	inv := Invoice{
		Number:        alloc.Number,
		Correlative:   alloc.Correlative,
		FiscalRangeID: alloc.Range.ID,
		CustomerID:    input.CustomerID,
		CashierID:     input.CashierID,
		Date:          now,
		Subtotal:      totals.Subtotal,
		DiscountTotal: totals.DiscountTotal,
		ExemptBase:    totals.ExemptBase,
		Taxable15Base: totals.Taxable15Base,
		Tax15:         totals.Tax15,
		Taxable18Base: totals.Taxable18Base,
		Tax18:         totals.Tax18,
		Total:         totals.Total,
		Outstanding:   balance.Outstanding,
		Status:        balance.Status(),
		CreditDays:    input.Plan.CreditDays,
	}
	if inv.CreditDays > 0 {
		due := now.AddDate(0, 0, inv.CreditDays)
		inv.DueDate = &due
	}
	if inv.ID, err = tx.InsertInvoice(ctx, inv); err != nil {
		return Invoice{}, fiscal.Allocation{}, err
	}

	for i := range lines {
		lines[i].InvoiceID = inv.ID
		if lines[i].ID, err = tx.InsertLine(ctx, lines[i]); err != nil {
			return Invoice{}, fiscal.Allocation{}, err
		}
		_, err = inventory.Apply(ctx, tx, inventory.Movement{
			Type:      inventory.MovementSale,
			ProductID: lines[i].ProductID,
			QtyChange: lines[i].Quantity.Neg(),
			RefModule: "sales",
			RefID:     inv.ID,
			Note:      inv.Number,
			ActorID:   input.CashierID,
			PostedAt:  now,
		}, s.allowNeg)
		if err != nil {
			return Invoice{}, fiscal.Allocation{}, err
		}
	}
	inv.Lines = lines

	inv.Payments = make([]Payment, 0, len(input.Plan.Payments))
	for _, p := range input.Plan.Payments {
		payment := Payment{InvoiceID: inv.ID, PaymentTypeID: p.PaymentTypeID, Amount: p.Amount, PaidAt: now}
		if payment.ID, err = tx.InsertPayment(ctx, payment); err != nil {
			return Invoice{}, fiscal.Allocation{}, err
		}
		inv.Payments = append(inv.Payments, payment)
	}
	return inv, alloc, nil
}

// priceLines resolves tax and discount references and computes the totals.
func priceLines(ctx context.Context, tx TxRepository, inputs []LineInput) ([]LineItem, ledger.Totals, error) {
	lines := make([]LineItem, 0, len(inputs))
	pricing := make([]ledger.LineInput, 0, len(inputs))
	for _, in := range inputs {
		tax, err := tx.GetTax(ctx, in.TaxID)
		if err != nil {
			return nil, ledger.Totals{}, err
		}
		pct := decimal.Zero
		if in.DiscountID != 0 {
			discount, err := tx.GetDiscount(ctx, in.DiscountID)
			if err != nil {
				return nil, ledger.Totals{}, err
			}
			pct = discount.Percent
		}
		li := ledger.LineInput{Quantity: in.Quantity, UnitPrice: in.UnitPrice, TaxRate: tax.Rate, DiscountPct: pct}
		amounts := ledger.PriceLine(li)
		pricing = append(pricing, li)
		lines = append(lines, LineItem{
			ProductID:      in.ProductID,
			Quantity:       in.Quantity,
			UnitPrice:      in.UnitPrice,
			TaxID:          tax.ID,
			TaxRate:        tax.Rate,
			DiscountID:     in.DiscountID,
			DiscountPct:    pct,
			DiscountAmount: amounts.Discount,
			LineTotal:      amounts.Net,
		})
	}
	return lines, ledger.Summarize(pricing), nil
}

// ============================================================================
// PAYMENTS AND VOIDS
// ============================================================================

// ApplyPayment settles part or all of the outstanding amount. A rejected
// payment leaves the invoice untouched. The audit actor is read from ctx.
func (s *Service) ApplyPayment(ctx context.Context, invoiceID, paymentTypeID int64, amount decimal.Decimal) (Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		balance := inv.Balance()
		if err := balance.ApplyPayment(amount); err != nil {
			return fmt.Errorf("invoice %s: %w", inv.Number, err)
		}
		if _, err := tx.GetPaymentType(ctx, paymentTypeID); err != nil {
			return err
		}
		if _, err := tx.InsertPayment(ctx, Payment{InvoiceID: inv.ID, PaymentTypeID: paymentTypeID, Amount: amount, PaidAt: s.now()}); err != nil {
			return err
		}
		inv.Outstanding = balance.Outstanding
		inv.Status = balance.Status()
		return tx.UpdateBalance(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	s.metrics.PaymentApplied(inv.Status.String())
	s.record(ctx, shared.ActorFromContext(ctx), "invoice:payment", inv, map[string]any{
		"payment_type_id": paymentTypeID,
		"amount":          amount.String(),
		"outstanding":     inv.Outstanding.String(),
		"status":          inv.Status.String(),
	})
	s.logger.Info("invoice payment applied",
		slog.Int64("invoice_id", invoiceID),
		slog.String("amount", amount.String()),
		slog.String("outstanding", inv.Outstanding.String()))
	return inv, nil
}

// VoidInvoice cancels an invoice and returns its sold quantities to stock.
// Recorded payments are kept.
func (s *Service) VoidInvoice(ctx context.Context, invoiceID, actorID int64, reason string) (Invoice, error) {
	var restored int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		balance := inv.Balance()
		if err := balance.Void(); err != nil {
			return fmt.Errorf("invoice %s: %w", inv.Number, err)
		}
		lines, err := tx.ListLines(ctx, inv.ID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, line := range lines {
			_, err := inventory.Apply(ctx, tx, inventory.Movement{
				Type:      inventory.MovementVoidRestore,
				ProductID: line.ProductID,
				QtyChange: line.Quantity,
				RefModule: "sales",
				RefID:     inv.ID,
				Note:      "void " + inv.Number,
				ActorID:   actorID,
				PostedAt:  now,
			}, true)
			if err != nil {
				return err
			}
		}
		restored = len(lines)
		inv.Outstanding = balance.Outstanding
		inv.Voided = true
		inv.Status = balance.Status()
		inv.VoidReason = reason
		return tx.UpdateBalance(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	s.metrics.InvoiceVoided()
	s.record(ctx, actorID, "invoice:void", inv, map[string]any{"reason": reason, "lines_restored": restored})
	s.logger.Info("invoice voided", slog.Int64("invoice_id", invoiceID), slog.String("number", inv.Number), slog.Int64("actor_id", actorID))
	return inv, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetInvoice loads an invoice with lines and payments.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns invoice headers.
func (s *Service) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	if filter.Status != 0 && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", shared.ErrValidation, int(filter.Status))
	}
	return s.repo.ListInvoices(ctx, filter)
}

// MarkPrinted records that the invoice was printed.
func (s *Service) MarkPrinted(ctx context.Context, id int64) (Invoice, error) {
	if err := s.repo.MarkPrinted(ctx, id); err != nil {
		return Invoice{}, err
	}
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, inv Invoice, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(inv.ID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
	}
}
