package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/inventory"
	"github.com/fiscalpos/fiscalpos/internal/ledger"
	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBill(ctx context.Context, id int64) (Bill, error)
	ListBills(ctx context.Context, filter ListFilter) ([]Bill, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchase bills.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a purchasing service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// CreateBill numbers the bill, stores it and receives its lines into stock
// in one transaction.
func (s *Service) CreateBill(ctx context.Context, input CreateBillInput) (Bill, error) {
	if err := validateCreate(input); err != nil {
		return Bill{}, err
	}
	var bill Bill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		bill, err = s.receive(ctx, tx, input)
		return err
	})
	if err != nil {
		return Bill{}, err
	}
	s.record(ctx, input.CreatedBy, "purchase_bill:create", bill, map[string]any{
		"number":      bill.Number,
		"provider_id": bill.ProviderID,
		"total":       bill.Total.String(),
	})
	s.logger.Info("purchase bill created",
		slog.Int64("bill_id", bill.ID),
		slog.String("number", bill.Number),
		slog.String("total", bill.Total.String()))
	return bill, nil
}

func validateCreate(input CreateBillInput) error {
	if input.ProviderID <= 0 {
		return fmt.Errorf("%w: provider required", shared.ErrValidation)
	}
	if input.CreatedBy <= 0 {
		return fmt.Errorf("%w: creator required", shared.ErrValidation)
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
		case line.UnitCost.Sign() < 0:
			return fmt.Errorf("%w: line %d: unit cost must not be negative", shared.ErrValidation, i+1)
		case ledger.CheckQuantity(line.Quantity) != nil:
			return fmt.Errorf("line %d: %w", i+1, ledger.ErrQuantityScale)
		case ledger.CheckAmount(line.UnitCost) != nil:
			return fmt.Errorf("line %d: unit cost: %w", i+1, ledger.ErrAmountScale)
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

func (s *Service) receive(ctx context.Context, tx TxRepository, input CreateBillInput) (Bill, error) {
	lines := make([]BillLine, 0, len(input.Lines))
	pricing := make([]ledger.LineInput, 0, len(input.Lines))
	for _, in := range input.Lines {
		tax, err := tx.GetTax(ctx, in.TaxID)
		if err != nil {
			return Bill{}, err
		}
		li := ledger.LineInput{Quantity: in.Quantity, UnitPrice: in.UnitCost, TaxRate: tax.Rate, DiscountPct: decimal.Zero}
		pricing = append(pricing, li)
		lines = append(lines, BillLine{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitCost:  in.UnitCost,
			TaxID:     tax.ID,
			TaxRate:   tax.Rate,
			LineTotal: ledger.PriceLine(li).Net,
		})
	}
	totals := ledger.Summarize(pricing)

	prepaid := make([]decimal.Decimal, 0, len(input.Plan.Payments))
	for _, p := range input.Plan.Payments {
		if _, err := tx.GetPaymentType(ctx, p.PaymentTypeID); err != nil {
			return Bill{}, err
		}
		prepaid = append(prepaid, p.Amount)
	}
	balance, err := ledger.NewBalance(totals.Total, prepaid...)
	if err != nil {
		return Bill{}, err
	}

	seq, err := tx.NextSequence(ctx, SequenceName)
	if err != nil {
		return Bill{}, err
	}
	now := s.now()
	bill := Bill{
		Number:        FormatNumber(seq),
		ProviderID:    input.ProviderID,
		CreatedBy:     input.CreatedBy,
		Date:          now,
		Subtotal:      totals.Subtotal,
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
	if bill.CreditDays > 0 {
		due := now.AddDate(0, 0, bill.CreditDays)
		bill.DueDate = &due
	}
	if bill.ID, err = tx.InsertBill(ctx, bill); err != nil {
		return Bill{}, err
	}

	for i := range lines {
		lines[i].BillID = bill.ID
		if lines[i].ID, err = tx.InsertLine(ctx, lines[i]); err != nil {
			return Bill{}, err
		}
		_, err = inventory.Apply(ctx, tx, inventory.Movement{
			Type:      inventory.MovementPurchase,
			ProductID: lines[i].ProductID,
			QtyChange: lines[i].Quantity,
			RefModule: "purchasing",
			RefID:     bill.ID,
			Note:      "bill " + bill.Number,
			ActorID:   input.CreatedBy,
			PostedAt:  now,
		}, false)
		if err != nil {
			return Bill{}, err
		}
	}
	bill.Lines = lines

	bill.Payments = make([]BillPayment, 0, len(input.Plan.Payments))
	for _, p := range input.Plan.Payments {
		payment := BillPayment{BillID: bill.ID, PaymentTypeID: p.PaymentTypeID, Amount: p.Amount, PaidAt: now}
		if payment.ID, err = tx.InsertPayment(ctx, payment); err != nil {
			return Bill{}, err
		}
		bill.Payments = append(bill.Payments, payment)
	}
	return bill, nil
}

// ApplyBillPayment records a payment to the provider. Overpayments and
// payments on settled or voided bills are rejected without side effects.
func (s *Service) ApplyBillPayment(ctx context.Context, billID, paymentTypeID int64, amount decimal.Decimal) (Bill, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		balance := bill.Balance()
		if err := balance.ApplyPayment(amount); err != nil {
			return fmt.Errorf("bill %s: %w", bill.Number, err)
		}
		if _, err := tx.GetPaymentType(ctx, paymentTypeID); err != nil {
			return err
		}
		if _, err := tx.InsertPayment(ctx, BillPayment{BillID: bill.ID, PaymentTypeID: paymentTypeID, Amount: amount, PaidAt: s.now()}); err != nil {
			return err
		}
		bill.Outstanding = balance.Outstanding
		bill.Status = balance.Status()
		return tx.UpdateBalance(ctx, bill)
	})
	if err != nil {
		return Bill{}, err
	}
	return s.repo.GetBill(ctx, billID)
}

// VoidBill cancels a bill and takes the received quantities back out of
// stock. It fails when part of that stock has already been sold.
func (s *Service) VoidBill(ctx context.Context, billID, actorID int64, reason string) (Bill, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		balance := bill.Balance()
		if err := balance.Void(); err != nil {
			return fmt.Errorf("bill %s: %w", bill.Number, err)
		}
		lines, err := tx.ListLines(ctx, bill.ID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, line := range lines {
			_, err := inventory.Apply(ctx, tx, inventory.Movement{
				Type:      inventory.MovementPurchaseVoid,
				ProductID: line.ProductID,
				QtyChange: line.Quantity.Neg(),
				RefModule: "purchasing",
				RefID:     bill.ID,
				Note:      "void bill " + bill.Number,
				ActorID:   actorID,
				PostedAt:  now,
			}, false)
			if err != nil {
				return fmt.Errorf("bill %s: %w", bill.Number, err)
			}
		}
		bill.Outstanding = balance.Outstanding
		bill.Voided = true
		bill.Status = balance.Status()
		bill.VoidReason = reason
		return tx.UpdateBalance(ctx, bill)
	})
	if err != nil {
		return Bill{}, err
	}
	bill, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return Bill{}, err
	}
	s.record(ctx, actorID, "purchase_bill:void", bill, map[string]any{"reason": reason})
	s.logger.Info("purchase bill voided", slog.Int64("bill_id", billID), slog.String("number", bill.Number))
	return bill, nil
}

// GetBill loads a bill with lines and payments.
func (s *Service) GetBill(ctx context.Context, id int64) (Bill, error) {
	return s.repo.GetBill(ctx, id)
}

// ListBills returns bill headers.
func (s *Service) ListBills(ctx context.Context, filter ListFilter) ([]Bill, error) {
	if filter.Status != 0 && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", shared.ErrValidation, int(filter.Status))
	}
	return s.repo.ListBills(ctx, filter)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, bill Bill, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_bill",
		EntityID: strconv.FormatInt(bill.ID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Int64("bill_id", bill.ID), slog.Any("error", err))
	}
}
