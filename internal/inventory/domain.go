package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// MovementType enumerates supported stock card movements.
type MovementType string

const (
	// MovementSale deducts stock sold on an invoice.
	MovementSale MovementType = "SALE"
	// MovementVoidRestore returns stock of a voided invoice.
	MovementVoidRestore MovementType = "VOID_RESTORE"
	// MovementPurchase receives stock from a purchase bill.
	MovementPurchase MovementType = "PURCHASE"
	// MovementPurchaseVoid reverses the stock of a voided purchase bill.
	MovementPurchaseVoid MovementType = "PURCHASE_VOID"
	// MovementAdjust indicates manual adjustments.
	MovementAdjust MovementType = "ADJUST"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementSale, MovementVoidRestore, MovementPurchase, MovementPurchaseVoid, MovementAdjust:
		return true
	}
	return false
}

// Movement is a single stock change posted inside a caller transaction.
type Movement struct {
	Code      string
	Type      MovementType
	ProductID int64
	QtyChange decimal.Decimal
	RefModule string
	RefID     int64
	Note      string
	ActorID   int64
	PostedAt  time.Time
}

// Balance is the on-hand quantity of a product.
type Balance struct {
	ProductID int64           `json:"product_id"`
	Qty       decimal.Decimal `json:"qty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StockCardEntry describes one stock card line.
type StockCardEntry struct {
	Code       string          `json:"code"`
	Type       MovementType    `json:"type"`
	ProductID  int64           `json:"product_id"`
	QtyIn      decimal.Decimal `json:"qty_in"`
	QtyOut     decimal.Decimal `json:"qty_out"`
	BalanceQty decimal.Decimal `json:"balance_qty"`
	RefModule  string          `json:"ref_module"`
	RefID      int64           `json:"ref_id"`
	Note       string          `json:"note"`
	ActorID    int64           `json:"actor_id"`
	PostedAt   time.Time       `json:"posted_at"`
}

// AdjustmentInput describes request to adjust stock.
type AdjustmentInput struct {
	Code      string
	ProductID int64
	Qty       decimal.Decimal
	Note      string
	ActorID   int64
}

// StockCardFilter filters card entries.
type StockCardFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = fmt.Errorf("%w: negative stock not allowed", shared.ErrInvalidState)

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = fmt.Errorf("%w: quantity must be non zero", shared.ErrValidation)

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory balance not found")

// NegativeStockError reports the product and shortfall of a refused movement.
type NegativeStockError struct {
	ProductID int64
	Available decimal.Decimal
	Change    decimal.Decimal
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("inventory: product %d has %s on hand, change %s would go negative", e.ProductID, e.Available.String(), e.Change.String())
}

// Unwrap lets errors.Is match ErrNegativeStock and its category.
func (e *NegativeStockError) Unwrap() error { return ErrNegativeStock }
