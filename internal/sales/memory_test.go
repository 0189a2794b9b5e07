package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/catalog"
	"github.com/fiscalpos/fiscalpos/internal/fiscal"
	"github.com/fiscalpos/fiscalpos/internal/inventory"
	"github.com/fiscalpos/fiscalpos/internal/shared"
)

// ============================================================================
// IN-MEMORY REPOSITORY
// ============================================================================

type memoryState struct {
	ranges    map[int64]fiscal.Range
	stock     map[int64]inventory.Balance
	movements []inventory.StockCardEntry
	invoices  map[int64]Invoice
	lines     map[int64][]LineItem
	payments  map[int64][]Payment
	nextID    int64
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		ranges:    make(map[int64]fiscal.Range, len(s.ranges)),
		stock:     make(map[int64]inventory.Balance, len(s.stock)),
		movements: append([]inventory.StockCardEntry(nil), s.movements...),
		invoices:  make(map[int64]Invoice, len(s.invoices)),
		lines:     make(map[int64][]LineItem, len(s.lines)),
		payments:  make(map[int64][]Payment, len(s.payments)),
		nextID:    s.nextID,
	}
	for k, v := range s.ranges {
		c.ranges[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]LineItem(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = append([]Payment(nil), v...)
	}
	return c
}

type memoryRepo struct {
	state   *memoryState
	catalog catalog.Static
	txError error
	txCount int
}

type memoryTx struct {
	catalog.Static
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: &memoryState{
			ranges:   map[int64]fiscal.Range{},
			stock:    map[int64]inventory.Balance{},
			invoices: map[int64]Invoice{},
			lines:    map[int64][]LineItem{},
			payments: map[int64][]Payment{},
		},
		catalog: catalog.Fixture(),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.txCount++
	if r.txError != nil {
		return r.txError
	}
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{Static: r.catalog, state: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := r.state.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w %d", ErrInvoiceNotFound, id)
	}
	inv.Lines = append([]LineItem{}, r.state.lines[id]...)
	inv.Payments = append([]Payment{}, r.state.payments[id]...)
	return inv, nil
}

func (r *memoryRepo) ListInvoices(_ context.Context, filter ListFilter) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.state.invoices {
		if filter.Status != 0 && inv.Status != filter.Status {
			continue
		}
		if filter.CashierID != 0 && inv.CashierID != filter.CashierID {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryRepo) MarkPrinted(_ context.Context, id int64) error {
	inv, ok := r.state.invoices[id]
	if !ok {
		return fmt.Errorf("%w %d", ErrInvoiceNotFound, id)
	}
	inv.Printed = true
	r.state.invoices[id] = inv
	return nil
}

func (r *memoryRepo) stockOf(productID int64) decimal.Decimal {
	return r.state.stock[productID].Qty
}

func (r *memoryRepo) setStock(productID int64, qty string) {
	r.state.stock[productID] = inventory.Balance{ProductID: productID, Qty: decimal.RequireFromString(qty)}
}

func (tx *memoryTx) GetRangeForUpdate(_ context.Context, id int64) (fiscal.Range, error) {
	rng, ok := tx.state.ranges[id]
	if !ok {
		return fiscal.Range{}, fmt.Errorf("%w %d", fiscal.ErrRangeNotFound, id)
	}
	return rng, nil
}

func (tx *memoryTx) ListSelectableRanges(_ context.Context) ([]fiscal.Range, error) {
	var out []fiscal.Range
	for _, rng := range tx.state.ranges {
		if rng.Active && rng.Pending > 0 {
			out = append(out, rng)
		}
	}
	return out, nil
}

func (tx *memoryTx) UpdateCursor(_ context.Context, id, current, pending int64) error {
	rng := tx.state.ranges[id]
	rng.Current, rng.Pending = current, pending
	tx.state.ranges[id] = rng
	return nil
}

func (tx *memoryTx) GetBalanceForUpdate(_ context.Context, productID int64) (inventory.Balance, error) {
	bal, ok := tx.state.stock[productID]
	if !ok {
		return inventory.Balance{ProductID: productID}, inventory.ErrBalanceNotFound
	}
	return bal, nil
}

func (tx *memoryTx) UpsertBalance(_ context.Context, balance inventory.Balance) error {
	tx.state.stock[balance.ProductID] = balance
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, entry inventory.StockCardEntry) error {
	tx.state.movements = append(tx.state.movements, entry)
	return nil
}

func (tx *memoryTx) InsertInvoice(_ context.Context, inv Invoice) (int64, error) {
	tx.state.nextID++
	inv.ID = tx.state.nextID
	inv.Lines, inv.Payments = nil, nil
	tx.state.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (tx *memoryTx) InsertLine(_ context.Context, line LineItem) (int64, error) {
	tx.state.nextID++
	line.ID = tx.state.nextID
	tx.state.lines[line.InvoiceID] = append(tx.state.lines[line.InvoiceID], line)
	return line.ID, nil
}

func (tx *memoryTx) InsertPayment(_ context.Context, payment Payment) (int64, error) {
	tx.state.nextID++
	payment.ID = tx.state.nextID
	tx.state.payments[payment.InvoiceID] = append(tx.state.payments[payment.InvoiceID], payment)
	return payment.ID, nil
}

func (tx *memoryTx) GetInvoiceForUpdate(_ context.Context, id int64) (Invoice, error) {
	inv, ok := tx.state.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w %d", ErrInvoiceNotFound, id)
	}
	return inv, nil
}

func (tx *memoryTx) ListLines(_ context.Context, invoiceID int64) ([]LineItem, error) {
	return append([]LineItem(nil), tx.state.lines[invoiceID]...), nil
}

func (tx *memoryTx) UpdateBalance(_ context.Context, inv Invoice) error {
	if _, ok := tx.state.invoices[inv.ID]; !ok {
		return errors.New("missing invoice")
	}
	inv.Lines, inv.Payments = nil, nil
	tx.state.invoices[inv.ID] = inv
	return nil
}

// ============================================================================
// IDEMPOTENCY AND AUDIT FAKES
// ============================================================================

type memoryIdempotency struct {
	keys    map[string]string
	deleted []string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = ""
	return nil
}

func (m *memoryIdempotency) Complete(_ context.Context, key, _ string, ref string) error {
	m.keys[key] = ref
	return nil
}

func (m *memoryIdempotency) Lookup(_ context.Context, key, _ string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}
