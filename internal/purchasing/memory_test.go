package purchasing

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fiscalpos/fiscalpos/internal/catalog"
	"github.com/fiscalpos/fiscalpos/internal/inventory"
)

type memoryState struct {
	sequences map[string]int64
	stock     map[int64]inventory.Balance
	movements []inventory.StockCardEntry
	bills     map[int64]Bill
	lines     map[int64][]BillLine
	payments  map[int64][]BillPayment
	nextID    int64
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		sequences: make(map[string]int64, len(s.sequences)),
		stock:     make(map[int64]inventory.Balance, len(s.stock)),
		movements: append([]inventory.StockCardEntry(nil), s.movements...),
		bills:     make(map[int64]Bill, len(s.bills)),
		lines:     make(map[int64][]BillLine, len(s.lines)),
		payments:  make(map[int64][]BillPayment, len(s.payments)),
		nextID:    s.nextID,
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.bills {
		c.bills[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]BillLine(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = append([]BillPayment(nil), v...)
	}
	return c
}

type memoryRepo struct {
	state *memoryState
}

type memoryTx struct {
	catalog.Static
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		sequences: map[string]int64{},
		stock:     map[int64]inventory.Balance{},
		bills:     map[int64]Bill{},
		lines:     map[int64][]BillLine{},
		payments:  map[int64][]BillPayment{},
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{Static: catalog.Fixture(), state: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetBill(_ context.Context, id int64) (Bill, error) {
	bill, ok := r.state.bills[id]
	if !ok {
		return Bill{}, fmt.Errorf("%w %d", ErrBillNotFound, id)
	}
	bill.Lines = append([]BillLine{}, r.state.lines[id]...)
	bill.Payments = append([]BillPayment{}, r.state.payments[id]...)
	return bill, nil
}

func (r *memoryRepo) ListBills(_ context.Context, filter ListFilter) ([]Bill, error) {
	var out []Bill
	for _, bill := range r.state.bills {
		if filter.Status != 0 && bill.Status != filter.Status {
			continue
		}
		if filter.ProviderID != 0 && bill.ProviderID != filter.ProviderID {
			continue
		}
		out = append(out, bill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryRepo) stockOf(productID int64) decimal.Decimal {
	return r.state.stock[productID].Qty
}

func (tx *memoryTx) NextSequence(_ context.Context, name string) (int64, error) {
	tx.state.sequences[name]++
	return tx.state.sequences[name], nil
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

func (tx *memoryTx) InsertBill(_ context.Context, bill Bill) (int64, error) {
	tx.state.nextID++
	bill.ID = tx.state.nextID
	bill.Lines, bill.Payments = nil, nil
	tx.state.bills[bill.ID] = bill
	return bill.ID, nil
}

func (tx *memoryTx) InsertLine(_ context.Context, line BillLine) (int64, error) {
	tx.state.nextID++
	line.ID = tx.state.nextID
	tx.state.lines[line.BillID] = append(tx.state.lines[line.BillID], line)
	return line.ID, nil
}

func (tx *memoryTx) InsertPayment(_ context.Context, payment BillPayment) (int64, error) {
	tx.state.nextID++
	payment.ID = tx.state.nextID
	tx.state.payments[payment.BillID] = append(tx.state.payments[payment.BillID], payment)
	return payment.ID, nil
}

func (tx *memoryTx) GetBillForUpdate(_ context.Context, id int64) (Bill, error) {
	bill, ok := tx.state.bills[id]
	if !ok {
		return Bill{}, fmt.Errorf("%w %d", ErrBillNotFound, id)
	}
	return bill, nil
}

func (tx *memoryTx) ListLines(_ context.Context, billID int64) ([]BillLine, error) {
	return append([]BillLine(nil), tx.state.lines[billID]...), nil
}

func (tx *memoryTx) UpdateBalance(_ context.Context, bill Bill) error {
	bill.Lines, bill.Payments = nil, nil
	tx.state.bills[bill.ID] = bill
	return nil
}
