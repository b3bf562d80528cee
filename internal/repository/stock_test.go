package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stockRow struct {
	stock   int
	version int
}

// stockTable is an in-memory products table with per-transaction undo logs.
type stockTable struct {
	mu   sync.Mutex
	rows map[string]*stockRow
}

func newStockTable(rows map[string]stockRow) *stockTable {
	t := &stockTable{rows: make(map[string]*stockRow)}
	for id, r := range rows {
		r := r
		t.rows[id] = &r
	}
	return t
}

func (t *stockTable) get(id string) stockRow {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.rows[id]
}

// bump simulates a concurrent writer committing between our read and write.
func (t *stockTable) bump(id string, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[id].stock += delta
	t.rows[id].version++
}

type fakeStockTx struct {
	table     *stockTable
	undo      []func()
	afterRead func(productID string)
}

func (tx *fakeStockTx) ReadStock(_ context.Context, productID string) (int, int, error) {
	tx.table.mu.Lock()
	row, ok := tx.table.rows[productID]
	if !ok {
		tx.table.mu.Unlock()
		return 0, 0, domain.ErrProductNotFound
	}
	stock, version := row.stock, row.version
	tx.table.mu.Unlock()

	if tx.afterRead != nil {
		tx.afterRead(productID)
	}
	return stock, version, nil
}

func (tx *fakeStockTx) DecrementIfVersion(_ context.Context, productID string, quantity, version int) (int64, error) {
	tx.table.mu.Lock()
	defer tx.table.mu.Unlock()
	row := tx.table.rows[productID]
	if row.version != version {
		return 0, nil
	}
	prev := *row
	row.stock -= quantity
	row.version++
	tx.undo = append(tx.undo, func() { *row = prev })
	return 1, nil
}

func (tx *fakeStockTx) rollback() {
	tx.table.mu.Lock()
	defer tx.table.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func runDecrement(tx *fakeStockTx, items []domain.SaleItem) error {
	err := repository.DecrementStock(context.Background(), tx, items)
	if err != nil {
		tx.rollback()
	}
	return err
}

func TestDecrementStock_Success(t *testing.T) {
	table := newStockTable(map[string]stockRow{"P1": {stock: 5, version: 3}, "P2": {stock: 10, version: 1}})
	tx := &fakeStockTx{table: table}

	err := runDecrement(tx, []domain.SaleItem{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 10}})

	require.NoError(t, err)
	assert.Equal(t, stockRow{stock: 3, version: 4}, table.get("P1"))
	assert.Equal(t, stockRow{stock: 0, version: 2}, table.get("P2"))
}

func TestDecrementStock_ConcurrentSalesOneWins(t *testing.T) {
	table := newStockTable(map[string]stockRow{"P1": {stock: 5, version: 3}})

	// both transactions read version 3 before either writes
	var readBarrier sync.WaitGroup
	readBarrier.Add(2)
	afterRead := func(string) {
		readBarrier.Done()
		readBarrier.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := &fakeStockTx{table: table, afterRead: afterRead}
			errs[i] = runDecrement(tx, []domain.SaleItem{{ProductID: "P1", Quantity: 3}})
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrConcurrencyConflict):
			conflicted++
			assert.False(t, errors.Is(err, domain.ErrInsufficientStock))
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, stockRow{stock: 2, version: 4}, table.get("P1"))
}

func TestDecrementStock_ConflictingWriteBeforeCommit(t *testing.T) {
	table := newStockTable(map[string]stockRow{"P1": {stock: 5, version: 3}, "P2": {stock: 5, version: 7}})
	tx := &fakeStockTx{table: table}
	tx.afterRead = func(productID string) {
		if productID == "P2" {
			table.bump("P2", -1)
		}
	}

	err := runDecrement(tx, []domain.SaleItem{{ProductID: "P1", Quantity: 1}, {ProductID: "P2", Quantity: 1}})

	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	// P1 decrement from the same transaction is rolled back
	assert.Equal(t, stockRow{stock: 5, version: 3}, table.get("P1"))
	// only the concurrent writer's change remains
	assert.Equal(t, stockRow{stock: 4, version: 8}, table.get("P2"))
}

func TestDecrementStock_InsufficientStockRollsBack(t *testing.T) {
	table := newStockTable(map[string]stockRow{"P1": {stock: 5, version: 3}, "P2": {stock: 2, version: 1}})
	tx := &fakeStockTx{table: table}

	err := runDecrement(tx, []domain.SaleItem{{ProductID: "P1", Quantity: 1}, {ProductID: "P2", Quantity: 3}})

	var shortage *domain.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, "P2", shortage.ProductID)
	assert.Equal(t, 3, shortage.Requested)
	assert.Equal(t, 2, shortage.Available)
	assert.False(t, errors.Is(err, domain.ErrConcurrencyConflict))

	assert.Equal(t, stockRow{stock: 5, version: 3}, table.get("P1"))
	assert.Equal(t, stockRow{stock: 2, version: 1}, table.get("P2"))
}

func TestDecrementStock_UnknownProduct(t *testing.T) {
	table := newStockTable(map[string]stockRow{})
	tx := &fakeStockTx{table: table}

	err := runDecrement(tx, []domain.SaleItem{{ProductID: "missing", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}
