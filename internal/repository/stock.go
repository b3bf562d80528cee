package repository

import (
	"context"
	"fmt"

	"gymcore-backend/internal/domain"
)

// StockTx is the part of an open store transaction that stock decrements need.
type StockTx interface {
	ReadStock(ctx context.Context, productID string) (stock, version int, err error)
	// DecrementIfVersion applies the decrement only if the row is still at
	// version and returns the number of rows changed.
	DecrementIfVersion(ctx context.Context, productID string, quantity, version int) (int64, error)
}

// DecrementStock takes every line item out of stock under optimistic
// concurrency. It is shared by the sale settlement consumer and the instant
// POS path; the caller owns the transaction and must roll back on any error.
func DecrementStock(ctx context.Context, tx StockTx, items []domain.SaleItem) error {
	for _, item := range items {
		stock, version, err := tx.ReadStock(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("read stock for product %s: %w", item.ProductID, err)
		}
		if stock < item.Quantity {
			return &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: stock,
			}
		}

		n, err := tx.DecrementIfVersion(ctx, item.ProductID, item.Quantity, version)
		if err != nil {
			return fmt.Errorf("decrement product %s: %w", item.ProductID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: product %s moved past version %d", domain.ErrConcurrencyConflict, item.ProductID, version)
		}
	}
	return nil
}
