package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/repository"
)

type inventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) repository.InventoryRepository {
	return &inventoryRepository{db: db}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// stockTx runs the shared decrement algorithm against an open transaction.
type stockTx struct {
	tx *sql.Tx
}

func (s stockTx) ReadStock(ctx context.Context, productID string) (int, int, error) {
	var stock, version int
	err := s.tx.QueryRowContext(ctx,
		`SELECT stock, version FROM products WHERE id = $1 AND deleted_at IS NULL`, productID,
	).Scan(&stock, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, domain.ErrProductNotFound
	}
	return stock, version, err
}

func (s stockTx) DecrementIfVersion(ctx context.Context, productID string, quantity, version int) (int64, error) {
	res, err := s.tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - $1, version = version + 1 WHERE id = $2 AND version = $3`,
		quantity, productID, version,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *inventoryRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, gym_id, name, barcode, price, stock, version, deleted_at FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.GymID, &p.Name, &p.Barcode, &p.Price, &p.Stock, &p.Version, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func loadSale(ctx context.Context, q querier, id string) (*domain.Sale, error) {
	s := &domain.Sale{}
	err := q.QueryRowContext(ctx,
		`SELECT id, gym_id, cashier_id, total, currency, payment_type, status, payment_ref, created_at, completed_at
		 FROM sales WHERE id = $1`, id,
	).Scan(&s.ID, &s.GymID, &s.CashierID, &s.Total, &s.Currency, &s.PaymentType, &s.Status, &s.PaymentRef, &s.CreatedAt, &s.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT product_id, quantity, unit_price FROM sale_items WHERE sale_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		s.Items = append(s.Items, item)
	}
	return s, rows.Err()
}

func insertSale(ctx context.Context, tx *sql.Tx, s *domain.Sale) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sales (id, gym_id, cashier_id, total, currency, payment_type, status, payment_ref, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.GymID, s.CashierID, s.Total, s.Currency, s.PaymentType, s.Status, s.PaymentRef, s.CreatedAt, s.CompletedAt,
	)
	if err != nil {
		return err
	}
	for _, item := range s.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sale_items (sale_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4)`,
			s.ID, item.ProductID, item.Quantity, item.UnitPrice,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *inventoryRepository) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return loadSale(ctx, r.db, id)
}

func (r *inventoryRepository) CreatePendingSale(ctx context.Context, s *domain.Sale) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertSale(ctx, tx, s)
	})
}

func (r *inventoryRepository) CreateInstantSale(ctx context.Context, s *domain.Sale) error {
	logger.EnterMethod("inventoryRepository.CreateInstantSale", "saleID", s.ID, "items", len(s.Items))

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := repository.DecrementStock(ctx, stockTx{tx: tx}, s.Items); err != nil {
			return err
		}
		return insertSale(ctx, tx, s)
	})
	if err != nil {
		logger.ExitMethodWithError("inventoryRepository.CreateInstantSale", err, "saleID", s.ID)
		return err
	}

	logger.ExitMethod("inventoryRepository.CreateInstantSale", "saleID", s.ID)
	return nil
}

func (r *inventoryRepository) CompleteSale(ctx context.Context, saleID, paymentRef string, completedAt time.Time) (*domain.Sale, domain.SaleOutcome, error) {
	logger.EnterMethod("inventoryRepository.CompleteSale", "saleID", saleID)

	var (
		sale    *domain.Sale
		outcome domain.SaleOutcome
	)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		sale, err = loadSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != domain.SaleStatusPending {
			outcome = domain.SaleOutcomeSkipped
			return nil
		}

		if err := repository.DecrementStock(ctx, stockTx{tx: tx}, sale.Items); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE sales SET status = $1, payment_ref = $2, completed_at = $3 WHERE id = $4 AND status = $5`,
			domain.SaleStatusCompleted, paymentRef, completedAt, saleID, domain.SaleStatusPending,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: sale %s left PENDING concurrently", domain.ErrConcurrencyConflict, saleID)
		}

		sale.Status = domain.SaleStatusCompleted
		sale.PaymentRef = &paymentRef
		sale.CompletedAt = &completedAt
		outcome = domain.SaleOutcomeCompleted
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("inventoryRepository.CompleteSale", err, "saleID", saleID)
		return nil, "", err
	}

	logger.ExitMethod("inventoryRepository.CompleteSale", "saleID", saleID, "outcome", outcome)
	return sale, outcome, nil
}

func (r *inventoryRepository) MarkSaleFailed(ctx context.Context, saleID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sales SET status = $1 WHERE id = $2 AND status = $3`,
		domain.SaleStatusFailed, saleID, domain.SaleStatusPending,
	)
	return err
}
