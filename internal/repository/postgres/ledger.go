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

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, external_ref, amount, currency, method, status, membership_id, sale_id, user_id, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.ExternalRef, &p.Amount, &p.Currency, &p.Method, &p.Status,
		&p.MembershipID, &p.SaleID, &p.UserID, &p.CreatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	logger.DatabaseCall("payments.create", query, "external_ref", p.ExternalRef)

	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.ExternalRef, p.Amount, p.Currency, p.Method, p.Status,
		p.MembershipID, p.SaleID, p.UserID, p.CreatedAt, p.CompletedAt,
	)
	if err != nil {
		logger.DatabaseResult("payments.create", 0, err)
		if isUniqueViolation(err) {
			return fmt.Errorf("payment with external ref %s already exists: %w", p.ExternalRef, err)
		}
		return err
	}
	n, _ := res.RowsAffected()
	logger.DatabaseResult("payments.create", n, nil)
	return nil
}

func (r *paymentRepository) GetByExternalRef(ctx context.Context, externalRef string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_ref = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, externalRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	return p, err
}

func (r *paymentRepository) MarkCompleted(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	query := `UPDATE payments SET status = $1, completed_at = $2 WHERE id = $3 AND status = $4`
	logger.DatabaseCall("payments.mark_completed", query, "payment_id", id)

	res, err := r.db.ExecContext(ctx, query, domain.PaymentStatusCompleted, completedAt, id, domain.PaymentStatusPending)
	if err != nil {
		logger.DatabaseResult("payments.mark_completed", 0, err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	logger.DatabaseResult("payments.mark_completed", n, nil)
	return n == 1, nil
}

func (r *paymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
	          WHERE status = $1 AND created_at < $2 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, domain.PaymentStatusPending, createdBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
