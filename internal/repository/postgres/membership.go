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

type membershipRepository struct {
	db *sql.DB
}

func NewMembershipRepository(db *sql.DB) repository.MembershipRepository {
	return &membershipRepository{db: db}
}

func insertMembershipLog(ctx context.Context, tx *sql.Tx, log *domain.MembershipLog) (int64, error) {
	query := `INSERT INTO membership_logs (id, membership_id, action, performed_by, reason, payment_ref, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (payment_ref) DO NOTHING`
	res, err := tx.ExecContext(ctx, query,
		log.ID, log.MembershipID, log.Action, log.PerformedBy, log.Reason, log.PaymentRef, log.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *membershipRepository) Create(ctx context.Context, m *domain.Membership, log *domain.MembershipLog) error {
	logger.EnterMethod("membershipRepository.Create", "userID", m.UserID, "gymID", m.GymID)

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `INSERT INTO memberships (id, user_id, gym_id, status, start_date, end_date, activated_by, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		if _, err := tx.ExecContext(ctx, query,
			m.ID, m.UserID, m.GymID, m.Status, m.StartDate, m.EndDate, m.ActivatedBy, m.CreatedAt, m.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrMembershipExists
			}
			return err
		}
		_, err := insertMembershipLog(ctx, tx, log)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("membershipRepository.Create", err, "userID", m.UserID)
		return err
	}

	logger.ExitMethod("membershipRepository.Create", "membershipID", m.ID)
	return nil
}

func (r *membershipRepository) GetByID(ctx context.Context, id string) (*domain.Membership, error) {
	query := `SELECT id, user_id, gym_id, status, start_date, end_date, activated_by, created_at, updated_at
	          FROM memberships WHERE id = $1`
	m := &domain.Membership{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.UserID, &m.GymID, &m.Status, &m.StartDate, &m.EndDate, &m.ActivatedBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *membershipRepository) ApplyTransition(ctx context.Context, m *domain.Membership, log *domain.MembershipLog, readAt time.Time) (bool, error) {
	logger.EnterMethod("membershipRepository.ApplyTransition", "membershipID", m.ID, "action", log.Action)

	applied := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		// the audit row goes first so a replayed payment ref stops here
		n, err := insertMembershipLog(ctx, tx, log)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		query := `UPDATE memberships SET status = $1, start_date = $2, end_date = $3, activated_by = $4, updated_at = $5
		          WHERE id = $6 AND updated_at = $7`
		res, err := tx.ExecContext(ctx, query, m.Status, m.StartDate, m.EndDate, m.ActivatedBy, m.UpdatedAt, m.ID, readAt)
		if err != nil {
			return err
		}
		if rows, err := res.RowsAffected(); err != nil {
			return err
		} else if rows == 0 {
			return fmt.Errorf("membership %s: %w", m.ID, domain.ErrConcurrencyConflict)
		}
		applied = true
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("membershipRepository.ApplyTransition", err, "membershipID", m.ID)
		return false, err
	}

	logger.ExitMethod("membershipRepository.ApplyTransition", "membershipID", m.ID, "applied", applied)
	return applied, nil
}

// CountActive counts memberships that are ACTIVE and not yet past their end
// date. Unpaid placeholder rows never count.
func (r *membershipRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var count int
	query := `SELECT count(*) FROM memberships WHERE status = $1 AND end_date > $2 AND start_date <> $3`
	err := r.db.QueryRowContext(ctx, query, domain.MembershipStatusActive, now, domain.PlaceholderDate).Scan(&count)
	return count, err
}

// CountExpired counts ACTIVE rows whose end date has passed.
func (r *membershipRepository) CountExpired(ctx context.Context, now time.Time) (int, error) {
	var count int
	query := `SELECT count(*) FROM memberships WHERE status = $1 AND end_date <= $2 AND start_date <> $3`
	err := r.db.QueryRowContext(ctx, query, domain.MembershipStatusActive, now, domain.PlaceholderDate).Scan(&count)
	return count, err
}
