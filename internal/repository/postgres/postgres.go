package postgres

import (
	"context"
	"database/sql"
	"errors"

	"gymcore-backend/internal/repository"

	"github.com/lib/pq"
)

type Store struct {
	db *sql.DB
	repository.PaymentRepository
	repository.GymRepository
	repository.MembershipRepository
	repository.InventoryRepository
	repository.AnalyticsRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                   db,
		PaymentRepository:    NewPaymentRepository(db),
		GymRepository:        NewGymRepository(db),
		MembershipRepository: NewMembershipRepository(db),
		InventoryRepository:  NewInventoryRepository(db),
		AnalyticsRepository:  NewAnalyticsRepository(db),
	}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// withTx runs fn inside a transaction, committing only when fn succeeds.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
