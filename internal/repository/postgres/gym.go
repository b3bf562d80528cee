package postgres

import (
	"context"
	"database/sql"
	"errors"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/repository"
)

type gymRepository struct {
	db *sql.DB
}

func NewGymRepository(db *sql.DB) repository.GymRepository {
	return &gymRepository{db: db}
}

func (r *gymRepository) GetByCode(ctx context.Context, code string) (*domain.Gym, error) {
	g := &domain.Gym{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name, unique_code FROM gyms WHERE unique_code = $1`, code).
		Scan(&g.ID, &g.Name, &g.UniqueCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrGymNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}
