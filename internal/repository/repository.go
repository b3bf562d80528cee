package repository

import (
	"context"
	"time"

	"gymcore-backend/internal/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByExternalRef(ctx context.Context, externalRef string) (*domain.Payment, error)
	// MarkCompleted flips a PENDING payment to COMPLETED. It reports false when
	// the row was no longer PENDING, i.e. another settlement won the race.
	MarkCompleted(ctx context.Context, id string, completedAt time.Time) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Payment, error)
}

type GymRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Gym, error)
}

type MembershipRepository interface {
	// Create inserts the membership and its JOINED log row.
	Create(ctx context.Context, membership *domain.Membership, log *domain.MembershipLog) error
	GetByID(ctx context.Context, id string) (*domain.Membership, error)
	// ApplyTransition writes the audit row and the new membership state in one
	// transaction. A log carrying a payment ref that was already applied makes
	// the whole call a no-op and returns false. readAt is the UpdatedAt value
	// the caller loaded; a row changed since then fails with ErrConcurrencyConflict.
	ApplyTransition(ctx context.Context, membership *domain.Membership, log *domain.MembershipLog, readAt time.Time) (bool, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
	CountExpired(ctx context.Context, now time.Time) (int, error)
}

type InventoryRepository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	CreatePendingSale(ctx context.Context, sale *domain.Sale) error
	// CreateInstantSale decrements stock and stores a COMPLETED sale atomically.
	CreateInstantSale(ctx context.Context, sale *domain.Sale) error
	// CompleteSale settles a PENDING sale: stock decrement plus status change in
	// one transaction. Non-PENDING sales are skipped untouched.
	CompleteSale(ctx context.Context, saleID, paymentRef string, completedAt time.Time) (*domain.Sale, domain.SaleOutcome, error)
	MarkSaleFailed(ctx context.Context, saleID string) error
}

type AnalyticsRepository interface {
	// RecordSettlement applies delta once per eventID. It reports false for a
	// duplicate whose marker is still live at now.
	RecordSettlement(ctx context.Context, eventID string, delta domain.CounterDelta, now, expiresAt time.Time) (bool, error)
	GetKPIs(ctx context.Context, day, now time.Time) (*domain.KPIs, error)
	DeleteExpiredMarkers(ctx context.Context, now time.Time) (int64, error)
}
