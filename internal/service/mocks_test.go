package service_test

import (
	"context"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/messaging"
	"gymcore-backend/internal/paypal"

	"github.com/stretchr/testify/mock"
)

// MockPaymentRepo
type MockPaymentRepo struct {
	mock.Mock
}

func (m *MockPaymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}
func (m *MockPaymentRepo) GetByExternalRef(ctx context.Context, externalRef string) (*domain.Payment, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}
func (m *MockPaymentRepo) MarkCompleted(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, completedAt)
	return args.Bool(0), args.Error(1)
}
func (m *MockPaymentRepo) ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Payment, error) {
	args := m.Called(ctx, createdBefore)
	return args.Get(0).([]domain.Payment), args.Error(1)
}

// MockGymRepo
type MockGymRepo struct {
	mock.Mock
}

func (m *MockGymRepo) GetByCode(ctx context.Context, code string) (*domain.Gym, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Gym), args.Error(1)
}

// MockMembershipRepo
type MockMembershipRepo struct {
	mock.Mock
}

func (m *MockMembershipRepo) Create(ctx context.Context, membership *domain.Membership, log *domain.MembershipLog) error {
	args := m.Called(ctx, membership, log)
	return args.Error(0)
}
func (m *MockMembershipRepo) GetByID(ctx context.Context, id string) (*domain.Membership, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Membership), args.Error(1)
}
func (m *MockMembershipRepo) ApplyTransition(ctx context.Context, membership *domain.Membership, log *domain.MembershipLog, readAt time.Time) (bool, error) {
	args := m.Called(ctx, membership, log, readAt)
	return args.Bool(0), args.Error(1)
}
func (m *MockMembershipRepo) CountActive(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}
func (m *MockMembershipRepo) CountExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// MockInventoryRepo
type MockInventoryRepo struct {
	mock.Mock
}

func (m *MockInventoryRepo) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}
func (m *MockInventoryRepo) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Sale), args.Error(1)
}
func (m *MockInventoryRepo) CreatePendingSale(ctx context.Context, sale *domain.Sale) error {
	args := m.Called(ctx, sale)
	return args.Error(0)
}
func (m *MockInventoryRepo) CreateInstantSale(ctx context.Context, sale *domain.Sale) error {
	args := m.Called(ctx, sale)
	return args.Error(0)
}
func (m *MockInventoryRepo) CompleteSale(ctx context.Context, saleID, paymentRef string, completedAt time.Time) (*domain.Sale, domain.SaleOutcome, error) {
	args := m.Called(ctx, saleID, paymentRef, completedAt)
	var sale *domain.Sale
	if args.Get(0) != nil {
		sale = args.Get(0).(*domain.Sale)
	}
	return sale, args.Get(1).(domain.SaleOutcome), args.Error(2)
}
func (m *MockInventoryRepo) MarkSaleFailed(ctx context.Context, saleID string) error {
	args := m.Called(ctx, saleID)
	return args.Error(0)
}

// MockAnalyticsRepo
type MockAnalyticsRepo struct {
	mock.Mock
}

func (m *MockAnalyticsRepo) RecordSettlement(ctx context.Context, eventID string, delta domain.CounterDelta, now, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, eventID, delta, now, expiresAt)
	return args.Bool(0), args.Error(1)
}
func (m *MockAnalyticsRepo) GetKPIs(ctx context.Context, day, now time.Time) (*domain.KPIs, error) {
	args := m.Called(ctx, day, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KPIs), args.Error(1)
}
func (m *MockAnalyticsRepo) DeleteExpiredMarkers(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockProvider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) VerifyWebhookSignature(ctx context.Context, req paypal.VerifyRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}
func (m *MockProvider) CreateOrder(ctx context.Context, req paypal.OrderRequest) (*paypal.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paypal.Order), args.Error(1)
}

// MockBus
type MockBus struct {
	mock.Mock
}

func (m *MockBus) Publish(ctx context.Context, routingKey string, payload any, opts messaging.PublishOptions) error {
	args := m.Called(ctx, routingKey, payload, opts)
	return args.Error(0)
}

// MockKPICache
type MockKPICache struct {
	mock.Mock
}

func (m *MockKPICache) Get(ctx context.Context, day time.Time) (domain.KPIs, bool) {
	args := m.Called(ctx, day)
	return args.Get(0).(domain.KPIs), args.Bool(1)
}
func (m *MockKPICache) Set(ctx context.Context, day time.Time, kpis domain.KPIs) {
	m.Called(ctx, day, kpis)
}
func (m *MockKPICache) Invalidate(ctx context.Context, day time.Time) error {
	args := m.Called(ctx, day)
	return args.Error(0)
}
