package http

import (
	"context"
	"net/http"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockLedgerService
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) VerifyInboundNotification(ctx context.Context, headers http.Header, rawBody []byte) bool {
	args := m.Called(ctx, headers, rawBody)
	return args.Bool(0)
}
func (m *MockLedgerService) RejectIfStale(headers http.Header) bool {
	args := m.Called(headers)
	return args.Bool(0)
}
func (m *MockLedgerService) SettleOnce(ctx context.Context, externalRef string) (domain.SettleResult, error) {
	args := m.Called(ctx, externalRef)
	return args.Get(0).(domain.SettleResult), args.Error(1)
}
func (m *MockLedgerService) CreateManualSettlement(ctx context.Context, req service.ManualSettlementRequest) (*domain.Payment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}
func (m *MockLedgerService) CreateCheckout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CheckoutResult), args.Error(1)
}
func (m *MockLedgerService) HandleWebhook(ctx context.Context, headers http.Header, rawBody []byte) (domain.WebhookStatus, error) {
	args := m.Called(ctx, headers, rawBody)
	return args.Get(0).(domain.WebhookStatus), args.Error(1)
}
func (m *MockLedgerService) Redrive(ctx context.Context, externalRef string) error {
	args := m.Called(ctx, externalRef)
	return args.Error(0)
}

// MockMembershipService
type MockMembershipService struct {
	mock.Mock
}

func (m *MockMembershipService) ApplySettlement(ctx context.Context, membershipID, paymentRef string, paidAt time.Time) (*domain.Membership, error) {
	args := m.Called(ctx, membershipID, paymentRef, paidAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Membership), args.Error(1)
}
func (m *MockMembershipService) JoinGym(ctx context.Context, code, userID string) (*domain.Membership, error) {
	args := m.Called(ctx, code, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Membership), args.Error(1)
}
func (m *MockMembershipService) Ban(ctx context.Context, membershipID, managerID, reason string) (*domain.Membership, error) {
	args := m.Called(ctx, membershipID, managerID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Membership), args.Error(1)
}

// MockInventoryService
type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) CompleteSale(ctx context.Context, saleID, paymentRef string) (domain.SaleOutcome, error) {
	args := m.Called(ctx, saleID, paymentRef)
	return args.Get(0).(domain.SaleOutcome), args.Error(1)
}
func (m *MockInventoryService) CreatePendingSale(ctx context.Context, req service.SaleRequest) (*domain.Sale, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Sale), args.Error(1)
}
func (m *MockInventoryService) CreateInstantSale(ctx context.Context, req service.SaleRequest) (*domain.Sale, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Sale), args.Error(1)
}

// MockAnalyticsService
type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) RecordSettlement(ctx context.Context, event *domain.SettlementEvent) (service.RecordResult, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(service.RecordResult), args.Error(1)
}
func (m *MockAnalyticsService) GetKPIs(ctx context.Context) service.KPIResult {
	args := m.Called(ctx)
	return args.Get(0).(service.KPIResult)
}
func (m *MockAnalyticsService) SweepExpiredMarkers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
