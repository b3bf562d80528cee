package service

import (
	"context"
	"net/http"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/messaging"
	"gymcore-backend/internal/paypal"

	"github.com/shopspring/decimal"
)

// EventBus publishes messages onto the topic exchange.
type EventBus interface {
	Publish(ctx context.Context, routingKey string, payload any, opts messaging.PublishOptions) error
}

// PaymentProvider is the external payment authority.
type PaymentProvider interface {
	VerifyWebhookSignature(ctx context.Context, req paypal.VerifyRequest) (bool, error)
	CreateOrder(ctx context.Context, req paypal.OrderRequest) (*paypal.Order, error)
}

type LedgerService interface {
	// VerifyInboundNotification never returns an error: any failure reads as "not authentic".
	VerifyInboundNotification(ctx context.Context, headers http.Header, rawBody []byte) bool
	// RejectIfStale reports true when the transmission time is missing or outside the freshness window.
	RejectIfStale(headers http.Header) bool
	SettleOnce(ctx context.Context, externalRef string) (domain.SettleResult, error)
	CreateManualSettlement(ctx context.Context, req ManualSettlementRequest) (*domain.Payment, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	HandleWebhook(ctx context.Context, headers http.Header, rawBody []byte) (domain.WebhookStatus, error)
	// Redrive republishes the settlement event of an already-completed payment.
	Redrive(ctx context.Context, externalRef string) error
}

type MembershipService interface {
	ApplySettlement(ctx context.Context, membershipID, paymentRef string, paidAt time.Time) (*domain.Membership, error)
	JoinGym(ctx context.Context, code, userID string) (*domain.Membership, error)
	Ban(ctx context.Context, membershipID, managerID, reason string) (*domain.Membership, error)
}

type InventoryService interface {
	// CompleteSale settles a pending sale once its payment is confirmed.
	CompleteSale(ctx context.Context, saleID, paymentRef string) (domain.SaleOutcome, error)
	CreatePendingSale(ctx context.Context, req SaleRequest) (*domain.Sale, error)
	CreateInstantSale(ctx context.Context, req SaleRequest) (*domain.Sale, error)
}

type AnalyticsService interface {
	RecordSettlement(ctx context.Context, event *domain.SettlementEvent) (RecordResult, error)
	GetKPIs(ctx context.Context) KPIResult
	SweepExpiredMarkers(ctx context.Context) (int64, error)
}

type ManualSettlementRequest struct {
	MembershipID *string
	SaleID       *string
	UserID       *string
	Amount       decimal.Decimal
	Currency     string
	Method       domain.PaymentMethod
}

type CheckoutRequest struct {
	MembershipID *string
	SaleID       *string
	UserID       string
	Amount       decimal.Decimal
	Currency     string
}

type CheckoutResult struct {
	Payment    *domain.Payment
	ApproveURL string
}

type SaleLine struct {
	ProductID string
	Quantity  int
}

type SaleRequest struct {
	GymID       string
	CashierID   string
	Items       []SaleLine
	Currency    string
	PaymentType domain.PaymentMethod
}

// RecordResult reports what a settlement did to the counters. CacheErr is the
// best-effort cache invalidation failure, if any; it never fails the record.
type RecordResult struct {
	Applied   bool
	Duplicate bool
	CacheErr  error
}

// KPIResult carries the dashboard numbers. Degraded is set when the store
// could not be read and the numbers are fallback zeros.
type KPIResult struct {
	KPIs     domain.KPIs
	Degraded bool
	Cached   bool
}
