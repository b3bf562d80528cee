package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/security"
	"gymcore-backend/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type routerFixture struct {
	tm         security.TokenManager
	ledger     *MockLedgerService
	membership *MockMembershipService
	inventory  *MockInventoryService
	analytics  *MockAnalyticsService
	handler    http.Handler
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		tm:         security.NewTokenManager(testSecret, time.Hour),
		ledger:     new(MockLedgerService),
		membership: new(MockMembershipService),
		inventory:  new(MockInventoryService),
		analytics:  new(MockAnalyticsService),
	}
	f.handler = NewRouter(f.tm, Services{
		Ledger:     f.ledger,
		Membership: f.membership,
		Inventory:  f.inventory,
		Analytics:  f.analytics,
	})
	return f
}

func (f *routerFixture) token(t *testing.T, userID, gymID string, roles ...string) string {
	t.Helper()
	token, err := f.tm.GenerateAccessToken(userID, gymID, roles)
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture()
	rec := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestWebhookHandler(t *testing.T) {
	raw := `{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-1"}}`

	tests := []struct {
		name       string
		status     domain.WebhookStatus
		err        error
		wantCode   int
		wantStatus string
	}{
		{"Processed", domain.WebhookProcessed, nil, http.StatusOK, "processed"},
		{"AlreadyProcessed", domain.WebhookAlreadyProcessed, nil, http.StatusOK, "already_processed"},
		{"InvalidSignatureAcknowledged", domain.WebhookIgnoredInvalidSignature, nil, http.StatusOK, "ignored_invalid_signature"},
		{"StaleAcknowledged", domain.WebhookIgnoredStale, nil, http.StatusOK, "ignored_stale"},
		{"NotSettlableAcknowledged", domain.WebhookIgnoredNotSettlable, nil, http.StatusOK, "ignored_not_settlable"},
		{"UnknownPayment", domain.WebhookNotFound, fmt.Errorf("settle ORDER-1: %w", domain.ErrPaymentNotFound), http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			f.ledger.On("HandleWebhook", mock.Anything, mock.Anything, []byte(raw)).Return(tt.status, tt.err)

			rec := f.do(http.MethodPost, "/webhooks/paypal", raw, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantStatus, decodeBody(t, rec)["status"])
		})
	}

	t.Run("InternalErrorAsksForRetry", func(t *testing.T) {
		f := newRouterFixture()
		f.ledger.On("HandleWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(domain.WebhookStatus(""), errors.New("db down"))

		rec := f.do(http.MethodPost, "/webhooks/paypal", raw, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("HeadersReachLedger", func(t *testing.T) {
		f := newRouterFixture()
		f.ledger.On("HandleWebhook", mock.Anything, mock.MatchedBy(func(h http.Header) bool {
			return h.Get("Paypal-Transmission-Id") == "tx-1"
		}), mock.Anything).Return(domain.WebhookProcessed, nil)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(raw))
		req.Header.Set("Paypal-Transmission-Id", "tx-1")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		f.ledger.AssertExpectations(t)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("MissingToken", func(t *testing.T) {
		f := newRouterFixture()
		rec := f.do(http.MethodGet, "/v1/analytics/kpis", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		f := newRouterFixture()
		rec := f.do(http.MethodGet, "/v1/analytics/kpis", "", "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MemberCannotRecordManualPayment", func(t *testing.T) {
		f := newRouterFixture()
		rec := f.do(http.MethodPost, "/v1/payments/manual", `{"amount":"50"}`, f.token(t, "user-1", "", security.RoleMember))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		f.ledger.AssertNotCalled(t, "CreateManualSettlement", mock.Anything, mock.Anything)
	})

	t.Run("UnroutedServiceIsNotFound", func(t *testing.T) {
		tm := security.NewTokenManager(testSecret, time.Hour)
		handler := NewRouter(tm, Services{Analytics: new(MockAnalyticsService)})

		req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPaymentHandler(t *testing.T) {
	t.Run("CheckoutUsesTokenUser", func(t *testing.T) {
		f := newRouterFixture()
		f.ledger.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(req service.CheckoutRequest) bool {
			return req.UserID == "user-1" && *req.MembershipID == "mem-1" && req.Amount.Equal(decimal.NewFromInt(50))
		})).Return(&service.CheckoutResult{
			Payment:    &domain.Payment{ID: "pay-1", ExternalRef: "ORDER-1", Status: domain.PaymentStatusPending},
			ApproveURL: "https://paypal.test/approve",
		}, nil)

		rec := f.do(http.MethodPost, "/v1/payments/checkout",
			`{"membership_id":"mem-1","amount":"50.00","currency":"USD"}`, f.token(t, "user-1", ""))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "https://paypal.test/approve", decodeBody(t, rec)["approve_url"])
	})

	t.Run("CheckoutInvalidSubject", func(t *testing.T) {
		f := newRouterFixture()
		f.ledger.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, domain.ErrInvalidSubject)

		rec := f.do(http.MethodPost, "/v1/payments/checkout", `{"amount":"50"}`, f.token(t, "user-1", ""))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ManualByManager", func(t *testing.T) {
		f := newRouterFixture()
		f.ledger.On("CreateManualSettlement", mock.Anything, mock.MatchedBy(func(req service.ManualSettlementRequest) bool {
			return *req.MembershipID == "mem-1" && req.Method == domain.PaymentMethodCash
		})).Return(&domain.Payment{ID: "pay-1", ExternalRef: "MANUAL-1", Status: domain.PaymentStatusCompleted}, nil)

		rec := f.do(http.MethodPost, "/v1/payments/manual",
			`{"membership_id":"mem-1","amount":"50","method":"CASH"}`, f.token(t, "mgr-1", "gym-1", security.RoleManager))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "MANUAL-1", decodeBody(t, rec)["external_ref"])
	})

	t.Run("UnknownFieldRejected", func(t *testing.T) {
		f := newRouterFixture()
		rec := f.do(http.MethodPost, "/v1/payments/manual", `{"amount":"50","bogus":1}`, f.token(t, "mgr-1", "", security.RoleManager))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMembershipHandler(t *testing.T) {
	t.Run("Join", func(t *testing.T) {
		f := newRouterFixture()
		f.membership.On("JoinGym", mock.Anything, "IRON42", "user-1").
			Return(domain.NewPendingMembership("mem-1", "user-1", "gym-1", time.Now()), nil)

		rec := f.do(http.MethodPost, "/v1/memberships/join", `{"code":"IRON42"}`, f.token(t, "user-1", ""))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "PENDING_PAYMENT", decodeBody(t, rec)["status"])
	})

	t.Run("JoinTwiceConflicts", func(t *testing.T) {
		f := newRouterFixture()
		f.membership.On("JoinGym", mock.Anything, "IRON42", "user-1").Return(nil, domain.ErrMembershipExists)

		rec := f.do(http.MethodPost, "/v1/memberships/join", `{"code":"IRON42"}`, f.token(t, "user-1", ""))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("JoinUnknownGym", func(t *testing.T) {
		f := newRouterFixture()
		f.membership.On("JoinGym", mock.Anything, "NOPE", "user-1").Return(nil, domain.ErrGymNotFound)

		rec := f.do(http.MethodPost, "/v1/memberships/join", `{"code":"NOPE"}`, f.token(t, "user-1", ""))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("BanByManager", func(t *testing.T) {
		f := newRouterFixture()
		f.membership.On("Ban", mock.Anything, "mem-1", "mgr-1", "abusive").
			Return(&domain.Membership{ID: "mem-1", Status: domain.MembershipStatusBanned}, nil)

		rec := f.do(http.MethodPost, "/v1/memberships/mem-1/ban", `{"reason":"abusive"}`, f.token(t, "mgr-1", "gym-1", security.RoleManager))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "BANNED", decodeBody(t, rec)["status"])
	})
}

func TestPOSHandler(t *testing.T) {
	body := `{"items":[{"product_id":"P1","quantity":3}],"payment_type":"CASH"}`

	t.Run("InstantSaleScopedToCashierGym", func(t *testing.T) {
		f := newRouterFixture()
		f.inventory.On("CreateInstantSale", mock.Anything, service.SaleRequest{
			GymID:       "gym-1",
			CashierID:   "mgr-1",
			Items:       []service.SaleLine{{ProductID: "P1", Quantity: 3}},
			PaymentType: domain.PaymentMethodCash,
		}).Return(&domain.Sale{ID: "sale-1", Status: domain.SaleStatusCompleted}, nil)

		rec := f.do(http.MethodPost, "/v1/pos/sales", body, f.token(t, "mgr-1", "gym-1", security.RoleManager))
		assert.Equal(t, http.StatusCreated, rec.Code)
		f.inventory.AssertExpectations(t)
	})

	t.Run("OtherGymForbidden", func(t *testing.T) {
		f := newRouterFixture()
		rec := f.do(http.MethodPost, "/v1/pos/sales",
			`{"gym_id":"gym-2","items":[{"product_id":"P1","quantity":1}]}`, f.token(t, "mgr-1", "gym-1", security.RoleManager))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("ShortageConflicts", func(t *testing.T) {
		f := newRouterFixture()
		f.inventory.On("CreateInstantSale", mock.Anything, mock.Anything).
			Return(nil, &domain.InsufficientStockError{ProductID: "P1", Requested: 3, Available: 1})

		rec := f.do(http.MethodPost, "/v1/pos/sales", body, f.token(t, "mgr-1", "gym-1", security.RoleManager))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("PendingSale", func(t *testing.T) {
		f := newRouterFixture()
		f.inventory.On("CreatePendingSale", mock.Anything, mock.MatchedBy(func(req service.SaleRequest) bool {
			return req.GymID == "gym-1" && len(req.Items) == 1
		})).Return(&domain.Sale{ID: "sale-2", Status: domain.SaleStatusPending}, nil)

		rec := f.do(http.MethodPost, "/v1/pos/sales/pending", body, f.token(t, "mgr-1", "gym-1", security.RoleManager))
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("GymRequired", func(t *testing.T) {
		f := newRouterFixture()
		rec := f.do(http.MethodPost, "/v1/pos/sales", body, f.token(t, "mgr-1", "", security.RoleManager))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAnalyticsHandler(t *testing.T) {
	f := newRouterFixture()
	f.analytics.On("GetKPIs", mock.Anything).Return(service.KPIResult{
		KPIs:     domain.KPIs{RevenueToday: decimal.Zero},
		Degraded: true,
	})

	rec := f.do(http.MethodGet, "/v1/analytics/kpis", "", f.token(t, "user-1", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["degraded"])
}
