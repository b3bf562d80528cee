package service_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/messaging"
	"gymcore-backend/internal/paypal"
	"gymcore-backend/internal/service"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func strPtr(s string) *string { return &s }

type ledgerFixture struct {
	payments *MockPaymentRepo
	provider *MockProvider
	bus      *MockBus
	svc      service.LedgerService
}

func newLedgerFixture(t *testing.T, opts service.LedgerOptions) *ledgerFixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &ledgerFixture{
		payments: new(MockPaymentRepo),
		provider: new(MockProvider),
		bus:      new(MockBus),
	}
	if opts.Now == nil {
		opts.Now = clock
	}
	f.svc = service.NewLedgerService(f.payments, f.provider, f.bus, node, opts)
	return f
}

func pendingMembershipPayment() *domain.Payment {
	return &domain.Payment{
		ID:           "pay-1",
		ExternalRef:  "ORDER-1",
		Amount:       decimal.NewFromInt(50),
		Currency:     "USD",
		Method:       domain.PaymentMethodOnline,
		Status:       domain.PaymentStatusPending,
		MembershipID: strPtr("mem-1"),
		CreatedAt:    fixedNow.Add(-time.Hour),
	}
}

func webhookHeaders(sentAt time.Time) http.Header {
	h := http.Header{}
	h.Set(paypal.HeaderAuthAlgo, "SHA256withRSA")
	h.Set(paypal.HeaderCertURL, "https://api.paypal.com/cert")
	h.Set(paypal.HeaderTransmissionID, "tx-1")
	h.Set(paypal.HeaderTransmissionSig, "sig")
	h.Set(paypal.HeaderTransmissionTime, sentAt.Format(time.RFC3339))
	return h
}

func TestLedgerService_SettleOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("SettlesOnceAndPublishesOnce", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		payment := pendingMembershipPayment()

		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(payment, nil).Once()
		f.payments.On("MarkCompleted", ctx, "pay-1", fixedNow).Return(true, nil).Once()
		f.bus.On("Publish", ctx, domain.RoutingKeyPaymentCompleted, mock.MatchedBy(func(e domain.SettlementEvent) bool {
			return e.SubjectKind == domain.SubjectKindMembership &&
				e.SubjectID == "mem-1" &&
				e.PaymentID == "pay-1" &&
				e.Source == domain.SourceMembership &&
				e.Status == domain.PaymentStatusCompleted &&
				e.Amount.Equal(decimal.NewFromInt(50)) &&
				e.Timestamp.Equal(fixedNow)
		}), messaging.PublishOptions{}).Return(nil).Once()

		result, err := f.svc.SettleOnce(ctx, "ORDER-1")
		require.NoError(t, err)
		assert.Equal(t, domain.SettleProcessed, result)

		completed := *payment
		completed.Status = domain.PaymentStatusCompleted
		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(&completed, nil).Once()

		result, err = f.svc.SettleOnce(ctx, "ORDER-1")
		require.NoError(t, err)
		assert.Equal(t, domain.SettleAlreadyProcessed, result)

		f.payments.AssertExpectations(t)
		f.bus.AssertNumberOfCalls(t, "Publish", 1)
	})

	t.Run("LostRaceIsAlreadyProcessed", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(pendingMembershipPayment(), nil)
		f.payments.On("MarkCompleted", ctx, "pay-1", fixedNow).Return(false, nil)

		result, err := f.svc.SettleOnce(ctx, "ORDER-1")
		require.NoError(t, err)
		assert.Equal(t, domain.SettleAlreadyProcessed, result)
		f.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SaleGoesToInventoryTrigger", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		payment := pendingMembershipPayment()
		payment.MembershipID = nil
		payment.SaleID = strPtr("sale-1")

		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(payment, nil)
		f.payments.On("MarkCompleted", ctx, "pay-1", fixedNow).Return(true, nil)
		f.bus.On("Publish", ctx, domain.RoutingKeySaleCompleted, mock.MatchedBy(func(e domain.SaleCompletedEvent) bool {
			return e.SaleID == "sale-1" && e.PaymentID == "pay-1" && e.Source == domain.SourcePOS
		}), messaging.PublishOptions{}).Return(nil)

		result, err := f.svc.SettleOnce(ctx, "ORDER-1")
		require.NoError(t, err)
		assert.Equal(t, domain.SettleProcessed, result)
		f.bus.AssertExpectations(t)
	})

	t.Run("PublishFailureKeepsSettlement", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(pendingMembershipPayment(), nil)
		f.payments.On("MarkCompleted", ctx, "pay-1", fixedNow).Return(true, nil)
		f.bus.On("Publish", ctx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

		result, err := f.svc.SettleOnce(ctx, "ORDER-1")
		require.NoError(t, err)
		assert.Equal(t, domain.SettleProcessed, result)
	})

	t.Run("UnknownPayment", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		f.payments.On("GetByExternalRef", ctx, "ORDER-X").Return(nil, domain.ErrPaymentNotFound)

		result, err := f.svc.SettleOnce(ctx, "ORDER-X")
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
		assert.Equal(t, domain.SettleNotFound, result)
	})

	t.Run("FailedPaymentIsNotSettlable", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		payment := pendingMembershipPayment()
		payment.Status = domain.PaymentStatusFailed
		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(payment, nil)

		_, err := f.svc.SettleOnce(ctx, "ORDER-1")
		assert.ErrorIs(t, err, domain.ErrPaymentNotSettlable)
	})
}

func TestLedgerService_RejectIfStale(t *testing.T) {
	f := newLedgerFixture(t, service.LedgerOptions{FreshnessWindow: 5 * time.Minute})

	tests := []struct {
		name    string
		headers http.Header
		stale   bool
	}{
		{"Fresh", webhookHeaders(fixedNow.Add(-time.Minute)), false},
		{"AtWindowEdge", webhookHeaders(fixedNow.Add(-5 * time.Minute)), false},
		{"TooOld", webhookHeaders(fixedNow.Add(-6 * time.Minute)), true},
		{"FromTheFuture", webhookHeaders(fixedNow.Add(10 * time.Minute)), true},
		{"Missing", http.Header{}, true},
		{"Unparseable", http.Header{paypal.HeaderTransmissionTime: []string{"yesterday"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.stale, f.svc.RejectIfStale(tt.headers))
		})
	}
}

func TestLedgerService_VerifyInboundNotification(t *testing.T) {
	ctx := context.Background()
	raw := []byte(`{"id":"WH-1"}`)

	t.Run("MissingHeadersNeverCallProvider", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{WebhookID: "wh"})
		h := webhookHeaders(fixedNow)
		h.Del(paypal.HeaderTransmissionSig)

		assert.False(t, f.svc.VerifyInboundNotification(ctx, h, raw))
		f.provider.AssertNotCalled(t, "VerifyWebhookSignature", mock.Anything, mock.Anything)
	})

	t.Run("PassesRawBodyThrough", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{WebhookID: "wh"})
		f.provider.On("VerifyWebhookSignature", ctx, mock.MatchedBy(func(r paypal.VerifyRequest) bool {
			return string(r.Event) == string(raw) && r.WebhookID == "wh" && r.TransmissionID == "tx-1"
		})).Return(true, nil)

		assert.True(t, f.svc.VerifyInboundNotification(ctx, webhookHeaders(fixedNow), raw))
	})

	t.Run("ProviderErrorIsFalse", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{WebhookID: "wh"})
		f.provider.On("VerifyWebhookSignature", ctx, mock.Anything).Return(false, errors.New("timeout"))

		assert.False(t, f.svc.VerifyInboundNotification(ctx, webhookHeaders(fixedNow), raw))
	})

	t.Run("SkipSignature", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{SkipSignature: true})
		assert.True(t, f.svc.VerifyInboundNotification(ctx, http.Header{}, raw))
	})
}

func TestLedgerService_HandleWebhook(t *testing.T) {
	ctx := context.Background()
	approved := []byte(`{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-1"}}`)

	t.Run("Stale", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		status, err := f.svc.HandleWebhook(ctx, webhookHeaders(fixedNow.Add(-time.Hour)), approved)
		require.NoError(t, err)
		assert.Equal(t, domain.WebhookIgnoredStale, status)
		f.provider.AssertNotCalled(t, "VerifyWebhookSignature", mock.Anything, mock.Anything)
	})

	t.Run("InvalidSignature", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		f.provider.On("VerifyWebhookSignature", ctx, mock.Anything).Return(false, nil)

		status, err := f.svc.HandleWebhook(ctx, webhookHeaders(fixedNow), approved)
		require.NoError(t, err)
		assert.Equal(t, domain.WebhookIgnoredInvalidSignature, status)
		f.payments.AssertNotCalled(t, "GetByExternalRef", mock.Anything, mock.Anything)
	})

	t.Run("OtherEventType", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		f.provider.On("VerifyWebhookSignature", ctx, mock.Anything).Return(true, nil)

		status, err := f.svc.HandleWebhook(ctx, webhookHeaders(fixedNow), []byte(`{"event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"CAP-1"}}`))
		require.NoError(t, err)
		assert.Equal(t, domain.WebhookIgnoredEventType, status)
	})

	t.Run("CaptureSettlesOrder", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		f.provider.On("VerifyWebhookSignature", ctx, mock.Anything).Return(true, nil)
		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(pendingMembershipPayment(), nil)
		f.payments.On("MarkCompleted", ctx, "pay-1", fixedNow).Return(true, nil)
		f.bus.On("Publish", ctx, domain.RoutingKeyPaymentCompleted, mock.Anything, mock.Anything).Return(nil)

		capture := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`)
		status, err := f.svc.HandleWebhook(ctx, webhookHeaders(fixedNow), capture)
		require.NoError(t, err)
		assert.Equal(t, domain.WebhookProcessed, status)
	})

	t.Run("AlreadyProcessed", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		payment := pendingMembershipPayment()
		payment.Status = domain.PaymentStatusCompleted
		f.provider.On("VerifyWebhookSignature", ctx, mock.Anything).Return(true, nil)
		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(payment, nil)

		status, err := f.svc.HandleWebhook(ctx, webhookHeaders(fixedNow), approved)
		require.NoError(t, err)
		assert.Equal(t, domain.WebhookAlreadyProcessed, status)
	})

	t.Run("UnknownOrder", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		f.provider.On("VerifyWebhookSignature", ctx, mock.Anything).Return(true, nil)
		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(nil, domain.ErrPaymentNotFound)

		status, err := f.svc.HandleWebhook(ctx, webhookHeaders(fixedNow), approved)
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
		assert.Equal(t, domain.WebhookNotFound, status)
	})

	t.Run("FailedPaymentIsIgnored", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		payment := pendingMembershipPayment()
		payment.Status = domain.PaymentStatusFailed
		f.provider.On("VerifyWebhookSignature", ctx, mock.Anything).Return(true, nil)
		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(payment, nil)

		status, err := f.svc.HandleWebhook(ctx, webhookHeaders(fixedNow), approved)
		require.NoError(t, err)
		assert.Equal(t, domain.WebhookIgnoredNotSettlable, status)
		f.payments.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything)
		f.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestLedgerService_CreateManualSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("CashActivation", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		f.payments.On("Create", ctx, mock.MatchedBy(func(p *domain.Payment) bool {
			return p.Status == domain.PaymentStatusCompleted && p.Method == domain.PaymentMethodCash
		})).Return(nil)
		f.bus.On("Publish", ctx, domain.RoutingKeyPaymentCompleted, mock.MatchedBy(func(e domain.SettlementEvent) bool {
			return e.SubjectKind == domain.SubjectKindMembership && e.SubjectID == "mem-1" &&
				e.Source == domain.SourceManualPayment && e.PaymentMethod == domain.PaymentMethodCash
		}), messaging.PublishOptions{}).Return(nil)

		payment, err := f.svc.CreateManualSettlement(ctx, service.ManualSettlementRequest{
			MembershipID: strPtr("mem-1"),
			Amount:       decimal.NewFromInt(50),
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(payment.ExternalRef, "MANUAL-"))
		assert.Equal(t, "USD", payment.Currency)
		assert.Equal(t, fixedNow, *payment.CompletedAt)
		f.bus.AssertExpectations(t)
	})

	t.Run("RejectsNonPositiveAmount", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		_, err := f.svc.CreateManualSettlement(ctx, service.ManualSettlementRequest{Amount: decimal.Zero})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("RejectsTwoSubjects", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		_, err := f.svc.CreateManualSettlement(ctx, service.ManualSettlementRequest{
			MembershipID: strPtr("mem-1"),
			SaleID:       strPtr("sale-1"),
			Amount:       decimal.NewFromInt(10),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidSubject)
		f.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestLedgerService_CreateCheckout(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, service.LedgerOptions{ReturnURL: "https://gym/return"})

	f.provider.On("CreateOrder", ctx, paypal.OrderRequest{
		ReferenceID: "mem-1",
		Amount:      "50.00",
		Currency:    "USD",
		ReturnURL:   "https://gym/return",
	}).Return(&paypal.Order{ID: "ORDER-9", ApproveURL: "https://paypal/approve"}, nil)
	f.payments.On("Create", ctx, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.ExternalRef == "ORDER-9" && p.Status == domain.PaymentStatusPending && *p.UserID == "user-1"
	})).Return(nil)

	res, err := f.svc.CreateCheckout(ctx, service.CheckoutRequest{
		MembershipID: strPtr("mem-1"),
		UserID:       "user-1",
		Amount:       decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://paypal/approve", res.ApproveURL)
	assert.Equal(t, "ORDER-9", res.Payment.ExternalRef)

	_, err = f.svc.CreateCheckout(ctx, service.CheckoutRequest{Amount: decimal.NewFromInt(50)})
	assert.ErrorIs(t, err, domain.ErrInvalidSubject)
}

func TestLedgerService_Redrive(t *testing.T) {
	ctx := context.Background()

	t.Run("RepublishesCompleted", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		payment := pendingMembershipPayment()
		payment.Status = domain.PaymentStatusCompleted
		completedAt := fixedNow.Add(-time.Hour)
		payment.CompletedAt = &completedAt

		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(payment, nil)
		f.bus.On("Publish", ctx, domain.RoutingKeyPaymentCompleted, mock.MatchedBy(func(e domain.SettlementEvent) bool {
			return e.PaymentID == "pay-1" && e.Timestamp.Equal(completedAt)
		}), messaging.PublishOptions{}).Return(nil)

		require.NoError(t, f.svc.Redrive(ctx, "ORDER-1"))
		f.bus.AssertExpectations(t)
	})

	t.Run("PendingIsRefused", func(t *testing.T) {
		f := newLedgerFixture(t, service.LedgerOptions{})
		f.payments.On("GetByExternalRef", ctx, "ORDER-1").Return(pendingMembershipPayment(), nil)

		err := f.svc.Redrive(ctx, "ORDER-1")
		assert.ErrorIs(t, err, domain.ErrPaymentNotCompleted)
	})
}
