package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/messaging"
	"gymcore-backend/internal/paypal"
	"gymcore-backend/internal/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

const defaultCurrency = "USD"

// LedgerOptions carries the provider settings the ledger needs.
type LedgerOptions struct {
	WebhookID       string
	FreshnessWindow time.Duration
	// SkipSignature bypasses provider verification. Development only; the
	// freshness check still applies.
	SkipSignature bool
	ReturnURL     string
	CancelURL     string
	Now           func() time.Time
}

type ledgerService struct {
	payments repository.PaymentRepository
	provider PaymentProvider
	bus      EventBus
	refs     *snowflake.Node
	opts     LedgerOptions
}

func NewLedgerService(
	payments repository.PaymentRepository,
	provider PaymentProvider,
	bus EventBus,
	refs *snowflake.Node,
	opts LedgerOptions,
) LedgerService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = 5 * time.Minute
	}
	return &ledgerService{
		payments: payments,
		provider: provider,
		bus:      bus,
		refs:     refs,
		opts:     opts,
	}
}

func (s *ledgerService) VerifyInboundNotification(ctx context.Context, headers http.Header, rawBody []byte) bool {
	if s.opts.SkipSignature {
		logger.WarnContext(ctx, "Webhook signature verification skipped by configuration")
		return true
	}

	req, ok := paypal.VerifyRequestFromHeaders(headers, s.opts.WebhookID, rawBody)
	if !ok {
		logger.WarnContext(ctx, "Webhook rejected", "reason", domain.ErrMissingHeaders)
		return false
	}

	verified, err := s.provider.VerifyWebhookSignature(ctx, req)
	if err != nil {
		logger.WarnContext(ctx, "Webhook signature verification failed", "transmissionID", req.TransmissionID, "error", err)
		return false
	}
	if !verified {
		logger.WarnContext(ctx, "Webhook rejected", "reason", domain.ErrInvalidSignature, "transmissionID", req.TransmissionID)
	}
	return verified
}

func (s *ledgerService) RejectIfStale(headers http.Header) bool {
	sent, ok := paypal.TransmissionTime(headers)
	if !ok {
		return true
	}
	age := s.opts.Now().Sub(sent)
	return age > s.opts.FreshnessWindow || age < -s.opts.FreshnessWindow
}

func (s *ledgerService) SettleOnce(ctx context.Context, externalRef string) (domain.SettleResult, error) {
	payment, err := s.payments.GetByExternalRef(ctx, externalRef)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		logger.ErrorContext(ctx, "Settlement for unknown payment", "externalRef", externalRef)
		return domain.SettleNotFound, fmt.Errorf("settle %s: %w", externalRef, err)
	}
	if err != nil {
		return "", fmt.Errorf("load payment %s: %w", externalRef, err)
	}

	switch payment.Status {
	case domain.PaymentStatusCompleted:
		logger.InfoContext(ctx, "Payment already settled", "paymentID", payment.ID, "externalRef", externalRef)
		return domain.SettleAlreadyProcessed, nil
	case domain.PaymentStatusPending:
	default:
		return "", fmt.Errorf("settle %s in status %s: %w", externalRef, payment.Status, domain.ErrPaymentNotSettlable)
	}

	now := s.opts.Now().UTC()
	won, err := s.payments.MarkCompleted(ctx, payment.ID, now)
	if err != nil {
		return "", fmt.Errorf("mark payment %s completed: %w", payment.ID, err)
	}
	if !won {
		logger.InfoContext(ctx, "Payment settled concurrently", "paymentID", payment.ID)
		return domain.SettleAlreadyProcessed, nil
	}

	payment.Status = domain.PaymentStatusCompleted
	payment.CompletedAt = &now

	// the row is committed; a lost publish is recovered by Redrive
	if err := s.publishSettlement(ctx, payment, sourceFor(payment)); err != nil {
		logger.ErrorContext(ctx, "Settlement committed but event not confirmed by the broker, redrive required",
			"paymentID", payment.ID, "externalRef", externalRef, "error", err)
		return domain.SettleProcessed, nil
	}

	logger.InfoContext(ctx, "Payment settled",
		"paymentID", payment.ID, "subjectKind", payment.SubjectKind(), "subjectID", payment.SubjectID())
	return domain.SettleProcessed, nil
}

func (s *ledgerService) CreateManualSettlement(ctx context.Context, req ManualSettlementRequest) (*domain.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	method := req.Method
	if method == "" {
		method = domain.PaymentMethodCash
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMethod, method)
	}

	now := s.opts.Now().UTC()
	payment := &domain.Payment{
		ID:           uuid.NewString(),
		ExternalRef:  "MANUAL-" + s.refs.Generate().String(),
		Amount:       req.Amount,
		Currency:     currencyOrDefault(req.Currency),
		Method:       method,
		Status:       domain.PaymentStatusCompleted,
		MembershipID: req.MembershipID,
		SaleID:       req.SaleID,
		UserID:       req.UserID,
		CreatedAt:    now,
		CompletedAt:  &now,
	}
	if err := payment.ValidateSubject(); err != nil {
		return nil, err
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create manual payment: %w", err)
	}

	if err := s.publishSettlement(ctx, payment, domain.SourceManualPayment); err != nil {
		logger.ErrorContext(ctx, "Manual settlement stored but event not confirmed by the broker, redrive required",
			"paymentID", payment.ID, "externalRef", payment.ExternalRef, "error", err)
	}

	logger.InfoContext(ctx, "Manual settlement recorded",
		"paymentID", payment.ID, "externalRef", payment.ExternalRef, "subjectKind", payment.SubjectKind())
	return payment, nil
}

func (s *ledgerService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if (req.MembershipID == nil) == (req.SaleID == nil) {
		return nil, domain.ErrInvalidSubject
	}

	payment := &domain.Payment{
		ID:           uuid.NewString(),
		Amount:       req.Amount,
		Currency:     currencyOrDefault(req.Currency),
		Method:       domain.PaymentMethodOnline,
		Status:       domain.PaymentStatusPending,
		MembershipID: req.MembershipID,
		SaleID:       req.SaleID,
		CreatedAt:    s.opts.Now().UTC(),
	}
	if req.UserID != "" {
		payment.UserID = &req.UserID
	}

	order, err := s.provider.CreateOrder(ctx, paypal.OrderRequest{
		ReferenceID: payment.SubjectID(),
		Amount:      payment.Amount.StringFixed(2),
		Currency:    payment.Currency,
		ReturnURL:   s.opts.ReturnURL,
		CancelURL:   s.opts.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider order: %w", err)
	}
	payment.ExternalRef = order.ID

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("store pending payment for order %s: %w", order.ID, err)
	}

	logger.InfoContext(ctx, "Checkout created", "paymentID", payment.ID, "orderID", order.ID)
	return &CheckoutResult{Payment: payment, ApproveURL: order.ApproveURL}, nil
}

func (s *ledgerService) HandleWebhook(ctx context.Context, headers http.Header, rawBody []byte) (domain.WebhookStatus, error) {
	if s.RejectIfStale(headers) {
		logger.WarnContext(ctx, "Webhook rejected", "reason", domain.ErrStaleNotification,
			"transmissionTime", headers.Get(paypal.HeaderTransmissionTime))
		return domain.WebhookIgnoredStale, nil
	}
	if !s.VerifyInboundNotification(ctx, headers, rawBody) {
		return domain.WebhookIgnoredInvalidSignature, nil
	}

	event, err := paypal.ParseWebhookEvent(rawBody)
	if err != nil {
		logger.WarnContext(ctx, "Webhook body is not an event", "error", err)
		return domain.WebhookIgnoredEventType, nil
	}
	if !event.IsSettlement() {
		logger.InfoContext(ctx, "Webhook event ignored", "eventType", event.EventType, "eventID", event.ID)
		return domain.WebhookIgnoredEventType, nil
	}
	orderID := event.OrderID()
	if orderID == "" {
		logger.WarnContext(ctx, "Settlement webhook without order id", "eventType", event.EventType, "eventID", event.ID)
		return domain.WebhookIgnoredEventType, nil
	}

	result, err := s.SettleOnce(ctx, orderID)
	if err != nil {
		switch {
		case result == domain.SettleNotFound:
			return domain.WebhookNotFound, err
		case errors.Is(err, domain.ErrPaymentNotSettlable):
			logger.WarnContext(ctx, "Settlement webhook for a payment that cannot settle",
				"orderID", orderID, "eventID", event.ID, "error", err)
			return domain.WebhookIgnoredNotSettlable, nil
		}
		return "", err
	}
	if result == domain.SettleAlreadyProcessed {
		return domain.WebhookAlreadyProcessed, nil
	}
	return domain.WebhookProcessed, nil
}

func (s *ledgerService) Redrive(ctx context.Context, externalRef string) error {
	payment, err := s.payments.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return fmt.Errorf("load payment %s: %w", externalRef, err)
	}
	if payment.Status != domain.PaymentStatusCompleted {
		return fmt.Errorf("redrive %s in status %s: %w", externalRef, payment.Status, domain.ErrPaymentNotCompleted)
	}
	if payment.CompletedAt == nil {
		now := s.opts.Now().UTC()
		payment.CompletedAt = &now
	}

	if err := s.publishSettlement(ctx, payment, sourceFor(payment)); err != nil {
		return fmt.Errorf("redrive %s: %w", externalRef, err)
	}
	logger.InfoContext(ctx, "Settlement event re-driven", "paymentID", payment.ID, "externalRef", externalRef)
	return nil
}

// publishSettlement emits the single event a settled payment produces. Sales go
// to the inventory trigger; everything else goes straight to payment.completed.
func (s *ledgerService) publishSettlement(ctx context.Context, p *domain.Payment, source string) error {
	at := *p.CompletedAt
	if p.SubjectKind() == domain.SubjectKindSale {
		event := domain.SaleCompletedEvent{
			SaleID:        *p.SaleID,
			PaymentID:     p.ID,
			Amount:        p.Amount,
			Currency:      p.Currency,
			PaymentMethod: p.Method,
			Status:        domain.PaymentStatusCompleted,
			Timestamp:     at.UTC(),
			Source:        source,
		}
		return s.bus.Publish(ctx, domain.RoutingKeySaleCompleted, event, messaging.PublishOptions{})
	}

	event := domain.NewSettlementEvent(p, source, at)
	return s.bus.Publish(ctx, domain.RoutingKeyPaymentCompleted, event, messaging.PublishOptions{})
}

func sourceFor(p *domain.Payment) string {
	if p.Method != domain.PaymentMethodOnline {
		return domain.SourceManualPayment
	}
	switch p.SubjectKind() {
	case domain.SubjectKindSale:
		return domain.SourcePOS
	case domain.SubjectKindMembership:
		return domain.SourceMembership
	default:
		return domain.SourceManualPayment
	}
}

func currencyOrDefault(c string) string {
	if c == "" {
		return defaultCurrency
	}
	return c
}
