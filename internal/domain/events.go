package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubjectKind string

const (
	SubjectKindMembership SubjectKind = "MEMBERSHIP"
	SubjectKindSale       SubjectKind = "SALE"
	SubjectKindManual     SubjectKind = "MANUAL"
)

const (
	RoutingKeyPaymentCompleted = "payment.completed"
	RoutingKeySaleCompleted    = "sale.completed"

	// HeaderRetryCount is set by the republishing consumer, never by the producer.
	HeaderRetryCount = "x-retry-count"
)

// Source tags carried on settlement events.
const (
	SourcePOS           = "POS"
	SourceMembership    = "MEMBERSHIP"
	SourceManualPayment = "MANUAL_PAYMENT"
)

// SettlementEvent is published on payment.completed.
type SettlementEvent struct {
	SubjectKind   SubjectKind     `json:"subjectKind"`
	SubjectID     string          `json:"subjectId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Status        PaymentStatus   `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	PaymentID     string          `json:"paymentId,omitempty"`
}

// Validate rejects events a consumer cannot act on.
func (e *SettlementEvent) Validate() error {
	switch e.SubjectKind {
	case SubjectKindMembership, SubjectKindSale, SubjectKindManual:
	default:
		return ErrMalformedEvent
	}
	if e.SubjectID == "" || e.Timestamp.IsZero() {
		return ErrMalformedEvent
	}
	return nil
}

// EventID identifies the event for dedupe. The payment id is preferred; older
// producers that omit it fall back to subject and timestamp.
func (e *SettlementEvent) EventID() string {
	if e.PaymentID != "" {
		return string(e.SubjectKind) + ":" + e.PaymentID
	}
	return string(e.SubjectKind) + ":" + e.SubjectID + ":" + e.Timestamp.UTC().Format(time.RFC3339Nano)
}

// SaleCompletedEvent is the internal trigger published on sale.completed.
type SaleCompletedEvent struct {
	SaleID        string          `json:"saleId"`
	PaymentID     string          `json:"paymentId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Status        PaymentStatus   `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
}

func (e *SaleCompletedEvent) Validate() error {
	if e.SaleID == "" || e.PaymentID == "" {
		return ErrMalformedEvent
	}
	return nil
}

// NewSettlementEvent builds the payment.completed payload for a settled payment.
func NewSettlementEvent(p *Payment, source string, at time.Time) SettlementEvent {
	return SettlementEvent{
		SubjectKind:   p.SubjectKind(),
		SubjectID:     p.SubjectID(),
		Amount:        p.Amount,
		Currency:      p.Currency,
		PaymentMethod: p.Method,
		Status:        PaymentStatusCompleted,
		Timestamp:     at.UTC(),
		Source:        source,
		PaymentID:     p.ID,
	}
}
