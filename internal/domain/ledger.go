package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

type PaymentMethod string

const (
	PaymentMethodOnline      PaymentMethod = "ONLINE"
	PaymentMethodCash        PaymentMethod = "CASH"
	PaymentMethodCardPresent PaymentMethod = "CARD_PRESENT"
)

// Valid reports whether m is one of the known payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodOnline, PaymentMethodCash, PaymentMethodCardPresent:
		return true
	}
	return false
}

// Payment is the ledger's record of one payment. ExternalRef is unique and a
// record moves PENDING -> COMPLETED at most once.
type Payment struct {
	ID           string          `json:"id"`
	ExternalRef  string          `json:"external_ref"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Method       PaymentMethod   `json:"method"`
	Status       PaymentStatus   `json:"status"`
	MembershipID *string         `json:"membership_id,omitempty"`
	SaleID       *string         `json:"sale_id,omitempty"`
	UserID       *string         `json:"user_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// SubjectKind derives the settlement subject from whichever foreign key is set.
func (p *Payment) SubjectKind() SubjectKind {
	switch {
	case p.SaleID != nil:
		return SubjectKindSale
	case p.MembershipID != nil:
		return SubjectKindMembership
	default:
		return SubjectKindManual
	}
}

// SubjectID is the id consumers act on. Manual payments point at themselves.
func (p *Payment) SubjectID() string {
	switch {
	case p.SaleID != nil:
		return *p.SaleID
	case p.MembershipID != nil:
		return *p.MembershipID
	default:
		return p.ID
	}
}

// ValidateSubject enforces membership XOR sale.
func (p *Payment) ValidateSubject() error {
	if p.MembershipID != nil && p.SaleID != nil {
		return ErrInvalidSubject
	}
	return nil
}

// WebhookStatus is what the intake endpoint reports back to the provider.
type WebhookStatus string

const (
	WebhookProcessed               WebhookStatus = "processed"
	WebhookAlreadyProcessed        WebhookStatus = "already_processed"
	WebhookNotFound                WebhookStatus = "not_found"
	WebhookIgnoredInvalidSignature WebhookStatus = "ignored_invalid_signature"
	WebhookIgnoredStale            WebhookStatus = "ignored_stale"
	WebhookIgnoredEventType        WebhookStatus = "ignored_event_type"
	// WebhookIgnoredNotSettlable: the payment exists but is in a terminal
	// state other than COMPLETED. Redelivery cannot change that.
	WebhookIgnoredNotSettlable WebhookStatus = "ignored_not_settlable"
)

// SettleResult is the outcome of settling a payment by external reference.
type SettleResult string

const (
	SettleProcessed        SettleResult = "processed"
	SettleAlreadyProcessed SettleResult = "already_processed"
	SettleNotFound         SettleResult = "not_found"
)
