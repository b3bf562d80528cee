package domain

import "time"

type MembershipStatus string

const (
	MembershipStatusPendingPayment MembershipStatus = "PENDING_PAYMENT"
	MembershipStatusActive         MembershipStatus = "ACTIVE"
	MembershipStatusBanned         MembershipStatus = "BANNED"
	// MembershipStatusExpired is derived from the end date and never stored.
	MembershipStatusExpired MembershipStatus = "EXPIRED"
)

// PlaceholderDate marks the dates of a membership that has never been paid.
var PlaceholderDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type Membership struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	GymID       string           `json:"gym_id"`
	Status      MembershipStatus `json:"status"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     time.Time        `json:"end_date"`
	ActivatedBy *string          `json:"activated_by,omitempty"` // nil means activated by a payment
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewPendingMembership returns a membership awaiting its first payment.
func NewPendingMembership(id, userID, gymID string, now time.Time) *Membership {
	return &Membership{
		ID:        id,
		UserID:    userID,
		GymID:     gymID,
		Status:    MembershipStatusPendingPayment,
		StartDate: PlaceholderDate,
		EndDate:   PlaceholderDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (m *Membership) HasPlaceholderDates() bool {
	return m.StartDate.Equal(PlaceholderDate) || m.EndDate.Equal(PlaceholderDate)
}

// EffectiveStatus reports EXPIRED for an ACTIVE membership whose end date has passed.
func (m *Membership) EffectiveStatus(now time.Time) MembershipStatus {
	if m.Status == MembershipStatusActive && !m.EndDate.After(now) {
		return MembershipStatusExpired
	}
	return m.Status
}

// AddCalendarMonth follows time.AddDate normalisation, so Jan 31 becomes Mar 3
// (Mar 2 in leap years).
func AddCalendarMonth(t time.Time) time.Time {
	return t.AddDate(0, 1, 0)
}

// ApplyPayment moves the membership to ACTIVE for a payment made at paidAt.
// An ACTIVE membership whose end date is still ahead of now is extended by one
// month from that end date; anything else restarts at paidAt.
func (m *Membership) ApplyPayment(paidAt, now time.Time) MembershipAction {
	action := MembershipActionActivated
	if m.Status == MembershipStatusActive && m.EndDate.After(now) {
		m.EndDate = AddCalendarMonth(m.EndDate)
		action = MembershipActionRenewed
	} else {
		m.StartDate = paidAt
		m.EndDate = AddCalendarMonth(paidAt)
	}
	m.Status = MembershipStatusActive
	m.ActivatedBy = nil
	m.UpdatedAt = now
	return action
}

type MembershipAction string

const (
	MembershipActionActivated MembershipAction = "ACTIVATED"
	MembershipActionRenewed   MembershipAction = "RENEWED"
	MembershipActionBanned    MembershipAction = "BANNED"
	MembershipActionJoined    MembershipAction = "JOINED"
)

// MembershipLog is the audit trail row written with every transition.
type MembershipLog struct {
	ID           string           `json:"id"`
	MembershipID string           `json:"membership_id"`
	Action       MembershipAction `json:"action"`
	PerformedBy  *string          `json:"performed_by,omitempty"`
	Reason       string           `json:"reason"`
	PaymentRef   *string          `json:"payment_ref,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

type Gym struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UniqueCode string `json:"unique_code"`
}
