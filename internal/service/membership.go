package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/repository"

	"github.com/google/uuid"
)

type membershipService struct {
	gyms        repository.GymRepository
	memberships repository.MembershipRepository
	now         func() time.Time
}

func NewMembershipService(
	gyms repository.GymRepository,
	memberships repository.MembershipRepository,
	now func() time.Time,
) MembershipService {
	if now == nil {
		now = time.Now
	}
	return &membershipService{gyms: gyms, memberships: memberships, now: now}
}

// ApplySettlement activates or renews a membership for a confirmed payment.
// paymentRef makes the transition idempotent: a second call with the same ref
// leaves the membership untouched.
func (s *membershipService) ApplySettlement(ctx context.Context, membershipID, paymentRef string, paidAt time.Time) (*domain.Membership, error) {
	m, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return nil, fmt.Errorf("load membership %s: %w", membershipID, err)
	}
	if m.Status == domain.MembershipStatusBanned {
		return nil, fmt.Errorf("settle membership %s: %w", membershipID, domain.ErrMembershipBanned)
	}

	readAt := m.UpdatedAt
	now := s.now().UTC()
	action := m.ApplyPayment(paidAt.UTC(), now)

	entry := &domain.MembershipLog{
		ID:           uuid.NewString(),
		MembershipID: m.ID,
		Action:       action,
		CreatedAt:    now,
	}
	if paymentRef != "" {
		entry.PaymentRef = &paymentRef
	}

	applied, err := s.memberships.ApplyTransition(ctx, m, entry, readAt)
	if err != nil {
		return nil, fmt.Errorf("apply %s to membership %s: %w", action, membershipID, err)
	}
	if !applied {
		logger.InfoContext(ctx, "Payment already applied to membership", "membershipID", membershipID, "paymentRef", paymentRef)
		return s.memberships.GetByID(ctx, membershipID)
	}

	logger.InfoContext(ctx, "Membership settled",
		"membershipID", m.ID, "action", action, "start", m.StartDate, "end", m.EndDate)
	return m, nil
}

func (s *membershipService) JoinGym(ctx context.Context, code, userID string) (*domain.Membership, error) {
	gym, err := s.gyms.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := domain.NewPendingMembership(uuid.NewString(), userID, gym.ID, now)
	entry := &domain.MembershipLog{
		ID:           uuid.NewString(),
		MembershipID: m.ID,
		Action:       domain.MembershipActionJoined,
		PerformedBy:  &userID,
		CreatedAt:    now,
	}
	if err := s.memberships.Create(ctx, m, entry); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Member joined gym", "membershipID", m.ID, "gymID", gym.ID, "userID", userID)
	return m, nil
}

func (s *membershipService) Ban(ctx context.Context, membershipID, managerID, reason string) (*domain.Membership, error) {
	m, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.Status == domain.MembershipStatusBanned {
		return m, nil
	}

	readAt := m.UpdatedAt
	now := s.now().UTC()
	m.Status = domain.MembershipStatusBanned
	m.UpdatedAt = now

	entry := &domain.MembershipLog{
		ID:           uuid.NewString(),
		MembershipID: m.ID,
		Action:       domain.MembershipActionBanned,
		PerformedBy:  &managerID,
		Reason:       reason,
		CreatedAt:    now,
	}
	if _, err := s.memberships.ApplyTransition(ctx, m, entry, readAt); err != nil {
		return nil, fmt.Errorf("ban membership %s: %w", membershipID, err)
	}

	logger.InfoContext(ctx, "Membership banned", "membershipID", m.ID, "managerID", managerID)
	return m, nil
}
