package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/service"
)

func decodeSettlement(body []byte) (*domain.SettlementEvent, error) {
	var event domain.SettlementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

// MembershipHandler applies MEMBERSHIP settlements to the membership saga.
// Other subject kinds share the routing key and are acknowledged untouched.
func MembershipHandler(svc service.MembershipService) Handler {
	return func(ctx context.Context, body []byte) error {
		event, err := decodeSettlement(body)
		if err != nil {
			return err
		}
		if event.SubjectKind != domain.SubjectKindMembership {
			logger.DebugContext(ctx, "Settlement not for a membership", "subjectKind", event.SubjectKind, "subjectID", event.SubjectID)
			return nil
		}

		logger.InfoContext(ctx, "Applying membership settlement", "membershipID", event.SubjectID, "paymentID", event.PaymentID)
		_, err = svc.ApplySettlement(ctx, event.SubjectID, event.PaymentID, event.Timestamp)
		return err
	}
}

// InventoryHandler settles sales from sale.completed triggers.
func InventoryHandler(svc service.InventoryService) Handler {
	return func(ctx context.Context, body []byte) error {
		var event domain.SaleCompletedEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
		}
		if err := event.Validate(); err != nil {
			return err
		}

		logger.InfoContext(ctx, "Completing sale", "saleID", event.SaleID, "paymentID", event.PaymentID)
		_, err := svc.CompleteSale(ctx, event.SaleID, event.PaymentID)
		return err
	}
}

// AnalyticsHandler folds every settlement into the daily counters.
func AnalyticsHandler(svc service.AnalyticsService) Handler {
	return func(ctx context.Context, body []byte) error {
		event, err := decodeSettlement(body)
		if err != nil {
			return err
		}

		res, err := svc.RecordSettlement(ctx, event)
		if err != nil {
			return err
		}
		logger.DebugContext(ctx, "Settlement counted",
			"eventID", event.EventID(), "applied", res.Applied, "duplicate", res.Duplicate)
		return nil
	}
}
