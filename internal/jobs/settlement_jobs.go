package jobs

import (
	"context"
	"fmt"

	"gymcore-backend/internal/logger"
)

// SweepProcessedEvents deletes analytics dedupe markers past their expiry
func (jr *JobRunner) SweepProcessedEvents() {
	jr.runWithRecovery("SweepProcessedEvents", func(ctx context.Context) error {
		n, err := jr.analytics.SweepExpiredMarkers(ctx)
		if err != nil {
			return fmt.Errorf("sweep processed events: %w", err)
		}
		logger.Info("Swept expired processed-event markers", "count", n)
		return nil
	})
}

// ReportExpiredMemberships logs how many ACTIVE memberships are past their end date.
// Expiry is derived on read, so nothing is rewritten.
func (jr *JobRunner) ReportExpiredMemberships() {
	jr.runWithRecovery("ReportExpiredMemberships", func(ctx context.Context) error {
		now := jr.now().UTC()
		expired, err := jr.memberships.CountExpired(ctx, now)
		if err != nil {
			return fmt.Errorf("count expired memberships: %w", err)
		}
		active, err := jr.memberships.CountActive(ctx, now)
		if err != nil {
			return fmt.Errorf("count active memberships: %w", err)
		}
		logger.Info("Membership expiry report", "expired", expired, "active", active)
		return nil
	})
}

// ReportStalePendingPayments lists PENDING payments older than the configured age.
// These are checkouts never approved or settlements whose webhook was lost.
func (jr *JobRunner) ReportStalePendingPayments() {
	jr.runWithRecovery("ReportStalePendingPayments", func(ctx context.Context) error {
		cutoff := jr.now().UTC().Add(-jr.config.Scheduler.StalePaymentAge)
		stale, err := jr.payments.ListStalePending(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("list stale pending payments: %w", err)
		}

		logger.Info("Stale pending payments", "count", len(stale), "created_before", cutoff)
		for _, p := range stale {
			logger.Warn("Payment still pending",
				"payment_id", p.ID,
				"external_ref", p.ExternalRef,
				"subject_kind", p.SubjectKind(),
				"subject_id", p.SubjectID(),
				"created_at", p.CreatedAt)
		}
		return nil
	})
}
