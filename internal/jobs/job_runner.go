package jobs

import (
	"context"
	"time"

	"gymcore-backend/internal/config"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/repository"
	"gymcore-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	payments    repository.PaymentRepository
	memberships repository.MembershipRepository
	analytics   service.AnalyticsService
	config      *config.Config
	now         func() time.Time
}

// Dependencies holds the stores and services the jobs read from
type Dependencies struct {
	Payments    repository.PaymentRepository
	Memberships repository.MembershipRepository
	Analytics   service.AnalyticsService
	Now         func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(deps Dependencies, cfg *config.Config) *JobRunner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &JobRunner{
		payments:    deps.Payments,
		memberships: deps.Memberships,
		analytics:   deps.Analytics,
		config:      cfg,
		now:         deps.Now,
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	if err := jobFunc(context.Background()); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err)
		return
	}
	logger.Info("Job completed", "job", jobName)
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.SweepProcessedEvents()
	jr.ReportExpiredMemberships()
	jr.ReportStalePendingPayments()
}
