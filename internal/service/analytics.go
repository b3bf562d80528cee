package service

import (
	"context"
	"fmt"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/repository"

	"github.com/shopspring/decimal"
)

// KPICache holds dashboard numbers per day for a short time.
type KPICache interface {
	Get(ctx context.Context, day time.Time) (domain.KPIs, bool)
	Set(ctx context.Context, day time.Time, kpis domain.KPIs)
	Invalidate(ctx context.Context, day time.Time) error
}

type AnalyticsOptions struct {
	// DedupeTTL is how long a processed event id is remembered.
	DedupeTTL time.Duration
	Now       func() time.Time
}

type analyticsService struct {
	repo  repository.AnalyticsRepository
	cache KPICache
	opts  AnalyticsOptions
}

func NewAnalyticsService(repo repository.AnalyticsRepository, cache KPICache, opts AnalyticsOptions) AnalyticsService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = 24 * time.Hour
	}
	return &analyticsService{repo: repo, cache: cache, opts: opts}
}

// RecordSettlement folds one settlement into the daily counters. A cache
// failure is reported in the result, never as an error.
func (s *analyticsService) RecordSettlement(ctx context.Context, event *domain.SettlementEvent) (RecordResult, error) {
	if err := event.Validate(); err != nil {
		return RecordResult{}, err
	}

	delta := domain.DeltaFor(event)
	now := s.opts.Now().UTC()
	applied, err := s.repo.RecordSettlement(ctx, event.EventID(), delta, now, now.Add(s.opts.DedupeTTL))
	if err != nil {
		return RecordResult{}, fmt.Errorf("record settlement %s: %w", event.EventID(), err)
	}
	if !applied {
		logger.InfoContext(ctx, "Settlement already counted", "eventID", event.EventID())
		return RecordResult{Duplicate: true}, nil
	}

	result := RecordResult{Applied: true}
	if err := s.cache.Invalidate(ctx, delta.Day); err != nil {
		logger.WarnContext(ctx, "KPI cache invalidation failed", "day", delta.Day.Format(time.DateOnly), "error", err)
		result.CacheErr = err
	}
	return result, nil
}

// GetKPIs returns today's numbers. When the store cannot be read it returns
// zeros flagged as degraded instead of an error.
func (s *analyticsService) GetKPIs(ctx context.Context) KPIResult {
	now := s.opts.Now().UTC()
	day := now.Truncate(24 * time.Hour)

	if kpis, ok := s.cache.Get(ctx, day); ok {
		return KPIResult{KPIs: kpis, Cached: true}
	}

	kpis, err := s.repo.GetKPIs(ctx, day, now)
	if err != nil {
		logger.ErrorContext(ctx, "KPI query failed, serving zeros", "day", day.Format(time.DateOnly), "error", err)
		return KPIResult{
			KPIs:     domain.KPIs{Date: day, RevenueToday: decimal.Zero},
			Degraded: true,
		}
	}

	s.cache.Set(ctx, day, *kpis)
	return KPIResult{KPIs: *kpis}
}

func (s *analyticsService) SweepExpiredMarkers(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredMarkers(ctx, s.opts.Now().UTC())
}
