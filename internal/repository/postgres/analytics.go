package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/repository"
)

type analyticsRepository struct {
	db *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) repository.AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) RecordSettlement(ctx context.Context, eventID string, delta domain.CounterDelta, now, expiresAt time.Time) (bool, error) {
	applied := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		// an expired marker is reclaimed, a live one means duplicate
		res, err := tx.ExecContext(ctx,
			`INSERT INTO processed_events (event_id, expires_at) VALUES ($1, $2)
			 ON CONFLICT (event_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
			 WHERE processed_events.expires_at <= $3`,
			eventID, expiresAt, now,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		query := `INSERT INTO daily_analytics_summary (date, revenue, memberships_sold, sales_count)
		          VALUES ($1, $2, $3, $4)
		          ON CONFLICT (date) DO UPDATE SET
		              revenue = daily_analytics_summary.revenue + EXCLUDED.revenue,
		              memberships_sold = daily_analytics_summary.memberships_sold + EXCLUDED.memberships_sold,
		              sales_count = daily_analytics_summary.sales_count + EXCLUDED.sales_count`
		logger.DatabaseCall("analytics.upsert_daily", query, "event_id", eventID)
		if _, err := tx.ExecContext(ctx, query, delta.Day, delta.Revenue, delta.MembershipsSold, delta.SalesCount); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		logger.DatabaseResult("analytics.record_settlement", 0, err, "event_id", eventID)
		return false, err
	}
	return applied, nil
}

func (r *analyticsRepository) GetKPIs(ctx context.Context, day, now time.Time) (*domain.KPIs, error) {
	kpis := &domain.KPIs{Date: day}

	err := r.db.QueryRowContext(ctx,
		`SELECT revenue, memberships_sold, sales_count FROM daily_analytics_summary WHERE date = $1`, day,
	).Scan(&kpis.RevenueToday, &kpis.MembershipsSold, &kpis.SalesCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM memberships WHERE status = $1 AND end_date > $2 AND start_date <> $3`,
		domain.MembershipStatusActive, now, domain.PlaceholderDate,
	).Scan(&kpis.ActiveMemberships)
	if err != nil {
		return nil, err
	}
	return kpis, nil
}

func (r *analyticsRepository) DeleteExpiredMarkers(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM processed_events WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
