package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// KPIs is the dashboard summary built from settlement counters.
type KPIs struct {
	Date              time.Time       `json:"date"`
	RevenueToday      decimal.Decimal `json:"revenue_today"`
	MembershipsSold   int             `json:"memberships_sold_today"`
	SalesCount        int             `json:"sales_today"`
	ActiveMemberships int             `json:"active_memberships"`
}

// CounterDelta is one settlement's contribution to the daily summary.
type CounterDelta struct {
	Day             time.Time
	Revenue         decimal.Decimal
	MembershipsSold int
	SalesCount      int
}

// DeltaFor maps a settlement event onto the daily counters.
func DeltaFor(e *SettlementEvent) CounterDelta {
	d := CounterDelta{
		Day:     e.Timestamp.UTC().Truncate(24 * time.Hour),
		Revenue: e.Amount,
	}
	switch e.SubjectKind {
	case SubjectKindMembership:
		d.MembershipsSold = 1
	case SubjectKindSale:
		d.SalesCount = 1
	}
	return d
}
