package http

import (
	"net/http"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/service"
)

type kpiResponse struct {
	KPIs     domain.KPIs `json:"kpis"`
	Degraded bool        `json:"degraded"`
	Cached   bool        `json:"cached"`
}

type AnalyticsHandler struct {
	analytics service.AnalyticsService
}

func NewAnalyticsHandler(analytics service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// KPIs always answers 200; a store outage shows up as degraded zeros.
func (h *AnalyticsHandler) KPIs(w http.ResponseWriter, r *http.Request) {
	res := h.analytics.GetKPIs(r.Context())
	writeJSON(w, http.StatusOK, kpiResponse{KPIs: res.KPIs, Degraded: res.Degraded, Cached: res.Cached})
}
