package http

import (
	"net/http"

	"gymcore-backend/internal/config"
	"gymcore-backend/internal/security"
	"gymcore-backend/internal/service"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Services selects which route groups a process exposes. Nil services are
// not routed, so each deployable only serves its own endpoints.
type Services struct {
	Ledger     service.LedgerService
	Membership service.MembershipService
	Inventory  service.InventoryService
	Analytics  service.AnalyticsService
}

// NewRouter builds the HTTP surface with auth and tracing applied.
func NewRouter(tm security.TokenManager, svcs Services) http.Handler {
	router := mux.NewRouter()
	router.Use(NewAuthMiddleware(tm).Handler)

	router.HandleFunc("/healthz", healthz).Methods(http.MethodGet).Name(config.RouteHealth)

	if svcs.Ledger != nil {
		webhook := NewWebhookHandler(svcs.Ledger)
		payments := NewPaymentHandler(svcs.Ledger)
		router.HandleFunc("/webhooks/paypal", webhook.HandlePayPal).Methods(http.MethodPost).Name(config.RoutePayPalWebhook)
		router.HandleFunc("/v1/payments/checkout", payments.Checkout).Methods(http.MethodPost).Name(config.RouteCheckout)
		router.HandleFunc("/v1/payments/manual", payments.Manual).Methods(http.MethodPost).Name(config.RouteManualPayment)
	}

	if svcs.Membership != nil {
		memberships := NewMembershipHandler(svcs.Membership)
		router.HandleFunc("/v1/memberships/join", memberships.Join).Methods(http.MethodPost).Name(config.RouteJoinGym)
		router.HandleFunc("/v1/memberships/{id}/ban", memberships.Ban).Methods(http.MethodPost).Name(config.RouteBanMembership)
	}

	if svcs.Inventory != nil {
		pos := NewPOSHandler(svcs.Inventory)
		router.HandleFunc("/v1/pos/sales", pos.InstantSale).Methods(http.MethodPost).Name(config.RouteInstantSale)
		router.HandleFunc("/v1/pos/sales/pending", pos.PendingSale).Methods(http.MethodPost).Name(config.RoutePendingSale)
	}

	if svcs.Analytics != nil {
		analytics := NewAnalyticsHandler(svcs.Analytics)
		router.HandleFunc("/v1/analytics/kpis", analytics.KPIs).Methods(http.MethodGet).Name(config.RouteKPIs)
	}

	return otelhttp.NewHandler(router, "gymcore-http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
