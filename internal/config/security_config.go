// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic  SecurityLevel = iota // No authentication
	SecurityAccess                       // Access token required
	SecurityManager                      // Access token with the manager role
)

// Route names as registered on the HTTP router.
const (
	RoutePayPalWebhook = "paypal-webhook"
	RouteHealth        = "healthz"
	RouteCheckout      = "payments-checkout"
	RouteManualPayment = "payments-manual"
	RouteJoinGym       = "memberships-join"
	RouteBanMembership = "memberships-ban"
	RouteInstantSale   = "pos-sales-instant"
	RoutePendingSale   = "pos-sales-pending"
	RouteKPIs          = "analytics-kpis"
)

// EndpointSecurityConfig maps route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Public: the webhook authenticates through the provider signature
	RoutePayPalWebhook: SecurityPublic,
	RouteHealth:        SecurityPublic,

	// Members
	RouteCheckout: SecurityAccess,
	RouteJoinGym:  SecurityAccess,
	RouteKPIs:     SecurityAccess,

	// Gym staff
	RouteManualPayment: SecurityManager,
	RouteBanMembership: SecurityManager,
	RouteInstantSale:   SecurityManager,
	RoutePendingSale:   SecurityManager,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to the strictest level for unknown routes
	return SecurityManager
}
