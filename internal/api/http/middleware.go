package http

import (
	"errors"
	"net/http"
	"strings"

	"gymcore-backend/internal/config"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/security"

	"github.com/gorilla/mux"
)

var (
	errNoToken       = errors.New("authorization token is not provided")
	errManagerNeeded = errors.New("manager role required")
)

type AuthMiddleware struct {
	tokenManager security.TokenManager
}

func NewAuthMiddleware(tm security.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm}
}

// Handler authenticates and authorizes requests by the matched route's name.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var name string
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}
		level := config.GetSecurityLevel(name)

		// Public endpoint - skip auth
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := m.tokenManager.ValidateToken(token)
		if err != nil {
			logger.WarnContext(r.Context(), "Rejected token", "route", name, "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}

		if err := checkSecurityLevel(level, claims); err != nil {
			logger.WarnContext(r.Context(), "Forbidden", "route", name, "userID", claims.UserID, "error", err)
			writeError(w, http.StatusForbidden, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func extractToken(r *http.Request) (string, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", errNoToken
	}
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return token, nil
}

func checkSecurityLevel(level config.SecurityLevel, claims *security.UserClaims) error {
	if level == config.SecurityManager && !claims.HasRole(security.RoleManager) {
		return errManagerNeeded
	}
	return nil
}
