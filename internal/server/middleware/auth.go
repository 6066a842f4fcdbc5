package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/faucetdb/widgets/internal/model"
	"github.com/faucetdb/widgets/internal/service"
)

type contextKeyAuth string

const (
	// APIKeyContextKey holds the *model.APIKey that authenticated the request.
	APIKeyContextKey contextKeyAuth = "api_key"
	// AdminContextKey holds the *service.AdminPrincipal of a provisioning call.
	AdminContextKey contextKeyAuth = "admin"
)

// DefaultAPIKeyHeader is used when no header name is configured.
const DefaultAPIKeyHeader = "X-API-Key"

// RequireAPIKey returns an HTTP middleware that only lets requests through
// when the key in header belongs to the active key set. A missing, unknown or
// deactivated key is answered with 401, a store failure with 503.
func RequireAPIKey(authSvc *service.AuthService, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(header)
			if rawKey == "" {
				writeAuthError(w, http.StatusUnauthorized, "API key required. Provide the "+header+" header.")
				return
			}

			res, err := authSvc.Authenticate(r.Context(), rawKey)
			if err != nil {
				writeAuthError(w, http.StatusServiceUnavailable, "Key store unavailable")
				return
			}
			if !res.Valid() {
				writeAuthError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}

			recordClient(r.Context(), res.Key.ClientName)
			ctx := context.WithValue(r.Context(), APIKeyContextKey, res.Key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns an HTTP middleware that enforces a valid admin JWT in
// the Authorization header (Bearer scheme).
func RequireAdmin(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			p, err := authSvc.ValidateJWT(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKey extracts the authenticated key record from the context.
// Returns nil if the request did not pass RequireAPIKey.
func GetAPIKey(ctx context.Context) *model.APIKey {
	if k, ok := ctx.Value(APIKeyContextKey).(*model.APIKey); ok {
		return k
	}
	return nil
}

// GetAdmin extracts the admin principal from the context, or nil.
func GetAdmin(ctx context.Context) *service.AdminPrincipal {
	if p, ok := ctx.Value(AdminContextKey).(*service.AdminPrincipal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
