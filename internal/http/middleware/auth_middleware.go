package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/canteenhq/canteen-payments/internal/http/response"
	"github.com/canteenhq/canteen-payments/internal/security"
)

type contextKey string

const claimsContextKey contextKey = "auth_claims"

// RequireAuth rejects requests without a valid bearer token issued by
// the ordering platform.
func RequireAuth(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
				return
			}
			claims, err := jwtMgr.ParseToken(raw)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the authenticated claims, if any.
func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*security.Claims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) >= len("bearer ")+1 && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}
