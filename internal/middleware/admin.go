package middleware

import (
	"net/http"
	"slices"

	"github.com/generatororacle/backend/internal/contextkeys"
	"github.com/generatororacle/backend/internal/handler"
)

// RequireRole allows the request only when the authenticated user holds one of roles.
// Must be used AFTER Session which sets contextkeys.UserRole in context.
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := contextkeys.String(r.Context(), contextkeys.UserRole)
			if role == "" || !slices.Contains(roles, role) {
				handler.JSON(w, http.StatusForbidden, map[string]string{"error": "forbidden: insufficient role"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
