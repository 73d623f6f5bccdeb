package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/generatororacle/backend/internal/contextkeys"
	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/handler"
	"github.com/generatororacle/backend/internal/lib/sl"
)

// SessionValidator resolves a raw session token.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*domain.ValidatedSession, error)
}

// Session authenticates requests by the session cookie. Any failure,
// including a store outage, rejects the request with 401.
func Session(sessions SessionValidator, cookies handler.Cookies, log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := handler.SessionToken(r)
			if token == "" {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
				return
			}

			v, err := sessions.Validate(r.Context(), token)
			if err != nil {
				appErr, ok := domain.AsAppError(err)
				if ok && appErr.Kind == domain.KindSession {
					cookies.Clear(w)
					handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": appErr.Message})
					return
				}
				log.Error("session validation failed", sl.Err(err))
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
				return
			}

			ctx := context.WithValue(r.Context(), contextkeys.UserID, v.User.ID)
			ctx = context.WithValue(ctx, contextkeys.UserEmail, v.User.Email)
			ctx = context.WithValue(ctx, contextkeys.UserRole, v.User.Role)
			ctx = context.WithValue(ctx, contextkeys.SessionID, v.Session.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
