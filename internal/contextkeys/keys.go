package contextkeys

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// UserID is the context key for the authenticated user's ID.
	UserID contextKey = "userID"
	// UserEmail is the context key for the authenticated user's email.
	UserEmail contextKey = "userEmail"
	// UserRole is the context key for the authenticated user's role.
	UserRole contextKey = "userRole"
	// SessionID is the context key for the ID of the session that authenticated the request.
	SessionID contextKey = "sessionID"
)

// String returns the string stored under key, or "".
func String(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}
