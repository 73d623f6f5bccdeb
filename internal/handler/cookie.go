package handler

import (
	"net/http"
	"time"

	"github.com/generatororacle/backend/internal/domain"
)

// Cookies writes and clears the session cookie.
type Cookies struct {
	Secure bool
	TTL    time.Duration
}

func (c Cookies) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     domain.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     domain.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionToken returns the raw session token carried by r, or "".
func SessionToken(r *http.Request) string {
	c, err := r.Cookie(domain.SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
