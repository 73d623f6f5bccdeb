package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/generatororacle/backend/internal/domain"
)

// ClientIP returns the client IP, preferring proxy headers if available.
func ClientIP(r *http.Request) string {
	// X-Real-IP is set by Nginx
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func sessionMeta(r *http.Request) domain.SessionMeta {
	ua := r.UserAgent()
	if len(ua) > 512 {
		ua = ua[:512]
	}
	return domain.SessionMeta{
		IPAddress: ClientIP(r),
		UserAgent: ua,
	}
}
