package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session"

// Session is a server-side login session. The raw token is never persisted,
// only its SHA-256 hash.
type Session struct {
	ID                string     `json:"id"`
	TokenHash         string     `json:"-"`
	UserID            string     `json:"userId"`
	DeviceFingerprint *string    `json:"deviceFingerprint,omitempty"`
	IPAddress         string     `json:"ipAddress"`
	UserAgent         string     `json:"userAgent"`
	IssuedAt          time.Time  `json:"issuedAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	Revoked           bool       `json:"revoked"`
	RevokedAt         *time.Time `json:"revokedAt,omitempty"`
}

// SessionMeta describes the client a session is issued to.
type SessionMeta struct {
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
}

// ValidatedSession is the result of a successful session lookup.
type ValidatedSession struct {
	Session *Session
	User    *User
}

// NewSessionID generates a new UUID for a session row.
func NewSessionID() string {
	return uuid.New().String()
}
