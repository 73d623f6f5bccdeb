package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/generatororacle/backend/internal/obs"
)

// DefaultSessionTTL matches the cookie Max-Age of 604800 seconds.
const DefaultSessionTTL = 7 * 24 * time.Hour

const tokenBytes = 32

// SessionService issues and resolves opaque session tokens.
type SessionService struct {
	sessions SessionStore
	users    UserStore
	ttl      time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions SessionStore, users UserStore, ttl time.Duration, log *slog.Logger) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{
		sessions: sessions,
		users:    users,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

// TTL is the fixed lifetime of every session.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// HashToken returns the storage key for a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue creates a session for userID and returns the raw token. The token is
// shown to the caller once; only its hash is stored.
func (s *SessionService) Issue(ctx context.Context, userID string, meta domain.SessionMeta) (string, *domain.Session, error) {
	token, err := newToken()
	if err != nil {
		return "", nil, domain.ErrInternal("failed to issue session", err)
	}

	now := s.now()
	sess := &domain.Session{
		ID:        domain.NewSessionID(),
		TokenHash: HashToken(token),
		UserID:    userID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if meta.DeviceFingerprint != "" {
		fp := meta.DeviceFingerprint
		sess.DeviceFingerprint = &fp
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", nil, domain.ErrInternal("failed to issue session", err)
	}
	return token, sess, nil
}

// Validate resolves a token to its session and user. The lifetime never slides.
// Store failures are returned as internal errors; callers must treat them as
// unauthenticated.
func (s *SessionService) Validate(ctx context.Context, token string) (*domain.ValidatedSession, error) {
	v, err := s.validate(ctx, token)
	obs.SessionValidations.WithLabelValues(validationLabel(err)).Inc()
	return v, err
}

func (s *SessionService) validate(ctx context.Context, token string) (*domain.ValidatedSession, error) {
	if token == "" {
		return nil, domain.ErrSessionNotFound
	}

	sess, err := s.sessions.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, domain.ErrInternal("failed to look up session", err)
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	if sess.Revoked {
		return nil, domain.ErrSessionRevoked
	}
	if s.now().After(sess.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, domain.ErrInternal("failed to look up session user", err)
	}
	if user == nil || !user.IsActive {
		return nil, domain.ErrSessionRevoked
	}

	return &domain.ValidatedSession{Session: sess, User: user}, nil
}

func validationLabel(err error) string {
	if err == nil {
		return "valid"
	}
	switch err {
	case domain.ErrSessionNotFound:
		return "not_found"
	case domain.ErrSessionExpired:
		return "expired"
	case domain.ErrSessionRevoked:
		return "revoked"
	}
	return "error"
}

// Revoke ends the session for token. Unknown or already revoked tokens are not an error.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.sessions.RevokeByTokenHash(ctx, HashToken(token)); err != nil {
		return domain.ErrInternal("failed to revoke session", err)
	}
	return nil
}

// RevokeByID ends one of the user's own sessions.
func (s *SessionService) RevokeByID(ctx context.Context, userID, sessionID string) error {
	ok, err := s.sessions.RevokeByID(ctx, userID, sessionID)
	if err != nil {
		return domain.ErrInternal("failed to revoke session", err)
	}
	if !ok {
		return domain.ErrNotFound("session not found")
	}
	return nil
}

// RevokeAll ends every live session of a user and returns how many were ended.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, domain.ErrInternal("failed to revoke sessions", err)
	}
	s.log.Info("revoked all sessions", slog.String("user_id", userID), slog.Int64("count", n))
	return n, nil
}

// ListActive returns the user's live sessions.
func (s *SessionService) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	sessions, err := s.sessions.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, domain.ErrInternal("failed to list sessions", err)
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	return sessions, nil
}

// PurgeExpired deletes sessions that ended more than retention ago.
func (s *SessionService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.sessions.DeleteStale(ctx, s.now().Add(-retention))
	if err != nil {
		s.log.Error("session purge failed", sl.Err(err))
		return 0, err
	}
	if n > 0 {
		s.log.Info("purged stale sessions", slog.Int64("count", n))
	}
	return n, nil
}
