package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, token_hash, user_id, device_fingerprint, ip_address, user_agent, issued_at, expires_at, revoked, revoked_at`

// SessionRepository persists login sessions keyed by token hash.
type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.TokenHash, &s.UserID, &s.DeviceFingerprint, &s.IPAddress,
		&s.UserAgent, &s.IssuedAt, &s.ExpiresAt, &s.Revoked, &s.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (id, token_hash, user_id, device_fingerprint, ip_address, user_agent, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Conn(ctx).Exec(ctx, query,
		s.ID, s.TokenHash, s.UserID, s.DeviceFingerprint,
		s.IPAddress, s.UserAgent, s.IssuedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByTokenHash returns the session regardless of state; callers decide validity.
func (r *SessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`
	s, err := scanSession(r.db.Conn(ctx).QueryRow(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return s, nil
}

// RevokeByTokenHash revokes one session. Returns false when nothing changed.
func (r *SessionRepository) RevokeByTokenHash(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE sessions SET revoked = TRUE, revoked_at = NOW() WHERE token_hash = $1 AND NOT revoked`,
		tokenHash)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeByID revokes a session owned by userID.
func (r *SessionRepository) RevokeByID(ctx context.Context, userID, sessionID string) (bool, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE sessions SET revoked = TRUE, revoked_at = NOW() WHERE id = $1 AND user_id = $2 AND NOT revoked`,
		sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevokeAllForUser revokes every live session of a user and returns how many.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE sessions SET revoked = TRUE, revoked_at = NOW() WHERE user_id = $1 AND NOT revoked`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListActive returns the user's unrevoked, unexpired sessions, newest first.
func (r *SessionRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = $1 AND NOT revoked AND expires_at > $2
		ORDER BY issued_at DESC`
	rows, err := r.db.Conn(ctx).Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteStale removes sessions that expired or were revoked before cutoff.
func (r *SessionRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1 OR (revoked AND revoked_at < $1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
