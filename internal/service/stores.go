package service

import (
	"context"
	"time"

	"github.com/generatororacle/backend/internal/domain"
)

// UserStore persists accounts. Implemented by repository.UserRepository.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Exists(ctx context.Context, email string) (bool, error)
	ListAll(ctx context.Context) ([]*domain.User, error)
	Count(ctx context.Context, activeOnly bool) (int, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateRole(ctx context.Context, id, role string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// SessionStore persists sessions by token hash. Implemented by repository.SessionRepository.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	RevokeByTokenHash(ctx context.Context, tokenHash string) (bool, error)
	RevokeByID(ctx context.Context, userID, sessionID string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// PaymentStore is the payment ledger. Implemented by repository.PaymentRepository.
type PaymentStore interface {
	Create(ctx context.Context, p *domain.Payment) error
	TransitionPending(ctx context.Context, checkoutRequestID string, res domain.PaymentResult) (*domain.Payment, error)
	FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error)
	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Payment, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error)
	CountByStatus(ctx context.Context) (map[domain.PaymentStatus]int, error)
}

// SubscriptionStore holds one subscription row per user. Implemented by repository.SubscriptionRepository.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *domain.Subscription) error
	FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
}

// TxRunner runs fn in a database transaction carried by ctx. Implemented by repository.DB.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LoginThrottle counts failed logins per key. Implemented by cache.LoginThrottle.
type LoginThrottle interface {
	Blocked(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// EventPublisher emits domain events after commit. Implemented by the events package.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
