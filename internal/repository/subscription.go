package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Upsert writes the user's single subscription row, replacing any previous one.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, plan_id, activated_at, expires_at, source_payment_id, receipt_number, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			activated_at = EXCLUDED.activated_at,
			expires_at = EXCLUDED.expires_at,
			source_payment_id = EXCLUDED.source_payment_id,
			receipt_number = EXCLUDED.receipt_number,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Conn(ctx).Exec(ctx, query,
		sub.UserID, sub.PlanID, sub.ActivatedAt, sub.ExpiresAt,
		sub.SourcePaymentID, sub.ReceiptNumber, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// FindByUserID returns the user's subscription row whether or not it has expired.
func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
		SELECT user_id, plan_id, activated_at, expires_at, source_payment_id, receipt_number, updated_at
		FROM subscriptions WHERE user_id = $1
	`
	var sub domain.Subscription
	err := r.db.Conn(ctx).QueryRow(ctx, query, userID).Scan(
		&sub.UserID, &sub.PlanID, &sub.ActivatedAt, &sub.ExpiresAt,
		&sub.SourcePaymentID, &sub.ReceiptNumber, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No subscription
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return &sub, nil
}

// CountActive returns how many subscriptions are unexpired at now.
func (r *SubscriptionRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.Conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE expires_at > $1`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}
