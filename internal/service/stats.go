package service

import (
	"context"
	"time"

	"github.com/generatororacle/backend/internal/domain"
)

// AdminStats is the dashboard summary served to admins.
type AdminStats struct {
	TotalUsers          int                          `json:"totalUsers"`
	ActiveUsers         int                          `json:"activeUsers"`
	ActiveSubscriptions int                          `json:"activeSubscriptions"`
	Payments            map[domain.PaymentStatus]int `json:"payments"`
	GeneratedAt         time.Time                    `json:"generatedAt"`
}

// StatsService aggregates counts across users, payments and subscriptions.
type StatsService struct {
	users    UserStore
	payments PaymentStore
	subs     SubscriptionStore
	now      func() time.Time
}

func NewStatsService(users UserStore, payments PaymentStore, subs SubscriptionStore) *StatsService {
	return &StatsService{users: users, payments: payments, subs: subs, now: time.Now}
}

func (s *StatsService) Summary(ctx context.Context) (*AdminStats, error) {
	now := s.now()

	total, err := s.users.Count(ctx, false)
	if err != nil {
		return nil, domain.ErrInternal("failed to count users", err)
	}
	active, err := s.users.Count(ctx, true)
	if err != nil {
		return nil, domain.ErrInternal("failed to count users", err)
	}
	subs, err := s.subs.CountActive(ctx, now)
	if err != nil {
		return nil, domain.ErrInternal("failed to count subscriptions", err)
	}
	byStatus, err := s.payments.CountByStatus(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to count payments", err)
	}

	payments := map[domain.PaymentStatus]int{
		domain.PaymentPending:   0,
		domain.PaymentCompleted: 0,
		domain.PaymentFailed:    0,
	}
	for k, v := range byStatus {
		payments[k] = v
	}

	return &AdminStats{
		TotalUsers:          total,
		ActiveUsers:         active,
		ActiveSubscriptions: subs,
		Payments:            payments,
		GeneratedAt:         now,
	}, nil
}
