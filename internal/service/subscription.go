package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/obs"
)

// SubscriptionService grants and answers entitlements. Activation runs inside
// the caller's transaction when ctx carries one.
type SubscriptionService struct {
	subs     SubscriptionStore
	payments PaymentStore
	log      *slog.Logger
	now      func() time.Time
}

func NewSubscriptionService(subs SubscriptionStore, payments PaymentStore, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		subs:     subs,
		payments: payments,
		log:      log,
		now:      time.Now,
	}
}

// Activate grants planID to userID for one billing period starting now.
// paymentID must name a completed payment owned by userID.
func (s *SubscriptionService) Activate(ctx context.Context, userID, planID, paymentID string) (*domain.Subscription, error) {
	plan, ok := domain.GetPlan(planID)
	if !ok {
		return nil, domain.ErrValidation("unknown plan: " + planID)
	}

	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load payment", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("payment not found")
	}
	if p.UserID != userID {
		return nil, domain.ErrValidation("payment belongs to another user")
	}
	if p.Status != domain.PaymentCompleted {
		return nil, domain.ErrConflict("payment is not completed")
	}

	now := s.now()
	sub := &domain.Subscription{
		UserID:          userID,
		PlanID:          plan.ID,
		ActivatedAt:     now,
		ExpiresAt:       plan.Extend(now),
		SourcePaymentID: p.ID,
		ReceiptNumber:   p.ReceiptNumber,
		UpdatedAt:       now,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, domain.ErrInternal("failed to activate subscription", err)
	}

	obs.SubscriptionActivations.WithLabelValues(plan.ID).Inc()
	s.log.Info("subscription activated",
		slog.String("user_id", userID),
		slog.String("plan_id", plan.ID),
		slog.Time("expires_at", sub.ExpiresAt),
	)
	return sub, nil
}

// GetActive returns the user's subscription if it has not expired, nil otherwise.
func (s *SubscriptionService) GetActive(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.subs.FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	if sub == nil || !sub.ActiveAt(s.now()) {
		return nil, nil
	}
	return sub, nil
}

// IsEntitled reports whether the user holds an active subscription to planID.
func (s *SubscriptionService) IsEntitled(ctx context.Context, userID, planID string) (bool, error) {
	sub, err := s.GetActive(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.PlanID == planID, nil
}

// Status describes the user's current entitlement.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (*domain.SubscriptionStatusResponse, error) {
	sub, err := s.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &domain.SubscriptionStatusResponse{Active: false}, nil
	}
	resp := &domain.SubscriptionStatusResponse{Active: true, Subscription: sub}
	if plan, ok := domain.GetPlan(sub.PlanID); ok {
		resp.Plan = &plan
	}
	return resp, nil
}
