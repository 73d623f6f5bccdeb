package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/events"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/generatororacle/backend/internal/obs"
	"github.com/generatororacle/backend/pkg/payment"
)

// LedgerService owns the payment lifecycle. A payment leaves pending exactly
// once; every later delivery for it is a no-op.
type LedgerService struct {
	payments PaymentStore
	subs     *SubscriptionService
	tx       TxRunner
	gateway  payment.Gateway
	events   EventPublisher
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

func NewLedgerService(
	payments PaymentStore,
	subs *SubscriptionService,
	tx TxRunner,
	gateway payment.Gateway,
	events EventPublisher,
	log *slog.Logger,
) *LedgerService {
	return &LedgerService{
		payments: payments,
		subs:     subs,
		tx:       tx,
		gateway:  gateway,
		events:   events,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// ApplyCallback records a gateway result. On success the subscription is
// activated in the same transaction, so either both happen or neither does.
// Replays and callbacks for unknown checkouts are reported through the
// returned outcome, not as errors.
func (s *LedgerService) ApplyCallback(ctx context.Context, cb *payment.CallbackResult) (domain.CallbackOutcome, error) {
	if cb == nil || cb.CheckoutRequestID == "" {
		obs.MpesaCallbacks.WithLabelValues(string(domain.OutcomeMalformed)).Inc()
		return domain.OutcomeMalformed, nil
	}

	log := s.log.With(slog.String("checkout_request_id", cb.CheckoutRequestID))

	res := domain.PaymentResult{
		Status:     domain.PaymentFailed,
		ResultCode: cb.ResultCode,
		ResultDesc: cb.ResultDesc,
	}
	if cb.Succeeded() {
		res.Status = domain.PaymentCompleted
		res.ReceiptNumber = cb.ReceiptNumber
	}

	var (
		outcome domain.CallbackOutcome
		settled *domain.Payment
		sub     *domain.Subscription
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.TransitionPending(ctx, cb.CheckoutRequestID, res)
		if err != nil {
			return err
		}
		if p == nil {
			existing, err := s.payments.FindByCheckoutID(ctx, cb.CheckoutRequestID)
			if err != nil {
				return err
			}
			if existing == nil {
				outcome = domain.OutcomeUnknown
			} else {
				outcome = domain.OutcomeDuplicate
			}
			return nil
		}

		settled = p
		if p.Status != domain.PaymentCompleted {
			outcome = domain.OutcomeFailed
			return nil
		}

		sub, err = s.subs.Activate(ctx, p.UserID, p.PlanID, p.ID)
		if err != nil {
			return fmt.Errorf("activate subscription: %w", err)
		}
		outcome = domain.OutcomeCompleted
		return nil
	})
	if err != nil {
		obs.MpesaCallbacks.WithLabelValues(string(domain.OutcomeError)).Inc()
		log.Error("failed to apply payment callback", sl.Err(err))
		return domain.OutcomeError, err
	}

	obs.MpesaCallbacks.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case domain.OutcomeUnknown:
		log.Warn("callback for unknown checkout request")
		return outcome, nil
	case domain.OutcomeDuplicate:
		log.Info("duplicate callback ignored")
		return outcome, nil
	}

	if cb.Amount != nil && *cb.Amount != settled.Amount {
		log.Warn("callback amount differs from ledger",
			slog.Int64("expected", settled.Amount),
			slog.Int64("received", *cb.Amount),
		)
	}

	log.Info("payment settled",
		slog.String("payment_id", settled.ID),
		slog.String("status", string(settled.Status)),
		slog.Int("result_code", cb.ResultCode),
	)
	s.publish(ctx, settled, sub)
	return outcome, nil
}

// publish runs after commit. Delivery failures are logged and never undo the ledger.
func (s *LedgerService) publish(ctx context.Context, p *domain.Payment, sub *domain.Subscription) {
	if s.events == nil {
		return
	}

	key := events.PaymentFailed
	if p.Status == domain.PaymentCompleted {
		key = events.PaymentCompleted
	}
	ev := events.PaymentEvent{
		PaymentID:         p.ID,
		TransactionID:     p.TransactionID,
		CheckoutRequestID: p.CheckoutRequestID,
		UserID:            p.UserID,
		PlanID:            p.PlanID,
		Amount:            p.Amount,
		Status:            string(p.Status),
		ReceiptNumber:     p.ReceiptNumber,
		ResultCode:        p.ResultCode,
		OccurredAt:        p.UpdatedAt,
	}
	if err := s.events.Publish(ctx, key, ev); err != nil {
		s.log.Warn("failed to publish event", slog.String("routing_key", key), sl.Err(err))
	}

	if sub == nil {
		return
	}
	sev := events.SubscriptionEvent{
		UserID:          sub.UserID,
		PlanID:          sub.PlanID,
		SourcePaymentID: sub.SourcePaymentID,
		ActivatedAt:     sub.ActivatedAt,
		ExpiresAt:       sub.ExpiresAt,
	}
	if err := s.events.Publish(ctx, events.SubscriptionActivated, sev); err != nil {
		s.log.Warn("failed to publish event", slog.String("routing_key", events.SubscriptionActivated), sl.Err(err))
	}
}
