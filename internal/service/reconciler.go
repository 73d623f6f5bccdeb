package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/generatororacle/backend/pkg/payment"
)

const (
	DefaultReconcileAfter = 2 * time.Minute
	DefaultReconcileBatch = 50
)

// Reconciler asks the gateway about payments whose callback never arrived.
// Results are fed through the same ledger path as a callback; a payment the
// gateway still reports as processing is left pending.
type Reconciler struct {
	payments PaymentStore
	gateway  payment.Gateway
	ledger   *LedgerService
	after    time.Duration
	batch    int
	log      *slog.Logger
	now      func() time.Time
}

func NewReconciler(payments PaymentStore, gateway payment.Gateway, ledger *LedgerService, after time.Duration, log *slog.Logger) *Reconciler {
	if after <= 0 {
		after = DefaultReconcileAfter
	}
	return &Reconciler{
		payments: payments,
		gateway:  gateway,
		ledger:   ledger,
		after:    after,
		batch:    DefaultReconcileBatch,
		log:      log,
		now:      time.Now,
	}
}

// Run checks one batch of stale pending payments and returns how many were settled.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	stale, err := r.payments.ListPendingBefore(ctx, r.now().Add(-r.after), r.batch)
	if err != nil {
		r.log.Error("failed to list pending payments", sl.Err(err))
		return 0, err
	}

	settled := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}

		res, err := r.gateway.QueryStatus(ctx, p.CheckoutRequestID)
		if err != nil {
			r.log.Warn("status query failed",
				slog.String("checkout_request_id", p.CheckoutRequestID),
				sl.Err(err),
			)
			continue
		}
		if res == nil {
			continue
		}
		if res.CheckoutRequestID == "" {
			res.CheckoutRequestID = p.CheckoutRequestID
		}

		outcome, err := r.ledger.ApplyCallback(ctx, res)
		if err != nil {
			continue
		}
		if outcome == domain.OutcomeCompleted || outcome == domain.OutcomeFailed {
			settled++
		}
	}

	if settled > 0 {
		r.log.Info("reconciled pending payments", slog.Int("checked", len(stale)), slog.Int("settled", settled))
	}
	return settled, nil
}
