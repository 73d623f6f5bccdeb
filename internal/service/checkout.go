package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/ids"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/generatororacle/backend/internal/obs"
	"github.com/generatororacle/backend/pkg/payment"
)

const (
	accountReference = "GeneratorOracle"
	historyLimit     = 20
	recordTimeout    = 5 * time.Second
)

// Initiate sends an STK push for planID and records a pending payment once
// the gateway has accepted it. Nothing is written when the gateway refuses.
func (s *LedgerService) Initiate(ctx context.Context, userID string, req *domain.InitiatePaymentRequest) (*domain.InitiatePaymentResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	plan, ok := domain.GetPlan(req.PlanID)
	if !ok {
		return nil, domain.ErrValidation("unknown plan: " + req.PlanID)
	}
	if plan.Free() {
		return nil, domain.ErrValidation("the free plan does not require payment")
	}

	phone := payment.NormalizePhone(req.PhoneNumber)
	if !payment.ValidPhone(phone) {
		return nil, domain.ErrValidation("phoneNumber must be a Kenyan mobile number such as 254712345678")
	}

	resp, err := s.gateway.STKPush(ctx, payment.STKPushRequest{
		PhoneNumber:      phone,
		Amount:           plan.PriceKES,
		AccountReference: accountReference,
		TransactionDesc:  plan.Name,
	})
	if err != nil {
		obs.STKPushes.WithLabelValues("rejected").Inc()
		s.log.Warn("stk push failed",
			slog.String("user_id", userID),
			slog.String("plan_id", plan.ID),
			sl.Err(err),
		)
		return nil, domain.ErrGateway("payment gateway rejected the request", err)
	}
	obs.STKPushes.WithLabelValues("accepted").Inc()

	now := s.now()
	p := &domain.Payment{
		ID:                domain.NewPaymentID(),
		TransactionID:     ids.TransactionID(),
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		UserID:            userID,
		PlanID:            plan.ID,
		Amount:            plan.PriceKES,
		PhoneNumber:       phone,
		Status:            domain.PaymentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	// The customer already has the PIN prompt, so the row is written even if
	// the caller has gone away.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.payments.Create(recordCtx, p); err != nil {
		// The push is already on the customer's phone; the callback will
		// find no row and be logged as unknown.
		s.log.Error("failed to record pending payment",
			slog.String("checkout_request_id", resp.CheckoutRequestID),
			sl.Err(err),
		)
		return nil, domain.ErrInternal("failed to record payment", err)
	}

	s.log.Info("payment initiated",
		slog.String("user_id", userID),
		slog.String("plan_id", plan.ID),
		slog.String("transaction_id", p.TransactionID),
		slog.String("checkout_request_id", p.CheckoutRequestID),
	)

	return &domain.InitiatePaymentResponse{
		TransactionID:     p.TransactionID,
		CheckoutRequestID: p.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// GetPayment returns one of the user's payments by checkout request ID.
func (s *LedgerService) GetPayment(ctx context.Context, userID, checkoutRequestID string) (*domain.Payment, error) {
	if checkoutRequestID == "" {
		return nil, domain.ErrValidation("checkoutRequestId is required")
	}
	p, err := s.payments.FindByCheckoutID(ctx, checkoutRequestID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load payment", err)
	}
	if p == nil || p.UserID != userID {
		return nil, domain.ErrNotFound("payment not found")
	}
	return p, nil
}

// ListPayments returns the user's most recent payments.
func (s *LedgerService) ListPayments(ctx context.Context, userID string) ([]*domain.Payment, error) {
	list, err := s.payments.ListByUser(ctx, userID, historyLimit)
	if err != nil {
		return nil, domain.ErrInternal("failed to list payments", err)
	}
	if list == nil {
		list = []*domain.Payment{}
	}
	return list, nil
}
