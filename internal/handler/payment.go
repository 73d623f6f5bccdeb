package handler

import (
	"context"
	"net/http"

	"github.com/generatororacle/backend/internal/contextkeys"
	"github.com/generatororacle/backend/internal/domain"
)

// PaymentLedger is the checkout surface used by PaymentHandler.
type PaymentLedger interface {
	Initiate(ctx context.Context, userID string, req *domain.InitiatePaymentRequest) (*domain.InitiatePaymentResponse, error)
	GetPayment(ctx context.Context, userID, checkoutRequestID string) (*domain.Payment, error)
	ListPayments(ctx context.Context, userID string) ([]*domain.Payment, error)
}

type PaymentHandler struct {
	ledger PaymentLedger
}

func NewPaymentHandler(ledger PaymentLedger) *PaymentHandler {
	return &PaymentHandler{ledger: ledger}
}

// Initiate handles POST /payments/mpesa.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req domain.InitiatePaymentRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.ledger.Initiate(r.Context(), contextkeys.String(r.Context(), contextkeys.UserID), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// Status handles GET /payments/mpesa?checkoutRequestId=.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, err := h.ledger.GetPayment(r.Context(),
		contextkeys.String(r.Context(), contextkeys.UserID),
		r.URL.Query().Get("checkoutRequestId"),
	)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

// History handles GET /payments.
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.ListPayments(r.Context(), contextkeys.String(r.Context(), contextkeys.UserID))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, list)
}
