package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/generatororacle/backend/internal/obs"
	"github.com/generatororacle/backend/pkg/payment"
)

// CallbackApplier settles payments from gateway results.
type CallbackApplier interface {
	ApplyCallback(ctx context.Context, cb *payment.CallbackResult) (domain.CallbackOutcome, error)
}

// MpesaCallbackHandler receives Daraja STK callbacks. Safaricom retries on
// anything but a prompt 200, so every delivery is acknowledged.
type MpesaCallbackHandler struct {
	ledger CallbackApplier
	log    *slog.Logger
}

func NewMpesaCallbackHandler(ledger CallbackApplier, log *slog.Logger) *MpesaCallbackHandler {
	return &MpesaCallbackHandler{ledger: ledger, log: log}
}

var callbackAccepted = map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"}

// Callback handles POST /payments/mpesa/callback.
func (h *MpesaCallbackHandler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.log.Warn("failed to read mpesa callback", sl.Err(err))
		JSON(w, http.StatusOK, callbackAccepted)
		return
	}

	cb := payment.ParseCallback(body)
	if cb == nil {
		obs.MpesaCallbacks.WithLabelValues(string(domain.OutcomeMalformed)).Inc()
		h.log.Warn("malformed mpesa callback", slog.Int("bytes", len(body)))
		JSON(w, http.StatusOK, callbackAccepted)
		return
	}

	// Settle even if Safaricom drops the connection mid-request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
	defer cancel()

	outcome, err := h.apply(ctx, cb)
	if err != nil {
		// Already logged by the ledger; the reconciler picks the payment up later.
		JSON(w, http.StatusOK, callbackAccepted)
		return
	}

	h.log.Debug("mpesa callback handled",
		slog.String("checkout_request_id", cb.CheckoutRequestID),
		slog.String("outcome", string(outcome)),
	)
	JSON(w, http.StatusOK, callbackAccepted)
}

// apply settles cb, turning a panic in the ledger into an error so the
// gateway still gets its acknowledgement.
func (h *MpesaCallbackHandler) apply(ctx context.Context, cb *payment.CallbackResult) (outcome domain.CallbackOutcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome, err = domain.OutcomeError, fmt.Errorf("panic applying mpesa callback: %v", rec)
			h.log.Error("mpesa callback panicked",
				slog.String("checkout_request_id", cb.CheckoutRequestID),
				sl.Err(err),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	return h.ledger.ApplyCallback(ctx, cb)
}

// Ping handles GET /payments/mpesa/callback so the URL can be checked from a browser.
func (h *MpesaCallbackHandler) Ping(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"message":   "M-Pesa callback endpoint is active",
		"timestamp": time.Now().UTC(),
	})
}
