// Package ws streams live updates over websockets.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/generatororacle/backend/internal/contextkeys"
	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/handler"
	"github.com/generatororacle/backend/internal/lib/sl"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 3 * time.Minute

	writeWait = 5 * time.Second
)

// PaymentLookup loads a payment owned by the user.
type PaymentLookup interface {
	GetPayment(ctx context.Context, userID, checkoutRequestID string) (*domain.Payment, error)
}

// StatusMessage is pushed to the client whenever the payment changes.
type StatusMessage struct {
	CheckoutRequestID string               `json:"checkoutRequestId"`
	Status            domain.PaymentStatus `json:"status"`
	ReceiptNumber     *string              `json:"receiptNumber,omitempty"`
	ResultDesc        *string              `json:"resultDesc,omitempty"`
	TimedOut          bool                 `json:"timedOut,omitempty"`
}

// PaymentStatusHandler replaces client-side polling after an STK push: it
// watches one payment and pushes its status until it is terminal or the
// wait expires.
type PaymentStatusHandler struct {
	payments PaymentLookup
	upgrader websocket.Upgrader
	poll     time.Duration
	maxWait  time.Duration
	log      *slog.Logger
}

// NewPaymentStatusHandler creates a handler accepting upgrades from origins.
// An empty list or "*" accepts any origin.
func NewPaymentStatusHandler(payments PaymentLookup, origins []string, log *slog.Logger) *PaymentStatusHandler {
	return &PaymentStatusHandler{
		payments: payments,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(origins)},
		poll:     DefaultPollInterval,
		maxWait:  DefaultMaxWait,
		log:      log,
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(origins) == 0 || slices.Contains(origins, "*") {
			return true
		}
		return slices.Contains(origins, origin)
	}
}

// Handle serves GET /payments/mpesa/ws?checkoutRequestId=. It must run behind
// the session middleware.
func (h *PaymentStatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID := contextkeys.String(r.Context(), contextkeys.UserID)
	checkoutID := r.URL.Query().Get("checkoutRequestId")

	// Ownership is checked before the upgrade so errors stay plain HTTP.
	p, err := h.payments.GetPayment(r.Context(), userID, checkoutID)
	if err != nil {
		handler.Error(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", sl.Err(err))
		return
	}
	defer conn.Close()

	// Detach from the request context; the hijacked connection outlives it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.maxWait)
	defer cancel()

	// Reader: the client never sends anything meaningful, but a read error is
	// how a closed tab is noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.stream(ctx, conn, userID, p)
}

func (h *PaymentStatusHandler) stream(ctx context.Context, conn *websocket.Conn, userID string, p *domain.Payment) {
	last := p.Status
	if err := h.send(conn, message(p)); err != nil || last.Terminal() {
		h.close(conn, websocket.CloseNormalClosure, "done")
		return
	}

	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				_ = h.send(conn, StatusMessage{CheckoutRequestID: p.CheckoutRequestID, Status: last, TimedOut: true})
				h.close(conn, websocket.CloseNormalClosure, "timeout")
			}
			return
		case <-ticker.C:
			cur, err := h.payments.GetPayment(ctx, userID, p.CheckoutRequestID)
			if err != nil {
				h.log.Warn("payment status lookup failed", slog.String("checkout_request_id", p.CheckoutRequestID), sl.Err(err))
				continue
			}
			if cur.Status == last {
				continue
			}
			last = cur.Status
			if err := h.send(conn, message(cur)); err != nil {
				return
			}
			if last.Terminal() {
				h.close(conn, websocket.CloseNormalClosure, "done")
				return
			}
		}
	}
}

func message(p *domain.Payment) StatusMessage {
	return StatusMessage{
		CheckoutRequestID: p.CheckoutRequestID,
		Status:            p.Status,
		ReceiptNumber:     p.ReceiptNumber,
		ResultDesc:        p.ResultDesc,
	}
}

func (h *PaymentStatusHandler) send(conn *websocket.Conn, msg StatusMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (h *PaymentStatusHandler) close(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}
