// Package events publishes domain events to subscribers outside the API
// process once the owning transaction has committed.
package events

import "time"

// Routing keys on the events exchange.
const (
	PaymentCompleted      = "payment.completed"
	PaymentFailed         = "payment.failed"
	SubscriptionActivated = "subscription.activated"
)

// PaymentEvent is published when a pending payment reaches a terminal state.
type PaymentEvent struct {
	PaymentID         string    `json:"paymentId"`
	TransactionID     string    `json:"transactionId"`
	CheckoutRequestID string    `json:"checkoutRequestId"`
	UserID            string    `json:"userId"`
	PlanID            string    `json:"planId"`
	Amount            int64     `json:"amount"`
	Status            string    `json:"status"`
	ReceiptNumber     *string   `json:"receiptNumber,omitempty"`
	ResultCode        *int      `json:"resultCode,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// SubscriptionEvent is published after a subscription is activated.
type SubscriptionEvent struct {
	UserID          string    `json:"userId"`
	PlanID          string    `json:"planId"`
	SourcePaymentID string    `json:"sourcePaymentId"`
	ActivatedAt     time.Time `json:"activatedAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}
