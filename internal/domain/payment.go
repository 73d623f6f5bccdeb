package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the lifecycle state of a payment. Only pending rows
// ever change; completed and failed are terminal.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// Payment is a ledger row created when the gateway accepts an STK push.
type Payment struct {
	ID                string        `json:"id"`
	TransactionID     string        `json:"transactionId"`
	CheckoutRequestID string        `json:"checkoutRequestId"`
	MerchantRequestID string        `json:"merchantRequestId"`
	UserID            string        `json:"userId"`
	PlanID            string        `json:"planId"`
	Amount            int64         `json:"amount"`
	PhoneNumber       string        `json:"phoneNumber"`
	Status            PaymentStatus `json:"status"`
	ReceiptNumber     *string       `json:"receiptNumber,omitempty"`
	ResultCode        *int          `json:"resultCode,omitempty"`
	ResultDesc        *string       `json:"resultDesc,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// PaymentResult carries the gateway outcome applied to a pending payment.
type PaymentResult struct {
	Status        PaymentStatus
	ReceiptNumber *string
	ResultCode    int
	ResultDesc    string
}

// InitiatePaymentRequest is the input for POST /payments/mpesa.
type InitiatePaymentRequest struct {
	PlanID      string `json:"planId" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required,max=20"`
}

// InitiatePaymentResponse is returned once the gateway accepted the push.
type InitiatePaymentResponse struct {
	TransactionID     string `json:"transactionId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	CustomerMessage   string `json:"customerMessage"`
}

// CallbackOutcome labels what happened to a delivered callback.
type CallbackOutcome string

const (
	OutcomeCompleted CallbackOutcome = "completed"
	OutcomeFailed    CallbackOutcome = "failed"
	OutcomeDuplicate CallbackOutcome = "duplicate"
	OutcomeUnknown   CallbackOutcome = "unknown"
	OutcomeMalformed CallbackOutcome = "malformed"
	OutcomeError     CallbackOutcome = "error"
)

// NewPaymentID generates a new UUID for a payment row.
func NewPaymentID() string {
	return uuid.New().String()
}
