package payment

import (
	"context"
	"fmt"
)

// Gateway defines the interface for STK push providers.
type Gateway interface {
	// STKPush asks the provider to prompt the customer's handset for payment.
	STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
	// QueryStatus asks the provider for the outcome of a push. A nil result
	// with a nil error means the transaction is still being processed.
	QueryStatus(ctx context.Context, checkoutRequestID string) (*CallbackResult, error)
}

// STKPushRequest is a provider-neutral payment prompt.
type STKPushRequest struct {
	PhoneNumber      string // 254XXXXXXXXX
	Amount           int64  // whole shillings
	AccountReference string
	TransactionDesc  string
}

// STKPushResponse is the provider's acceptance of a push.
type STKPushResponse struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

// CallbackResult is the outcome of an STK push, whether delivered by
// webhook or fetched by a status query.
type CallbackResult struct {
	MerchantRequestID string  `json:"merchantRequestId"`
	CheckoutRequestID string  `json:"checkoutRequestId"`
	ResultCode        int     `json:"resultCode"`
	ResultDesc        string  `json:"resultDesc"`
	ReceiptNumber     *string `json:"receiptNumber,omitempty"`
	Amount            *int64  `json:"amount,omitempty"`
	TransactionDate   *string `json:"transactionDate,omitempty"`
	PhoneNumber       *string `json:"phoneNumber,omitempty"`
}

// Succeeded reports whether the customer paid.
func (r *CallbackResult) Succeeded() bool {
	return r.ResultCode == 0
}

// GatewayError is returned when the provider cannot be reached or rejects a request.
type GatewayError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": code " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
