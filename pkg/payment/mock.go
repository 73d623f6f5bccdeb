package payment

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MockGateway accepts every push and settles it successfully after a delay.
// It stands in for Daraja during local development. A push is forgotten once
// QueryStatus has reported it settled.
type MockGateway struct {
	settleAfter time.Duration

	mu     sync.Mutex
	pushes map[string]time.Time
}

func NewMockGateway(settleAfter time.Duration) *MockGateway {
	return &MockGateway{
		settleAfter: settleAfter,
		pushes:      make(map[string]time.Time),
	}
}

func (g *MockGateway) STKPush(_ context.Context, req STKPushRequest) (*STKPushResponse, error) {
	if !ValidPhone(req.PhoneNumber) {
		return nil, &GatewayError{Op: "mock.STKPush", Code: "400.002.02", Message: "Invalid PhoneNumber"}
	}

	id := ulid.Make().String()
	checkoutID := "ws_CO_" + id

	g.mu.Lock()
	g.pushes[checkoutID] = time.Now()
	g.mu.Unlock()

	return &STKPushResponse{
		MerchantRequestID:   "mock-" + id,
		CheckoutRequestID:   checkoutID,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

func (g *MockGateway) QueryStatus(_ context.Context, checkoutRequestID string) (*CallbackResult, error) {
	g.mu.Lock()
	pushedAt, ok := g.pushes[checkoutRequestID]
	settled := ok && time.Since(pushedAt) >= g.settleAfter
	if settled {
		delete(g.pushes, checkoutRequestID)
	}
	g.mu.Unlock()

	if !settled {
		return nil, nil
	}

	receipt := "MOCK" + ulid.Make().String()[16:]
	return &CallbackResult{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		ReceiptNumber:     &receipt,
	}, nil
}
