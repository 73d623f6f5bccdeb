package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/handler"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/generatororacle/backend/pkg/payment"
)

type countingLedger struct{ calls int }

func (l *countingLedger) ApplyCallback(context.Context, *payment.CallbackResult) (domain.CallbackOutcome, error) {
	l.calls++
	return domain.OutcomeDuplicate, nil
}

func testRouter(t *testing.T, ledger handler.CallbackApplier) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return newRouter(ctx, routes{
		callback:       handler.NewMpesaCallbackHandler(ledger, sl.Discard()),
		plans:          handler.NewPlansHandler(),
		requireSession: func(next http.Handler) http.Handler { return next },
		corsOrigins:    []string{"http://localhost:3000"},
		log:            sl.Discard(),
	})
}

func statusCounts(r http.Handler, n int, newReq func() *http.Request) map[int]int {
	counts := map[int]int{}
	for i := 0; i < n; i++ {
		req := newReq()
		req.RemoteAddr = "196.201.214.200:443"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		counts[rec.Code]++
	}
	return counts
}

func TestCallbackIsNotRateLimited(t *testing.T) {
	ledger := &countingLedger{}
	r := testRouter(t, ledger)
	body := `{"Body":{"stkCallback":{"MerchantRequestID":"m1","CheckoutRequestID":"ws_CO_123","ResultCode":0,"ResultDesc":"ok"}}}`

	counts := statusCounts(r, 60, func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/payments/mpesa/callback", strings.NewReader(body))
	})
	assert.Equal(t, map[int]int{http.StatusOK: 60}, counts)
	assert.Equal(t, 60, ledger.calls)

	counts = statusCounts(r, 60, func() *http.Request {
		return httptest.NewRequest(http.MethodGet, "/payments/mpesa/callback", nil)
	})
	assert.Equal(t, map[int]int{http.StatusOK: 60}, counts)
}

func TestPublicRoutesAreRateLimited(t *testing.T) {
	r := testRouter(t, &countingLedger{})

	counts := statusCounts(r, 60, func() *http.Request {
		return httptest.NewRequest(http.MethodGet, "/plans", nil)
	})
	assert.Positive(t, counts[http.StatusTooManyRequests])
	assert.Positive(t, counts[http.StatusOK])
}
