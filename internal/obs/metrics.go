package obs

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Domain metrics.
var (
	MpesaCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_mpesa_callbacks_total",
			Help: "M-Pesa STK callbacks by outcome.",
		},
		[]string{"outcome"},
	)

	STKPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_stk_push_total",
			Help: "STK push initiations by result.",
		},
		[]string{"result"},
	)

	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	SessionValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_session_validations_total",
			Help: "Session validations by result.",
		},
		[]string{"result"},
	)

	SubscriptionActivations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_subscription_activations_total",
			Help: "Subscription activations by plan.",
		},
		[]string{"plan"},
	)
)

// Init registers every collector in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		MpesaCallbacks, STKPushes, Logins, SessionValidations, SubscriptionActivations,
	)
}

// Handler serves /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests per chi route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack exposes the underlying connection for websocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("obs: response writer does not support hijacking")
	}
	return h.Hijack()
}
