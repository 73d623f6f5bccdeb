package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/handler"
	appMiddleware "github.com/generatororacle/backend/internal/middleware"
	"github.com/generatororacle/backend/internal/obs"
	"github.com/generatororacle/backend/internal/ws"
)

type routes struct {
	auth          *handler.AuthHandler
	users         *handler.UserHandler
	admin         *handler.AdminHandler
	plans         *handler.PlansHandler
	payments      *handler.PaymentHandler
	callback      *handler.MpesaCallbackHandler
	subscription  *handler.SubscriptionHandler
	health        *handler.HealthHandler
	paymentStatus *ws.PaymentStatusHandler

	requireSession func(next http.Handler) http.Handler
	corsOrigins    []string
	log            *slog.Logger
}

func newRouter(ctx context.Context, rt routes) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appMiddleware.Recovery(rt.log))
	r.Use(appMiddleware.Logger(rt.log))
	r.Use(obs.Instrument)

	// Daraja delivers callbacks from a handful of addresses and retries
	// anything but a 200, so these stay outside the rate limiter.
	r.Post("/payments/mpesa/callback", rt.callback.Callback)
	r.Get("/payments/mpesa/callback", rt.callback.Ping)

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS", "PATCH"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		// Global rate limiter (20 req/sec per IP, burst of 40)
		r.Use(appMiddleware.NewRateLimiter(ctx, 20, 40).Middleware())

		// Public routes
		r.Get("/health", rt.health.Check)
		r.Method(http.MethodGet, "/metrics", obs.Handler())
		r.Get("/plans", rt.plans.List)
		r.Post("/auth/logout", rt.auth.Logout)
		r.Get("/auth/session", rt.auth.Session)

		// Credential routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.StrictRateLimiter(ctx))
			r.Post("/auth/register", rt.auth.Register)
			r.Post("/auth/login", rt.auth.Login)
		})

		// Session routes
		r.Group(func(r chi.Router) {
			r.Use(rt.requireSession)

			r.Delete("/auth/session", rt.auth.LogoutAll)
			r.Get("/auth/sessions", rt.auth.ListSessions)
			r.Delete("/auth/sessions/{id}", rt.auth.RevokeSession)
			r.Post("/auth/password", rt.auth.ChangePassword)

			r.Post("/payments/mpesa", rt.payments.Initiate)
			r.Get("/payments/mpesa", rt.payments.Status)
			r.Get("/payments/mpesa/ws", rt.paymentStatus.Handle)
			r.Get("/payments", rt.payments.History)

			r.Get("/subscription", rt.subscription.Current)
			r.Get("/subscription/entitlement", rt.subscription.Entitlement)

			r.With(appMiddleware.RequireRole(domain.RoleAdmin, domain.RoleManager)).
				Patch("/admin/users/{id}/role", rt.users.UpdateRole)

			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.RequireRole(domain.RoleAdmin))
				r.Get("/admin/stats", rt.admin.GetStats)
				r.Get("/admin/users", rt.users.List)
				r.Post("/admin/users/{id}/deactivate", rt.users.Deactivate)
			})
		})
	})

	return r
}
