package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/generatororacle/backend/internal/cache"
	"github.com/generatororacle/backend/internal/config"
	"github.com/generatororacle/backend/internal/events"
	"github.com/generatororacle/backend/internal/handler"
	"github.com/generatororacle/backend/internal/lib/sl"
	appMiddleware "github.com/generatororacle/backend/internal/middleware"
	"github.com/generatororacle/backend/internal/obs"
	"github.com/generatororacle/backend/internal/repository"
	"github.com/generatororacle/backend/internal/scheduler"
	"github.com/generatororacle/backend/internal/service"
	"github.com/generatororacle/backend/internal/ws"
	"github.com/generatororacle/backend/pkg/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := cfg.Logger()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", sl.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.Init()

	// Database
	pool, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.RunMigrations(pool); err != nil {
		return err
	}
	log.Info("database connected and migrated")

	store := repository.NewStore(pool, log)
	userRepo := repository.NewUserRepository(store)
	sessionRepo := repository.NewSessionRepository(store)
	paymentRepo := repository.NewPaymentRepository(store)
	subRepo := repository.NewSubscriptionRepository(store)

	// Login throttle. Without Redis, logins are not throttled.
	var throttle service.LoginThrottle
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, login throttle disabled", sl.Err(err))
		} else {
			defer rdb.Close()
			throttle = cache.NewLoginThrottle(rdb, cache.DefaultMaxFailures, cache.DefaultWindow)
			log.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
		}
	}

	// Domain events
	var publisher service.EventPublisher = events.NewLogPublisher(log)
	if cfg.AMQP.URL != "" {
		conn, err := events.Dial(cfg.AMQP.URL, 5, 2*time.Second)
		if err != nil {
			return err
		}
		amqpPub, err := events.NewAMQPPublisher(conn, cfg.AMQP.Exchange)
		if err != nil {
			_ = conn.Close()
			return err
		}
		defer amqpPub.Close()
		publisher = amqpPub
		log.Info("amqp connected", slog.String("exchange", cfg.AMQP.Exchange))
	}

	gateway := newGateway(cfg, log)

	// Services
	sessionSvc := service.NewSessionService(sessionRepo, userRepo, cfg.SessionTTL, log)
	authSvc := service.NewAuthService(userRepo, sessionSvc, throttle, cfg.AdminEmail, cfg.AdminPassword, log)
	subSvc := service.NewSubscriptionService(subRepo, paymentRepo, log)
	ledgerSvc := service.NewLedgerService(paymentRepo, subSvc, store, gateway, publisher, log)
	reconciler := service.NewReconciler(paymentRepo, gateway, ledgerSvc, cfg.Jobs.ReconcileAfter, log)
	statsSvc := service.NewStatsService(userRepo, paymentRepo, subRepo)

	if err := authSvc.SeedAdmin(ctx); err != nil {
		return err
	}

	// Scheduled jobs
	jobs := scheduler.New(log)
	if err := jobs.AddSessionCleanup(cfg.Jobs.SessionCleanup, sessionSvc, cfg.SessionRetention); err != nil {
		return err
	}
	if err := jobs.AddPaymentReconcile(cfg.Jobs.PaymentReconcile, reconciler); err != nil {
		return err
	}
	jobs.Start()

	// Handlers
	cookies := handler.Cookies{Secure: cfg.CookieSecure, TTL: sessionSvc.TTL()}
	authHandler := handler.NewAuthHandler(authSvc, sessionSvc, cookies)
	userHandler := handler.NewUserHandler(authSvc)
	adminHandler := handler.NewAdminHandler(statsSvc)
	plansHandler := handler.NewPlansHandler()
	paymentHandler := handler.NewPaymentHandler(ledgerSvc)
	callbackHandler := handler.NewMpesaCallbackHandler(ledgerSvc, log)
	subscriptionHandler := handler.NewSubscriptionHandler(subSvc)
	healthHandler := handler.NewHealthHandler(store)
	paymentStatusHandler := ws.NewPaymentStatusHandler(ledgerSvc, cfg.CORSOrigins, log)

	r := newRouter(ctx, routes{
		auth:           authHandler,
		users:          userHandler,
		admin:          adminHandler,
		plans:          plansHandler,
		payments:       paymentHandler,
		callback:       callbackHandler,
		subscription:   subscriptionHandler,
		health:         healthHandler,
		paymentStatus:  paymentStatusHandler,
		requireSession: appMiddleware.Session(sessionSvc, cookies, log),
		corsOrigins:    cfg.CORSOrigins,
		log:            log,
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout stays 0 for the payment status websocket
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			jobs.Stop(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jobs.Stop(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

func newGateway(cfg *config.Config, log *slog.Logger) payment.Gateway {
	mpesa := cfg.Gateway()
	if mpesa.Configured() {
		log.Info("using M-Pesa Daraja gateway", slog.String("environment", mpesa.Environment))
		return payment.NewMpesaClient(mpesa)
	}
	log.Warn("M-Pesa credentials not set, using mock gateway")
	return payment.NewMockGateway(10 * time.Second)
}
