// Package scheduler runs the periodic maintenance jobs: purging dead
// sessions and reconciling payments whose callback never arrived.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/generatororacle/backend/internal/lib/sl"
)

const jobTimeout = time.Minute

type SessionPurger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

type PaymentReconciler interface {
	Run(ctx context.Context) (int, error)
}

// JobScheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type JobScheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func New(log *slog.Logger) *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{log: log}
	return &JobScheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// AddSessionCleanup schedules removal of sessions that expired or were
// revoked more than retention ago.
func (s *JobScheduler) AddSessionCleanup(schedule string, purger SessionPurger, retention time.Duration) error {
	return s.add("session_cleanup", schedule, func(ctx context.Context) error {
		n, err := purger.PurgeExpired(ctx, retention)
		if err != nil {
			return err
		}
		if n > 0 {
			s.log.Info("purged stale sessions", slog.Int64("count", n))
		}
		return nil
	})
}

// AddPaymentReconcile schedules the pending payment reconciler.
func (s *JobScheduler) AddPaymentReconcile(schedule string, r PaymentReconciler) error {
	return s.add("payment_reconcile", schedule, func(ctx context.Context) error {
		n, err := r.Run(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.log.Info("reconciled pending payments", slog.Int("settled", n))
		}
		return nil
	})
}

func (s *JobScheduler) add(name, schedule string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("scheduled job failed", slog.String("job", name), sl.Err(err))
			return
		}
		s.log.Debug("scheduled job finished",
			slog.String("job", name),
			slog.Duration("duration", time.Since(start)),
		)
	})
	if err != nil {
		return fmt.Errorf("scheduler: add %s %q: %w", name, schedule, err)
	}
	s.log.Info("job scheduled", slog.String("job", name), slog.String("schedule", schedule))
	return nil
}

func (s *JobScheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return, or for ctx.
func (s *JobScheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{sl.Err(err)}, keysAndValues...)...)
}
