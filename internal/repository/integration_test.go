//go:build integration

package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("oracle"),
		postgres.WithUsername("oracle"),
		postgres.WithPassword("oracle"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(pool))
	return NewStore(pool, sl.Discard())
}

func TestConcurrentCallbacksTransitionOnce(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	now := time.Now()

	users := NewUserRepository(db)
	payments := NewPaymentRepository(db)

	require.NoError(t, users.Create(ctx, &domain.User{
		ID: "user-1", Email: "tech@example.com", PasswordHash: "x", Name: "Tech",
		Role: domain.RoleTechnician, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, payments.Create(ctx, &domain.Payment{
		ID: "pay-1", TransactionID: "GO-1", CheckoutRequestID: "ws_CO_123", MerchantRequestID: "mr-1",
		UserID: "user-1", PlanID: "pro-monthly", Amount: 4500, PhoneNumber: "254700000000",
		Status: domain.PaymentPending, CreatedAt: now, UpdatedAt: now,
	}))

	receipt := "QAX123"
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := payments.TransitionPending(ctx, "ws_CO_123", domain.PaymentResult{
				Status: domain.PaymentCompleted, ReceiptNumber: &receipt, ResultDesc: "ok",
			})
			assert.NoError(t, err)
			if p != nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())

	p, err := payments.FindByCheckoutID(ctx, "ws_CO_123")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, p.Status)
}

func TestEmailUniqueCaseInsensitive(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	now := time.Now()
	users := NewUserRepository(db)

	require.NoError(t, users.Create(ctx, &domain.User{
		ID: "user-1", Email: "tech@example.com", PasswordHash: "x", Name: "Tech",
		Role: domain.RoleTechnician, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}))
	err := users.Create(ctx, &domain.User{
		ID: "user-2", Email: "TECH@example.com", PasswordHash: "x", Name: "Tech",
		Role: domain.RoleTechnician, IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}
