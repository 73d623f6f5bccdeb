package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentCols = []string{
	"id", "transaction_id", "checkout_request_id", "merchant_request_id", "user_id", "plan_id",
	"amount", "phone_number", "status", "receipt_number", "result_code", "result_desc", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *DB) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewStore(mock, sl.Discard())
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestPaymentTransitionPending(t *testing.T) {
	mock, db := newMockStore(t)
	repo := NewPaymentRepository(db)
	now := time.Now()

	res := domain.PaymentResult{
		Status:        domain.PaymentCompleted,
		ReceiptNumber: strPtr("QAX123"),
		ResultCode:    0,
		ResultDesc:    "The service request is processed successfully.",
	}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE checkout_request_id = $1 AND status = 'pending'")).
		WithArgs("ws_CO_123", "completed", strPtr("QAX123"), 0, res.ResultDesc).
		WillReturnRows(pgxmock.NewRows(paymentCols).AddRow(
			"pay-1", "GO-01", "ws_CO_123", "mr-1", "user-1", "pro-monthly",
			int64(4500), "254700000000", "completed", strPtr("QAX123"), intPtr(0), strPtr(res.ResultDesc), now, now,
		))

	p, err := repo.TransitionPending(context.Background(), "ws_CO_123", res)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domain.PaymentCompleted, p.Status)
	assert.Equal(t, "QAX123", *p.ReceiptNumber)
	assert.Equal(t, int64(4500), p.Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentTransitionPendingLosesRace(t *testing.T) {
	mock, db := newMockStore(t)
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE payments")).
		WithArgs("ws_CO_123", "failed", (*string)(nil), 1032, "Request cancelled by user").
		WillReturnRows(pgxmock.NewRows(paymentCols))

	p, err := repo.TransitionPending(context.Background(), "ws_CO_123", domain.PaymentResult{
		Status:     domain.PaymentFailed,
		ResultCode: 1032,
		ResultDesc: "Request cancelled by user",
	})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentFindByCheckoutIDNotFound(t *testing.T) {
	mock, db := newMockStore(t)
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE checkout_request_id = $1")).
		WithArgs("ws_CO_missing").
		WillReturnRows(pgxmock.NewRows(paymentCols))

	p, err := repo.FindByCheckoutID(context.Background(), "ws_CO_missing")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestWithinTxCommits(t *testing.T) {
	mock, db := newMockStore(t)
	subs := NewSubscriptionRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id) DO UPDATE")).
		WithArgs("user-1", "pro-monthly", pgxmock.AnyArg(), pgxmock.AnyArg(), "pay-1", strPtr("QAX123"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := db.WithinTx(context.Background(), func(ctx context.Context) error {
		return subs.Upsert(ctx, &domain.Subscription{
			UserID:          "user-1",
			PlanID:          "pro-monthly",
			ActivatedAt:     now,
			ExpiresAt:       now.AddDate(0, 1, 0),
			SourcePaymentID: "pay-1",
			ReceiptNumber:   strPtr("QAX123"),
			UpdatedAt:       now,
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	mock, db := newMockStore(t)
	boom := errors.New("activation failed")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	mock, db := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "nil store", func() {
		_ = db.WithinTx(context.Background(), func(ctx context.Context) error {
			panic("nil store")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxNestedReusesOuter(t *testing.T) {
	mock, db := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := db.WithinTx(context.Background(), func(ctx context.Context) error {
		return db.WithinTx(ctx, func(ctx context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRevokeAllForUser(t *testing.T) {
	mock, db := newMockStore(t)
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE user_id = $1 AND NOT revoked")).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.RevokeAllForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRevokeByTokenHashIdempotent(t *testing.T) {
	mock, db := newMockStore(t)
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE token_hash = $1 AND NOT revoked")).
		WithArgs("hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	changed, err := repo.RevokeByTokenHash(context.Background(), "hash")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSessionFindByTokenHash(t *testing.T) {
	mock, db := newMockStore(t)
	repo := NewSessionRepository(db)
	now := time.Now()

	cols := []string{"id", "token_hash", "user_id", "device_fingerprint", "ip_address", "user_agent", "issued_at", "expires_at", "revoked", "revoked_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE token_hash = $1")).
		WithArgs("hash").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"sess-1", "hash", "user-1", nil, "10.0.0.1", "curl", now, now.Add(time.Hour), false, nil,
		))

	s, err := repo.FindByTokenHash(context.Background(), "hash")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "user-1", s.UserID)
	assert.Nil(t, s.DeviceFingerprint)
	assert.False(t, s.Revoked)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	mock, db := newMockStore(t)
	repo := NewUserRepository(db)
	now := time.Now()

	u := &domain.User{
		ID: "user-1", Email: "tech@example.com", PasswordHash: "hash", Name: "Tech",
		Role: domain.RoleTechnician, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(u.ID, u.Email, u.PasswordHash, u.Name, u.Phone, u.OrganizationID, u.LicenseKey, u.Role, true, now, now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), u)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestSubscriptionFindByUserIDMissing(t *testing.T) {
	mock, db := newMockStore(t)
	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM subscriptions WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "plan_id", "activated_at", "expires_at", "source_payment_id", "receipt_number", "updated_at"}))

	sub, err := repo.FindByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, sub)
}
