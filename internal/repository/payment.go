package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, transaction_id, checkout_request_id, merchant_request_id, user_id, plan_id, amount, phone_number, status, receipt_number, result_code, result_desc, created_at, updated_at`

// PaymentRepository is the payment ledger.
type PaymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p      domain.Payment
		status string
	)
	err := row.Scan(
		&p.ID, &p.TransactionID, &p.CheckoutRequestID, &p.MerchantRequestID,
		&p.UserID, &p.PlanID, &p.Amount, &p.PhoneNumber, &status,
		&p.ReceiptNumber, &p.ResultCode, &p.ResultDesc, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}

// Create records a pending payment once the gateway accepted the push.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (id, transaction_id, checkout_request_id, merchant_request_id, user_id, plan_id, amount, phone_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Conn(ctx).Exec(ctx, query,
		p.ID, p.TransactionID, p.CheckoutRequestID, p.MerchantRequestID,
		p.UserID, p.PlanID, p.Amount, p.PhoneNumber, string(p.Status),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// TransitionPending moves a pending payment to a terminal status. The
// WHERE status = 'pending' guard makes it a compare-and-swap: under any number
// of concurrent deliveries exactly one caller gets the row back, everyone else
// gets nil.
func (r *PaymentRepository) TransitionPending(ctx context.Context, checkoutRequestID string, res domain.PaymentResult) (*domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, receipt_number = $3, result_code = $4, result_desc = $5, updated_at = NOW()
		WHERE checkout_request_id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.Conn(ctx).QueryRow(ctx, query,
		checkoutRequestID, string(res.Status), res.ReceiptNumber, res.ResultCode, res.ResultDesc,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to transition payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE checkout_request_id = $1`
	p, err := scanPayment(r.db.Conn(ctx).QueryRow(ctx, query, checkoutRequestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.Conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return p, nil
}

// ListByUser returns the user's most recent payments.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, userID, limit)
}

// ListPendingBefore returns the oldest payments still pending at cutoff.
func (r *PaymentRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = 'pending' AND created_at < $1 ORDER BY created_at LIMIT $2`
	return r.list(ctx, query, cutoff, limit)
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Payment, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CountByStatus returns payment counts keyed by status.
func (r *PaymentRepository) CountByStatus(ctx context.Context) (map[domain.PaymentStatus]int, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM payments GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.PaymentStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan payment count: %w", err)
		}
		counts[domain.PaymentStatus(status)] = n
	}
	return counts, rows.Err()
}
