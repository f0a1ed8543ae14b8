package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"bolo/internal/domain"
	"bolo/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	uniqueViolation = "23505"
)

var paymentColumns = []string{
	"id", "order_id", "transaction_id", "amount", "currency", "vehicle_id",
	"payment_type", "provider", "status", "customer_phone", "customer_name",
	"customer_account", "failure_reason", "completed_at", "created_at", "updated_at",
}

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q       Querier
	builder sq.StatementBuilderType
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db, builder: newBuilder()}
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.PaymentRecord) error {
	query := `
		INSERT INTO payments (id, order_id, transaction_id, amount, currency, vehicle_id, payment_type, provider, status, customer_phone, customer_name, customer_account, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = payment.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.TransactionID,
		payment.Amount,
		payment.Currency,
		payment.VehicleID,
		payment.PaymentType,
		payment.Provider,
		payment.Status,
		nullString(payment.CustomerPhone),
		nullString(payment.CustomerName),
		nullString(payment.CustomerAccount),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

// GetByTransactionID retrieves a payment by the provider transaction id.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, sq.Eq{"transaction_id": transactionID})
}

// GetByOrderID retrieves a payment by order id or reference number.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, sq.Eq{"order_id": orderID})
}

func (r *PaymentRepository) getOne(ctx context.Context, where sq.Eq) (*domain.PaymentRecord, error) {
	query, args, err := r.builder.Select(paymentColumns...).
		From("payments").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payment query: %w", err)
	}

	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return payment, nil
}

// TransitionStatus applies a status update only if the stored status still
// equals update.From.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, update domain.StatusUpdate) error {
	query := `
		UPDATE payments
		SET status = $1, completed_at = COALESCE($2, completed_at), failure_reason = COALESCE($3, failure_reason), updated_at = $4
		WHERE transaction_id = $5 AND status = $6
	`

	var completedAt sql.NullTime
	if update.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *update.CompletedAt, Valid: true}
	}

	result, err := r.q.ExecContext(ctx, query,
		update.To,
		completedAt,
		nullString(update.FailureReason),
		time.Now().UTC(),
		update.TransactionID,
		update.From,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrStatusConflict
	}

	return nil
}

// List returns payments matching the filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, filter domain.PaymentFilter) ([]*domain.PaymentRecord, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	builder := r.builder.Select(paymentColumns...).
		From("payments").
		OrderBy("created_at DESC").
		Limit(limit)

	if filter.VehicleID != "" {
		builder = builder.Where(sq.Eq{"vehicle_id": filter.VehicleID})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Provider != "" {
		builder = builder.Where(sq.Eq{"provider": filter.Provider})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payment list query: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*domain.PaymentRecord, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.PaymentRecord, error) {
	var (
		payment         domain.PaymentRecord
		customerPhone   sql.NullString
		customerName    sql.NullString
		customerAccount sql.NullString
		failureReason   sql.NullString
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.TransactionID,
		&payment.Amount,
		&payment.Currency,
		&payment.VehicleID,
		&payment.PaymentType,
		&payment.Provider,
		&payment.Status,
		&customerPhone,
		&customerName,
		&customerAccount,
		&failureReason,
		&completedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.CustomerPhone = customerPhone.String
	payment.CustomerName = customerName.String
	payment.CustomerAccount = customerAccount.String
	payment.FailureReason = failureReason.String
	if completedAt.Valid {
		t := completedAt.Time
		payment.CompletedAt = &t
	}

	return &payment, nil
}
