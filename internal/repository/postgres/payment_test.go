package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bolo/internal/domain"
	"bolo/internal/repository"
)

func newMockPaymentRepo(t *testing.T) (*PaymentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPaymentRepository(db), mock
}

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "order_id", "transaction_id", "amount", "currency", "vehicle_id",
		"payment_type", "provider", "status", "customer_phone", "customer_name",
		"customer_account", "failure_reason", "completed_at", "created_at", "updated_at",
	})
}

func TestPaymentRepository_Create(t *testing.T) {
	repo, mock := newMockPaymentRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs("id-1", "BOLO_AA1_1", "TX1", sqlmock.AnyArg(), "ETB", "AA1",
			"road_fee", "telebirr", "PENDING", "+251911000000", nil, nil,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.PaymentRecord{
		ID:            "id-1",
		OrderID:       "BOLO_AA1_1",
		TransactionID: "TX1",
		Amount:        decimal.NewFromInt(100),
		Currency:      "ETB",
		VehicleID:     "AA1",
		PaymentType:   domain.PaymentTypeRoadFee,
		Provider:      domain.ProviderTelebirr,
		Status:        domain.PaymentStatusPending,
		CustomerPhone: "+251911000000",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newMockPaymentRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &domain.PaymentRecord{ID: "id-1"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestPaymentRepository_GetByTransactionID(t *testing.T) {
	repo, mock := newMockPaymentRepo(t)
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE transaction_id = $1 LIMIT 1")).
		WithArgs("TX1").
		WillReturnRows(paymentRows().AddRow(
			"id-1", "CBE_AA1_1", "TX1", "250.50", "ETB", "AA1",
			"inspection", "cbe_birr", "SUCCESS", nil, "Abebe", "1000123",
			nil, created, created, created,
		))

	payment, err := repo.GetByTransactionID(context.Background(), "TX1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, domain.ProviderCBEBirr, payment.Provider)
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("250.5")))
	assert.Equal(t, "", payment.CustomerPhone)
	assert.Equal(t, "1000123", payment.CustomerAccount)
	require.NotNil(t, payment.CompletedAt)
	assert.True(t, payment.CompletedAt.Equal(created))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetByOrderIDNotFound(t *testing.T) {
	repo, mock := newMockPaymentRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE order_id = $1")).
		WithArgs("missing").
		WillReturnRows(paymentRows())

	_, err := repo.GetByOrderID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPaymentRepository_TransitionStatus(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		repo, mock := newMockPaymentRepo(t)
		completed := time.Now().UTC()

		mock.ExpectExec(regexp.QuoteMeta("WHERE transaction_id = $5 AND status = $6")).
			WithArgs("SUCCESS", completed, nil, sqlmock.AnyArg(), "TX1", "PENDING").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.TransitionStatus(context.Background(), domain.StatusUpdate{
			TransactionID: "TX1",
			From:          domain.PaymentStatusPending,
			To:            domain.PaymentStatusSuccess,
			CompletedAt:   &completed,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race", func(t *testing.T) {
		repo, mock := newMockPaymentRepo(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE payments")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.TransitionStatus(context.Background(), domain.StatusUpdate{
			TransactionID: "TX1",
			From:          domain.PaymentStatusPending,
			To:            domain.PaymentStatusFailed,
			FailureReason: "declined",
		})
		assert.ErrorIs(t, err, repository.ErrStatusConflict)
	})
}

func TestPaymentRepository_ListAppliesFilters(t *testing.T) {
	repo, mock := newMockPaymentRepo(t)
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE vehicle_id = $1 AND provider = $2 ORDER BY created_at DESC LIMIT 200")).
		WithArgs("AA1", "telebirr").
		WillReturnRows(paymentRows().
			AddRow("id-2", "BOLO_AA1_2", "TX2", "10", "ETB", "AA1", "penalty", "telebirr", "PENDING",
				"+251911000000", nil, nil, nil, nil, created, created).
			AddRow("id-1", "BOLO_AA1_1", "TX1", "20", "ETB", "AA1", "road_fee", "telebirr", "FAILED",
				"+251911000000", nil, nil, "declined", nil, created, created))

	payments, err := repo.List(context.Background(), domain.PaymentFilter{
		VehicleID: "AA1",
		Provider:  domain.ProviderTelebirr,
		Limit:     1000,
	})
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "TX2", payments[0].TransactionID)
	assert.Nil(t, payments[0].CompletedAt)
	assert.Equal(t, "declined", payments[1].FailureReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}
