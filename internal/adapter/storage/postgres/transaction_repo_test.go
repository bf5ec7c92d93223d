package postgres

import (
	"context"
	"testing"
	"time"

	"payment-core/internal/core/domain"
	"payment-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction() *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Transaction{
		ID:                uuid.New(),
		ExternalReference: "ORDER-001",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("100.00", "USD"),
		Purpose:           "order #1",
		Status:            domain.TransactionStatusPending,
		RefundedAmount:    domain.MustMoney("0", "USD"),
		CreatedAt:         now,
	}
}

func txColumns() []string {
	return []string{"id", "external_reference", "gateway", "amount", "currency", "purpose", "status",
		"provider_ref", "disputed", "dispute_reason", "review_flagged", "refunded_amount", "retry_count",
		"gateway_raw_response", "created_at", "processed_at", "expires_at"}
}

func txRow(t *domain.Transaction) *pgxmock.Rows {
	return pgxmock.NewRows(txColumns()).AddRow(
		t.ID, t.ExternalReference, t.Gateway, t.Amount.Amount, t.Amount.Currency,
		t.Purpose, t.Status, t.ProviderRef, t.Disputed, t.DisputeReason,
		t.ReviewFlagged, t.RefundedAmount.Amount, t.RetryCount,
		t.GatewayRawResponse, t.CreatedAt, t.ProcessedAt, t.ExpiresAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(
			txn.ID, txn.ExternalReference, txn.Gateway, txn.Amount.Amount, txn.Amount.Currency,
			txn.Purpose, txn.Status, txn.ProviderRef, txn.Disputed, txn.DisputeReason,
			txn.ReviewFlagged, txn.RefundedAmount.Amount, txn.RetryCount,
			txn.GatewayRawResponse, txn.CreatedAt, txn.ProcessedAt, txn.ExpiresAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Create_DuplicateReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(
			txn.ID, txn.ExternalReference, txn.Gateway, txn.Amount.Amount, txn.Amount.Currency,
			txn.Purpose, txn.Status, txn.ProviderRef, txn.Disputed, txn.DisputeReason,
			txn.ReviewFlagged, txn.RefundedAmount.Amount, txn.RetryCount,
			txn.GatewayRawResponse, txn.CreatedAt, txn.ProcessedAt, txn.ExpiresAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.Create(context.Background(), txn)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_003", appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(txRow(txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.Equal(t, txn.ExternalReference, result.ExternalReference)
	assert.True(t, txn.Amount.Equal(result.Amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(txColumns()))

	result, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByExternalReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE external_reference").
		WithArgs(txn.ExternalReference).
		WillReturnRows(txRow(txn))

	result, err := repo.GetByExternalReference(context.Background(), txn.ExternalReference)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ExternalReference, result.ExternalReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(domain.TransactionStatusCompleted, &now, txID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), dbTx, txID, domain.TransactionStatusCompleted, &now)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_AddRefundedAmount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txID := uuid.New()
	amount := domain.MustMoney("25.00", "USD")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET refunded_amount").
		WithArgs(amount.Amount, domain.TransactionStatusPartiallyRefunded, txID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.AddRefundedAmount(context.Background(), dbTx, txID, amount, domain.TransactionStatusPartiallyRefunded)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ExpireStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	now := time.Now().UTC()
	id1, id2 := uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE transactions SET status = 'EXPIRED'").
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id1).AddRow(id2))

	ids, err := repo.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id1, id2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
