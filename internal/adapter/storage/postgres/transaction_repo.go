package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-core/internal/core/domain"
	"payment-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const transactionColumns = `id, external_reference, gateway, amount, currency, purpose, status,
	provider_ref, disputed, dispute_reason, review_flagged, refunded_amount, retry_count,
	gateway_raw_response, created_at, processed_at, expires_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction. A duplicate external_reference hits
// the unique index and comes back as ErrDuplicateReference.
func (r *TransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.ExternalReference, t.Gateway, t.Amount.Amount, t.Amount.Currency,
		t.Purpose, t.Status, t.ProviderRef, t.Disputed, t.DisputeReason,
		t.ReviewFlagged, t.RefundedAmount.Amount, t.RetryCount,
		t.GatewayRawResponse, t.CreatedAt, t.ProcessedAt, t.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.ErrDuplicateReference()
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByExternalReference fetches a transaction by its caller-supplied reference.
func (r *TransactionRepo) GetByExternalReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE external_reference = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, ref))
}

// GetByExternalReferenceForUpdate locks the row for the duration of tx.
func (r *TransactionRepo) GetByExternalReferenceForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE external_reference = $1 FOR UPDATE`
	return scanTransaction(tx.QueryRow(ctx, query, ref))
}

// GetByIDForUpdate locks the row for the duration of tx.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(tx.QueryRow(ctx, query, id))
}

// UpdateStatus moves a transaction to a new status within a database transaction.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, processedAt *time.Time) error {
	query := `UPDATE transactions SET status = $1, processed_at = COALESCE($2, processed_at) WHERE id = $3`

	tag, err := tx.Exec(ctx, query, status, processedAt, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// SetProviderRef records the provider's identifier and raw response.
func (r *TransactionRepo) SetProviderRef(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerRef string, raw []byte) error {
	query := `UPDATE transactions SET provider_ref = $1, gateway_raw_response = $2 WHERE id = $3`

	tag, err := tx.Exec(ctx, query, providerRef, raw, id)
	if err != nil {
		return fmt.Errorf("set provider ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// SetDisputed raises the dispute flag without touching the status.
func (r *TransactionRepo) SetDisputed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error {
	query := `UPDATE transactions SET disputed = TRUE, dispute_reason = $1 WHERE id = $2`

	tag, err := tx.Exec(ctx, query, reason, id)
	if err != nil {
		return fmt.Errorf("set disputed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// SetReviewFlagged marks the transaction for manual review.
func (r *TransactionRepo) SetReviewFlagged(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE transactions SET review_flagged = TRUE WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("set review flagged: %w", err)
	}
	return nil
}

// AddRefundedAmount bumps the refund running total and sets the refund
// status the ledger computed from it.
func (r *TransactionRepo) AddRefundedAmount(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount domain.Money, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET refunded_amount = refunded_amount + $1, status = $2 WHERE id = $3`

	tag, err := tx.Exec(ctx, query, amount.Amount, status, id)
	if err != nil {
		return fmt.Errorf("add refunded amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// ExpireStale moves PENDING transactions past their deadline to EXPIRED
// and returns the IDs it touched.
func (r *TransactionRepo) ExpireStale(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `UPDATE transactions SET status = 'EXPIRED'
		WHERE status = 'PENDING' AND expires_at IS NOT NULL AND expires_at < $1
		RETURNING id`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("expire stale transactions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired rows: %w", err)
	}
	return ids, nil
}

// scanTransaction is a helper to scan a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var currency string
	err := row.Scan(
		&t.ID, &t.ExternalReference, &t.Gateway, &t.Amount.Amount, &currency,
		&t.Purpose, &t.Status, &t.ProviderRef, &t.Disputed, &t.DisputeReason,
		&t.ReviewFlagged, &t.RefundedAmount.Amount, &t.RetryCount,
		&t.GatewayRawResponse, &t.CreatedAt, &t.ProcessedAt, &t.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	t.Amount.Currency = currency
	t.RefundedAmount.Currency = currency
	return t, nil
}
