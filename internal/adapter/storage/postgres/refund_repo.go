package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const refundColumns = `id, transaction_id, amount, currency, reason, status,
	gateway_refund_id, created_at, processed_at`

// RefundRepo implements ports.RefundRepository.
type RefundRepo struct {
	pool Pool
}

// NewRefundRepo creates a new RefundRepo.
func NewRefundRepo(pool Pool) *RefundRepo {
	return &RefundRepo{pool: pool}
}

// Create inserts a refund within a database transaction.
func (r *RefundRepo) Create(ctx context.Context, tx pgx.Tx, ref *domain.Refund) error {
	query := `INSERT INTO refunds (` + refundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		ref.ID, ref.TransactionID, ref.Amount.Amount, ref.Amount.Currency,
		ref.Reason, ref.Status, ref.GatewayRefundID, ref.CreatedAt, ref.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// GetByID fetches a refund by UUID.
func (r *RefundRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1`
	return scanRefund(r.pool.QueryRow(ctx, query, id))
}

// ListByTransactionID returns all refunds against a transaction, oldest first.
func (r *RefundRepo) ListByTransactionID(ctx context.Context, txnID uuid.UUID) ([]domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE transaction_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, txnID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		ref := domain.Refund{}
		err := rows.Scan(
			&ref.ID, &ref.TransactionID, &ref.Amount.Amount, &ref.Amount.Currency,
			&ref.Reason, &ref.Status, &ref.GatewayRefundID, &ref.CreatedAt, &ref.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refund row: %w", err)
		}
		refunds = append(refunds, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund rows: %w", err)
	}
	return refunds, nil
}

// UpdateStatus finalizes a refund within a database transaction.
func (r *RefundRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RefundStatus, gatewayRefundID *string, processedAt *time.Time) error {
	query := `UPDATE refunds SET status = $1,
		gateway_refund_id = COALESCE($2, gateway_refund_id),
		processed_at = COALESCE($3, processed_at)
		WHERE id = $4`

	tag, err := tx.Exec(ctx, query, status, gatewayRefundID, processedAt, id)
	if err != nil {
		return fmt.Errorf("update refund status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refund not found: %s", id)
	}
	return nil
}

// SumCompleted returns the total of COMPLETED refunds for a transaction.
func (r *RefundRepo) SumCompleted(ctx context.Context, txnID uuid.UUID) (domain.Money, error) {
	query := `SELECT COALESCE(SUM(amount), 0), COALESCE(MAX(currency), '')
		FROM refunds WHERE transaction_id = $1 AND status = 'COMPLETED'`

	var total decimal.Decimal
	var currency string
	if err := r.pool.QueryRow(ctx, query, txnID).Scan(&total, &currency); err != nil {
		return domain.Money{}, fmt.Errorf("sum completed refunds: %w", err)
	}
	return domain.Money{Amount: total, Currency: currency}, nil
}

func scanRefund(row pgx.Row) (*domain.Refund, error) {
	ref := &domain.Refund{}
	err := row.Scan(
		&ref.ID, &ref.TransactionID, &ref.Amount.Amount, &ref.Amount.Currency,
		&ref.Reason, &ref.Status, &ref.GatewayRefundID, &ref.CreatedAt, &ref.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan refund: %w", err)
	}
	return ref, nil
}
