package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const invoiceColumns = `id, invoice_number, transaction_id, amount, currency, status,
	pdf_artifact_ref, sent_at, created_at`

// InvoiceRepo implements ports.InvoiceRepository.
type InvoiceRepo struct {
	pool Pool
}

// NewInvoiceRepo creates a new InvoiceRepo.
func NewInvoiceRepo(pool Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool}
}

// Create inserts an invoice, drawing its number from the invoice_seq
// sequence inside the caller's transaction. A second invoice for the
// same transaction hits the unique index; the existing row is returned
// instead so the operation is idempotent.
func (r *InvoiceRepo) Create(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) (*domain.Invoice, error) {
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('invoice_seq')`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next invoice number: %w", err)
	}
	inv.InvoiceNumber = domain.FormatInvoiceNumber(seq)

	query := `INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		inv.ID, inv.InvoiceNumber, inv.TransactionID, inv.Amount.Amount,
		inv.Amount.Currency, inv.Status, inv.PDFArtifactRef, inv.SentAt, inv.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return r.getByTransactionIDTx(ctx, tx, inv.TransactionID)
		}
		return nil, fmt.Errorf("insert invoice: %w", err)
	}
	return inv, nil
}

// GetByTransactionID fetches the invoice for a transaction, (nil, nil)
// when none exists.
func (r *InvoiceRepo) GetByTransactionID(ctx context.Context, txnID uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE transaction_id = $1`
	return scanInvoice(r.pool.QueryRow(ctx, query, txnID))
}

func (r *InvoiceRepo) getByTransactionIDTx(ctx context.Context, tx pgx.Tx, txnID uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE transaction_id = $1`
	return scanInvoice(tx.QueryRow(ctx, query, txnID))
}

// ListPaidWithoutInvoice returns transactions in a paid state that have
// no invoice row, for the repair sweep.
func (r *InvoiceRepo) ListPaidWithoutInvoice(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `SELECT t.id FROM transactions t
		LEFT JOIN invoices i ON i.transaction_id = t.id
		WHERE t.status IN ('COMPLETED', 'PARTIALLY_REFUNDED', 'REFUNDED') AND i.id IS NULL
		ORDER BY t.created_at
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list paid without invoice: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan transaction id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return ids, nil
}

// MarkSent records the generated artifact and delivery time.
func (r *InvoiceRepo) MarkSent(ctx context.Context, id uuid.UUID, artifactRef string, sentAt time.Time) error {
	query := `UPDATE invoices SET pdf_artifact_ref = $1, sent_at = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, artifactRef, sentAt, id)
	if err != nil {
		return fmt.Errorf("mark invoice sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice not found: %s", id)
	}
	return nil
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.TransactionID, &inv.Amount.Amount,
		&inv.Amount.Currency, &inv.Status, &inv.PDFArtifactRef, &inv.SentAt, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	return inv, nil
}
