package ports

import (
	"context"
	"errors"
	"time"

	"payment-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrEventAlreadyProcessed is returned by RecordProcessed when the
// (external_reference, provider_event_id) pair was seen before.
var ErrEventAlreadyProcessed = errors.New("gateway event already processed")

// DBTransactor abstracts transaction management so services can run
// multi-statement critical sections atomically.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TransactionRepository persists the money-movement ledger.
// Methods taking a pgx.Tx participate in a caller-managed transaction.
type TransactionRepository interface {
	Create(ctx context.Context, txn *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByExternalReference(ctx context.Context, ref string) (*domain.Transaction, error)

	// GetByExternalReferenceForUpdate locks the row for the duration of tx.
	GetByExternalReferenceForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error)

	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, processedAt *time.Time) error
	SetProviderRef(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerRef string, raw []byte) error
	SetDisputed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error
	SetReviewFlagged(ctx context.Context, id uuid.UUID) error
	AddRefundedAmount(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount domain.Money, status domain.TransactionStatus) error

	// ExpireStale moves PENDING transactions past their expires_at to
	// EXPIRED and returns the IDs it touched.
	ExpireStale(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// InvoiceRepository persists billing snapshots.
type InvoiceRepository interface {
	// Create inserts an invoice, drawing its number from the invoice
	// sequence inside the same tx as the paying transition.
	Create(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) (*domain.Invoice, error)
	GetByTransactionID(ctx context.Context, txnID uuid.UUID) (*domain.Invoice, error)

	// ListPaidWithoutInvoice returns transactions in a paid state that
	// have no invoice row, for the repair sweep.
	ListPaidWithoutInvoice(ctx context.Context, limit int) ([]uuid.UUID, error)
	MarkSent(ctx context.Context, id uuid.UUID, artifactRef string, sentAt time.Time) error
}

// RefundRepository persists refund requests.
type RefundRepository interface {
	Create(ctx context.Context, tx pgx.Tx, r *domain.Refund) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	ListByTransactionID(ctx context.Context, txnID uuid.UUID) ([]domain.Refund, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RefundStatus, gatewayRefundID *string, processedAt *time.Time) error

	// SumCompleted returns the total of COMPLETED refunds for a
	// transaction, as recorded rows (not the ledger's running total).
	SumCompleted(ctx context.Context, txnID uuid.UUID) (domain.Money, error)
}

// EventRepository records processed gateway events and parks orphans.
type EventRepository interface {
	// RecordProcessed inserts the (external_reference, provider_event_id)
	// pair. A duplicate returns ErrEventAlreadyProcessed and the insert
	// is a no-op, which makes webhook handling idempotent.
	RecordProcessed(ctx context.Context, tx pgx.Tx, ev *domain.GatewayEvent) error

	CreateOrphan(ctx context.Context, ev *domain.OrphanEvent) error
	ListOrphans(ctx context.Context, limit int) ([]domain.OrphanEvent, error)
}

// FraudRepository persists risk assessments that crossed the
// manual-review threshold.
type FraudRepository interface {
	Create(ctx context.Context, a *domain.FraudAssessment) error
	ListRecentByIdentity(ctx context.Context, identity string, since time.Time) (int, error)
}

// SessionStore holds ephemeral checkout sessions with a TTL.
type SessionStore interface {
	Put(ctx context.Context, s *domain.PaymentSession, ttl time.Duration) error
	Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// RateLimitStore counts requests per key within fixed windows.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}
