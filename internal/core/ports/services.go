package ports

import (
	"context"
	"time"

	"payment-core/internal/core/domain"

	"github.com/google/uuid"
)

// StartPaymentInput is the request to open a payment attempt.
type StartPaymentInput struct {
	SessionID         uuid.UUID
	ExternalReference string
	Gateway           domain.GatewayName
	Amount            domain.Money
	Purpose           string
	ClientMeta        ClientMeta
}

// ClientMeta carries request fingerprint data for risk scoring.
type ClientMeta struct {
	IP            string
	UserAgent     string
	PayloadFields map[string]string
}

// StartPaymentOutput is the client-facing result of opening a payment.
type StartPaymentOutput struct {
	Transaction  *domain.Transaction
	Continuation ContinuationKind
	ClientToken  string
	RedirectURL  string
	Instructions string
	Replayed     bool // true when the external reference was seen before
}

// CheckoutService orchestrates session, risk, ledger and gateway into
// the payment-start flow.
type CheckoutService interface {
	StartPayment(ctx context.Context, in StartPaymentInput) (*StartPaymentOutput, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
}

// LedgerService owns transaction state and its derived records.
type LedgerService interface {
	CreateTransaction(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, bool, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	AttachProviderResult(ctx context.Context, txnID uuid.UUID, providerRef string, raw []byte) error
	MarkDeclined(ctx context.Context, txnID uuid.UUID) error
	FlagForReview(ctx context.Context, txnID uuid.UUID) error
	ApplyGatewayEvent(ctx context.Context, ev *domain.GatewayEvent) error
	RequestRefund(ctx context.Context, txnID uuid.UUID, amount domain.Money, reason domain.RefundReason) (*domain.Refund, error)
	ListRefunds(ctx context.Context, txnID uuid.UUID) ([]domain.Refund, error)
	ConfirmBankTransfer(ctx context.Context, externalReference string) (*domain.Transaction, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	EnsureInvoices(ctx context.Context) (int, error)
}

// ReconcilerService ingests provider callbacks.
type ReconcilerService interface {
	HandleWebhook(ctx context.Context, gateway domain.GatewayName, body []byte, headers map[string]string) error
	ListOrphans(ctx context.Context, limit int) ([]domain.OrphanEvent, error)
}

// RiskDecision is the outcome of scoring one checkout attempt.
type RiskDecision struct {
	Score   int
	Block   bool
	Review  bool
	Signals []domain.FraudSignal
}

// RiskService scores checkout attempts before any gateway call.
type RiskService interface {
	Assess(ctx context.Context, identity string, amount domain.Money, meta ClientMeta) (*RiskDecision, error)
}

// SessionService manages ephemeral checkout sessions.
type SessionService interface {
	Create(ctx context.Context, ownerIdentity string, amount domain.Money) (*domain.PaymentSession, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, gateway domain.GatewayName) (*domain.PaymentSession, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Notifier delivers ledger change notifications to an external sink.
// Delivery is asynchronous and must never block or fail the ledger
// mutation that triggered it.
type Notifier interface {
	TransactionChanged(txn *domain.Transaction)
	InvoiceCreated(inv *domain.Invoice)
}
