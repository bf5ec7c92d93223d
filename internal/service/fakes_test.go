package service

import (
	"context"
	"io"
	"sync"
	"time"

	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeTx satisfies pgx.Tx for services that only use it as a handle.
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(ctx context.Context) error          { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                              { return nil }

type fakeTransactor struct{}

func (f *fakeTransactor) Begin(ctx context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

// fakeTransactionRepo keeps transactions in memory.
type fakeTransactionRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*domain.Transaction
	byRef map[string]uuid.UUID
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{
		byID:  make(map[uuid.UUID]*domain.Transaction),
		byRef: make(map[string]uuid.UUID),
	}
}

func (r *fakeTransactionRepo) clone(t *domain.Transaction) *domain.Transaction {
	cp := *t
	return &cp
}

func (r *fakeTransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRef[t.ExternalReference]; exists {
		return apperror.ErrDuplicateReference()
	}
	r.byID[t.ID] = r.clone(t)
	r.byRef[t.ExternalReference] = t.ID
	return nil
}

func (r *fakeTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return r.clone(t), nil
}

func (r *fakeTransactionRepo) GetByExternalReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[ref]
	if !ok {
		return nil, nil
	}
	return r.clone(r.byID[id]), nil
}

func (r *fakeTransactionRepo) GetByExternalReferenceForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*domain.Transaction, error) {
	return r.GetByExternalReference(ctx, ref)
}

func (r *fakeTransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, processedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return apperror.ErrNotFound("transaction")
	}
	t.Status = status
	if processedAt != nil {
		t.ProcessedAt = processedAt
	}
	return nil
}

func (r *fakeTransactionRepo) SetProviderRef(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerRef string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return apperror.ErrNotFound("transaction")
	}
	t.ProviderRef = &providerRef
	t.GatewayRawResponse = raw
	return nil
}

func (r *fakeTransactionRepo) SetDisputed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return apperror.ErrNotFound("transaction")
	}
	t.Disputed = true
	t.DisputeReason = &reason
	return nil
}

func (r *fakeTransactionRepo) SetReviewFlagged(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return apperror.ErrNotFound("transaction")
	}
	t.ReviewFlagged = true
	return nil
}

func (r *fakeTransactionRepo) AddRefundedAmount(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount domain.Money, status domain.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return apperror.ErrNotFound("transaction")
	}
	total, err := t.RefundedAmount.Add(amount)
	if err != nil {
		return err
	}
	t.RefundedAmount = total
	t.Status = status
	return nil
}

func (r *fakeTransactionRepo) ExpireStale(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, t := range r.byID {
		if t.Status == domain.TransactionStatusPending && t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
			t.Status = domain.TransactionStatusExpired
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

// fakeInvoiceRepo keeps invoices in memory, one per transaction.
type fakeInvoiceRepo struct {
	mu     sync.Mutex
	byTxn  map[uuid.UUID]*domain.Invoice
	nextNo int64
	txRepo *fakeTransactionRepo
}

func newFakeInvoiceRepo(txRepo *fakeTransactionRepo) *fakeInvoiceRepo {
	return &fakeInvoiceRepo{byTxn: make(map[uuid.UUID]*domain.Invoice), txRepo: txRepo}
}

func (r *fakeInvoiceRepo) Create(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byTxn[inv.TransactionID]; ok {
		cp := *existing
		return &cp, nil
	}
	r.nextNo++
	inv.InvoiceNumber = domain.FormatInvoiceNumber(r.nextNo)
	cp := *inv
	r.byTxn[inv.TransactionID] = &cp
	return inv, nil
}

func (r *fakeInvoiceRepo) GetByTransactionID(ctx context.Context, txnID uuid.UUID) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byTxn[txnID]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeInvoiceRepo) ListPaidWithoutInvoice(ctx context.Context, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	r.txRepo.mu.Lock()
	defer r.txRepo.mu.Unlock()
	for id, t := range r.txRepo.byID {
		if t.IsPaid() {
			if _, ok := r.byTxn[id]; !ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (r *fakeInvoiceRepo) MarkSent(ctx context.Context, id uuid.UUID, artifactRef string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.byTxn {
		if inv.ID == id {
			inv.PDFArtifactRef = &artifactRef
			inv.SentAt = &sentAt
			return nil
		}
	}
	return apperror.ErrNotFound("invoice")
}

// fakeRefundRepo keeps refunds in memory.
type fakeRefundRepo struct {
	mu      sync.Mutex
	refunds map[uuid.UUID]*domain.Refund
}

func newFakeRefundRepo() *fakeRefundRepo {
	return &fakeRefundRepo{refunds: make(map[uuid.UUID]*domain.Refund)}
}

func (r *fakeRefundRepo) Create(ctx context.Context, tx pgx.Tx, ref *domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ref
	r.refunds[ref.ID] = &cp
	return nil
}

func (r *fakeRefundRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refunds[id]
	if !ok {
		return nil, nil
	}
	cp := *ref
	return &cp, nil
}

func (r *fakeRefundRepo) ListByTransactionID(ctx context.Context, txnID uuid.UUID) ([]domain.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Refund
	for _, ref := range r.refunds {
		if ref.TransactionID == txnID {
			out = append(out, *ref)
		}
	}
	return out, nil
}

func (r *fakeRefundRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RefundStatus, gatewayRefundID *string, processedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refunds[id]
	if !ok {
		return apperror.ErrNotFound("refund")
	}
	ref.Status = status
	if gatewayRefundID != nil {
		ref.GatewayRefundID = gatewayRefundID
	}
	if processedAt != nil {
		ref.ProcessedAt = processedAt
	}
	return nil
}

func (r *fakeRefundRepo) SumCompleted(ctx context.Context, txnID uuid.UUID) (domain.Money, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total domain.Money
	for _, ref := range r.refunds {
		if ref.TransactionID == txnID && ref.Status == domain.RefundStatusCompleted {
			if total.Currency == "" {
				total = ref.Amount
				continue
			}
			t, err := total.Add(ref.Amount)
			if err != nil {
				return domain.Money{}, err
			}
			total = t
		}
	}
	return total, nil
}

// fakeEventRepo records processed pairs and orphans in memory.
type fakeEventRepo struct {
	mu        sync.Mutex
	processed map[string]bool
	orphans   []domain.OrphanEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{processed: make(map[string]bool)}
}

func (r *fakeEventRepo) RecordProcessed(ctx context.Context, tx pgx.Tx, ev *domain.GatewayEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ev.ExternalReference + "|" + ev.ProviderEventID
	if r.processed[key] {
		return ports.ErrEventAlreadyProcessed
	}
	r.processed[key] = true
	return nil
}

func (r *fakeEventRepo) CreateOrphan(ctx context.Context, ev *domain.OrphanEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans = append(r.orphans, *ev)
	return nil
}

func (r *fakeEventRepo) ListOrphans(ctx context.Context, limit int) ([]domain.OrphanEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.orphans) > limit {
		return append([]domain.OrphanEvent(nil), r.orphans[:limit]...), nil
	}
	return append([]domain.OrphanEvent(nil), r.orphans...), nil
}

// fakeFraudRepo records assessments in memory.
type fakeFraudRepo struct {
	mu          sync.Mutex
	assessments []domain.FraudAssessment
	failCreate  error
}

func newFakeFraudRepo() *fakeFraudRepo {
	return &fakeFraudRepo{}
}

func (r *fakeFraudRepo) Create(ctx context.Context, a *domain.FraudAssessment) error {
	if r.failCreate != nil {
		return r.failCreate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assessments = append(r.assessments, *a)
	return nil
}

func (r *fakeFraudRepo) ListRecentByIdentity(ctx context.Context, identity string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.assessments {
		if a.Identity == identity && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// fakeSessionStore keeps sessions in memory with explicit deadlines.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.PaymentSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]*domain.PaymentSession)}
}

func (s *fakeSessionStore) Put(ctx context.Context, sess *domain.PaymentSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.SessionID] = &cp
	return nil
}

func (s *fakeSessionStore) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// fakeGateway is a scriptable ports.Gateway.
type fakeGateway struct {
	name         domain.GatewayName
	caps         ports.Capabilities
	authorizeRes *ports.AuthorizeResult
	authorizeErr error
	confirmRes   *ports.ConfirmResult
	confirmErr   error
	refundRes    *ports.RefundResult
	refundErr    error
	refundFn     func(ctx context.Context, providerRef string, amount domain.Money, reason domain.RefundReason) (*ports.RefundResult, error)
	webhookEv    *domain.GatewayEvent
	webhookErr   error
}

func (g *fakeGateway) Name() domain.GatewayName         { return g.name }
func (g *fakeGateway) Capabilities() ports.Capabilities { return g.caps }

func (g *fakeGateway) Authorize(ctx context.Context, req ports.AuthorizeRequest) (*ports.AuthorizeResult, error) {
	return g.authorizeRes, g.authorizeErr
}

func (g *fakeGateway) Confirm(ctx context.Context, providerRef string) (*ports.ConfirmResult, error) {
	if g.confirmRes == nil && g.confirmErr == nil {
		return &ports.ConfirmResult{Status: domain.EventPaymentSucceeded}, nil
	}
	return g.confirmRes, g.confirmErr
}

func (g *fakeGateway) Refund(ctx context.Context, providerRef string, amount domain.Money, reason domain.RefundReason) (*ports.RefundResult, error) {
	if g.refundFn != nil {
		return g.refundFn(ctx, providerRef, amount, reason)
	}
	return g.refundRes, g.refundErr
}

func (g *fakeGateway) Status(ctx context.Context, providerRef string) (domain.EventKind, error) {
	return domain.EventPaymentPending, nil
}

func (g *fakeGateway) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) (*domain.GatewayEvent, error) {
	return g.webhookEv, g.webhookErr
}

// fakeRegistry resolves fakeGateways.
type fakeRegistry struct {
	gateways map[domain.GatewayName]ports.Gateway
}

func newFakeRegistry(gws ...ports.Gateway) *fakeRegistry {
	m := make(map[domain.GatewayName]ports.Gateway)
	for _, gw := range gws {
		m[gw.Name()] = gw
	}
	return &fakeRegistry{gateways: m}
}

func (r *fakeRegistry) Get(name domain.GatewayName) (ports.Gateway, error) {
	gw, ok := r.gateways[name]
	if !ok {
		return nil, apperror.ErrUnknownGateway(string(name))
	}
	return gw, nil
}

func (r *fakeRegistry) List() []ports.Capabilities {
	var out []ports.Capabilities
	for _, gw := range r.gateways {
		out = append(out, gw.Capabilities())
	}
	return out
}

// fakeNotifier records notifications synchronously.
type fakeNotifier struct {
	mu       sync.Mutex
	txns     []domain.Transaction
	invoices []domain.Invoice
}

func (n *fakeNotifier) TransactionChanged(txn *domain.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txns = append(n.txns, *txn)
}

func (n *fakeNotifier) InvoiceCreated(inv *domain.Invoice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invoices = append(n.invoices, *inv)
}
