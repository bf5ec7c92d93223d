package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService. It is the single
// writer of transaction state: every status change happens inside a
// database transaction holding a row lock, and derived records
// (invoices, refund bookkeeping) are written in the same transaction
// as the transition that causes them.
type LedgerServiceImpl struct {
	txRepo      ports.TransactionRepository
	invoiceRepo ports.InvoiceRepository
	refundRepo  ports.RefundRepository
	eventRepo   ports.EventRepository
	registry    ports.GatewayRegistry
	transactor  ports.DBTransactor
	notifier    ports.Notifier
	windowDays  int
	log         zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. notifier may be nil.
func NewLedgerService(
	txRepo ports.TransactionRepository,
	invoiceRepo ports.InvoiceRepository,
	refundRepo ports.RefundRepository,
	eventRepo ports.EventRepository,
	registry ports.GatewayRegistry,
	transactor ports.DBTransactor,
	notifier ports.Notifier,
	refundWindowDays int,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		txRepo:      txRepo,
		invoiceRepo: invoiceRepo,
		refundRepo:  refundRepo,
		eventRepo:   eventRepo,
		registry:    registry,
		transactor:  transactor,
		notifier:    notifier,
		windowDays:  refundWindowDays,
		log:         log,
	}
}

// CreateTransaction inserts a PENDING transaction. When the external
// reference was already used, the existing transaction is returned with
// replayed=true instead of creating a second one.
func (s *LedgerServiceImpl) CreateTransaction(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, bool, error) {
	if !txn.Amount.IsPositive() {
		return nil, false, apperror.ErrInvalidAmount()
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.Status == "" {
		txn.Status = domain.TransactionStatusPending
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	if txn.RefundedAmount.Currency == "" {
		txn.RefundedAmount = domain.Money{Amount: txn.RefundedAmount.Amount, Currency: txn.Amount.Currency}
	}

	err := s.txRepo.Create(ctx, txn)
	if err == nil {
		return txn, false, nil
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Code == "PAY_003" {
		existing, getErr := s.txRepo.GetByExternalReference(ctx, txn.ExternalReference)
		if getErr != nil {
			return nil, false, apperror.InternalError(getErr)
		}
		if existing == nil {
			return nil, false, apperror.InternalError(fmt.Errorf("duplicate reference %q but row not found", txn.ExternalReference))
		}
		// Same reference with a different amount, gateway or purpose is
		// caller error, not a replay.
		if !existing.Amount.Equal(txn.Amount) || existing.Gateway != txn.Gateway || existing.Purpose != txn.Purpose {
			return nil, false, apperror.ErrDuplicateReference()
		}
		return existing, true, nil
	}
	return nil, false, apperror.InternalError(err)
}

// GetTransaction fetches a transaction by ID.
func (s *LedgerServiceImpl) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	return txn, nil
}

// AttachProviderResult records the provider's identifier and raw
// response on a freshly authorized transaction.
func (s *LedgerServiceImpl) AttachProviderResult(ctx context.Context, txnID uuid.UUID, providerRef string, raw []byte) error {
	return s.inTx(ctx, func(dbTx pgx.Tx) error {
		if err := s.txRepo.SetProviderRef(ctx, dbTx, txnID, providerRef, raw); err != nil {
			return apperror.InternalError(err)
		}
		return nil
	})
}

// MarkDeclined moves a transaction to FAILED after a definitive
// provider decline at authorize time.
func (s *LedgerServiceImpl) MarkDeclined(ctx context.Context, txnID uuid.UUID) error {
	var declined *domain.Transaction
	err := s.inTx(ctx, func(dbTx pgx.Tx) error {
		txn, err := s.txRepo.GetByIDForUpdate(ctx, dbTx, txnID)
		if err != nil {
			return apperror.InternalError(err)
		}
		if txn == nil {
			return apperror.ErrNotFound("transaction")
		}
		if txn.Status != domain.TransactionStatusPending {
			return nil
		}
		now := time.Now().UTC()
		if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, domain.TransactionStatusFailed, &now); err != nil {
			return apperror.InternalError(err)
		}
		txn.Status = domain.TransactionStatusFailed
		txn.ProcessedAt = &now
		declined = txn
		return nil
	})
	if err != nil {
		return err
	}
	s.notifyTransaction(declined)
	return nil
}

// FlagForReview marks a transaction for manual review without touching
// its status.
func (s *LedgerServiceImpl) FlagForReview(ctx context.Context, txnID uuid.UUID) error {
	if err := s.txRepo.SetReviewFlagged(ctx, txnID); err != nil {
		return apperror.InternalError(err)
	}
	return nil
}

// ApplyGatewayEvent runs one verified event through the state machine.
// The (external_reference, provider_event_id) pair is recorded in the
// same database transaction as the state change, so a redelivered event
// either replays fully or not at all. Duplicates and stale transitions
// return nil: the provider only needs to know we are done with it.
func (s *LedgerServiceImpl) ApplyGatewayEvent(ctx context.Context, ev *domain.GatewayEvent) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := s.txRepo.GetByExternalReferenceForUpdate(ctx, dbTx, ev.ExternalReference)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
	}
	if txn == nil {
		return apperror.ErrNotFound("transaction")
	}

	if err := s.eventRepo.RecordProcessed(ctx, dbTx, ev); err != nil {
		if errors.Is(err, ports.ErrEventAlreadyProcessed) {
			s.log.Info().
				Str("reference", ev.ExternalReference).
				Str("provider_event_id", ev.ProviderEventID).
				Msg("duplicate gateway event ignored")
			return nil
		}
		return apperror.InternalError(err)
	}

	next, transErr := domain.NextStatus(txn.Status, ev.Kind)
	if transErr != nil {
		if errors.Is(transErr, domain.ErrStaleTransition) {
			// Record the event so redelivery stays cheap, change nothing.
			s.log.Info().
				Str("reference", ev.ExternalReference).
				Str("kind", string(ev.Kind)).
				Str("status", string(txn.Status)).
				Msg("stale gateway event, no transition")
			if err := dbTx.Commit(ctx); err != nil {
				return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
			}
			return nil
		}
		return apperror.InternalError(transErr)
	}

	now := time.Now().UTC()
	var invoiceCreated *domain.Invoice

	switch ev.Kind {
	case domain.EventPaymentSucceeded:
		if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, next, &now); err != nil {
			return apperror.InternalError(err)
		}
		txn.Status = next
		txn.ProcessedAt = &now
		inv, err := s.createInvoice(ctx, dbTx, txn)
		if err != nil {
			return err
		}
		invoiceCreated = inv

	case domain.EventPaymentFailed, domain.EventPaymentCanceled:
		if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, next, &now); err != nil {
			return apperror.InternalError(err)
		}
		txn.Status = next
		txn.ProcessedAt = &now

	case domain.EventPaymentPending:
		// Informational only.

	case domain.EventRefundCompleted:
		if ev.Amount == nil {
			return apperror.Validation("refund event without amount")
		}
		if err := s.applyRefundCompleted(ctx, dbTx, txn, *ev.Amount, now); err != nil {
			return err
		}

	case domain.EventRefundFailed:
		if err := s.applyRefundFailed(ctx, dbTx, txn, ev, now); err != nil {
			return err
		}

	case domain.EventDisputeOpened:
		if err := s.txRepo.SetDisputed(ctx, dbTx, txn.ID, ev.Reason); err != nil {
			return apperror.InternalError(err)
		}
		txn.Disputed = true
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("reference", ev.ExternalReference).
		Str("kind", string(ev.Kind)).
		Str("status", string(txn.Status)).
		Msg("gateway event applied")

	s.notifyTransaction(txn)
	if invoiceCreated != nil {
		s.notifyInvoice(invoiceCreated)
	}
	return nil
}

// applyRefundCompleted does the refund bookkeeping for an asynchronous
// refund confirmation: bump the running total, derive the refund status
// from it, and close the matching pending refund row if one exists.
func (s *LedgerServiceImpl) applyRefundCompleted(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, amount domain.Money, now time.Time) error {
	newTotal, err := txn.RefundedAmount.Add(amount)
	if err != nil {
		return apperror.InternalError(err)
	}
	cmp, err := newTotal.Cmp(txn.Amount)
	if err != nil {
		return apperror.InternalError(err)
	}
	if cmp > 0 {
		return apperror.ErrRefundExceedsBalance()
	}

	status := domain.TransactionStatusPartiallyRefunded
	if cmp == 0 {
		status = domain.TransactionStatusRefunded
	}
	if err := s.txRepo.AddRefundedAmount(ctx, dbTx, txn.ID, amount, status); err != nil {
		return apperror.InternalError(err)
	}
	txn.RefundedAmount = newTotal
	txn.Status = status

	// Close the oldest pending refund row for this amount, if any. A
	// provider-initiated refund has no row; the running total above is
	// still correct.
	refunds, err := s.refundRepo.ListByTransactionID(ctx, txn.ID)
	if err != nil {
		return apperror.InternalError(err)
	}
	for i := range refunds {
		r := &refunds[i]
		if r.Status == domain.RefundStatusPending && r.Amount.Equal(amount) {
			if err := s.refundRepo.UpdateStatus(ctx, dbTx, r.ID, domain.RefundStatusCompleted, nil, &now); err != nil {
				return apperror.InternalError(err)
			}
			break
		}
	}
	return nil
}

func (s *LedgerServiceImpl) applyRefundFailed(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, ev *domain.GatewayEvent, now time.Time) error {
	refunds, err := s.refundRepo.ListByTransactionID(ctx, txn.ID)
	if err != nil {
		return apperror.InternalError(err)
	}
	for i := range refunds {
		r := &refunds[i]
		if r.Status != domain.RefundStatusPending {
			continue
		}
		if ev.Amount == nil || r.Amount.Equal(*ev.Amount) {
			if err := s.refundRepo.UpdateStatus(ctx, dbTx, r.ID, domain.RefundStatusFailed, nil, &now); err != nil {
				return apperror.InternalError(err)
			}
			break
		}
	}
	return nil
}

// RequestRefund opens a refund against a paid transaction and pushes it
// to the gateway. The validation and the PENDING row are committed
// before the provider call, so a crash mid-call leaves an auditable
// pending refund rather than silent money movement.
func (s *LedgerServiceImpl) RequestRefund(ctx context.Context, txnID uuid.UUID, amount domain.Money, reason domain.RefundReason) (*domain.Refund, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	refund := &domain.Refund{
		ID:        uuid.New(),
		Amount:    amount,
		Reason:    reason,
		Status:    domain.RefundStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	var gwName domain.GatewayName
	var providerRef string

	// Phase 1: validate under lock and record the pending refund.
	err := s.inTx(ctx, func(dbTx pgx.Tx) error {
		txn, err := s.txRepo.GetByIDForUpdate(ctx, dbTx, txnID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
		}
		if txn == nil {
			return apperror.ErrNotFound("transaction")
		}
		if !txn.IsPaid() {
			return apperror.ErrTransactionNotRefundable()
		}

		gw, err := s.registry.Get(txn.Gateway)
		if err != nil {
			return err
		}
		if !gw.Capabilities().SupportsRefunds {
			return apperror.ErrTransactionNotRefundable()
		}

		anchor := txn.CreatedAt
		if txn.ProcessedAt != nil {
			anchor = *txn.ProcessedAt
		}
		if time.Since(anchor) > time.Duration(s.windowDays)*24*time.Hour {
			return apperror.ErrRefundWindowExpired()
		}

		remaining, err := txn.RemainingRefundable()
		if err != nil {
			return apperror.InternalError(err)
		}
		// PENDING refunds reserve their amount: a second request may only
		// claim what is left after the in-flight ones settle.
		open, err := s.refundRepo.ListByTransactionID(ctx, txn.ID)
		if err != nil {
			return apperror.InternalError(err)
		}
		for i := range open {
			if open[i].Status != domain.RefundStatusPending {
				continue
			}
			remaining, err = remaining.Sub(open[i].Amount)
			if err != nil {
				return apperror.InternalError(err)
			}
		}
		cmp, err := amount.Cmp(remaining)
		if err != nil {
			return apperror.Validation(err.Error())
		}
		if cmp > 0 {
			return apperror.ErrRefundExceedsBalance()
		}

		refund.TransactionID = txn.ID
		gwName = txn.Gateway
		if txn.ProviderRef != nil {
			providerRef = *txn.ProviderRef
		}
		return s.refundRepo.Create(ctx, dbTx, refund)
	})
	if err != nil {
		return nil, err
	}

	// Phase 2: instruct the provider.
	gw, err := s.registry.Get(gwName)
	if err != nil {
		return nil, err
	}
	res, gwErr := gw.Refund(ctx, providerRef, amount, reason)
	if gwErr != nil {
		now := time.Now().UTC()
		if markErr := s.inTx(ctx, func(dbTx pgx.Tx) error {
			return s.refundRepo.UpdateStatus(ctx, dbTx, refund.ID, domain.RefundStatusFailed, nil, &now)
		}); markErr != nil {
			s.log.Error().Err(markErr).Str("refund_id", refund.ID.String()).Msg("failed to mark refund FAILED")
		}
		refund.Status = domain.RefundStatusFailed
		return nil, gwErr
	}

	refund.GatewayRefundID = &res.GatewayRefundID
	if !res.Completed {
		// Completion arrives via webhook; record the provider's refund ID.
		if err := s.inTx(ctx, func(dbTx pgx.Tx) error {
			return s.refundRepo.UpdateStatus(ctx, dbTx, refund.ID, domain.RefundStatusPending, &res.GatewayRefundID, nil)
		}); err != nil {
			return nil, err
		}
		return refund, nil
	}

	// Phase 3: synchronous completion; settle the bookkeeping now.
	now := time.Now().UTC()
	var updated *domain.Transaction
	err = s.inTx(ctx, func(dbTx pgx.Tx) error {
		txn, err := s.txRepo.GetByIDForUpdate(ctx, dbTx, txnID)
		if err != nil {
			return apperror.InternalError(err)
		}
		if txn == nil {
			return apperror.ErrNotFound("transaction")
		}
		newTotal, err := txn.RefundedAmount.Add(amount)
		if err != nil {
			return apperror.InternalError(err)
		}
		cmp, err := newTotal.Cmp(txn.Amount)
		if err != nil {
			return apperror.InternalError(err)
		}
		if cmp > 0 {
			// The balance moved between validation and settlement; keep
			// the pending row for reconciliation instead of overdrawing.
			return apperror.ErrRefundExceedsBalance()
		}

		if err := s.refundRepo.UpdateStatus(ctx, dbTx, refund.ID, domain.RefundStatusCompleted, &res.GatewayRefundID, &now); err != nil {
			return apperror.InternalError(err)
		}

		status := domain.TransactionStatusPartiallyRefunded
		if cmp == 0 {
			status = domain.TransactionStatusRefunded
		}
		if err := s.txRepo.AddRefundedAmount(ctx, dbTx, txn.ID, amount, status); err != nil {
			return apperror.InternalError(err)
		}
		txn.RefundedAmount = newTotal
		txn.Status = status
		updated = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	refund.Status = domain.RefundStatusCompleted
	refund.ProcessedAt = &now
	s.notifyTransaction(updated)
	return refund, nil
}

// ListRefunds returns all refunds against a transaction.
func (s *LedgerServiceImpl) ListRefunds(ctx context.Context, txnID uuid.UUID) ([]domain.Refund, error) {
	txn, err := s.txRepo.GetByID(ctx, txnID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	refunds, err := s.refundRepo.ListByTransactionID(ctx, txnID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return refunds, nil
}

// ConfirmBankTransfer is the operator action acknowledging that wired
// funds arrived. Only PENDING transfers are confirmable: once the sweep
// expires a transfer, the payer needs a new transaction. The
// gateway-truth override applies to webhook events, not to this manual
// path.
func (s *LedgerServiceImpl) ConfirmBankTransfer(ctx context.Context, externalReference string) (*domain.Transaction, error) {
	// Validate before the capture call; the lock comes later so a slow
	// gateway never holds the row.
	existing, err := s.txRepo.GetByExternalReference(ctx, externalReference)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if existing == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	if existing.Gateway != domain.GatewayBankTransfer {
		return nil, apperror.ErrNotAwaitingConfirmation()
	}
	if existing.Status != domain.TransactionStatusPending {
		return nil, apperror.ErrNotAwaitingConfirmation()
	}

	gw, err := s.registry.Get(existing.Gateway)
	if err != nil {
		return nil, err
	}
	providerRef := externalReference
	if existing.ProviderRef != nil {
		providerRef = *existing.ProviderRef
	}
	res, err := gw.Confirm(ctx, providerRef)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.EventPaymentSucceeded {
		return nil, apperror.ErrNotAwaitingConfirmation()
	}

	var confirmed *domain.Transaction
	var invoiceCreated *domain.Invoice

	err = s.inTx(ctx, func(dbTx pgx.Tx) error {
		txn, err := s.txRepo.GetByExternalReferenceForUpdate(ctx, dbTx, externalReference)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
		}
		if txn == nil {
			return apperror.ErrNotFound("transaction")
		}
		if txn.Status != domain.TransactionStatusPending {
			return apperror.ErrNotAwaitingConfirmation()
		}

		now := time.Now().UTC()
		if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, domain.TransactionStatusCompleted, &now); err != nil {
			return apperror.InternalError(err)
		}
		txn.Status = domain.TransactionStatusCompleted
		txn.ProcessedAt = &now

		inv, err := s.createInvoice(ctx, dbTx, txn)
		if err != nil {
			return err
		}
		invoiceCreated = inv
		confirmed = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransaction(confirmed)
	if invoiceCreated != nil {
		s.notifyInvoice(invoiceCreated)
	}
	return confirmed, nil
}

// ExpireStale sweeps PENDING transactions past their deadline.
func (s *LedgerServiceImpl) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.txRepo.ExpireStale(ctx, now)
	if err != nil {
		return 0, apperror.InternalError(err)
	}
	if len(ids) > 0 {
		s.log.Info().Int("count", len(ids)).Msg("expired stale pending transactions")
	}
	return len(ids), nil
}

// EnsureInvoices backfills invoices for paid transactions that are
// missing one, e.g. after a crash between transition and notification.
func (s *LedgerServiceImpl) EnsureInvoices(ctx context.Context) (int, error) {
	ids, err := s.invoiceRepo.ListPaidWithoutInvoice(ctx, 100)
	if err != nil {
		return 0, apperror.InternalError(err)
	}

	repaired := 0
	for _, id := range ids {
		err := s.inTx(ctx, func(dbTx pgx.Tx) error {
			txn, err := s.txRepo.GetByIDForUpdate(ctx, dbTx, id)
			if err != nil {
				return err
			}
			if txn == nil || !txn.IsPaid() {
				return nil
			}
			_, err = s.createInvoice(ctx, dbTx, txn)
			return err
		})
		if err != nil {
			s.log.Error().Err(err).Str("transaction_id", id.String()).Msg("invoice backfill failed")
			continue
		}
		repaired++
	}
	return repaired, nil
}

// createInvoice writes the billing snapshot for a newly paid
// transaction inside the caller's database transaction.
func (s *LedgerServiceImpl) createInvoice(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction) (*domain.Invoice, error) {
	inv := &domain.Invoice{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		Amount:        txn.Amount,
		Status:        domain.InvoiceStatusPaid,
		CreatedAt:     time.Now().UTC(),
	}
	created, err := s.invoiceRepo.Create(ctx, dbTx, inv)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create invoice: %w", err))
	}
	return created, nil
}

// inTx runs fn inside a database transaction with commit/rollback handling.
func (s *LedgerServiceImpl) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := fn(dbTx); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *LedgerServiceImpl) notifyTransaction(txn *domain.Transaction) {
	if s.notifier != nil && txn != nil {
		s.notifier.TransactionChanged(txn)
	}
}

func (s *LedgerServiceImpl) notifyInvoice(inv *domain.Invoice) {
	if s.notifier != nil && inv != nil {
		s.notifier.InvoiceCreated(inv)
	}
}
