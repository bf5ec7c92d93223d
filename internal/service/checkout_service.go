package service

import (
	"context"
	"errors"
	"time"

	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CheckoutServiceImpl implements ports.CheckoutService. It strings the
// session, risk, ledger and gateway steps into the payment-start flow;
// the ledger remains the only component that writes transaction state.
type CheckoutServiceImpl struct {
	sessions       ports.SessionService
	risk           ports.RiskService
	ledger         ports.LedgerService
	registry       ports.GatewayRegistry
	pendingTimeout time.Duration // card/wallet authorizations
	bankExpiry     time.Duration // bank transfers wait much longer
	log            zerolog.Logger
}

// NewCheckoutService creates a new CheckoutServiceImpl.
func NewCheckoutService(
	sessions ports.SessionService,
	risk ports.RiskService,
	ledger ports.LedgerService,
	registry ports.GatewayRegistry,
	pendingTimeout time.Duration,
	bankExpiry time.Duration,
	log zerolog.Logger,
) *CheckoutServiceImpl {
	return &CheckoutServiceImpl{
		sessions:       sessions,
		risk:           risk,
		ledger:         ledger,
		registry:       registry,
		pendingTimeout: pendingTimeout,
		bankExpiry:     bankExpiry,
		log:            log,
	}
}

// StartPayment opens a payment attempt: session check, currency check,
// risk scoring, ledger insert, then the provider call. Replaying an
// external reference returns the original transaction untouched.
func (s *CheckoutServiceImpl) StartPayment(ctx context.Context, in ports.StartPaymentInput) (*ports.StartPaymentOutput, error) {
	sess, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Amount.Equal(in.Amount) {
		return nil, apperror.Validation("amount does not match the session")
	}

	gw, err := s.registry.Get(in.Gateway)
	if err != nil {
		return nil, err
	}
	if !gw.Capabilities().SupportsCurrency(in.Amount.Currency) {
		return nil, apperror.ErrUnsupportedCurrency(string(in.Gateway), in.Amount.Currency)
	}

	decision, err := s.risk.Assess(ctx, sess.OwnerIdentity, in.Amount, in.ClientMeta)
	if err != nil {
		return nil, err
	}
	if decision.Block {
		s.log.Warn().
			Str("identity", sess.OwnerIdentity).
			Int("score", decision.Score).
			Msg("checkout blocked by risk engine")
		return nil, apperror.ErrFraudBlocked()
	}

	if _, err := s.sessions.RecordAttempt(ctx, in.SessionID, in.Gateway); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.pendingTimeout)
	if in.Gateway == domain.GatewayBankTransfer {
		expiresAt = now.Add(s.bankExpiry)
	}

	txn := &domain.Transaction{
		ExternalReference: in.ExternalReference,
		Gateway:           in.Gateway,
		Amount:            in.Amount,
		Purpose:           in.Purpose,
		Status:            domain.TransactionStatusPending,
		ReviewFlagged:     decision.Review,
		CreatedAt:         now,
		ExpiresAt:         &expiresAt,
	}

	created, replayed, err := s.ledger.CreateTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}
	if replayed {
		// The original attempt already talked to the provider; hand the
		// stored state back without a second authorize.
		return &ports.StartPaymentOutput{Transaction: created, Replayed: true}, nil
	}

	res, err := gw.Authorize(ctx, ports.AuthorizeRequest{
		ExternalReference: in.ExternalReference,
		Amount:            in.Amount,
		Purpose:           in.Purpose,
		OwnerIdentity:     sess.OwnerIdentity,
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == "GW_001" {
			// Definitive decline: close the transaction. A transient
			// failure leaves it PENDING so the same reference can retry.
			if markErr := s.ledger.MarkDeclined(ctx, created.ID); markErr != nil {
				s.log.Error().Err(markErr).Str("transaction_id", created.ID.String()).Msg("failed to mark declined")
			}
		}
		return nil, err
	}

	if err := s.ledger.AttachProviderResult(ctx, created.ID, res.ProviderRef, res.RawResponse); err != nil {
		return nil, err
	}
	created.ProviderRef = &res.ProviderRef
	created.GatewayRawResponse = res.RawResponse

	if decision.Review {
		if err := s.ledger.FlagForReview(ctx, created.ID); err != nil {
			s.log.Error().Err(err).Str("transaction_id", created.ID.String()).Msg("failed to flag for review")
		}
	}

	// Bank transfers have no client continuation; the session has done
	// its job.
	if res.Continuation == ports.ContinuationNone {
		if err := s.sessions.Cancel(ctx, in.SessionID); err != nil {
			s.log.Warn().Err(err).Str("session_id", in.SessionID.String()).Msg("failed to drop finished session")
		}
	}

	return &ports.StartPaymentOutput{
		Transaction:  created,
		Continuation: res.Continuation,
		ClientToken:  res.ClientToken,
		RedirectURL:  res.RedirectURL,
		Instructions: res.Instructions,
	}, nil
}

// GetPayment fetches a transaction by ID.
func (s *CheckoutServiceImpl) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.ledger.GetTransaction(ctx, id)
}
