package service

import (
	"context"
	"testing"
	"time"

	"payment-core/config"
	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	svc          *CheckoutServiceImpl
	sessions     *SessionServiceImpl
	sessionStore *fakeSessionStore
	fraudRepo    *fakeFraudRepo
	txRepo       *fakeTransactionRepo
	cardGw       *fakeGateway
	bankGw       *fakeGateway
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		NetworkWeight:   30,
		VelocityWeight:  25,
		BehaviorWeight:  25,
		PayloadWeight:   20,
		BlockThreshold:  90,
		ReviewThreshold: 70,
		VelocityMax:     10,
	}
}

func newCheckoutFixture() *checkoutFixture {
	log := newTestLogger()

	sessionStore := newFakeSessionStore()
	sessions := NewSessionService(sessionStore, 30*time.Minute, log)

	fraudRepo := newFakeFraudRepo()
	risk := NewRiskService(fraudRepo, testRiskConfig(), log)

	txRepo := newFakeTransactionRepo()
	cardGw := &fakeGateway{
		name: domain.GatewayCard,
		caps: ports.Capabilities{
			Name:            domain.GatewayCard,
			Currencies:      []string{"USD"},
			SupportsRefunds: true,
		},
		authorizeRes: &ports.AuthorizeResult{
			ProviderRef:  "pi_abc",
			Continuation: ports.ContinuationInline,
			ClientToken:  "secret_abc",
		},
	}
	bankGw := &fakeGateway{
		name: domain.GatewayBankTransfer,
		caps: ports.Capabilities{
			Name:       domain.GatewayBankTransfer,
			Currencies: []string{"USD"},
		},
		authorizeRes: &ports.AuthorizeResult{
			ProviderRef:  "wire-1",
			Continuation: ports.ContinuationNone,
			Instructions: "wire the funds",
		},
	}
	registry := newFakeRegistry(cardGw, bankGw)

	ledger := NewLedgerService(
		txRepo, newFakeInvoiceRepo(txRepo), newFakeRefundRepo(), newFakeEventRepo(),
		registry, &fakeTransactor{}, nil, 180, log,
	)

	svc := NewCheckoutService(sessions, risk, ledger, registry, 30*time.Minute, 30*24*time.Hour, log)
	return &checkoutFixture{
		svc: svc, sessions: sessions, sessionStore: sessionStore,
		fraudRepo: fraudRepo, txRepo: txRepo, cardGw: cardGw, bankGw: bankGw,
	}
}

func (f *checkoutFixture) openSession(t *testing.T, amount string) *domain.PaymentSession {
	t.Helper()
	sess, err := f.sessions.Create(context.Background(), "buyer-42", domain.MustMoney(amount, "USD"))
	require.NoError(t, err)
	return sess
}

func cleanMeta() ports.ClientMeta {
	return ports.ClientMeta{
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
	}
}

func TestCheckout_StartPayment_Inline(t *testing.T) {
	f := newCheckoutFixture()
	sess := f.openSession(t, "75.00")

	out, err := f.svc.StartPayment(context.Background(), ports.StartPaymentInput{
		SessionID:         sess.SessionID,
		ExternalReference: "order-77",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("75.00", "USD"),
		Purpose:           "order 77",
		ClientMeta:        cleanMeta(),
	})
	require.NoError(t, err)

	assert.Equal(t, ports.ContinuationInline, out.Continuation)
	assert.Equal(t, "secret_abc", out.ClientToken)
	assert.False(t, out.Replayed)
	assert.Equal(t, domain.TransactionStatusPending, out.Transaction.Status)
	require.NotNil(t, out.Transaction.ProviderRef)
	assert.Equal(t, "pi_abc", *out.Transaction.ProviderRef)

	// Session survives for the client-side continuation.
	stored, err := f.sessionStore.Get(context.Background(), sess.SessionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, domain.GatewayCard, stored.ChosenGateway)
}

func TestCheckout_StartPayment_Replay(t *testing.T) {
	f := newCheckoutFixture()
	sess := f.openSession(t, "75.00")

	in := ports.StartPaymentInput{
		SessionID:         sess.SessionID,
		ExternalReference: "order-77",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("75.00", "USD"),
		ClientMeta:        cleanMeta(),
	}
	first, err := f.svc.StartPayment(context.Background(), in)
	require.NoError(t, err)

	second, err := f.svc.StartPayment(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	// No fresh continuation on replay.
	assert.Empty(t, second.ClientToken)
}

func TestCheckout_StartPayment_SessionAmountMismatch(t *testing.T) {
	f := newCheckoutFixture()
	sess := f.openSession(t, "75.00")

	_, err := f.svc.StartPayment(context.Background(), ports.StartPaymentInput{
		SessionID:         sess.SessionID,
		ExternalReference: "order-77",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("80.00", "USD"),
		ClientMeta:        cleanMeta(),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_010", appErr.Code)
}

func TestCheckout_StartPayment_UnknownSession(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.StartPayment(context.Background(), ports.StartPaymentInput{
		SessionID:         uuid.New(),
		ExternalReference: "order-77",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("75.00", "USD"),
		ClientMeta:        cleanMeta(),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SES_002", appErr.Code)
}

func TestCheckout_StartPayment_UnsupportedCurrency(t *testing.T) {
	f := newCheckoutFixture()
	sess, err := f.sessions.Create(context.Background(), "buyer-42", domain.MustMoney("75.00", "EUR"))
	require.NoError(t, err)

	_, err = f.svc.StartPayment(context.Background(), ports.StartPaymentInput{
		SessionID:         sess.SessionID,
		ExternalReference: "order-77",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("75.00", "EUR"),
		ClientMeta:        cleanMeta(),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_002", appErr.Code)
}

func TestCheckout_StartPayment_FraudBlocked(t *testing.T) {
	f := newCheckoutFixture()
	sess := f.openSession(t, "10500.00")

	// A burst of flagged attempts in the last hour saturates the
	// velocity signal; together with the scripted client and the
	// oversized payload the score clears the block threshold.
	for i := 0; i < 10; i++ {
		require.NoError(t, f.fraudRepo.Create(context.Background(), &domain.FraudAssessment{
			ID:        uuid.New(),
			Identity:  "buyer-42",
			Score:     75,
			CreatedAt: time.Now().UTC(),
		}))
	}

	_, err := f.svc.StartPayment(context.Background(), ports.StartPaymentInput{
		SessionID:         sess.SessionID,
		ExternalReference: "order-77",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("10500.00", "USD"),
		ClientMeta: ports.ClientMeta{
			UserAgent: "curl/8.4.0",
			PayloadFields: map[string]string{
				"billing_name":    "",
				"billing_address": " ",
			},
		},
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "FRD_001", appErr.Code)

	// Nothing was written to the ledger.
	f.txRepo.mu.Lock()
	assert.Empty(t, f.txRepo.byID)
	f.txRepo.mu.Unlock()
}

func TestCheckout_StartPayment_ReviewFlagged(t *testing.T) {
	f := newCheckoutFixture()
	sess := f.openSession(t, "10500.00")

	// Scripted client with no IP and a large amount scores into the
	// review band without reaching the block threshold.
	out, err := f.svc.StartPayment(context.Background(), ports.StartPaymentInput{
		SessionID:         sess.SessionID,
		ExternalReference: "order-77",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("10500.00", "USD"),
		ClientMeta: ports.ClientMeta{
			UserAgent: "python-requests/2.31",
			PayloadFields: map[string]string{
				"billing_name":    "",
				"billing_address": "",
			},
		},
	})
	require.NoError(t, err)

	got, _ := f.txRepo.GetByID(context.Background(), out.Transaction.ID)
	assert.True(t, got.ReviewFlagged)
	assert.Equal(t, domain.TransactionStatusPending, got.Status)
}

func TestCheckout_StartPayment_DefinitiveDecline(t *testing.T) {
	f := newCheckoutFixture()
	sess := f.openSession(t, "75.00")

	f.cardGw.authorizeRes = nil
	f.cardGw.authorizeErr = apperror.ErrGatewayRejected("insufficient_funds")

	_, err := f.svc.StartPayment(context.Background(), ports.StartPaymentInput{
		SessionID:         sess.SessionID,
		ExternalReference: "order-77",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("75.00", "USD"),
		ClientMeta:        cleanMeta(),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "GW_001", appErr.Code)

	// The decline closed the transaction.
	txn, getErr := f.txRepo.GetByExternalReference(context.Background(), "order-77")
	require.NoError(t, getErr)
	require.NotNil(t, txn)
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
}

func TestCheckout_StartPayment_TransientFailureLeavesPending(t *testing.T) {
	f := newCheckoutFixture()
	sess := f.openSession(t, "75.00")

	f.cardGw.authorizeRes = nil
	f.cardGw.authorizeErr = apperror.ErrGatewayUnavailable(assert.AnError)

	_, err := f.svc.StartPayment(context.Background(), ports.StartPaymentInput{
		SessionID:         sess.SessionID,
		ExternalReference: "order-77",
		Gateway:           domain.GatewayCard,
		Amount:            domain.MustMoney("75.00", "USD"),
		ClientMeta:        cleanMeta(),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "GW_002", appErr.Code)

	// PENDING survives so the same reference can replay once the
	// provider recovers.
	txn, getErr := f.txRepo.GetByExternalReference(context.Background(), "order-77")
	require.NoError(t, getErr)
	require.NotNil(t, txn)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
}

func TestCheckout_StartPayment_BankTransferClosesSession(t *testing.T) {
	f := newCheckoutFixture()
	sess := f.openSession(t, "250.00")

	out, err := f.svc.StartPayment(context.Background(), ports.StartPaymentInput{
		SessionID:         sess.SessionID,
		ExternalReference: "wire-9",
		Gateway:           domain.GatewayBankTransfer,
		Amount:            domain.MustMoney("250.00", "USD"),
		ClientMeta:        cleanMeta(),
	})
	require.NoError(t, err)
	assert.Equal(t, ports.ContinuationNone, out.Continuation)
	assert.NotEmpty(t, out.Instructions)

	// No continuation means the session is done.
	stored, err := f.sessionStore.Get(context.Background(), sess.SessionID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	// Bank transfers wait far longer than card authorizations.
	require.NotNil(t, out.Transaction.ExpiresAt)
	assert.Greater(t, time.Until(*out.Transaction.ExpiresAt), 29*24*time.Hour)
}
