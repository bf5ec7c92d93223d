package gateway

import (
	"context"
	"fmt"

	"payment-core/config"
	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"
)

// BankTransferGateway handles manual bank transfers. There is no
// provider API: Authorize hands out static wiring instructions, the
// transaction stays PENDING, and an operator confirms receipt through
// the admin endpoint once the funds land.
type BankTransferGateway struct {
	cfg config.BankTransferGatewayConfig
}

// NewBankTransferGateway creates the bank transfer driver.
func NewBankTransferGateway(cfg config.BankTransferGatewayConfig) *BankTransferGateway {
	return &BankTransferGateway{cfg: cfg}
}

func (g *BankTransferGateway) Name() domain.GatewayName {
	return domain.GatewayBankTransfer
}

func (g *BankTransferGateway) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		Name:                 domain.GatewayBankTransfer,
		Currencies:           g.cfg.Currencies,
		SupportsRefunds:      false,
		RequiresManualReview: true,
	}
}

func (g *BankTransferGateway) Authorize(ctx context.Context, req ports.AuthorizeRequest) (*ports.AuthorizeResult, error) {
	instructions := fmt.Sprintf(
		"Transfer %s to %s, account %s at %s. Quote reference %s. The order is confirmed once the funds arrive.",
		req.Amount.String(),
		g.cfg.AccountName,
		g.cfg.AccountNumber,
		g.cfg.BankName,
		req.ExternalReference,
	)

	return &ports.AuthorizeResult{
		// The caller's reference doubles as the provider ref: it is what
		// the payer writes on the wire and what the operator confirms.
		ProviderRef:  req.ExternalReference,
		Continuation: ports.ContinuationNone,
		Instructions: instructions,
	}, nil
}

// Confirm acknowledges receipt of the wired funds. There is no provider
// API behind it; the operator asserting the money arrived is the capture.
func (g *BankTransferGateway) Confirm(ctx context.Context, providerRef string) (*ports.ConfirmResult, error) {
	return &ports.ConfirmResult{Status: domain.EventPaymentSucceeded}, nil
}

func (g *BankTransferGateway) Refund(ctx context.Context, providerRef string, amount domain.Money, reason domain.RefundReason) (*ports.RefundResult, error) {
	return nil, apperror.ErrTransactionNotRefundable()
}

func (g *BankTransferGateway) Status(ctx context.Context, providerRef string) (domain.EventKind, error) {
	// No provider to ask; settlement is observed by a human.
	return domain.EventPaymentPending, nil
}

func (g *BankTransferGateway) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) (*domain.GatewayEvent, error) {
	return nil, apperror.ErrInvalidSignature()
}
