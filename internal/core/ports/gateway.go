package ports

import (
	"context"

	"payment-core/internal/core/domain"
)

// ContinuationKind tells the client how to finish a payment after the
// server-side authorize step.
type ContinuationKind string

const (
	// ContinuationNone means the payment settles asynchronously with no
	// further client action (bank transfer: wait for funds).
	ContinuationNone ContinuationKind = "NONE"
	// ContinuationInline carries a provider client token for an embedded
	// payment form.
	ContinuationInline ContinuationKind = "INLINE"
	// ContinuationRedirect carries a provider-hosted URL the client must
	// navigate to.
	ContinuationRedirect ContinuationKind = "REDIRECT"
)

// AuthorizeRequest is the gateway-neutral input to start a payment.
type AuthorizeRequest struct {
	ExternalReference string
	Amount            domain.Money
	Purpose           string
	OwnerIdentity     string
}

// AuthorizeResult is what a gateway returns when a payment is opened.
type AuthorizeResult struct {
	ProviderRef  string
	Continuation ContinuationKind
	ClientToken  string // INLINE: provider client secret
	RedirectURL  string // REDIRECT: provider-hosted page
	Instructions string // NONE: human-readable settlement instructions
	RawResponse  []byte
}

// ConfirmResult is the provider's answer to an explicit capture.
type ConfirmResult struct {
	Status         domain.EventKind
	CapturedAmount *domain.Money
	RawResponse    []byte
}

// RefundResult is what a gateway returns for a refund instruction.
type RefundResult struct {
	GatewayRefundID string
	Completed       bool // false: completion arrives via webhook
	RawResponse     []byte
}

// Capabilities describes what a gateway supports, for discovery.
type Capabilities struct {
	Name                 domain.GatewayName `json:"name"`
	Currencies           []string           `json:"supported_currencies"`
	SupportsRefunds      bool               `json:"supports_refunds"`
	SupportsRecurring    bool               `json:"supports_recurring"`
	RequiresManualReview bool               `json:"requires_manual_review"`
}

// SupportsCurrency reports whether the gateway accepts the currency.
func (c Capabilities) SupportsCurrency(currency string) bool {
	for _, cur := range c.Currencies {
		if cur == currency {
			return true
		}
	}
	return false
}

// Gateway is the uniform driver interface every money-movement provider
// implements. Provider errors are split into two kinds: a definitive
// decline (apperror GW_001) and a transient failure (GW_002); callers
// branch on that distinction, never on provider-specific codes.
type Gateway interface {
	Name() domain.GatewayName
	Capabilities() Capabilities

	// Authorize opens a payment with the provider.
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)

	// Confirm captures a previously authorized payment, for flows that
	// separate authorization from capture.
	Confirm(ctx context.Context, providerRef string) (*ConfirmResult, error)

	// Refund instructs the provider to return money.
	Refund(ctx context.Context, providerRef string, amount domain.Money, reason domain.RefundReason) (*RefundResult, error)

	// Status queries the provider's current view of a payment.
	Status(ctx context.Context, providerRef string) (domain.EventKind, error)

	// VerifyWebhook authenticates a raw callback and parses it into a
	// normalized event. Authentication failure returns SEC_001.
	VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) (*domain.GatewayEvent, error)
}

// GatewayRegistry resolves gateway names to drivers. The mapping is
// fixed at startup.
type GatewayRegistry interface {
	Get(name domain.GatewayName) (Gateway, error)
	List() []Capabilities
}
