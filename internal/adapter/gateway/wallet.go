package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"payment-core/config"
	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"

	"github.com/rs/zerolog"
)

// WalletGateway drives a hosted wallet provider. The client finishes
// payment on the provider's page, so Authorize hands back a redirect URL.
type WalletGateway struct {
	cfg    config.WalletGatewayConfig
	client *http.Client
	log    zerolog.Logger
}

// NewWalletGateway creates the wallet driver.
func NewWalletGateway(cfg config.WalletGatewayConfig, log zerolog.Logger) *WalletGateway {
	return &WalletGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("gateway", "wallet").Logger(),
	}
}

func (g *WalletGateway) Name() domain.GatewayName {
	return domain.GatewayWallet
}

func (g *WalletGateway) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		Name:            domain.GatewayWallet,
		Currencies:      g.cfg.Currencies,
		SupportsRefunds: true,
	}
}

type walletOrderRequest struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	ReturnURL string `json:"return_url"`
}

type walletOrderResponse struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
	ErrorCode   string `json:"error_code,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (g *WalletGateway) Authorize(ctx context.Context, req ports.AuthorizeRequest) (*ports.AuthorizeResult, error) {
	body := walletOrderRequest{
		Reference: req.ExternalReference,
		Amount:    req.Amount.Amount.StringFixed(2),
		Currency:  req.Amount.Currency,
		ReturnURL: g.cfg.ReturnURL,
	}

	raw, status, err := g.post(ctx, "/v2/orders", body)
	if err != nil {
		return nil, apperror.ErrGatewayUnavailable(err)
	}

	var resp walletOrderResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("decoding order response: %w", jsonErr))
	}

	switch {
	case status >= 200 && status < 300:
		return &ports.AuthorizeResult{
			ProviderRef:  resp.OrderID,
			Continuation: ports.ContinuationRedirect,
			RedirectURL:  resp.ApprovalURL,
			RawResponse:  raw,
		}, nil
	case status >= 400 && status < 500:
		return nil, apperror.ErrGatewayRejected(resp.ErrorCode)
	default:
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("wallet provider returned %d", status))
	}
}

type walletCaptureResponse struct {
	State    string `json:"state"`
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Confirm captures an approved order. The provider expects this after
// the payer returns from the hosted page.
func (g *WalletGateway) Confirm(ctx context.Context, providerRef string) (*ports.ConfirmResult, error) {
	raw, status, err := g.post(ctx, "/v2/orders/"+providerRef+"/capture", struct{}{})
	if err != nil {
		return nil, apperror.ErrGatewayUnavailable(err)
	}

	var resp walletCaptureResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("decoding capture response: %w", jsonErr))
	}

	switch {
	case status >= 200 && status < 300:
		kind, err := walletEventKind(resp.State)
		if err != nil {
			return nil, apperror.ErrGatewayUnavailable(err)
		}
		out := &ports.ConfirmResult{Status: kind, RawResponse: raw}
		if resp.Amount != "" && resp.Currency != "" {
			m, err := domain.NewMoney(resp.Amount, resp.Currency)
			if err != nil {
				return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("capture response has invalid amount: %w", err))
			}
			out.CapturedAmount = &m
		}
		return out, nil
	case status >= 400 && status < 500:
		return nil, apperror.ErrGatewayRejected(resp.Message)
	default:
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("wallet provider returned %d", status))
	}
}

type walletRefundRequest struct {
	OrderID  string `json:"order_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Note     string `json:"note"`
}

type walletRefundResponse struct {
	RefundID string `json:"refund_id"`
	State    string `json:"state"` // "COMPLETED" or "PENDING"
	Message  string `json:"message,omitempty"`
}

func (g *WalletGateway) Refund(ctx context.Context, providerRef string, amount domain.Money, reason domain.RefundReason) (*ports.RefundResult, error) {
	body := walletRefundRequest{
		OrderID:  providerRef,
		Amount:   amount.Amount.StringFixed(2),
		Currency: amount.Currency,
		Note:     string(reason),
	}

	raw, status, err := g.post(ctx, "/v2/refunds", body)
	if err != nil {
		return nil, apperror.ErrGatewayUnavailable(err)
	}

	var resp walletRefundResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("decoding refund response: %w", jsonErr))
	}

	switch {
	case status >= 200 && status < 300:
		return &ports.RefundResult{
			GatewayRefundID: resp.RefundID,
			Completed:       resp.State == "COMPLETED",
			RawResponse:     raw,
		}, nil
	case status >= 400 && status < 500:
		return nil, apperror.ErrGatewayRejected(resp.Message)
	default:
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("wallet provider returned %d", status))
	}
}

type walletStatusResponse struct {
	State string `json:"state"`
}

func (g *WalletGateway) Status(ctx context.Context, providerRef string) (domain.EventKind, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIBase+"/v2/orders/"+providerRef, nil)
	if err != nil {
		return "", apperror.ErrGatewayUnavailable(err)
	}
	httpReq.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return "", apperror.ErrGatewayUnavailable(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", apperror.ErrGatewayUnavailable(err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", apperror.ErrGatewayUnavailable(fmt.Errorf("wallet provider returned %d", httpResp.StatusCode))
	}

	var resp walletStatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", apperror.ErrGatewayUnavailable(fmt.Errorf("decoding status response: %w", err))
	}
	return walletEventKind(resp.State)
}

type walletWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Reference string `json:"reference"`
	Amount    string `json:"amount,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

func (g *WalletGateway) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) (*domain.GatewayEvent, error) {
	sig := headers[HeaderWebhookSignature]
	if !verifyHMAC(g.cfg.WebhookSecret, body, sig) {
		return nil, apperror.ErrInvalidSignature()
	}

	var ev walletWebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, apperror.Validation("malformed webhook payload")
	}
	if ev.ID == "" || ev.Reference == "" {
		return nil, apperror.Validation("webhook payload missing id or reference")
	}

	kind, err := walletEventKind(ev.EventType)
	if err != nil {
		return nil, err
	}

	out := &domain.GatewayEvent{
		ExternalReference: ev.Reference,
		ProviderEventID:   ev.ID,
		Kind:              kind,
		Gateway:           domain.GatewayWallet,
		Reason:            ev.Summary,
		RawPayload:        body,
	}
	if ev.Amount != "" && ev.Currency != "" {
		m, err := domain.NewMoney(ev.Amount, ev.Currency)
		if err != nil {
			return nil, apperror.Validation("webhook payload has invalid amount")
		}
		out.Amount = &m
	}
	return out, nil
}

func walletEventKind(typ string) (domain.EventKind, error) {
	switch typ {
	case "ORDER.COMPLETED", "COMPLETED":
		return domain.EventPaymentSucceeded, nil
	case "ORDER.DENIED", "DENIED":
		return domain.EventPaymentFailed, nil
	case "ORDER.VOIDED", "VOIDED":
		return domain.EventPaymentCanceled, nil
	case "ORDER.CREATED", "CREATED", "APPROVED":
		return domain.EventPaymentPending, nil
	case "REFUND.COMPLETED":
		return domain.EventRefundCompleted, nil
	case "REFUND.FAILED":
		return domain.EventRefundFailed, nil
	case "DISPUTE.CREATED":
		return domain.EventDisputeOpened, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnknownEventKind, typ)
}

func (g *WalletGateway) post(ctx context.Context, path string, body interface{}) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIBase+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, 0, err
	}
	return raw, httpResp.StatusCode, nil
}
