package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

// Header carrying the provider's HMAC-SHA256 hex signature of the raw
// webhook body.
const HeaderWebhookSignature = "X-Webhook-Signature"

// CardGateway drives a card processor. Payments finish with an inline
// client token; final state arrives over webhooks.
type CardGateway struct {
	cfg    config.CardGatewayConfig
	client *http.Client
	log    zerolog.Logger
}

// NewCardGateway creates the card driver.
func NewCardGateway(cfg config.CardGatewayConfig, log zerolog.Logger) *CardGateway {
	return &CardGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("gateway", "card").Logger(),
	}
}

func (g *CardGateway) Name() domain.GatewayName {
	return domain.GatewayCard
}

func (g *CardGateway) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		Name:              domain.GatewayCard,
		Currencies:        g.cfg.Currencies,
		SupportsRefunds:   true,
		SupportsRecurring: true,
	}
}

type cardIntentRequest struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Purpose   string `json:"purpose,omitempty"`
}

type cardIntentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	DeclineCode  string `json:"decline_code,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Authorize opens a payment intent with the processor. The returned
// client token is handed to the browser-side form; the payment settles
// asynchronously via webhook.
func (g *CardGateway) Authorize(ctx context.Context, req ports.AuthorizeRequest) (*ports.AuthorizeResult, error) {
	body := cardIntentRequest{
		Reference: req.ExternalReference,
		Amount:    req.Amount.Amount.StringFixed(2),
		Currency:  req.Amount.Currency,
		Purpose:   req.Purpose,
	}

	raw, status, err := g.post(ctx, "/v1/intents", body)
	if err != nil {
		return nil, apperror.ErrGatewayUnavailable(err)
	}

	var resp cardIntentResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("decoding intent response: %w", jsonErr))
	}

	switch {
	case status >= 200 && status < 300:
		return &ports.AuthorizeResult{
			ProviderRef:  resp.IntentID,
			Continuation: ports.ContinuationInline,
			ClientToken:  resp.ClientSecret,
			RawResponse:  raw,
		}, nil
	case status == http.StatusPaymentRequired || status == http.StatusUnprocessableEntity:
		// Definitive decline; retrying yields the same answer.
		return nil, apperror.ErrGatewayRejected(resp.DeclineCode)
	case status >= 400 && status < 500:
		return nil, apperror.ErrGatewayRejected(resp.Message)
	default:
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("card processor returned %d", status))
	}
}

type cardCaptureResponse struct {
	Status   string `json:"status"`
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Confirm captures a previously authorized intent. Most card payments
// capture automatically; this backs the manual-capture flow.
func (g *CardGateway) Confirm(ctx context.Context, providerRef string) (*ports.ConfirmResult, error) {
	raw, status, err := g.post(ctx, "/v1/intents/"+providerRef+"/capture", struct{}{})
	if err != nil {
		return nil, apperror.ErrGatewayUnavailable(err)
	}

	var resp cardCaptureResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("decoding capture response: %w", jsonErr))
	}

	switch {
	case status >= 200 && status < 300:
		kind, err := cardEventKind(resp.Status)
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
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("card processor returned %d", status))
	}
}

type cardRefundRequest struct {
	IntentID string `json:"intent_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Reason   string `json:"reason"`
}

type cardRefundResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"` // "succeeded" or "pending"
	Message  string `json:"message,omitempty"`
}

func (g *CardGateway) Refund(ctx context.Context, providerRef string, amount domain.Money, reason domain.RefundReason) (*ports.RefundResult, error) {
	body := cardRefundRequest{
		IntentID: providerRef,
		Amount:   amount.Amount.StringFixed(2),
		Currency: amount.Currency,
		Reason:   string(reason),
	}

	raw, status, err := g.post(ctx, "/v1/refunds", body)
	if err != nil {
		return nil, apperror.ErrGatewayUnavailable(err)
	}

	var resp cardRefundResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("decoding refund response: %w", jsonErr))
	}

	switch {
	case status >= 200 && status < 300:
		return &ports.RefundResult{
			GatewayRefundID: resp.RefundID,
			Completed:       resp.Status == "succeeded",
			RawResponse:     raw,
		}, nil
	case status >= 400 && status < 500:
		return nil, apperror.ErrGatewayRejected(resp.Message)
	default:
		return nil, apperror.ErrGatewayUnavailable(fmt.Errorf("card processor returned %d", status))
	}
}

type cardStatusResponse struct {
	Status string `json:"status"`
}

func (g *CardGateway) Status(ctx context.Context, providerRef string) (domain.EventKind, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIBase+"/v1/intents/"+providerRef, nil)
	if err != nil {
		return "", apperror.ErrGatewayUnavailable(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

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
		return "", apperror.ErrGatewayUnavailable(fmt.Errorf("card processor returned %d", httpResp.StatusCode))
	}

	var resp cardStatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", apperror.ErrGatewayUnavailable(fmt.Errorf("decoding status response: %w", err))
	}
	return cardEventKind(resp.Status)
}

// cardWebhookEvent is the processor's callback payload.
type cardWebhookEvent struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Amount    string `json:"amount,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// VerifyWebhook authenticates the callback with HMAC-SHA256 over the
// raw body, then normalizes it.
func (g *CardGateway) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string) (*domain.GatewayEvent, error) {
	sig := headers[HeaderWebhookSignature]
	if !verifyHMAC(g.cfg.WebhookSecret, body, sig) {
		return nil, apperror.ErrInvalidSignature()
	}

	var ev cardWebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, apperror.Validation("malformed webhook payload")
	}
	if ev.EventID == "" || ev.Reference == "" {
		return nil, apperror.Validation("webhook payload missing event_id or reference")
	}

	kind, err := cardEventKind(ev.Type)
	if err != nil {
		return nil, err
	}

	out := &domain.GatewayEvent{
		ExternalReference: ev.Reference,
		ProviderEventID:   ev.EventID,
		Kind:              kind,
		Gateway:           domain.GatewayCard,
		Reason:            ev.Reason,
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

func cardEventKind(typ string) (domain.EventKind, error) {
	switch typ {
	case "payment.succeeded", "succeeded":
		return domain.EventPaymentSucceeded, nil
	case "payment.failed", "failed":
		return domain.EventPaymentFailed, nil
	case "payment.canceled", "canceled":
		return domain.EventPaymentCanceled, nil
	case "payment.processing", "processing":
		return domain.EventPaymentPending, nil
	case "refund.succeeded":
		return domain.EventRefundCompleted, nil
	case "refund.failed":
		return domain.EventRefundFailed, nil
	case "dispute.created":
		return domain.EventDisputeOpened, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnknownEventKind, typ)
}

func (g *CardGateway) post(ctx context.Context, path string, body interface{}) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIBase+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

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

// verifyHMAC compares the hex-encoded HMAC-SHA256 of body against sig
// in constant time.
func verifyHMAC(secret string, body []byte, sig string) bool {
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
