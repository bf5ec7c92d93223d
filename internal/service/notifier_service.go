package service

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"payment-core/config"
	"payment-core/internal/core/domain"

	"github.com/rs/zerolog"
)

// notifyRetryIntervals is the delivery retry ladder.
var notifyRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// Notification event types
const (
	EventTransactionUpdate = "TRANSACTION_UPDATE"
	EventInvoiceCreated    = "INVOICE_CREATED"
)

// NotificationPayload is the JSON structure sent to the sink URL.
type NotificationPayload struct {
	EventType string                  `json:"event_type"`
	Data      NotificationPayloadData `json:"data"`
	Signature string                  `json:"signature"`
}

// NotificationPayloadData holds the ledger change details.
type NotificationPayloadData struct {
	ExternalReference string `json:"external_reference"`
	TransactionID     string `json:"transaction_id"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	InvoiceNumber     string `json:"invoice_number,omitempty"`
	Disputed          bool   `json:"disputed"`
	Timestamp         int64  `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NotifierServiceImpl implements ports.Notifier. Deliveries run on
// their own goroutine with a retry ladder; a dead sink never blocks or
// fails the ledger mutation that triggered the notification.
type NotifierServiceImpl struct {
	cfg        config.NotificationConfig
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewNotifierService creates a new NotifierServiceImpl.
func NewNotifierService(cfg config.NotificationConfig, httpClient HTTPClient, log zerolog.Logger) *NotifierServiceImpl {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &NotifierServiceImpl{cfg: cfg, httpClient: httpClient, log: log}
}

// TransactionChanged announces a status or dispute change.
func (s *NotifierServiceImpl) TransactionChanged(txn *domain.Transaction) {
	if s.cfg.SinkURL == "" {
		return
	}
	data := NotificationPayloadData{
		ExternalReference: txn.ExternalReference,
		TransactionID:     txn.ID.String(),
		Status:            string(txn.Status),
		Amount:            txn.Amount.Amount.StringFixed(2),
		Currency:          txn.Amount.Currency,
		Disputed:          txn.Disputed,
		Timestamp:         time.Now().Unix(),
	}
	go s.deliverWithRetries(EventTransactionUpdate, data, txn.ID.String())
}

// InvoiceCreated announces a freshly written billing snapshot.
func (s *NotifierServiceImpl) InvoiceCreated(inv *domain.Invoice) {
	if s.cfg.SinkURL == "" {
		return
	}
	data := NotificationPayloadData{
		TransactionID: inv.TransactionID.String(),
		Status:        string(inv.Status),
		Amount:        inv.Amount.Amount.StringFixed(2),
		Currency:      inv.Amount.Currency,
		InvoiceNumber: inv.InvoiceNumber,
		Timestamp:     time.Now().Unix(),
	}
	go s.deliverWithRetries(EventInvoiceCreated, data, inv.ID.String())
}

// deliverWithRetries attempts delivery, walking the retry ladder on failure.
func (s *NotifierServiceImpl) deliverWithRetries(eventType string, data NotificationPayloadData, id string) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		s.log.Error().Err(err).Str("id", id).Msg("notify: failed to marshal payload data")
		return
	}

	payload := NotificationPayload{
		EventType: eventType,
		Data:      data,
		Signature: s.sign(dataBytes),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("id", id).Msg("notify: failed to marshal payload")
		return
	}

	for attempt := 0; attempt <= len(notifyRetryIntervals); attempt++ {
		if attempt > 0 {
			time.Sleep(notifyRetryIntervals[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, s.cfg.SinkURL, bytes.NewReader(payloadBytes))
		if err != nil {
			s.log.Error().Err(err).Str("id", id).Int("attempt", attempt+1).Msg("notify: failed to create request")
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.log.Warn().Err(err).Str("id", id).Int("attempt", attempt+1).Msg("notify: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.log.Info().Str("id", id).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("notify: delivered")
			return
		}

		s.log.Warn().Str("id", id).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("notify: non-2xx response, retrying")
	}

	s.log.Error().Str("id", id).Msg("notify: all retry attempts exhausted")
}

func (s *NotifierServiceImpl) sign(data []byte) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.SigningKey))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
