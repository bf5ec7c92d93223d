package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// GatewayName identifies a money-movement provider.
type GatewayName string

const (
	GatewayCard         GatewayName = "CARD"
	GatewayWallet       GatewayName = "WALLET"
	GatewayBankTransfer GatewayName = "BANK_TRANSFER"
)

// ParseGatewayName validates a caller-supplied gateway identifier.
func ParseGatewayName(s string) (GatewayName, bool) {
	switch GatewayName(s) {
	case GatewayCard, GatewayWallet, GatewayBankTransfer:
		return GatewayName(s), true
	}
	return "", false
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending           TransactionStatus = "PENDING"
	TransactionStatusCompleted         TransactionStatus = "COMPLETED"
	TransactionStatusFailed            TransactionStatus = "FAILED"
	TransactionStatusCanceled          TransactionStatus = "CANCELED"
	TransactionStatusExpired           TransactionStatus = "EXPIRED"
	TransactionStatusPartiallyRefunded TransactionStatus = "PARTIALLY_REFUNDED"
	TransactionStatusRefunded          TransactionStatus = "REFUNDED"
)

// Transaction is the atomic record of one attempt to move money.
// It is created in PENDING by the checkout flow and mutated only by the
// webhook reconciler or an explicit admin action; terminal transactions
// are retained forever for audit.
type Transaction struct {
	ID                 uuid.UUID         `json:"id"`
	ExternalReference  string            `json:"external_reference"` // idempotency key, globally unique
	Gateway            GatewayName       `json:"gateway"`
	Amount             Money             `json:"amount"`
	Purpose            string            `json:"purpose"` // opaque caller-supplied string
	Status             TransactionStatus `json:"status"`
	ProviderRef        *string           `json:"provider_ref,omitempty"`
	Disputed           bool              `json:"disputed"`
	DisputeReason      *string           `json:"dispute_reason,omitempty"`
	ReviewFlagged      bool              `json:"review_flagged"`
	RefundedAmount     Money             `json:"refunded_amount"`
	RetryCount         int               `json:"retry_count"`
	GatewayRawResponse []byte            `json:"-"` // stored verbatim for audit, never parsed twice
	CreatedAt          time.Time         `json:"created_at"`
	ProcessedAt        *time.Time        `json:"processed_at,omitempty"`
	ExpiresAt          *time.Time        `json:"expires_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
// Refund states count as terminal: only refund bookkeeping and the
// dispute flag may still change.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusCanceled, TransactionStatusExpired,
		TransactionStatusPartiallyRefunded, TransactionStatusRefunded:
		return true
	}
	return false
}

// IsPaid returns true if money actually moved for this transaction.
func (t *Transaction) IsPaid() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusPartiallyRefunded, TransactionStatusRefunded:
		return true
	}
	return false
}

// RemainingRefundable returns the amount still available to refund.
func (t *Transaction) RemainingRefundable() (Money, error) {
	return t.Amount.Sub(t.RefundedAmount)
}

// EventKind is a normalized gateway event type, independent of provider
// vocabulary. Adapters translate their native event names into these.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "PAYMENT_SUCCEEDED"
	EventPaymentFailed    EventKind = "PAYMENT_FAILED"
	EventPaymentCanceled  EventKind = "PAYMENT_CANCELED"
	EventPaymentPending   EventKind = "PAYMENT_PENDING"
	EventRefundCompleted  EventKind = "REFUND_COMPLETED"
	EventRefundFailed     EventKind = "REFUND_FAILED"
	EventDisputeOpened    EventKind = "DISPUTE_OPENED"
)

// GatewayEvent is a normalized, parsed provider callback.
type GatewayEvent struct {
	ExternalReference string      `json:"external_reference"`
	ProviderEventID   string      `json:"provider_event_id"`
	Kind              EventKind   `json:"kind"`
	Gateway           GatewayName `json:"gateway"`
	Amount            *Money      `json:"amount,omitempty"` // set on refund events
	Reason            string      `json:"reason,omitempty"`
	RawPayload        []byte      `json:"-"`
}

// Transition errors returned by NextStatus.
var (
	// ErrStaleTransition marks an event that would move a transaction
	// backward (e.g. "still processing" after "completed"). Re-delivery
	// and reordering are expected provider behavior, so callers treat
	// this as a no-op, not a failure.
	ErrStaleTransition = errors.New("stale or out-of-order event for current status")

	// ErrUnknownEventKind marks an event type the state machine does not
	// know. Providers add event types over time; callers log and ignore.
	ErrUnknownEventKind = errors.New("unknown event kind")
)

// NextStatus is the pure transition function of the transaction state
// machine: (current status, event kind) -> next status or rejection.
// Refund amounts are bookkeeping handled by the ledger; here a refund
// event only signals that refund states are reachable.
//
// EXPIRED is a local heuristic, so a late success/failure report from
// the gateway overrides it: the gateway's truth always wins.
func NextStatus(current TransactionStatus, kind EventKind) (TransactionStatus, error) {
	switch kind {
	case EventPaymentSucceeded:
		switch current {
		case TransactionStatusPending, TransactionStatusExpired:
			return TransactionStatusCompleted, nil
		case TransactionStatusCompleted:
			return current, ErrStaleTransition
		default:
			return current, ErrStaleTransition
		}
	case EventPaymentFailed:
		switch current {
		case TransactionStatusPending, TransactionStatusExpired:
			return TransactionStatusFailed, nil
		default:
			return current, ErrStaleTransition
		}
	case EventPaymentCanceled:
		switch current {
		case TransactionStatusPending, TransactionStatusExpired:
			return TransactionStatusCanceled, nil
		default:
			return current, ErrStaleTransition
		}
	case EventPaymentPending:
		// Informational; never moves a transaction anywhere.
		if current == TransactionStatusPending {
			return current, nil
		}
		return current, ErrStaleTransition
	case EventRefundCompleted:
		switch current {
		case TransactionStatusCompleted, TransactionStatusPartiallyRefunded:
			return current, nil // ledger picks PARTIALLY_REFUNDED vs REFUNDED from amounts
		default:
			return current, ErrStaleTransition
		}
	case EventRefundFailed:
		switch current {
		case TransactionStatusCompleted, TransactionStatusPartiallyRefunded:
			return current, nil
		default:
			return current, ErrStaleTransition
		}
	case EventDisputeOpened:
		// Orthogonal flag; valid on any paid state, chargebacks arrive late.
		switch current {
		case TransactionStatusCompleted, TransactionStatusPartiallyRefunded, TransactionStatusRefunded:
			return current, nil
		default:
			return current, ErrStaleTransition
		}
	}
	return current, ErrUnknownEventKind
}
