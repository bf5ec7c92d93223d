package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus represents the processing state of a refund request.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusCompleted RefundStatus = "COMPLETED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// RefundReason classifies why a refund was requested.
type RefundReason string

const (
	RefundReasonDuplicateCharge RefundReason = "DUPLICATE_CHARGE"
	RefundReasonUnauthorized    RefundReason = "UNAUTHORIZED"
	RefundReasonNotReceived     RefundReason = "NOT_RECEIVED"
	RefundReasonWrongAmount     RefundReason = "WRONG_AMOUNT"
	RefundReasonCanceled        RefundReason = "CANCELED"
	RefundReasonProcessor       RefundReason = "PROCESSOR_REFUND"
	RefundReasonOther           RefundReason = "OTHER"
)

// ParseRefundReason validates a caller-supplied refund reason.
func ParseRefundReason(s string) (RefundReason, bool) {
	switch RefundReason(s) {
	case RefundReasonDuplicateCharge, RefundReasonUnauthorized, RefundReasonNotReceived,
		RefundReasonWrongAmount, RefundReasonCanceled, RefundReasonProcessor, RefundReasonOther:
		return RefundReason(s), true
	}
	return "", false
}

// Refund is a request to return some or all of a transaction's amount.
// Invariant: amount <= transaction.amount - sum(prior completed refunds).
type Refund struct {
	ID              uuid.UUID    `json:"id"`
	TransactionID   uuid.UUID    `json:"transaction_id"`
	Amount          Money        `json:"amount"`
	Reason          RefundReason `json:"reason"`
	Status          RefundStatus `json:"status"`
	GatewayRefundID *string      `json:"gateway_refund_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	ProcessedAt     *time.Time   `json:"processed_at,omitempty"`
}
