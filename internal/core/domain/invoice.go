package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus represents the state of a billing document.
type InvoiceStatus string

const (
	InvoiceStatusPaid InvoiceStatus = "PAID"
	InvoiceStatusVoid InvoiceStatus = "VOID"
)

// Invoice is a billing snapshot of exactly one transaction taken at the
// moment it reached a paid terminal state. It is created once by the
// ledger and never mutated afterward, except to attach the generated
// artifact reference and the sent timestamp.
type Invoice struct {
	ID             uuid.UUID     `json:"id"`
	InvoiceNumber  string        `json:"invoice_number"` // human-facing, INV-NNNNNN
	TransactionID  uuid.UUID     `json:"transaction_id"`
	Amount         Money         `json:"amount"`
	Status         InvoiceStatus `json:"status"`
	PDFArtifactRef *string       `json:"pdf_artifact_ref,omitempty"`
	SentAt         *time.Time    `json:"sent_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// FormatInvoiceNumber renders the sequential invoice counter in the
// human-facing INV-NNNNNN form.
func FormatInvoiceNumber(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}
