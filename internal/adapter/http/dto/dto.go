package dto

// SessionRequest is the request body for opening a checkout session.
type SessionRequest struct {
	OwnerIdentity string `json:"owner_identity" binding:"required,max=100"`
	Amount        string `json:"amount" binding:"required,max=32"`
	Currency      string `json:"currency" binding:"required,len=3"`
}

// SessionResponse is the response body for session operations.
type SessionResponse struct {
	SessionID     string `json:"session_id"`
	OwnerIdentity string `json:"owner_identity"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ChosenGateway string `json:"chosen_gateway,omitempty"`
	Attempts      int    `json:"attempts"`
	CreatedAt     string `json:"created_at"`
	ExpiresAt     string `json:"expires_at"`
}

// PaymentRequest is the request body for starting a payment.
type PaymentRequest struct {
	SessionID         string            `json:"session_id" binding:"required,uuid"`
	ExternalReference string            `json:"external_reference" binding:"required,max=100,safe_id"`
	Gateway           string            `json:"gateway" binding:"required,max=30"`
	Amount            string            `json:"amount" binding:"required,max=32"`
	Currency          string            `json:"currency" binding:"required,len=3"`
	Purpose           string            `json:"purpose" binding:"max=255"`
	PayloadFields     map[string]string `json:"payload_fields,omitempty"`
}

// PaymentResponse is the response body for a started payment.
type PaymentResponse struct {
	Transaction  TransactionResponse `json:"transaction"`
	Continuation string              `json:"continuation"`
	ClientToken  string              `json:"client_token,omitempty"`
	RedirectURL  string              `json:"redirect_url,omitempty"`
	Instructions string              `json:"instructions,omitempty"`
	Replayed     bool                `json:"replayed,omitempty"`
}

// RefundRequest is the request body for requesting a refund.
type RefundRequest struct {
	Amount   string `json:"amount" binding:"required,max=32"`
	Currency string `json:"currency" binding:"required,len=3"`
	Reason   string `json:"reason" binding:"required,max=30"`
}

// TransactionResponse is the response body for transaction state.
type TransactionResponse struct {
	ID                string  `json:"id"`
	ExternalReference string  `json:"external_reference"`
	Gateway           string  `json:"gateway"`
	Amount            string  `json:"amount"`
	Currency          string  `json:"currency"`
	Purpose           string  `json:"purpose,omitempty"`
	Status            string  `json:"status"`
	RefundedAmount    string  `json:"refunded_amount"`
	Disputed          bool    `json:"disputed"`
	ReviewFlagged     bool    `json:"review_flagged"`
	CreatedAt         string  `json:"created_at"`
	ProcessedAt       *string `json:"processed_at,omitempty"`
	ExpiresAt         *string `json:"expires_at,omitempty"`
}

// RefundResponse is the response body for refund state.
type RefundResponse struct {
	ID              string  `json:"id"`
	TransactionID   string  `json:"transaction_id"`
	Amount          string  `json:"amount"`
	Currency        string  `json:"currency"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status"`
	GatewayRefundID *string `json:"gateway_refund_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
	ProcessedAt     *string `json:"processed_at,omitempty"`
}

// GatewayResponse describes one available payment method.
type GatewayResponse struct {
	Name                 string   `json:"name"`
	Currencies           []string `json:"currencies"`
	SupportsRefunds      bool     `json:"supports_refunds"`
	SupportsRecurring    bool     `json:"supports_recurring"`
	RequiresManualReview bool     `json:"requires_manual_review"`
}

// OrphanEventResponse is one parked webhook in the audit listing.
type OrphanEventResponse struct {
	ID                string `json:"id"`
	Gateway           string `json:"gateway"`
	ExternalReference string `json:"external_reference"`
	ProviderEventID   string `json:"provider_event_id"`
	Kind              string `json:"kind"`
	ReceivedAt        string `json:"received_at"`
}
