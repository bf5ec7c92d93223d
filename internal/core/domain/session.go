package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentSession is ephemeral server-side state for a multi-step
// checkout. It is destroyed on success, explicit cancel, or expiry and
// is never persisted beyond its TTL.
type PaymentSession struct {
	SessionID     uuid.UUID   `json:"session_id"`
	OwnerIdentity string      `json:"owner_identity"`
	Amount        Money       `json:"amount"`
	ChosenGateway GatewayName `json:"chosen_gateway,omitempty"`
	Attempts      int         `json:"attempts"`
	CreatedAt     time.Time   `json:"created_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
}

// IsExpired reports whether the session TTL has elapsed at the given
// instant. Expiry is checked lazily on every access.
func (s *PaymentSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
