package domain

import (
	"time"

	"github.com/google/uuid"
)

// FraudSignal is one contributing heuristic and the weight it added.
type FraudSignal struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// FraudAssessment is the bounded risk score computed for one checkout
// attempt. It is derived, computed fresh per attempt, and persisted
// only when it crosses the manual-review threshold.
type FraudAssessment struct {
	ID            uuid.UUID     `json:"id"`
	TransactionID *uuid.UUID    `json:"transaction_id,omitempty"`
	Identity      string        `json:"identity"`
	Score         int           `json:"score"` // 0-100
	Signals       []FraudSignal `json:"signals"`
	CreatedAt     time.Time     `json:"created_at"`
}

// OrphanEvent records a verified webhook whose transaction could not be
// found. The transaction may not exist yet due to a create/webhook race,
// so the webhook is acknowledged and the event parked for manual audit.
type OrphanEvent struct {
	ID                uuid.UUID   `json:"id"`
	Gateway           GatewayName `json:"gateway"`
	ExternalReference string      `json:"external_reference"`
	ProviderEventID   string      `json:"provider_event_id"`
	Kind              EventKind   `json:"kind"`
	RawPayload        []byte      `json:"-"`
	ReceivedAt        time.Time   `json:"received_at"`
}
