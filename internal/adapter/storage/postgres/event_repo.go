package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// RecordProcessed inserts the (external_reference, provider_event_id)
// pair inside the caller's transaction. The unique index across the two
// columns is the idempotency boundary for webhook processing: a
// duplicate delivery returns ports.ErrEventAlreadyProcessed and the
// caller rolls the whole transaction back.
func (r *EventRepo) RecordProcessed(ctx context.Context, tx pgx.Tx, ev *domain.GatewayEvent) error {
	query := `INSERT INTO gateway_events (id, external_reference, provider_event_id, gateway, kind, raw_payload, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		uuid.New(), ev.ExternalReference, ev.ProviderEventID,
		ev.Gateway, ev.Kind, ev.RawPayload, time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ports.ErrEventAlreadyProcessed
		}
		return fmt.Errorf("record processed event: %w", err)
	}
	return nil
}

// CreateOrphan parks a verified event whose transaction is unknown.
func (r *EventRepo) CreateOrphan(ctx context.Context, ev *domain.OrphanEvent) error {
	query := `INSERT INTO orphan_events (id, gateway, external_reference, provider_event_id, kind, raw_payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_reference, provider_event_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		ev.ID, ev.Gateway, ev.ExternalReference, ev.ProviderEventID,
		ev.Kind, ev.RawPayload, ev.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert orphan event: %w", err)
	}
	return nil
}

// ListOrphans returns parked events for the audit endpoint, newest first.
func (r *EventRepo) ListOrphans(ctx context.Context, limit int) ([]domain.OrphanEvent, error) {
	query := `SELECT id, gateway, external_reference, provider_event_id, kind, raw_payload, received_at
		FROM orphan_events ORDER BY received_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list orphan events: %w", err)
	}
	defer rows.Close()

	var events []domain.OrphanEvent
	for rows.Next() {
		ev := domain.OrphanEvent{}
		err := rows.Scan(
			&ev.ID, &ev.Gateway, &ev.ExternalReference, &ev.ProviderEventID,
			&ev.Kind, &ev.RawPayload, &ev.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan orphan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphan rows: %w", err)
	}
	return events, nil
}
