package service

import (
	"context"
	"errors"
	"time"

	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReconcilerServiceImpl implements ports.ReconcilerService. Provider
// callbacks are the source of truth for payment outcomes; the
// reconciler verifies them, feeds them to the ledger, and parks the
// ones it cannot place.
type ReconcilerServiceImpl struct {
	registry  ports.GatewayRegistry
	ledger    ports.LedgerService
	eventRepo ports.EventRepository
	log       zerolog.Logger
}

// NewReconcilerService creates a new ReconcilerServiceImpl.
func NewReconcilerService(
	registry ports.GatewayRegistry,
	ledger ports.LedgerService,
	eventRepo ports.EventRepository,
	log zerolog.Logger,
) *ReconcilerServiceImpl {
	return &ReconcilerServiceImpl{
		registry:  registry,
		ledger:    ledger,
		eventRepo: eventRepo,
		log:       log,
	}
}

// HandleWebhook verifies and applies one provider callback.
//
// Error contract toward the HTTP layer: a signature failure propagates
// (the provider must not believe we accepted a forged event), while an
// unknown transaction, a duplicate and an unknown event kind all return
// nil. The provider did its job delivering the event; re-sending it
// will not make it more placeable.
func (s *ReconcilerServiceImpl) HandleWebhook(ctx context.Context, gateway domain.GatewayName, body []byte, headers map[string]string) error {
	gw, err := s.registry.Get(gateway)
	if err != nil {
		return err
	}

	ev, err := gw.VerifyWebhook(ctx, body, headers)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEventKind) {
			s.log.Info().Str("gateway", string(gateway)).Msg("unknown webhook event kind, acknowledged and ignored")
			return nil
		}
		return err
	}

	err = s.ledger.ApplyGatewayEvent(ctx, ev)
	if err == nil {
		return nil
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Code == "PAY_004" {
		// Verified event for a transaction we do not know. Park it for
		// audit and acknowledge: the create/webhook race resolves on the
		// provider's next delivery, and a truly alien event needs a
		// human, not a retry loop.
		orphan := &domain.OrphanEvent{
			ID:                uuid.New(),
			Gateway:           gateway,
			ExternalReference: ev.ExternalReference,
			ProviderEventID:   ev.ProviderEventID,
			Kind:              ev.Kind,
			RawPayload:        body,
			ReceivedAt:        time.Now().UTC(),
		}
		if parkErr := s.eventRepo.CreateOrphan(ctx, orphan); parkErr != nil {
			return apperror.InternalError(parkErr)
		}
		s.log.Warn().
			Str("gateway", string(gateway)).
			Str("reference", ev.ExternalReference).
			Str("provider_event_id", ev.ProviderEventID).
			Msg("webhook for unknown transaction parked as orphan")
		return nil
	}
	return err
}

// ListOrphans returns parked events for the audit endpoint.
func (s *ReconcilerServiceImpl) ListOrphans(ctx context.Context, limit int) ([]domain.OrphanEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	events, err := s.eventRepo.ListOrphans(ctx, limit)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return events, nil
}
