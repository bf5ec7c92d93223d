package service

import (
	"context"
	"fmt"
	"time"

	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionServiceImpl implements ports.SessionService on top of a
// TTL-backed store. Expiry is enforced twice: the store drops the key,
// and reads double-check the deadline in case the store's clock lags.
type SessionServiceImpl struct {
	store ports.SessionStore
	ttl   time.Duration
	log   zerolog.Logger
}

// NewSessionService creates a new SessionServiceImpl.
func NewSessionService(store ports.SessionStore, ttl time.Duration, log zerolog.Logger) *SessionServiceImpl {
	return &SessionServiceImpl{store: store, ttl: ttl, log: log}
}

// Create opens a checkout session.
func (s *SessionServiceImpl) Create(ctx context.Context, ownerIdentity string, amount domain.Money) (*domain.PaymentSession, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	now := time.Now().UTC()
	sess := &domain.PaymentSession{
		SessionID:     uuid.New(),
		OwnerIdentity: ownerIdentity,
		Amount:        amount,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.store.Put(ctx, sess, s.ttl); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("store session: %w", err))
	}
	return sess, nil
}

// Get fetches a live session. A missing key and a stale deadline are
// both reported as expiry-level failures, never resurrected.
func (s *SessionServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load session: %w", err))
	}
	if sess == nil {
		return nil, apperror.ErrSessionNotFound()
	}
	if sess.IsExpired(time.Now().UTC()) {
		if delErr := s.store.Delete(ctx, id); delErr != nil {
			s.log.Warn().Err(delErr).Str("session_id", id.String()).Msg("failed to delete expired session")
		}
		return nil, apperror.ErrSessionExpired()
	}
	return sess, nil
}

// RecordAttempt bumps the attempt counter and pins the chosen gateway.
// The remaining TTL is preserved: retrying does not extend a session.
func (s *SessionServiceImpl) RecordAttempt(ctx context.Context, id uuid.UUID, gateway domain.GatewayName) (*domain.PaymentSession, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.Attempts++
	sess.ChosenGateway = gateway

	remaining := time.Until(sess.ExpiresAt)
	if remaining <= 0 {
		return nil, apperror.ErrSessionExpired()
	}
	if err := s.store.Put(ctx, sess, remaining); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("store session: %w", err))
	}
	return sess, nil
}

// Cancel destroys a session. Canceling an unknown session succeeds.
func (s *SessionServiceImpl) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return apperror.InternalError(fmt.Errorf("delete session: %w", err))
	}
	return nil
}
