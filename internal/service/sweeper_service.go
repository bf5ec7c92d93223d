package service

import (
	"context"
	"time"

	"payment-core/internal/core/ports"

	"github.com/rs/zerolog"
)

// SweeperService runs the periodic maintenance loop: expire PENDING
// transactions past their deadline and backfill missing invoices.
type SweeperService struct {
	ledger   ports.LedgerService
	interval time.Duration
	log      zerolog.Logger
}

// NewSweeperService creates a new SweeperService.
func NewSweeperService(ledger ports.LedgerService, interval time.Duration, log zerolog.Logger) *SweeperService {
	return &SweeperService{ledger: ledger, interval: interval, log: log}
}

// Run blocks until ctx is canceled, sweeping once per interval.
func (s *SweeperService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single maintenance pass.
func (s *SweeperService) SweepOnce(ctx context.Context) {
	expired, err := s.ledger.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("sweep: expiring stale transactions failed")
	}

	repaired, err := s.ledger.EnsureInvoices(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep: invoice backfill failed")
	}

	if expired > 0 || repaired > 0 {
		s.log.Info().Int("expired", expired).Int("invoices_backfilled", repaired).Msg("sweep complete")
	}
}
