package service

import (
	"context"
	"net"
	"strings"
	"time"

	"payment-core/config"
	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RiskServiceImpl implements ports.RiskService. The score is additive
// over four independent signal categories, each capped at its
// configured weight, so no single category can push an attempt over
// the block threshold alone.
type RiskServiceImpl struct {
	fraudRepo ports.FraudRepository
	cfg       config.RiskConfig
	log       zerolog.Logger
}

// NewRiskService creates a new RiskServiceImpl.
func NewRiskService(fraudRepo ports.FraudRepository, cfg config.RiskConfig, log zerolog.Logger) *RiskServiceImpl {
	return &RiskServiceImpl{fraudRepo: fraudRepo, cfg: cfg, log: log}
}

// Assess scores one checkout attempt. Scoring runs before any gateway
// call; a degraded fraud store weakens the velocity signal but never
// blocks checkout by itself.
func (s *RiskServiceImpl) Assess(ctx context.Context, identity string, amount domain.Money, meta ports.ClientMeta) (*ports.RiskDecision, error) {
	var signals []domain.FraudSignal

	signals = append(signals, s.networkSignals(meta)...)
	signals = append(signals, s.velocitySignals(ctx, identity)...)
	signals = append(signals, s.behaviorSignals(meta)...)
	signals = append(signals, s.payloadSignals(amount, meta)...)

	score := 0
	for _, sig := range signals {
		score += sig.Weight
	}
	if score > 100 {
		score = 100
	}

	decision := &ports.RiskDecision{
		Score:   score,
		Block:   score >= s.cfg.BlockThreshold,
		Review:  score >= s.cfg.ReviewThreshold && score < s.cfg.BlockThreshold,
		Signals: signals,
	}

	if score >= s.cfg.ReviewThreshold {
		assessment := &domain.FraudAssessment{
			ID:        uuid.New(),
			Identity:  identity,
			Score:     score,
			Signals:   signals,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.fraudRepo.Create(ctx, assessment); err != nil {
			s.log.Error().Err(err).Str("identity", identity).Msg("failed to persist fraud assessment")
		}
	}

	if decision.Block || decision.Review {
		s.log.Warn().
			Str("identity", identity).
			Int("score", score).
			Bool("block", decision.Block).
			Msg("risky checkout attempt")
	}
	return decision, nil
}

func (s *RiskServiceImpl) networkSignals(meta ports.ClientMeta) []domain.FraudSignal {
	var signals []domain.FraudSignal
	budget := s.cfg.NetworkWeight

	if meta.IP == "" {
		return capSignals([]domain.FraudSignal{{Name: "network:no_client_ip", Weight: budget}}, budget)
	}
	ip := net.ParseIP(meta.IP)
	if ip == nil {
		signals = append(signals, domain.FraudSignal{Name: "network:unparseable_ip", Weight: budget / 2})
	} else if ip.IsLoopback() || ip.IsPrivate() {
		// A checkout claiming to come from inside the perimeter.
		signals = append(signals, domain.FraudSignal{Name: "network:non_public_ip", Weight: budget / 3})
	}
	return capSignals(signals, budget)
}

func (s *RiskServiceImpl) velocitySignals(ctx context.Context, identity string) []domain.FraudSignal {
	budget := s.cfg.VelocityWeight
	max := s.cfg.VelocityMax
	if max <= 0 {
		max = 10
	}

	count, err := s.fraudRepo.ListRecentByIdentity(ctx, identity, time.Now().Add(-time.Hour).UTC())
	if err != nil {
		s.log.Warn().Err(err).Msg("velocity lookup failed, skipping signal")
		return nil
	}
	if count == 0 {
		return nil
	}

	weight := budget * count / max
	if weight > budget {
		weight = budget
	}
	if weight == 0 {
		return nil
	}
	return []domain.FraudSignal{{Name: "velocity:flagged_attempts_last_hour", Weight: weight}}
}

func (s *RiskServiceImpl) behaviorSignals(meta ports.ClientMeta) []domain.FraudSignal {
	var signals []domain.FraudSignal
	budget := s.cfg.BehaviorWeight

	ua := strings.ToLower(meta.UserAgent)
	switch {
	case ua == "":
		signals = append(signals, domain.FraudSignal{Name: "behavior:no_user_agent", Weight: budget / 2})
	case strings.Contains(ua, "curl") || strings.Contains(ua, "python") ||
		strings.Contains(ua, "bot") || strings.Contains(ua, "headless"):
		signals = append(signals, domain.FraudSignal{Name: "behavior:scripted_user_agent", Weight: budget})
	}
	return capSignals(signals, budget)
}

func (s *RiskServiceImpl) payloadSignals(amount domain.Money, meta ports.ClientMeta) []domain.FraudSignal {
	var signals []domain.FraudSignal
	budget := s.cfg.PayloadWeight

	if amount.Amount.GreaterThan(decimal.NewFromInt(10000)) {
		signals = append(signals, domain.FraudSignal{Name: "payload:large_amount", Weight: budget / 2})
	}
	if amount.Amount.Exponent() < -2 {
		// More precision than any supported currency carries.
		signals = append(signals, domain.FraudSignal{Name: "payload:excess_precision", Weight: budget / 2})
	}
	for field, value := range meta.PayloadFields {
		if strings.TrimSpace(value) == "" {
			signals = append(signals, domain.FraudSignal{Name: "payload:empty_" + field, Weight: budget / 4})
		}
	}
	return capSignals(signals, budget)
}

// capSignals trims the last signal so the category total never exceeds
// its budget.
func capSignals(signals []domain.FraudSignal, budget int) []domain.FraudSignal {
	total := 0
	for i := range signals {
		if total+signals[i].Weight > budget {
			signals[i].Weight = budget - total
		}
		total += signals[i].Weight
	}
	out := signals[:0]
	for _, sig := range signals {
		if sig.Weight > 0 {
			out = append(out, sig)
		}
	}
	return out
}
