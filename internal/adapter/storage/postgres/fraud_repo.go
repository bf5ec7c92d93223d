package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payment-core/internal/core/domain"
)

// FraudRepo implements ports.FraudRepository.
type FraudRepo struct {
	pool Pool
}

// NewFraudRepo creates a new FraudRepo.
func NewFraudRepo(pool Pool) *FraudRepo {
	return &FraudRepo{pool: pool}
}

// Create persists an assessment that crossed the review threshold.
// Signals are stored as JSONB so thresholds can be tuned against real
// history later.
func (r *FraudRepo) Create(ctx context.Context, a *domain.FraudAssessment) error {
	signals, err := json.Marshal(a.Signals)
	if err != nil {
		return fmt.Errorf("marshal fraud signals: %w", err)
	}

	query := `INSERT INTO fraud_assessments (id, transaction_id, identity, score, signals, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.pool.Exec(ctx, query,
		a.ID, a.TransactionID, a.Identity, a.Score, signals, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fraud assessment: %w", err)
	}
	return nil
}

// ListRecentByIdentity counts flagged assessments for an identity since
// the given instant; the behavior heuristic feeds on it.
func (r *FraudRepo) ListRecentByIdentity(ctx context.Context, identity string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM fraud_assessments WHERE identity = $1 AND created_at >= $2`

	var count int
	if err := r.pool.QueryRow(ctx, query, identity, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recent assessments: %w", err)
	}
	return count, nil
}
