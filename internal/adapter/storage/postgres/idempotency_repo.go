package postgres

import (
	"context"
	"errors"
	"fmt"

	"bridge-orchestrator/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Save stores a result with single-writer semantics. ON CONFLICT DO NOTHING
// makes a racing second write a silent loser; it must Get to see the winner.
func (r *IdempotencyRepo) Save(ctx context.Context, record *domain.IdempotencyRecord) error {
	query := `INSERT INTO idempotency_records (key, intent_id, response_json, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`

	_, err := r.pool.Exec(ctx, query, record.Key, record.IntentID, record.ResponseJSON, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// Get fetches an idempotency record by key.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	query := `SELECT key, intent_id, response_json, created_at FROM idempotency_records WHERE key = $1`

	record := &domain.IdempotencyRecord{}
	err := r.pool.QueryRow(ctx, query, key).Scan(&record.Key, &record.IntentID, &record.ResponseJSON, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return record, nil
}
