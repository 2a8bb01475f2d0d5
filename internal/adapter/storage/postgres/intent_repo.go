package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bridge-orchestrator/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IntentRepo implements ports.IntentRepository.
type IntentRepo struct {
	pool Pool
}

// NewIntentRepo creates a new IntentRepo.
func NewIntentRepo(pool Pool) *IntentRepo {
	return &IntentRepo{pool: pool}
}

// Create inserts a new payment intent with its funding plan as JSONB.
func (r *IntentRepo) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	planJSON, err := json.Marshal(intent.Plan)
	if err != nil {
		return fmt.Errorf("marshal funding plan: %w", err)
	}

	query := `INSERT INTO payment_intents (id, payer_id, merchant_id, amount_due, currency, status, funding_plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.pool.Exec(ctx, query,
		intent.ID, intent.PayerID, intent.MerchantID,
		intent.AmountDue, intent.Currency, intent.Status,
		planJSON, intent.CreatedAt, intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return nil
}

// GetByID fetches a payment intent by UUID.
func (r *IntentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	query := `SELECT id, payer_id, merchant_id, amount_due, currency, status, funding_plan, created_at, updated_at
		FROM payment_intents WHERE id = $1`

	return r.scanIntent(r.pool.QueryRow(ctx, query, id))
}

// UpdateStatus transitions the intent unless it is already terminal. A no-op
// or blocked transition returns false with no error.
func (r *IntentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.IntentStatus) (bool, error) {
	query := `UPDATE payment_intents SET status = $1, updated_at = $2
		WHERE id = $3 AND status NOT IN ('SETTLED', 'FAILED') AND status <> $1`

	tag, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("update intent status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatusTx is UpdateStatus inside an existing database transaction.
func (r *IntentRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.IntentStatus) (bool, error) {
	query := `UPDATE payment_intents SET status = $1, updated_at = $2
		WHERE id = $3 AND status NOT IN ('SETTLED', 'FAILED') AND status <> $1`

	tag, err := tx.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("update intent status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// scanIntent is a helper to scan a single row into a PaymentIntent.
func (r *IntentRepo) scanIntent(row pgx.Row) (*domain.PaymentIntent, error) {
	intent := &domain.PaymentIntent{}
	var planJSON []byte
	err := row.Scan(
		&intent.ID, &intent.PayerID, &intent.MerchantID,
		&intent.AmountDue, &intent.Currency, &intent.Status,
		&planJSON, &intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment intent: %w", err)
	}
	if len(planJSON) > 0 {
		if err := json.Unmarshal(planJSON, &intent.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal funding plan: %w", err)
		}
	}
	return intent, nil
}
