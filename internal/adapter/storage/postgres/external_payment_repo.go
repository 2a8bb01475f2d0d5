package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bridge-orchestrator/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ExternalPaymentRepo implements ports.ExternalPaymentRepository.
type ExternalPaymentRepo struct {
	pool Pool
}

// NewExternalPaymentRepo creates a new ExternalPaymentRepo.
func NewExternalPaymentRepo(pool Pool) *ExternalPaymentRepo {
	return &ExternalPaymentRepo{pool: pool}
}

const externalPaymentColumns = `id, intent_id, rail, amount, currency, provider_ref, order_ref, status, metadata, created_at, updated_at`

// Create inserts a new external payment leg.
func (r *ExternalPaymentRepo) Create(ctx context.Context, p *domain.ExternalPayment) error {
	query := `INSERT INTO external_payments (` + externalPaymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.IntentID, p.Rail, p.Amount, p.Currency,
		p.ProviderRef, p.OrderRef, p.Status, p.Metadata,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert external payment: %w", err)
	}
	return nil
}

// GetByID fetches one leg by UUID.
func (r *ExternalPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExternalPayment, error) {
	query := `SELECT ` + externalPaymentColumns + ` FROM external_payments WHERE id = $1`
	return r.scanPayment(r.pool.QueryRow(ctx, query, id))
}

// FindByReference locates a leg by provider reference or order reference.
// Pending legs win when several rows match, then the most recent.
func (r *ExternalPaymentRepo) FindByReference(ctx context.Context, ref string) (*domain.ExternalPayment, error) {
	query := `SELECT ` + externalPaymentColumns + ` FROM external_payments
		WHERE provider_ref = $1 OR order_ref = $1
		ORDER BY (status = 'PENDING') DESC, created_at DESC
		LIMIT 1`
	return r.scanPayment(r.pool.QueryRow(ctx, query, ref))
}

// ListByIntentID fetches all legs of an intent in plan order.
func (r *ExternalPaymentRepo) ListByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.ExternalPayment, error) {
	query := `SELECT ` + externalPaymentColumns + ` FROM external_payments
		WHERE intent_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, intentID)
	if err != nil {
		return nil, fmt.Errorf("list external payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.ExternalPayment
	for rows.Next() {
		p := domain.ExternalPayment{}
		err := rows.Scan(
			&p.ID, &p.IntentID, &p.Rail, &p.Amount, &p.Currency,
			&p.ProviderRef, &p.OrderRef, &p.Status, &p.Metadata,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan external payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate external payment rows: %w", err)
	}
	return payments, nil
}

// UpdateStatus sets the leg status and merges metadata, returning the status
// the row had before the update so callers can detect first transitions.
func (r *ExternalPaymentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, metadata []byte) (domain.PaymentStatus, error) {
	query := `UPDATE external_payments AS p
		SET status = $1,
			metadata = COALESCE(p.metadata, '{}'::jsonb) || COALESCE($2::jsonb, '{}'::jsonb),
			updated_at = $3
		FROM (SELECT status AS prev FROM external_payments WHERE id = $4 FOR UPDATE) AS old
		WHERE p.id = $4
		RETURNING old.prev`

	var prev domain.PaymentStatus
	err := r.pool.QueryRow(ctx, query, status, metadata, time.Now().UTC(), id).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("external payment not found: %s", id)
		}
		return "", fmt.Errorf("update external payment status: %w", err)
	}
	return prev, nil
}

// SetProviderRef records the reference the rail assigned to this leg.
func (r *ExternalPaymentRepo) SetProviderRef(ctx context.Context, id uuid.UUID, providerRef string) error {
	query := `UPDATE external_payments SET provider_ref = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, providerRef, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set provider ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("external payment not found: %s", id)
	}
	return nil
}

// scanPayment is a helper to scan a single row into an ExternalPayment.
func (r *ExternalPaymentRepo) scanPayment(row pgx.Row) (*domain.ExternalPayment, error) {
	p := &domain.ExternalPayment{}
	err := row.Scan(
		&p.ID, &p.IntentID, &p.Rail, &p.Amount, &p.Currency,
		&p.ProviderRef, &p.OrderRef, &p.Status, &p.Metadata,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan external payment: %w", err)
	}
	return p, nil
}
