package postgres

import (
	"context"
	"errors"
	"fmt"

	"bridge-orchestrator/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.ProviderEventRepository.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

const eventColumns = `id, event_id, payment_id, status, raw, verified, matched, created_at`

// Create stores one inbound provider event. A duplicate event_id is treated
// as already stored, since ingestion deduplicates before insert anyway.
func (r *EventRepo) Create(ctx context.Context, event *domain.ProviderEvent) error {
	query := `INSERT INTO provider_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.EventID, event.PaymentID, event.Status,
		event.Raw, event.Verified, event.Matched, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert provider event: %w", err)
	}
	return nil
}

// GetByEventID fetches an event by its provider (or synthetic) id.
func (r *EventRepo) GetByEventID(ctx context.Context, eventID string) (*domain.ProviderEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM provider_events WHERE event_id = $1`
	return r.scanEvent(r.pool.QueryRow(ctx, query, eventID))
}

// LatestForPayment fetches the most recent event stored for one payment leg.
func (r *EventRepo) LatestForPayment(ctx context.Context, paymentID uuid.UUID) (*domain.ProviderEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM provider_events
		WHERE payment_id = $1 ORDER BY created_at DESC LIMIT 1`
	return r.scanEvent(r.pool.QueryRow(ctx, query, paymentID))
}

// ListUnmatched fetches events that matched no payment, newest first.
func (r *EventRepo) ListUnmatched(ctx context.Context, limit int) ([]domain.ProviderEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM provider_events
		WHERE matched = false ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unmatched events: %w", err)
	}
	defer rows.Close()

	var events []domain.ProviderEvent
	for rows.Next() {
		event := domain.ProviderEvent{}
		err := rows.Scan(
			&event.ID, &event.EventID, &event.PaymentID, &event.Status,
			&event.Raw, &event.Verified, &event.Matched, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan provider event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider event rows: %w", err)
	}
	return events, nil
}

// MarkMatched links a stored event to the payment leg it was matched to.
func (r *EventRepo) MarkMatched(ctx context.Context, eventID string, paymentID uuid.UUID) error {
	query := `UPDATE provider_events SET matched = true, payment_id = $2 WHERE event_id = $1`

	_, err := r.pool.Exec(ctx, query, eventID, paymentID)
	if err != nil {
		return fmt.Errorf("mark event matched: %w", err)
	}
	return nil
}

// scanEvent is a helper to scan a single row into a ProviderEvent.
func (r *EventRepo) scanEvent(row pgx.Row) (*domain.ProviderEvent, error) {
	event := &domain.ProviderEvent{}
	err := row.Scan(
		&event.ID, &event.EventID, &event.PaymentID, &event.Status,
		&event.Raw, &event.Verified, &event.Matched, &event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan provider event: %w", err)
	}
	return event, nil
}
