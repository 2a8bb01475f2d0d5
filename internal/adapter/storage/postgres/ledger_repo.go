package postgres

import (
	"context"
	"errors"
	"fmt"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// LedgerRepo implements ports.LedgerRepository. The ledger_entries table
// carries a unique constraint on ref; Append maps its violation to the
// double-post error instead of a generic database failure.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const ledgerColumns = `id, wallet_id, currency, amount, entry_type, status, ref, intent_id, payment_id, reverses_id, narration, created_at`

// Append inserts one immutable entry within a database transaction.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		entry.ID, entry.WalletID, entry.Currency, entry.Amount,
		entry.Type, entry.Status, entry.Ref,
		entry.IntentID, entry.PaymentID, entry.ReversesID,
		entry.Narration, entry.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.ErrLedgerDoublePost(entry.Ref)
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByRef fetches an entry by its unique reference.
func (r *LedgerRepo) GetByRef(ctx context.Context, ref string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE ref = $1`

	entry := &domain.LedgerEntry{}
	err := r.pool.QueryRow(ctx, query, ref).Scan(
		&entry.ID, &entry.WalletID, &entry.Currency, &entry.Amount,
		&entry.Type, &entry.Status, &entry.Ref,
		&entry.IntentID, &entry.PaymentID, &entry.ReversesID,
		&entry.Narration, &entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger entry by ref: %w", err)
	}
	return entry, nil
}

// ListByIntentID fetches all entries of an intent, oldest first.
func (r *LedgerRepo) ListByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE intent_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, intentID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		entry := domain.LedgerEntry{}
		err := rows.Scan(
			&entry.ID, &entry.WalletID, &entry.Currency, &entry.Amount,
			&entry.Type, &entry.Status, &entry.Ref,
			&entry.IntentID, &entry.PaymentID, &entry.ReversesID,
			&entry.Narration, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entry rows: %w", err)
	}
	return entries, nil
}

// MarkPosted flips a pending entry to posted within a database transaction.
// Only pending entries qualify; posting anything else is a missed guard.
func (r *LedgerRepo) MarkPosted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE ledger_entries SET status = 'posted' WHERE id = $1 AND status = 'pending'`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark ledger entry posted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger entry not pending: %s", id)
	}
	return nil
}
