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

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet into the database.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, owner_id, currency, encrypted_balance, hold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.OwnerID, w.Currency, w.EncryptedBalance,
		w.Hold, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT id, owner_id, currency, encrypted_balance, hold, created_at, updated_at
		FROM wallets WHERE id = $1`

	return r.scanWallet(r.pool.QueryRow(ctx, query, id))
}

// GetByOwner fetches a wallet by owner ID and currency (non-locking read).
func (r *WalletRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*domain.Wallet, error) {
	query := `SELECT id, owner_id, currency, encrypted_balance, hold, created_at, updated_at
		FROM wallets WHERE owner_id = $1 AND currency = $2`

	return r.scanWallet(r.pool.QueryRow(ctx, query, ownerID, currency))
}

// GetByIDForUpdate fetches a wallet with pessimistic locking. This MUST be
// called within a transaction; the lock holds until commit or rollback.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT id, owner_id, currency, encrypted_balance, hold, created_at, updated_at
		FROM wallets WHERE id = $1 FOR UPDATE`

	return r.scanWallet(tx.QueryRow(ctx, query, id))
}

// UpdateBalance writes the new encrypted balance within a database transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, encryptedBalance string) error {
	query := `UPDATE wallets SET encrypted_balance = $1, updated_at = $2 WHERE id = $3`

	tag, err := tx.Exec(ctx, query, encryptedBalance, time.Now().UTC(), walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// ListSources fetches the advisory rail balances of a payer for one currency.
func (r *WalletRepo) ListSources(ctx context.Context, ownerID uuid.UUID, currency string) ([]domain.WalletSource, error) {
	query := `SELECT id, owner_id, rail, currency, balance, hold, active, updated_at
		FROM wallet_sources WHERE owner_id = $1 AND currency = $2 ORDER BY rail ASC`

	rows, err := r.pool.Query(ctx, query, ownerID, currency)
	if err != nil {
		return nil, fmt.Errorf("list wallet sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.WalletSource
	for rows.Next() {
		s := domain.WalletSource{}
		err := rows.Scan(
			&s.ID, &s.OwnerID, &s.Rail, &s.Currency,
			&s.Balance, &s.Hold, &s.Active, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan wallet source row: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet source rows: %w", err)
	}
	return sources, nil
}

// scanWallet is a helper to scan a single row into a Wallet.
func (r *WalletRepo) scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.OwnerID, &w.Currency, &w.EncryptedBalance,
		&w.Hold, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return w, nil
}
