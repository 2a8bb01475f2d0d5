package postgres

import (
	"context"
	"errors"
	"fmt"

	"bridge-orchestrator/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ClientRepo implements ports.ClientRepository.
type ClientRepo struct {
	pool Pool
}

// NewClientRepo creates a new ClientRepo.
func NewClientRepo(pool Pool) *ClientRepo {
	return &ClientRepo{pool: pool}
}

// Create inserts a new API client account.
func (r *ClientRepo) Create(ctx context.Context, c *domain.APIClient) error {
	query := `INSERT INTO api_clients (id, name, access_key, secret_key_hash, capabilities, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.AccessKey, c.SecretKeyHash,
		c.Capabilities, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api client: %w", err)
	}
	return nil
}

// GetByAccessKey fetches a client account by its access key.
func (r *ClientRepo) GetByAccessKey(ctx context.Context, accessKey string) (*domain.APIClient, error) {
	query := `SELECT id, name, access_key, secret_key_hash, capabilities, status, created_at, updated_at
		FROM api_clients WHERE access_key = $1`

	c := &domain.APIClient{}
	err := r.pool.QueryRow(ctx, query, accessKey).Scan(
		&c.ID, &c.Name, &c.AccessKey, &c.SecretKeyHash,
		&c.Capabilities, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api client: %w", err)
	}
	return c, nil
}
