package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/payflow/internal/domain/auth"
)

const (
	insertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id) VALUES ($1, $2, $3, $4)`

	selectAPIKeySQL = `SELECT id, key_hash, name, user_id, created_at FROM api_keys WHERE key_hash = $1`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKey, error) {
	var key auth.APIKey
	err := r.pool.QueryRow(ctx, selectAPIKeySQL, hash).
		Scan(&key.ID, &key.KeyHash, &key.Name, &key.UserID, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	return &key, nil
}

// Create persists a new API key.
func (r *APIKeyRepository) Create(ctx context.Context, key *auth.APIKey) error {
	_, err := r.pool.Exec(ctx, insertAPIKeySQL, key.ID, key.KeyHash, key.Name, key.UserID)
	if err != nil {
		return fmt.Errorf("creating api key %q: %w", key.ID, err)
	}
	return nil
}
