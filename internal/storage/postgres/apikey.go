package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, user_id, scopes
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	isStaffSQL = `SELECT EXISTS (
		SELECT 1 FROM restaurant_staff WHERE user_id = $1 AND restaurant_id = $2)`
)

var (
	_ auth.Repository      = (*APIKeyRepository)(nil)
	_ auth.StaffRepository = (*StaffRepository)(nil)
)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.UserID, &info.Scopes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthenticated
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}

// StaffRepository answers restaurant membership questions.
type StaffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository returns a StaffRepository that uses the given pool.
func NewStaffRepository(pool *pgxpool.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

func (r *StaffRepository) IsStaff(ctx context.Context, userID, restaurantID string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, isStaffSQL, userID, restaurantID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking staff %q of restaurant %q: %w", userID, restaurantID, err)
	}
	return ok, nil
}
