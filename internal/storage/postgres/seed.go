package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/promotion"
)

const (
	upsertRestaurantSQL = `INSERT INTO restaurants (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertUserSQL = `INSERT INTO users (id, name, phone) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone`

	addStaffSQL = `INSERT INTO restaurant_staff (restaurant_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	upsertPromotionSQL = `INSERT INTO promotions (id, restaurant_id, item_ids, title, discount_label,
			active, expires_at, min_order, delivery_time_override)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET restaurant_id = EXCLUDED.restaurant_id, item_ids = EXCLUDED.item_ids,
			title = EXCLUDED.title, discount_label = EXCLUDED.discount_label,
			active = EXCLUDED.active, expires_at = EXCLUDED.expires_at,
			min_order = EXCLUDED.min_order, delivery_time_override = EXCLUDED.delivery_time_override`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id, scopes) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			user_id = EXCLUDED.user_id, scopes = EXCLUDED.scopes, active = TRUE`
)

// Seeder writes reference data used by development and demo deployments.
// Every write is an upsert, so seeding twice is harmless.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder creates a Seeder.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// Restaurant upserts a restaurant.
func (s *Seeder) Restaurant(ctx context.Context, id, name string) error {
	if _, err := s.pool.Exec(ctx, upsertRestaurantSQL, id, name); err != nil {
		return fmt.Errorf("upserting restaurant %q: %w", id, err)
	}
	return nil
}

// User upserts a user profile.
func (s *Seeder) User(ctx context.Context, id, name, phone string) error {
	if _, err := s.pool.Exec(ctx, upsertUserSQL, id, name, phone); err != nil {
		return fmt.Errorf("upserting user %q: %w", id, err)
	}
	return nil
}

// Staff makes userID a staff member of restaurantID.
func (s *Seeder) Staff(ctx context.Context, restaurantID, userID string) error {
	if _, err := s.pool.Exec(ctx, addStaffSQL, restaurantID, userID); err != nil {
		return fmt.Errorf("adding staff %q to %q: %w", userID, restaurantID, err)
	}
	return nil
}

// Promotions upserts promotions in one batch.
func (s *Seeder) Promotions(ctx context.Context, promos []promotion.Promotion) error {
	batch := &pgx.Batch{}
	for _, p := range promos {
		itemIDs := p.ItemIDs
		if itemIDs == nil {
			itemIDs = []string{}
		}
		batch.Queue(upsertPromotionSQL, p.ID, p.RestaurantID, itemIDs, p.Title, p.DiscountLabel,
			p.Active, p.ExpiresAt, p.MinOrder, p.DeliveryTimeOverride)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d promotions: %w", len(promos), err)
	}
	return nil
}

// APIKey upserts an API key. KeyHash must already be peppered.
func (s *Seeder) APIKey(ctx context.Context, key auth.APIKeyInfo) error {
	scopes := key.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	if _, err := s.pool.Exec(ctx, upsertAPIKeySQL, key.ID, key.KeyHash, key.Name, key.UserID, scopes); err != nil {
		return fmt.Errorf("upserting api key %q: %w", key.ID, err)
	}
	return nil
}
