package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bistro/internal/domain/catalog"
	"github.com/xenking/bistro/internal/domain/promotion"
)

const (
	getCatalogItemSQL = `SELECT id, restaurant_id, name, price, available
		FROM catalog_items WHERE id = $1 AND restaurant_id = $2`

	upsertCatalogItemSQL = `INSERT INTO catalog_items (id, restaurant_id, name, price, available, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (restaurant_id, id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price,
			available = EXCLUDED.available, updated_at = now()`

	effectivePromotionsSQL = `SELECT id, restaurant_id, item_ids, title, discount_label,
		active, expires_at, min_order, delivery_time_override
		FROM promotions
		WHERE restaurant_id = $1 AND active = TRUE AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at, id`
)

var (
	_ catalog.Repository  = (*CatalogRepository)(nil)
	_ promotion.Directory = (*PromotionRepository)(nil)
)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetItem retrieves a restaurant's catalog item. Returns catalog.ErrNotFound
// if the item does not exist in that restaurant.
func (r *CatalogRepository) GetItem(ctx context.Context, id, restaurantID string) (*catalog.Item, error) {
	rows, err := r.pool.Query(ctx, getCatalogItemSQL, id, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("getting catalog item %q: %w", id, err)
	}

	item, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[catalog.Item])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting catalog item %q: %w", id, err)
	}
	return &item, nil
}

// Upsert inserts or replaces catalog items in one batch.
func (r *CatalogRepository) Upsert(ctx context.Context, items []catalog.Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(upsertCatalogItemSQL, it.ID, it.RestaurantID, it.Name, it.Price, it.Available)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d catalog items: %w", len(items), err)
	}
	return nil
}

// PromotionRepository implements promotion.Directory backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// Effective returns the restaurant's promotions in effect at the given time,
// in creation order so that resolution picks them deterministically.
func (r *PromotionRepository) Effective(ctx context.Context, restaurantID string, at time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, effectivePromotionsSQL, restaurantID, at)
	if err != nil {
		return nil, fmt.Errorf("listing promotions of %q: %w", restaurantID, err)
	}

	promos, err := pgx.CollectRows(rows, pgx.RowToStructByPos[promotion.Promotion])
	if err != nil {
		return nil, fmt.Errorf("listing promotions of %q: %w", restaurantID, err)
	}
	return promos, nil
}
