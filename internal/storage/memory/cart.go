// Package memory provides in-process implementations of the cart and order
// repositories for local runs and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/bistro/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository keeps carts in a map guarded by a mutex; every operation is
// a single critical section, so Add is an atomic read-modify-write.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string][]cart.Item
}

// NewCartRepository returns an empty CartRepository.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string][]cart.Item)}
}

// Add inserts item or increments the quantity of the existing line.
func (r *CartRepository) Add(_ context.Context, item cart.Item) (*cart.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := r.carts[item.UserID]
	if len(lines) > 0 && lines[0].RestaurantID != item.RestaurantID {
		return nil, &cart.CrossRestaurantError{
			CartRestaurantID:      lines[0].RestaurantID,
			RequestedRestaurantID: item.RestaurantID,
		}
	}

	for i := range lines {
		if lines[i].CatalogItemID == item.CatalogItemID {
			lines[i].Quantity += item.Quantity
			stored := lines[i]
			return &stored, nil
		}
	}

	r.carts[item.UserID] = append(lines, item)
	return &item, nil
}

// List returns a copy of the user's cart lines.
func (r *CartRepository) List(_ context.Context, userID string) ([]cart.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.carts[userID]), nil
}

// Remove deletes one line from the user's cart.
func (r *CartRepository) Remove(_ context.Context, userID, catalogItemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := r.carts[userID]
	idx := slices.IndexFunc(lines, func(it cart.Item) bool {
		return it.CatalogItemID == catalogItemID
	})
	if idx < 0 {
		return cart.ErrItemNotInCart
	}

	lines = slices.Delete(lines, idx, idx+1)
	if len(lines) == 0 {
		delete(r.carts, userID)
		return nil
	}
	r.carts[userID] = lines
	return nil
}

// Clear deletes the user's cart.
func (r *CartRepository) Clear(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, userID)
	return nil
}

// ClearOrdered subtracts the ordered quantities from the user's cart.
func (r *CartRepository) ClearOrdered(_ context.Context, userID string, ordered []cart.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := r.carts[userID]
	for _, o := range ordered {
		idx := slices.IndexFunc(lines, func(it cart.Item) bool {
			return it.CatalogItemID == o.CatalogItemID
		})
		if idx < 0 {
			continue
		}
		if lines[idx].Quantity > o.Quantity {
			lines[idx].Quantity -= o.Quantity
			continue
		}
		lines = slices.Delete(lines, idx, idx+1)
	}

	if len(lines) == 0 {
		delete(r.carts, userID)
		return nil
	}
	r.carts[userID] = lines
	return nil
}
