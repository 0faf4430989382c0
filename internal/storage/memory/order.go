package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/bistro/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository keeps orders per restaurant in memory.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]map[string]*order.Order // restaurantID -> orderID
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]map[string]*order.Order)}
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.orders[o.RestaurantID]
	if !ok {
		byID = make(map[string]*order.Order)
		r.orders[o.RestaurantID] = byID
	}
	byID[o.ID] = cloneOrder(o)
	return nil
}

func (r *OrderRepository) Get(_ context.Context, orderID, restaurantID string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[restaurantID][orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, orderID, restaurantID string, from, to order.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[restaurantID][orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []order.Order
	for _, byID := range r.orders {
		for _, o := range byID {
			if o.UserID == userID {
				out = append(out, *cloneOrder(o))
			}
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *OrderRepository) ListByRestaurant(_ context.Context, restaurantID string, status order.Status) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []order.Order
	for _, o := range r.orders[restaurantID] {
		if status == "" || o.Status == status {
			out = append(out, *cloneOrder(o))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(orders []order.Order) {
	slices.SortFunc(orders, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	return &cp
}
