package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/catalog"
	"github.com/xenking/bistro/internal/domain/promotion"
)

// AddRequest holds the input for adding an item to a cart.
type AddRequest struct {
	UserID        string
	CatalogItemID string
	RestaurantID  string
	Quantity      int
}

// Service encapsulates cart business logic: the price snapshot is resolved
// here, once, and stored with the line.
type Service struct {
	catalog    catalog.Repository
	promotions promotion.Directory
	carts      Repository
	now        func() time.Time
	itemsAdded metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithMeter records cart metrics with m.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		c, err := m.Int64Counter("bistro.cart.items_added",
			metric.WithDescription("Quantity of catalog items added to carts"),
		)
		if err == nil {
			s.itemsAdded = c
		}
	}
}

// NewService creates a cart Service.
func NewService(
	items catalog.Repository,
	promotions promotion.Directory,
	carts Repository,
	opts ...Option,
) *Service {
	s := &Service{
		catalog:    items,
		promotions: promotions,
		carts:      carts,
		now:        time.Now,
		itemsAdded: noop.Int64Counter{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddToCart looks up the catalog item and the restaurant's effective
// promotions, freezes the resulting price snapshot and stores the line.
func (s *Service) AddToCart(ctx context.Context, req AddRequest) (*Item, error) {
	if req.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	now := s.now()

	var (
		item   *catalog.Item
		promos []promotion.Promotion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		it, err := s.catalog.GetItem(gctx, req.CatalogItemID, req.RestaurantID)
		if err != nil {
			return errors.Wrap(err, "get catalog item")
		}
		item = it
		return nil
	})
	g.Go(func() error {
		ps, err := s.promotions.Effective(gctx, req.RestaurantID, now)
		if err != nil {
			return errors.Wrap(err, "get effective promotions")
		}
		promos = ps
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !item.Available {
		return nil, ErrItemUnavailable
	}

	stored, err := s.carts.Add(ctx, Item{
		UserID:        req.UserID,
		CatalogItemID: item.ID,
		RestaurantID:  item.RestaurantID,
		Name:          item.Name,
		Quantity:      req.Quantity,
		Snapshot:      promotion.Resolve(*item, promos, now),
		AddedAt:       now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}

	s.itemsAdded.Add(ctx, int64(req.Quantity),
		metric.WithAttributes(attribute.String("restaurant_id", item.RestaurantID)),
	)
	return stored, nil
}

// GetCart returns the user's cart lines.
func (s *Service) GetCart(ctx context.Context, userID string) ([]Item, error) {
	if userID == "" {
		return nil, auth.ErrUnauthenticated
	}
	items, err := s.carts.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	return items, nil
}

// RemoveItem deletes one line from the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, catalogItemID string) error {
	if userID == "" {
		return auth.ErrUnauthenticated
	}
	if err := s.carts.Remove(ctx, userID, catalogItemID); err != nil {
		return errors.Wrap(err, "remove cart item")
	}
	return nil
}

// ClearCart empties the user's cart.
func (s *Service) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return auth.ErrUnauthenticated
	}
	if err := s.carts.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
