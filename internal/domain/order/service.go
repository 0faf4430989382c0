package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/cart"
	"github.com/xenking/bistro/internal/domain/pricing"
)

var (
	// ErrCustomerNotFound is returned when the placing user has no profile.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrRestaurantNotFound is returned when the cart's restaurant is unknown.
	ErrRestaurantNotFound = errors.New("restaurant not found")
)

// Carts is the slice of the cart store checkout depends on.
type Carts interface {
	List(ctx context.Context, userID string) ([]cart.Item, error)
	ClearOrdered(ctx context.Context, userID string, ordered []cart.Item) error
}

// DefaultPublishTimeout bounds a single event publish.
const DefaultPublishTimeout = 2 * time.Second

// CheckoutRequest holds the input for placing an order from a cart.
type CheckoutRequest struct {
	UserID          string
	DeliveryAddress string
	PaymentMethod   string
	DeliveryTier    pricing.Tier
	Tip             pricing.TipSelection
	Notes           string
}

// CheckoutResult identifies a placed order.
type CheckoutResult struct {
	OrderID      string
	RestaurantID string
}

// UpdateStatusRequest holds the input for a staff status change.
type UpdateStatusRequest struct {
	OrderID      string
	RestaurantID string
	Status       Status
	Actor        string
}

// Service encapsulates order placement and lifecycle logic.
type Service struct {
	carts     Carts
	orders    Repository
	directory Directory
	staff     auth.StaffRepository
	factory   *Factory
	policy    Policy
	events    EventPublisher
	timeout   time.Duration
	now       func() time.Time

	placed         metric.Int64Counter
	statusChanges  metric.Int64Counter
	clearAnomalies metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy sets the transition policy. The default is PolicyFlexible.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithPublisher sets the event publisher. Events are dropped by default.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithPublishTimeout bounds each event publish. Publishing runs detached from
// the request context, so a slow broker delays the caller by at most d.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithMeter records order metrics with m.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		if c, err := m.Int64Counter("bistro.orders.placed",
			metric.WithDescription("Orders placed"),
		); err == nil {
			s.placed = c
		}
		if c, err := m.Int64Counter("bistro.orders.status_changes",
			metric.WithDescription("Order status transitions"),
		); err == nil {
			s.statusChanges = c
		}
		if c, err := m.Int64Counter("bistro.cart.clear_anomalies",
			metric.WithDescription("Carts left behind after a successful checkout"),
		); err == nil {
			s.clearAnomalies = c
		}
	}
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	carts Carts,
	orders Repository,
	directory Directory,
	staff auth.StaffRepository,
	factory *Factory,
	opts ...Option,
) *Service {
	s := &Service{
		carts:          carts,
		orders:         orders,
		directory:      directory,
		staff:          staff,
		factory:        factory,
		policy:         PolicyFlexible,
		events:         nopPublisher{},
		timeout:        DefaultPublishTimeout,
		now:            time.Now,
		placed:         noop.Int64Counter{},
		statusChanges:  noop.Int64Counter{},
		clearAnomalies: noop.Int64Counter{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Policy returns the transition policy in force.
func (s *Service) Policy() Policy {
	return s.policy
}

// Checkout turns the user's cart into a pending order. It either fully
// succeeds, returning the order id, or fails without creating an order and
// without touching the cart.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}

	items, err := s.carts.List(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	restaurantID := items[0].RestaurantID

	customer, err := s.directory.Customer(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get customer")
	}
	customer.ID = req.UserID

	restaurantName, err := s.directory.RestaurantName(ctx, restaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}

	o, err := s.factory.Build(Draft{
		Customer:        *customer,
		RestaurantName:  restaurantName,
		Items:           items,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		DeliveryTier:    req.DeliveryTier,
		Tip:             req.Tip,
		Notes:           req.Notes,
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// The order is durable from here on. Only the ordered quantities leave the
	// cart, so items added by another session meanwhile survive. A failed
	// clear leaves the order authoritative; it is logged and counted, never
	// returned.
	if err := s.carts.ClearOrdered(ctx, req.UserID, items); err != nil {
		zctx.From(ctx).Warn("Cart clear failed after order creation",
			zap.String("order_id", o.ID),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		s.clearAnomalies.Add(ctx, 1)
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("restaurant_id", o.RestaurantID),
		attribute.String("delivery_tier", string(o.DeliveryTier)),
	))
	s.publish(ctx, Event{
		Type:         EventPlaced,
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		UserID:       o.UserID,
		Status:       o.Status,
		Total:        o.Total,
		OccurredAt:   o.CreatedAt,
	})

	return &CheckoutResult{
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
	}, nil
}

// GetOrder returns an order to its owner or to staff of its restaurant.
func (s *Service) GetOrder(ctx context.Context, orderID, restaurantID, viewer string) (*Order, error) {
	if viewer == "" {
		return nil, auth.ErrUnauthenticated
	}

	o, err := s.orders.Get(ctx, orderID, restaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID == viewer {
		return o, nil
	}
	if err := s.requireStaff(ctx, viewer, o.RestaurantID); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus moves an order to a new status on behalf of restaurant staff.
// Terminal orders always fail with ErrInvalidTransition, whoever asks and
// whatever status is requested. Only
// Status and UpdatedAt are written, conditionally on the status read here.
func (s *Service) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Order, error) {
	if req.Actor == "" {
		return nil, auth.ErrUnauthenticated
	}

	o, err := s.orders.Get(ctx, req.OrderID, req.RestaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.Status.IsTerminal() {
		return nil, &TransitionError{From: o.Status, To: req.Status}
	}
	if !req.Status.IsValid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "status %q", req.Status)
	}
	if err := s.requireStaff(ctx, req.Actor, o.RestaurantID); err != nil {
		return nil, err
	}
	if err := s.policy.Check(o.Status, req.Status); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.orders.UpdateStatus(ctx, o.ID, o.RestaurantID, o.Status, req.Status, now); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	prev := o.Status
	o.Status = req.Status
	o.UpdatedAt = now

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("restaurant_id", o.RestaurantID),
		zap.Stringer("from", prev),
		zap.Stringer("to", o.Status),
		zap.String("actor", req.Actor),
	)
	s.statusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", prev.String()),
		attribute.String("to", o.Status.String()),
	))
	s.publish(ctx, Event{
		Type:           EventStatusChanged,
		OrderID:        o.ID,
		RestaurantID:   o.RestaurantID,
		UserID:         o.UserID,
		Status:         o.Status,
		PreviousStatus: prev,
		Total:          o.Total,
		Actor:          req.Actor,
		OccurredAt:     now,
	})

	return o, nil
}

// ListForUser returns the orders placed by userID.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, auth.ErrUnauthenticated
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// ListForRestaurant returns a restaurant's orders to its staff, optionally
// filtered by status.
func (s *Service) ListForRestaurant(ctx context.Context, restaurantID, actor string, status Status) ([]Order, error) {
	if actor == "" {
		return nil, auth.ErrUnauthenticated
	}
	if status != "" && !status.IsValid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "status %q", status)
	}
	if err := s.requireStaff(ctx, actor, restaurantID); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByRestaurant(ctx, restaurantID, status)
	if err != nil {
		return nil, errors.Wrap(err, "list restaurant orders")
	}
	return orders, nil
}

func (s *Service) requireStaff(ctx context.Context, userID, restaurantID string) error {
	ok, err := s.staff.IsStaff(ctx, userID, restaurantID)
	if err != nil {
		return errors.Wrap(err, "check staff membership")
	}
	if !ok {
		return auth.ErrForbidden
	}
	return nil
}

func (s *Service) publish(ctx context.Context, e Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.events.Publish(pubCtx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event failed",
			zap.String("type", string(e.Type)),
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
