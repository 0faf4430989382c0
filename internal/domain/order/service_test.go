package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/cart"
	"github.com/xenking/bistro/internal/domain/pricing"
	"github.com/xenking/bistro/internal/domain/promotion"
)

// --- Mock implementations ---

type mockCarts struct {
	items    map[string][]cart.Item
	listErr  error
	clearErr error
	cleared  []string
}

func (m *mockCarts) List(_ context.Context, userID string) ([]cart.Item, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.items[userID], nil
}

func (m *mockCarts) ClearOrdered(_ context.Context, userID string, _ []cart.Item) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cleared = append(m.cleared, userID)
	delete(m.items, userID)
	return nil
}

type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*Order
	createErr error
	updateErr error
	updates   int
	onCreate  func()
}

func newMockOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{orders: make(map[string]*Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	if m.onCreate != nil {
		m.onCreate()
	}
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, orderID, restaurantID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.RestaurantID != restaurantID {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, orderID, _ string, from, to Status, at time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	m.updates++
	return nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListByRestaurant(_ context.Context, restaurantID string, status Status) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.RestaurantID == restaurantID && (status == "" || o.Status == status) {
			out = append(out, *o)
		}
	}
	return out, nil
}

type mockDirectory struct {
	customers   map[string]Customer
	restaurants map[string]string
}

func (m *mockDirectory) Customer(_ context.Context, userID string) (*Customer, error) {
	c, ok := m.customers[userID]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &c, nil
}

func (m *mockDirectory) RestaurantName(_ context.Context, restaurantID string) (string, error) {
	n, ok := m.restaurants[restaurantID]
	if !ok {
		return "", ErrRestaurantNotFound
	}
	return n, nil
}

type mockStaff struct {
	members map[string]string // userID -> restaurantID
}

func (m *mockStaff) IsStaff(_ context.Context, userID, restaurantID string) (bool, error) {
	return m.members[userID] == restaurantID, nil
}

type mockPublisher struct {
	events []Event
	err    error
}

// blockingPublisher hangs until its context is done, like a stalled broker.
type blockingPublisher struct{}

func (blockingPublisher) Publish(ctx context.Context, _ Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockPublisher) Publish(_ context.Context, e Event) error {
	m.events = append(m.events, e)
	return m.err
}

type publisherFunc func(ctx context.Context, e Event) error

func (f publisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func cartLine(id string, original, discounted string, qty int, promo *promotion.Applied) cart.Item {
	return cart.Item{
		UserID:        "u1",
		CatalogItemID: id,
		RestaurantID:  "r1",
		Name:          "Item " + id,
		Quantity:      qty,
		Snapshot: promotion.Snapshot{
			OriginalPrice:   d(original),
			DiscountedPrice: d(discounted),
			HasPromotion:    promo != nil,
			Promotion:       promo,
		},
	}
}

type fixture struct {
	carts     *mockCarts
	orders    *mockOrderRepo
	publisher *mockPublisher
	svc       *Service
}

func newFixture(t *testing.T, items []cart.Item, orders ...*Order) *fixture {
	t.Helper()
	f := &fixture{
		carts:     &mockCarts{items: map[string][]cart.Item{"u1": items}},
		orders:    newMockOrderRepo(orders...),
		publisher: &mockPublisher{},
	}
	factory := NewFactory(pricing.NewCalculator(pricing.DefaultFeeTable(), pricing.DefaultTipPresets()))
	factory.newID = func() string { return "o1" }
	f.svc = NewService(
		f.carts,
		f.orders,
		&mockDirectory{
			customers:   map[string]Customer{"u1": {Name: "Ada", Phone: "+100"}},
			restaurants: map[string]string{"r1": "Chez Test"},
		},
		&mockStaff{members: map[string]string{"chef": "r1", "other-chef": "r2"}},
		factory,
		WithPublisher(f.publisher),
	)
	return f
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{
		UserID:          "u1",
		DeliveryAddress: "1 Main St",
		PaymentMethod:   "card",
		DeliveryTier:    pricing.TierExpress,
		Tip:             pricing.TipSelection{Kind: pricing.TipPreset, Preset: d("2000")},
	}
}

func placedOrder(status Status) *Order {
	return &Order{
		ID:           "o1",
		UserID:       "u1",
		RestaurantID: "r1",
		Status:       status,
		Total:        d("34000"),
	}
}

// --- Checkout ---

func TestCheckout_PricesFromSnapshots(t *testing.T) {
	promo := &promotion.Applied{ID: "p1", Title: "Spring", Label: "15% off", Percent: 15}
	f := newFixture(t, []cart.Item{
		cartLine("a", "20000", "17000", 1, promo),
		cartLine("b", "10000", "10000", 1, nil),
	})

	res, err := f.svc.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "o1", res.OrderID)
	assert.Equal(t, "r1", res.RestaurantID)

	o := f.orders.orders["o1"]
	require.NotNil(t, o)
	assert.True(t, o.Subtotal.Equal(d("27000")), "subtotal = %s", o.Subtotal)
	assert.True(t, o.DeliveryFee.Equal(d("5000")), "fee = %s", o.DeliveryFee)
	assert.True(t, o.Tip.Equal(d("2000")), "tip = %s", o.Tip)
	assert.True(t, o.Total.Equal(d("34000")), "total = %s", o.Total)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "Ada", o.CustomerName)
	assert.Equal(t, "Chez Test", o.RestaurantName)
	require.Len(t, o.Items, 2)
	assert.Equal(t, promo, o.Items[0].Promotion)
	assert.True(t, o.Items[0].OriginalPrice.Equal(d("20000")))

	assert.Equal(t, []string{"u1"}, f.carts.cleared)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventPlaced, f.publisher.events[0].Type)
}

func TestCheckout_Unauthenticated(t *testing.T) {
	f := newFixture(t, nil)

	req := checkoutRequest()
	req.UserID = ""
	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Checkout(context.Background(), checkoutRequest())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, f.orders.orders)
}

func TestCheckout_ValidationLeavesCart(t *testing.T) {
	f := newFixture(t, []cart.Item{cartLine("a", "100", "100", 1, nil)})

	req := checkoutRequest()
	req.DeliveryAddress = "   "
	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrDeliveryAddressRequired)
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.carts.cleared)
}

func TestCheckout_PersistenceFailureLeavesCart(t *testing.T) {
	f := newFixture(t, []cart.Item{cartLine("a", "100", "100", 2, nil)})
	f.orders.createErr = errors.New("disk full")

	_, err := f.svc.Checkout(context.Background(), checkoutRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Empty(t, f.carts.cleared)
	assert.Len(t, f.carts.items["u1"], 1)
	assert.Empty(t, f.publisher.events)
}

func TestCheckout_ClearFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, []cart.Item{cartLine("a", "100", "100", 1, nil)})
	f.carts.clearErr = errors.New("connection reset")

	res, err := f.svc.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "o1", res.OrderID)
	assert.Contains(t, f.orders.orders, "o1")
}

func TestCheckout_StalledPublisherDoesNotBlock(t *testing.T) {
	f := newFixture(t, []cart.Item{cartLine("a", "100", "100", 1, nil)})
	WithPublisher(blockingPublisher{})(f.svc)
	WithPublishTimeout(20 * time.Millisecond)(f.svc)

	start := time.Now()
	res, err := f.svc.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "o1", res.OrderID)
	assert.Contains(t, f.orders.orders, "o1")
}

func TestCheckout_PublishIgnoresRequestCancellation(t *testing.T) {
	f := newFixture(t, []cart.Item{cartLine("a", "100", "100", 1, nil)})
	var pubErr error
	WithPublisher(publisherFunc(func(ctx context.Context, _ Event) error {
		pubErr = ctx.Err()
		return nil
	}))(f.svc)

	ctx, cancel := context.WithCancel(context.Background())
	f.orders.onCreate = cancel

	_, err := f.svc.Checkout(ctx, checkoutRequest())
	require.NoError(t, err)
	require.NoError(t, pubErr, "publish context must outlive the request")
}

func TestCheckout_PublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, []cart.Item{cartLine("a", "100", "100", 1, nil)})
	f.publisher.err = errors.New("broker down")

	_, err := f.svc.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
}

func TestCheckout_UnknownCustomer(t *testing.T) {
	f := newFixture(t, []cart.Item{cartLine("a", "100", "100", 1, nil)})
	f.carts.items["u2"] = f.carts.items["u1"]

	req := checkoutRequest()
	req.UserID = "u2"
	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

// --- GetOrder ---

func TestGetOrder_Access(t *testing.T) {
	tests := []struct {
		name    string
		viewer  string
		wantErr error
	}{
		{name: "owner", viewer: "u1"},
		{name: "staff", viewer: "chef"},
		{name: "staff of other restaurant", viewer: "other-chef", wantErr: auth.ErrForbidden},
		{name: "stranger", viewer: "u9", wantErr: auth.ErrForbidden},
		{name: "anonymous", viewer: "", wantErr: auth.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, placedOrder(StatusPending))

			o, err := f.svc.GetOrder(context.Background(), "o1", "r1", tt.viewer)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "o1", o.ID)
		})
	}
}

func TestGetOrder_WrongRestaurant(t *testing.T) {
	f := newFixture(t, nil, placedOrder(StatusPending))

	_, err := f.svc.GetOrder(context.Background(), "o1", "r2", "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

// --- UpdateStatus ---

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		actor   string
		wantErr error
	}{
		{name: "pending to preparing", from: StatusPending, to: StatusPreparing, actor: "chef"},
		{name: "preparing back to pending", from: StatusPreparing, to: StatusPending, actor: "chef"},
		{name: "delivering to delivered", from: StatusDelivering, to: StatusDelivered, actor: "chef"},
		{name: "cancel pending", from: StatusPending, to: StatusCancelled, actor: "chef"},
		{name: "same status", from: StatusPending, to: StatusPending, actor: "chef", wantErr: ErrInvalidTransition},
		{name: "from delivered", from: StatusDelivered, to: StatusPending, actor: "chef", wantErr: ErrInvalidTransition},
		{name: "from cancelled", from: StatusCancelled, to: StatusPreparing, actor: "chef", wantErr: ErrInvalidTransition},
		{name: "terminal for non-staff", from: StatusDelivered, to: StatusPending, actor: "u1", wantErr: ErrInvalidTransition},
		{name: "owner is not staff", from: StatusPending, to: StatusPreparing, actor: "u1", wantErr: auth.ErrForbidden},
		{name: "staff of other restaurant", from: StatusPending, to: StatusPreparing, actor: "other-chef", wantErr: auth.ErrForbidden},
		{name: "anonymous", from: StatusPending, to: StatusPreparing, actor: "", wantErr: auth.ErrUnauthenticated},
		{name: "unknown status", from: StatusPending, to: Status("lost"), actor: "chef", wantErr: ErrUnknownStatus},
		{name: "unknown status on delivered", from: StatusDelivered, to: Status("bogus"), actor: "chef", wantErr: ErrInvalidTransition},
		{name: "unknown status on cancelled", from: StatusCancelled, to: Status(""), actor: "u1", wantErr: ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, placedOrder(tt.from))
			at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			f.svc.now = func() time.Time { return at }

			o, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
				OrderID:      "o1",
				RestaurantID: "r1",
				Status:       tt.to,
				Actor:        tt.actor,
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, f.orders.orders["o1"].Status, "status must be unchanged")
				assert.Zero(t, f.orders.updates)
				assert.Empty(t, f.publisher.events)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, o.Status)
			assert.Equal(t, at, o.UpdatedAt)

			stored := f.orders.orders["o1"]
			assert.Equal(t, tt.to, stored.Status)
			assert.True(t, stored.Total.Equal(d("34000")), "totals must not change")

			require.Len(t, f.publisher.events, 1)
			e := f.publisher.events[0]
			assert.Equal(t, EventStatusChanged, e.Type)
			assert.Equal(t, tt.from, e.PreviousStatus)
			assert.Equal(t, tt.actor, e.Actor)
		})
	}
}

func TestUpdateStatus_TerminalErrorDetails(t *testing.T) {
	f := newFixture(t, nil, placedOrder(StatusDelivered))

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1", RestaurantID: "r1", Status: StatusPending, Actor: "chef",
	})

	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusDelivered, tErr.From)
	assert.Equal(t, StatusPending, tErr.To)
}

func TestUpdateStatus_StrictPolicy(t *testing.T) {
	f := newFixture(t, nil, placedOrder(StatusPending))
	WithPolicy(PolicyStrict)(f.svc)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1", RestaurantID: "r1", Status: StatusPreparing, Actor: "chef",
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1", RestaurantID: "r1", Status: StatusConfirmed, Actor: "chef",
	})
	require.NoError(t, err)
}

func TestUpdateStatus_ConflictingWrite(t *testing.T) {
	f := newFixture(t, nil, placedOrder(StatusPending))
	f.orders.updateErr = ErrStatusConflict

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "o1", RestaurantID: "r1", Status: StatusPreparing, Actor: "chef",
	})
	require.ErrorIs(t, err, ErrStatusConflict)
	assert.Empty(t, f.publisher.events)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID: "missing", RestaurantID: "r1", Status: StatusPreparing, Actor: "chef",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Listing ---

func TestListForRestaurant(t *testing.T) {
	pending := placedOrder(StatusPending)
	done := placedOrder(StatusDelivered)
	done.ID = "o2"
	f := newFixture(t, nil, pending, done)
	ctx := context.Background()

	all, err := f.svc.ListForRestaurant(ctx, "r1", "chef", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyPending, err := f.svc.ListForRestaurant(ctx, "r1", "chef", StatusPending)
	require.NoError(t, err)
	require.Len(t, onlyPending, 1)
	assert.Equal(t, "o1", onlyPending[0].ID)

	_, err = f.svc.ListForRestaurant(ctx, "r1", "u1", "")
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.ListForRestaurant(ctx, "r1", "chef", Status("bogus"))
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestListForUser(t *testing.T) {
	f := newFixture(t, nil, placedOrder(StatusPending))

	orders, err := f.svc.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	_, err = f.svc.ListForUser(context.Background(), "")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}
