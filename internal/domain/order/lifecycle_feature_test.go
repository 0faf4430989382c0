package order

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/auth"
)

type lifecycleScenario struct {
	t     *testing.T
	f     *fixture
	staff *mockStaff
	err   error
}

func (s *lifecycleScenario) aPendingOrderAtRestaurantPlacedBy(orderID, restaurantID, userID string) error {
	o := placedOrder(StatusPending)
	o.ID = orderID
	o.RestaurantID = restaurantID
	o.UserID = userID

	s.f = newFixture(s.t, nil, o)
	s.staff = &mockStaff{members: map[string]string{}}
	s.f.svc.staff = s.staff
	return nil
}

func (s *lifecycleScenario) isStaffOfRestaurant(userID, restaurantID string) error {
	s.staff.members[userID] = restaurantID
	return nil
}

func (s *lifecycleScenario) theTransitionPolicy(name string) error {
	p, err := ParsePolicy(name)
	if err != nil {
		return err
	}
	WithPolicy(p)(s.f.svc)
	return nil
}

func (s *lifecycleScenario) orderIs(orderID, status string) error {
	o, ok := s.f.orders.orders[orderID]
	if !ok {
		return fmt.Errorf("no order %q", orderID)
	}
	o.Status = Status(status)
	return nil
}

func (s *lifecycleScenario) setsTheStatusOfOrderTo(actor, orderID, status string) error {
	o, ok := s.f.orders.orders[orderID]
	if !ok {
		return fmt.Errorf("no order %q", orderID)
	}
	_, s.err = s.f.svc.UpdateStatus(context.Background(), UpdateStatusRequest{
		OrderID:      orderID,
		RestaurantID: o.RestaurantID,
		Status:       Status(status),
		Actor:        actor,
	})
	return nil
}

var lifecycleResults = map[string]error{
	"invalid transition": ErrInvalidTransition,
	"forbidden":          auth.ErrForbidden,
	"unauthenticated":    auth.ErrUnauthenticated,
	"unknown status":     ErrUnknownStatus,
	"not found":          ErrNotFound,
	"conflict":           ErrStatusConflict,
}

func (s *lifecycleScenario) theResultIs(result string) error {
	if result == "ok" {
		if s.err != nil {
			return fmt.Errorf("expected success, got %v", s.err)
		}
		return nil
	}
	want, ok := lifecycleResults[result]
	if !ok {
		return fmt.Errorf("unknown result %q", result)
	}
	if !errors.Is(s.err, want) {
		return fmt.Errorf("expected %q, got %v", result, s.err)
	}
	return nil
}

func (s *lifecycleScenario) orderHasStatus(orderID, status string) error {
	o, ok := s.f.orders.orders[orderID]
	if !ok {
		return fmt.Errorf("no order %q", orderID)
	}
	if o.Status != Status(status) {
		return fmt.Errorf("order %s has status %s, want %s", orderID, o.Status, status)
	}
	return nil
}

func (s *lifecycleScenario) statusChangeEventsWerePublished(n int) error {
	var got int
	for _, e := range s.f.publisher.events {
		if e.Type == EventStatusChanged {
			got++
		}
	}
	if got != n {
		return fmt.Errorf("published %d status change events, want %d", got, n)
	}
	return nil
}

func TestLifecycleFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			sc := &lifecycleScenario{t: t}

			ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				*sc = lifecycleScenario{t: t}
				return ctx, nil
			})

			ctx.Step(`^a pending order "([^"]*)" at restaurant "([^"]*)" placed by "([^"]*)"$`, sc.aPendingOrderAtRestaurantPlacedBy)
			ctx.Step(`^"([^"]*)" is staff of restaurant "([^"]*)"$`, sc.isStaffOfRestaurant)
			ctx.Step(`^the "([^"]*)" transition policy$`, sc.theTransitionPolicy)
			ctx.Step(`^order "([^"]*)" is "([^"]*)"$`, sc.orderIs)

			ctx.Step(`^"([^"]*)" sets the status of order "([^"]*)" to "([^"]*)"$`, sc.setsTheStatusOfOrderTo)

			ctx.Step(`^the result is "([^"]*)"$`, sc.theResultIs)
			ctx.Step(`^order "([^"]*)" has status "([^"]*)"$`, sc.orderHasStatus)
			ctx.Step(`^(\d+) status change events? (?:was|were) published$`, sc.statusChangeEventsWerePublished)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/lifecycle.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
