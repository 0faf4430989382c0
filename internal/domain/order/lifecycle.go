package order

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidTransition is returned when a status change is not permitted.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownStatus is returned for a status name outside the lifecycle.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrUnknownPolicy is returned for an unsupported transition policy name.
	ErrUnknownPolicy = errors.New("unknown transition policy")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusPreparing  Status = "preparing"
	StatusReady      Status = "ready"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is a lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusDelivering, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition out of s is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseStatus converts a status name, rejecting unknown names.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", errors.Wrapf(ErrUnknownStatus, "status %q", v)
	}
	return s, nil
}

// StaffActions returns the statuses offered to restaurant staff by the
// administrative surface.
func StaffActions() []Status {
	return []Status{StatusPending, StatusPreparing, StatusDelivering, StatusDelivered}
}

// TransitionError details an ErrInvalidTransition rejection.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("order is %s, no further status changes allowed", e.From)
	}
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// Is reports ErrInvalidTransition as the matching sentinel.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Policy decides which moves between statuses are legal.
//
// PolicyFlexible lets staff move a non-terminal order to any other status.
// PolicyStrict only allows the next single step of
// pending→confirmed→preparing→ready→delivering→delivered, or cancellation.
// Under both, terminal states are final and a move to the current status is
// rejected.
type Policy string

const (
	PolicyFlexible Policy = "flexible"
	PolicyStrict   Policy = "strict"
)

var strictSequence = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusDelivering,
	StatusDelivered,
}

// ParsePolicy converts a policy name. An empty name selects PolicyFlexible.
func ParsePolicy(v string) (Policy, error) {
	switch p := Policy(v); p {
	case "":
		return PolicyFlexible, nil
	case PolicyFlexible, PolicyStrict:
		return p, nil
	default:
		return "", errors.Wrapf(ErrUnknownPolicy, "policy %q", v)
	}
}

// Check returns a *TransitionError if moving from -> to is not allowed.
func (p Policy) Check(from, to Status) error {
	if from.IsTerminal() || from == to || !to.IsValid() {
		return &TransitionError{From: from, To: to}
	}
	if p != PolicyStrict || to == StatusCancelled {
		return nil
	}

	idx := slices.Index(strictSequence, from)
	if idx < 0 || idx+1 >= len(strictSequence) || strictSequence[idx+1] != to {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Next returns the statuses reachable from s under the policy.
func (p Policy) Next(s Status) []Status {
	var out []Status
	for _, to := range []Status{
		StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusDelivering, StatusDelivered, StatusCancelled,
	} {
		if p.Check(s, to) == nil {
			out = append(out, to)
		}
	}
	return out
}
