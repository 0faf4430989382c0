package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order event.
type EventType string

const (
	EventPlaced        EventType = "order.placed"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is published after an order is placed or its status changes.
type Event struct {
	Type           EventType       `json:"type"`
	OrderID        string          `json:"order_id"`
	RestaurantID   string          `json:"restaurant_id"`
	UserID         string          `json:"user_id"`
	Status         Status          `json:"status"`
	PreviousStatus Status          `json:"previous_status,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Actor          string          `json:"actor,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// EventPublisher delivers order events to interested parties.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
