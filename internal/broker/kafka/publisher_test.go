package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bistro/internal/domain/order"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{w: w}
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	err := p.Publish(context.Background(), order.Event{
		Type:           order.EventStatusChanged,
		OrderID:        "o1",
		RestaurantID:   "r1",
		Status:         order.StatusPreparing,
		PreviousStatus: order.StatusPending,
		Total:          decimal.NewFromInt(34000),
		Actor:          "chef",
		OccurredAt:     at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, "order.status_changed", string(msg.Headers[0].Value))

	var got order.Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, order.StatusPreparing, got.Status)
	assert.Equal(t, order.StatusPending, got.PreviousStatus)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(34000)))
}

func TestPublisher_WriteError(t *testing.T) {
	writeErr := errors.New("no brokers")
	p := &Publisher{w: &fakeWriter{err: writeErr}}

	err := p.Publish(context.Background(), order.Event{Type: order.EventPlaced, OrderID: "o1"})
	require.ErrorIs(t, err, writeErr)
}

func TestNewWriter_Bounded(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "bistro.orders", 500*time.Millisecond)
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, "bistro.orders", w.Topic)
	assert.Equal(t, 500*time.Millisecond, w.WriteTimeout)
	assert.Equal(t, writeAttempts, w.MaxAttempts)
}
