// Package kafka publishes order events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xenking/bistro/internal/domain/order"
)

var _ order.EventPublisher = (*Publisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes order events as JSON, keyed by order id so that all
// events of one order land on the same partition in order.
type Publisher struct {
	w messageWriter
}

// NewWriter returns a kafka.Writer for the given brokers and topic. A write
// gives up after timeout, well before an HTTP write deadline.
func NewWriter(brokers []string, topic string, timeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
		MaxAttempts:  writeAttempts,
	}
}

const writeAttempts = 2

// NewPublisher returns a Publisher writing through w.
func NewPublisher(w *kafka.Writer) *Publisher {
	return &Publisher{w: w}
}

// Publish writes a single event.
func (p *Publisher) Publish(ctx context.Context, e order.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", e.Type, err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID),
		Value: payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "restaurant_id", Value: []byte(e.RestaurantID)},
		},
	})
	if err != nil {
		return fmt.Errorf("writing %s event for order %q: %w", e.Type, e.OrderID, err)
	}
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
