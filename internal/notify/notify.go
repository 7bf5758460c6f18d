// Package notify publishes catalog change events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// EventItemPublished is emitted after an item is written to both stores.
const EventItemPublished = "item.published"

// Event describes one catalog change.
type Event struct {
	Type        string    `json:"type"`
	RunID       string    `json:"run_id"`
	Collection  string    `json:"collection"`
	ItemID      string    `json:"item_id"`
	Href        string    `json:"href"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher delivers events. Delivery failures are reported to the caller,
// which treats them as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Kafka produces events to a topic keyed by collection/item.
type Kafka struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafka creates a producer for topic.
func NewKafka(brokers []string, topic string, logger *slog.Logger) *Kafka {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Kafka{writer: w, logger: logger}
}

func (k *Kafka) Publish(ctx context.Context, event Event) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for %s/%s: %w", event.Type, event.Collection, event.ItemID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// serializeToMessage marshals an Event into a Kafka message.
func serializeToMessage(event Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize catalog event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Collection + "/" + event.ItemID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "run_id", Value: []byte(event.RunID)},
			{Key: "published_at", Value: []byte(event.PublishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
