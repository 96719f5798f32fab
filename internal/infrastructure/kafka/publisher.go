package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/segmentio/kafka-go"
)

// Publisher relays outbox entries to a Kafka topic. Messages are keyed by
// order id so events of one order land on one partition in order.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, entry *outbox.Entry) error {
	msg, err := messageFor(entry)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s to kafka: %w", entry.EventType, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func messageFor(entry *outbox.Entry) (kafka.Message, error) {
	value, err := json.Marshal(entry.Payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return kafka.Message{
		Key:   []byte(entry.AggregateID.String()),
		Value: value,
		Time:  entry.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(entry.ID.String())},
			{Key: "event_type", Value: []byte(entry.EventType)},
			{Key: "tenant_id", Value: []byte(entry.TenantID.String())},
		},
	}, nil
}
