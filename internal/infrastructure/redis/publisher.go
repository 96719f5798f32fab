package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps the order event stream; trimming is approximate.
const streamMaxLen = 100_000

// StreamPublisher relays outbox entries to a Redis stream.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
}

func NewStreamPublisher(client redis.Cmdable, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

func (p *StreamPublisher) Publish(ctx context.Context, entry *outbox.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":     entry.ID.String(),
			"tenant_id":    entry.TenantID.String(),
			"aggregate_id": entry.AggregateID.String(),
			"event_type":   entry.EventType,
			"payload":      string(payload),
			"timestamp":    entry.CreatedAt.Unix(),
		},
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", entry.EventType, p.stream, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the application.
func (p *StreamPublisher) Close() error {
	return nil
}
