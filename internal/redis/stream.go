package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher hands appointment events to downstream consumers (notification
// and email workers). Delivery is their concern; the engine only appends.
type Publisher interface {
	Publish(ctx context.Context, eventType string, appointmentID uuid.UUID, payload []byte) error
}

type streamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamPublisher appends events to a Redis stream, trimmed to roughly maxLen entries.
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) Publisher {
	return &streamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (p *streamPublisher) Publish(ctx context.Context, eventType string, appointmentID uuid.UUID, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":           eventType,
			"appointment_id": appointmentID.String(),
			"payload":        string(payload),
			"emitted_at":     time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, uuid.UUID, []byte) error { return nil }
