package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evrewards/backend/services/rewards-service/internal/events"
)

const publishTimeout = 2 * time.Second

// EventPublisher forwards committed events to a redis pub/sub channel.
type EventPublisher struct {
	client  redis.Cmdable
	channel string
	logger  *zap.Logger
}

// NewEventPublisher builds publisher for channel.
func NewEventPublisher(client redis.Cmdable, channel string, logger *zap.Logger) *EventPublisher {
	if channel == "" {
		channel = "rewards:events"
	}
	return &EventPublisher{client: client, channel: channel, logger: logger}
}

// Emit publishes evt. Failures are logged and dropped.
func (p *EventPublisher) Emit(evt events.Event) {
	payload, err := events.Marshal(evt)
	if err != nil {
		p.logger.Warn("failed to encode event", zap.String("type", evt.EventType()), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("type", evt.EventType()),
			zap.String("channel", p.channel),
			zap.Error(err),
		)
	}
}
