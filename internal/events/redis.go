package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 2 * time.Second

// Channel carries all order events as JSON; subscribers filter by type.
const Channel = "marketplace.orders"

type redisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) Publisher {
	return &redisPublisher{client: client}
}

func (p *redisPublisher) Publish(_ context.Context, e Event) {
	// Detached from the request context so a finished request cannot
	// cancel delivery; bounded by its own timeout instead.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		body, err := json.Marshal(e)
		if err != nil {
			log.Warn().Err(err).Str("event_type", e.Type).Msg("events: failed to marshal event")
			return
		}

		if err := p.client.Publish(ctx, Channel, body).Err(); err != nil {
			log.Warn().Err(err).Str("event_type", e.Type).Stringer("order_id", e.OrderID).Msg("events: failed to publish event")
		}
	}()
}
