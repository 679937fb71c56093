package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Bus backed by Redis pub/sub, the cross-process broadcast
// fabric for multi-process deployments.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed bus around an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Publish sends a payload on a channel.
func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("bus publish: %w", err)
	}
	return nil
}

// Subscribe listens on a glob-style channel pattern via PSUBSCRIBE. The
// pump goroutine exits when stop is called or ctx is canceled.
func (r *Redis) Subscribe(ctx context.Context, pattern string) (<-chan Message, func(), error) {
	pubsub := r.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("bus subscribe: %w", err)
	}

	out := make(chan Message, subscriberBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		src := pubsub.Channel()
		for {
			select {
			case msg, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() {
		close(done)
		_ = pubsub.Close()
	}
	return out, stop, nil
}
