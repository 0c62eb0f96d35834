package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes event envelopes over Redis PUB/SUB. Each session
// maps to one logical channel; observers subscribe by session ID.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a Redis publisher.
func NewRedisPublisher(ctx context.Context, redisURL string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisPublisher{client: client}, nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Ping checks the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish sends the payload on the channel. The event name rides inside the
// payload envelope; PUB/SUB itself is addressed by channel key only. A nil
// error means the server accepted the message, not that anyone received it.
func (p *RedisPublisher) Publish(ctx context.Context, channel, eventName string, payload []byte) error {
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventName, channel, err)
	}
	return nil
}

// ChannelKey returns the logical channel for a session.
func ChannelKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
