package notification

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// RedisConfig holds redis publisher configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisPublisher pushes transaction events onto a redis pub/sub channel so
// other services can consume the feed without subscribing over websocket.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *logrus.Logger
}

// NewRedisPublisher creates a redis publisher
func NewRedisPublisher(config *RedisConfig) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisPublisher{
		client:  client,
		channel: config.Channel,
		logger:  utils.GetLogger(),
	}
}

// Name implements Sender
func (p *RedisPublisher) Name() string { return "redis" }

// Send implements Sender by publishing the payload to the configured channel
func (p *RedisPublisher) Send(ctx context.Context, payload []byte) error {
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Ping verifies redis connectivity
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close shuts down the redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
