package transport

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-config-monitor/core"
)

const (
	KindRedis         = "redis"
	DefaultBusChannel = "springCloudBus"
)

// RedisPublishClient is the slice of the go-redis client used for publishing.
type RedisPublishClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type RedisPublisher struct {
	client  RedisPublishClient
	channel string
}

func NewRedisPublisher(client RedisPublishClient, channel string) *RedisPublisher {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultBusChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// NewRedisClient builds a go-redis client from connection settings.
func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (p *RedisPublisher) Kind() string {
	return KindRedis
}

func (p *RedisPublisher) Channel() string {
	if p == nil {
		return ""
	}
	return p.channel
}

func (p *RedisPublisher) PublishRefresh(ctx context.Context, signal core.RefreshSignal) error {
	if p == nil || p.client == nil {
		return transportError(
			"transport: redis publisher requires a client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	payload, err := encodeBusEvent(signal)
	if err != nil {
		return transportWrapError(err, goerrors.CategoryInternal, "transport: encode bus event", http.StatusInternalServerError, nil)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: redis publish failed",
			http.StatusBadGateway,
			map[string]any{"channel": p.channel, "destination": signal.Destination},
		)
	}
	return nil
}

var _ core.RefreshPublisher = (*RedisPublisher)(nil)
