package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/logging"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisPublisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key receives the latest snapshot JSON.
	Key string
	// Channel receives every snapshot. Empty disables PUBLISH.
	Channel string
	// TTL expires Key if publishing stops. Zero keeps it forever.
	TTL time.Duration
}

// ErrNoSnapshot is returned by Latest when nothing has been published yet.
var ErrNoSnapshot = errors.New("no snapshot published")

// RedisPublisher writes hub snapshots to Redis: SET on a key for readers
// that poll, and PUBLISH on a channel for readers that subscribe.
type RedisPublisher struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration
	logger  *logging.Logger
}

// NewRedisPublisher connects a publisher to the server at cfg.Addr.
// The connection is established lazily on first use.
func NewRedisPublisher(cfg RedisConfig, logger *logging.Logger) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisPublisherWithClient(client, cfg, logger)
}

// NewRedisPublisherWithClient is like NewRedisPublisher but uses an existing
// client. Only cfg's Key, Channel, and TTL are read.
func NewRedisPublisherWithClient(client *redis.Client, cfg RedisConfig, logger *logging.Logger) *RedisPublisher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &RedisPublisher{
		client:  client,
		key:     cfg.Key,
		channel: cfg.Channel,
		ttl:     cfg.TTL,
		logger:  logger.WithComponent("redis-publisher"),
	}
}

// Ping checks connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}

// Publish writes export to the key and, when a channel is configured,
// publishes it there in the same round trip.
func (p *RedisPublisher) Publish(ctx context.Context, export coordination.Export) error {
	data, err := json.Marshal(export)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.key, data, p.ttl)
		if p.channel != "" {
			pipe.Publish(ctx, p.channel, data)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "publish snapshot to redis")
	}
	return nil
}

// Latest reads the most recently published snapshot back from the key.
func (p *RedisPublisher) Latest(ctx context.Context) (coordination.Export, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return coordination.Export{}, ErrNoSnapshot
	}
	if err != nil {
		return coordination.Export{}, errors.Wrap(err, "read snapshot from redis")
	}

	var export coordination.Export
	if err := json.Unmarshal(data, &export); err != nil {
		return coordination.Export{}, errors.Wrap(err, "decode snapshot")
	}
	return export, nil
}

// Run publishes a snapshot of src every interval until ctx is done.
// Publish failures are logged and do not stop the loop.
func (p *RedisPublisher) Run(ctx context.Context, src Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("publishing snapshots", "key", p.key, "channel", p.channel, "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Publish(ctx, src.ExportMetrics()); err != nil && ctx.Err() == nil {
				p.logger.Warn("snapshot publish failed", "error", err.Error())
			}
		}
	}
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
