package freshness

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var freshnessCheckDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "amlwatch_freshness_check_duration_ms",
	Help:    "Latency of freshness checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	// Redis key prefix for ingestion freshness entries
	freshnessKeyPrefix = "ingest:fresh:"
)

// envelope is the stored shape. The write timestamp travels with the payload
// so IsFresh can apply a threshold that differs from the entry's TTL.
type envelope struct {
	StoredAt time.Time `json:"stored_at"`
	Payload  []byte    `json:"payload"`
}

// RedisCache is a Redis-backed freshness cache for deployments where multiple
// instances share ingestion state. Backend failures are logged and reported
// as "absent": a broken cache triggers redundant ingestion, never a crash.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// RedisCacheOption configures a RedisCache instance.
type RedisCacheOption func(*RedisCache)

func WithLogger(logger *slog.Logger) RedisCacheOption {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRedis constructs a Redis-backed freshness cache.
func NewRedis(client *redis.Client, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *RedisCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	raw, err := json.Marshal(envelope{StoredAt: time.Now().UTC(), Payload: value})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, freshnessKeyPrefix+key, raw, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	env, ok := c.load(ctx, key)
	if !ok {
		return nil, false
	}
	return env.Payload, true
}

// IsFresh reports whether the entry was written within maxAge of now. An
// entry evicted by its TTL is simply gone, which reads as not fresh.
func (c *RedisCache) IsFresh(ctx context.Context, key string, maxAge time.Duration) bool {
	start := time.Now()
	defer func() {
		freshnessCheckDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	env, ok := c.load(ctx, key)
	if !ok {
		return false
	}
	return time.Since(env.StoredAt) <= maxAge
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, freshnessKeyPrefix+key).Err()
}

func (c *RedisCache) load(ctx context.Context, key string) (envelope, bool) {
	raw, err := c.client.Get(ctx, freshnessKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return envelope{}, false
	}
	if err != nil {
		c.logger.Warn("freshness cache read failed, treating as absent",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("freshness cache entry is corrupt, treating as absent",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return envelope{}, false
	}
	return env, true
}
