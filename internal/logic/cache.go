package logic

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cachePrefix = "predict:cache:"

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "predict_cache_lookups_total",
	Help: "Computed-result cache lookups by result",
}, []string{"result"})

// Cache stores computed JSON results in Redis. A nil *Cache disables
// caching; Redis failures are logged and the value is recomputed.
type Cache struct {
	client RedisClient
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func NewCache(client RedisClient, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger.Sugar()}
}

// cached returns the value under key, or loads, stores and returns it.
// Errors from load are never cached.
func cached[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}

	key = cachePrefix + key
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jerr := json.Unmarshal(raw, &v); jerr == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return v, nil
		}
		c.logger.Warnw("Discarding undecodable cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		cacheLookups.WithLabelValues("error").Inc()
		c.logger.Warnw("Cache read failed", "key", key, "error", err)
	}
	cacheLookups.WithLabelValues("miss").Inc()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warnw("Cache encode failed", "key", key, "error", err)
		return v, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warnw("Cache write failed", "key", key, "error", err)
	}
	return v, nil
}
