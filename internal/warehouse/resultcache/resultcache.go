// Package resultcache provides a Redis-backed TTL cache for analytics
// query results, keyed by query fingerprint. It fails open: cache errors
// are logged and the caller proceeds to the warehouse.
package resultcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/linuxfoundation/lfx-gateway/internal/logging"
	"github.com/linuxfoundation/lfx-gateway/internal/warehouse"
)

const keyPrefix = "lfx:analytics:result:"

// Cache implements warehouse.ResultCache over Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// New creates a Cache from a Redis URL (redis://host:port/db).
func New(redisURL string, ttl time.Duration, logger *logging.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Cache{
		client: redis.NewClient(opts),
		ttl:    ttl,
		logger: logger,
	}, nil
}

var _ warehouse.ResultCache = (*Cache)(nil)

// Get returns the cached result for the fingerprint, if present.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*warehouse.Result, bool) {
	data, err := c.client.Get(ctx, keyPrefix+fingerprint).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithContext(ctx).WithError(err).Warn("Result cache read failed")
		}
		return nil, false
	}

	var res warehouse.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Result cache entry corrupt, ignoring")
		return nil, false
	}
	return &res, true
}

// Set stores a settled result under the fingerprint with the configured TTL.
func (c *Cache) Set(ctx context.Context, fingerprint string, res *warehouse.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Result cache encode failed")
		return
	}
	if err := c.client.Set(ctx, keyPrefix+fingerprint, data, c.ttl).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Result cache write failed")
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
