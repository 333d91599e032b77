package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

// ErrCacheMiss is returned by Get when the key is absent or holds the
// null marker.
var ErrCacheMiss = errors.New(errors.ErrCodeCacheError, "cache miss")

// nullValue marks keys whose loader legitimately returned no data, so
// repeated misses do not hammer the upstream source.
const nullValue = "__null__"

// LoaderFunc produces the value for a key on a cache miss.
type LoaderFunc func(ctx context.Context) (interface{}, error)

// Cache is a typed JSON object cache over Redis. Collaborator summaries
// (infrastructure and market lookups) are its main tenants, so a stale
// entry costs accuracy but never correctness.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader LoaderFunc) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// CacheOption customizes a cache instance.
type CacheOption func(*redisCache)

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

// WithDefaultTTL sets the TTL applied when Set receives a zero duration.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.defaultTTL = ttl }
}

// WithNullCaching toggles storing the null marker for empty loads.
func WithNullCaching(enabled bool) CacheOption {
	return func(c *redisCache) { c.cacheNulls = enabled }
}

type redisCache struct {
	client     *Client
	log        logging.Logger
	prefix     string
	defaultTTL time.Duration
	cacheNulls bool
	group      singleflight.Group
}

// NewRedisCache builds a cache with the "terrasight:" namespace by default.
func NewRedisCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	c := &redisCache{
		client:     client,
		log:        log.Named("cache"),
		prefix:     "terrasight:",
		defaultTTL: 15 * time.Minute,
		cacheNulls: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) buildKey(key string) string {
	return c.prefix + key
}

// jitterTTL spreads expirations by up to ±10% to avoid synchronized
// refresh stampedes across regions cached in the same pass.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	jitter := time.Duration(rand.Int63n(int64(ttl) / 5))
	return ttl - ttl/10 + jitter
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.client.Get(ctx, c.buildKey(key)).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache get failed")
	}
	if raw == nullValue {
		return ErrCacheMiss
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "cache value decode failed")
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "cache value encode failed")
	}
	if err := c.client.Set(ctx, c.buildKey(key), data, jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache set failed")
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.buildKey(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache delete failed")
	}
	return nil
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.buildKey(key)).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "cache exists failed")
	}
	return n > 0, nil
}

// GetOrSet returns the cached value or runs loader, caching its result.
// Concurrent callers for the same key share one loader execution. A cached
// null marker short-circuits to ErrCacheMiss without re-running the loader.
func (c *redisCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader LoaderFunc) error {
	raw, err := c.client.Get(ctx, c.buildKey(key)).Result()
	switch {
	case err == nil && raw == nullValue:
		return ErrCacheMiss
	case err == nil:
		if err := json.Unmarshal([]byte(raw), dest); err == nil {
			return nil
		}
		c.log.Warn("cache value decode failed, falling through to loader",
			logging.String("key", key))
	case err != redis.Nil:
		c.log.Warn("cache read failed, falling through to loader",
			logging.String("key", key), logging.Err(err))
	}

	loaded, err, _ := c.group.Do(c.buildKey(key), func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if value == nil {
			if c.cacheNulls {
				if err := c.client.Set(ctx, c.buildKey(key), nullValue, jitterTTL(ttl)).Err(); err != nil {
					c.log.Warn("null marker write failed", logging.String("key", key), logging.Err(err))
				}
			}
			return nil, nil
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "cache value encode failed")
		}
		if ttl <= 0 {
			ttl = c.defaultTTL
		}
		if err := c.client.Set(ctx, c.buildKey(key), data, jitterTTL(ttl)).Err(); err != nil {
			c.log.Warn("cache write failed", logging.String("key", key), logging.Err(err))
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if loaded == nil {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(loaded.([]byte), dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "cache value decode failed")
	}
	return nil
}

// DeleteByPrefix removes every key under prefix via cursor scans.
func (c *redisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	pattern := c.buildKey(prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCacheError, "cache scan failed")
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return errors.Wrap(err, errors.ErrCodeCacheError, "cache delete failed")
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
