package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Cache wraps a slower backend (Azure Tables) with a Redis read-through
// cache. Writes go to the base backend first and then evict the cached
// copies; Redis failures never fail a call.
type Cache struct {
	base   Backend
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache creates a caching Backend in front of base.
func NewCache(base Backend, client *redis.Client, ttl time.Duration, prefix string) *Cache {
	if base == nil {
		panic("storage.NewCache: base backend is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl, prefix: prefix}
}

func (c *Cache) Load(ctx context.Context, key string) ([]byte, error) {
	if data, ok := c.loadFromCache(ctx, key); ok {
		return data, nil
	}
	data, err := c.base.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if data != nil {
		c.store(ctx, key, data)
	}
	return data, nil
}

func (c *Cache) Save(ctx context.Context, records ...Record) error {
	if err := c.base.Save(ctx, records...); err != nil {
		return err
	}
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Key)
	}
	c.evict(ctx, keys...)
	return nil
}

func (c *Cache) Close() error {
	return c.base.Close()
}

func (c *Cache) loadFromCache(ctx context.Context, key string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, c.cacheKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).WithField("key", key).Warn("cache read failed")
			_ = c.redis.Del(ctx, c.cacheKey(key)).Err()
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) store(ctx context.Context, key string, data []byte) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	if err := c.redis.Set(ctx, c.cacheKey(key), data, c.ttl).Err(); err != nil {
		log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil || len(keys) == 0 {
		return
	}
	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = c.cacheKey(k)
	}
	if err := c.redis.Del(ctx, cacheKeys...).Err(); err != nil {
		log.WithError(err).WithField("keys", keys).Warn("cache evict failed")
	}
}

func (c *Cache) cacheKey(key string) string {
	if c.prefix == "" {
		return "cache:" + key
	}
	return c.prefix + ":cache:" + key
}
