// Package cache provides the key-value cache, distributed lock and
// failure-rate breaker capabilities the dispatch workers depend on. The
// production implementations sit on Redis; in-memory counterparts back the
// worker tests.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyValueCache is a TTL'd advisory cache. Stale reads are acceptable for
// its consumers (campaign pause flags), so no invalidation fan-out exists.
type KeyValueCache interface {
	GetBool(ctx context.Context, key string) (value bool, found bool, err error)
	SetBool(ctx context.Context, key string, value bool, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DistributedLock guards per-task exclusivity across worker processes.
// Acquire returns a release token; Release is a no-op for a stale token.
type DistributedLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Breaker bounds the failure rate per task class inside a rolling window.
// Once tripped it suppresses immediate retries until the window rolls over.
type Breaker interface {
	Allow(ctx context.Context, class string) (bool, error)
	RecordFailure(ctx context.Context, class string) error
}

// NewRedisClient builds a hardened go-redis client from a redis:// URL and
// verifies connectivity before returning.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = time.Second

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// RedisCache implements KeyValueCache on Redis.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCache(rdb *redis.Client, prefix string) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *RedisCache) GetBool(ctx context.Context, key string) (bool, bool, error) {
	value, err := c.rdb.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return value == "1", true, nil
}

func (c *RedisCache) SetBool(ctx context.Context, key string, value bool, ttl time.Duration) error {
	encoded := "0"
	if value {
		encoded = "1"
	}
	return c.rdb.Set(ctx, c.key(key), encoded, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

// releaseScript deletes the lock key only when it still holds our token, so
// a worker that overran its TTL cannot release another worker's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements DistributedLock with SET NX PX plus a token-checked
// release.
type RedisLock struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLock(rdb *redis.Client, prefix string) *RedisLock {
	return &RedisLock{rdb: rdb, prefix: prefix}
}

func (l *RedisLock) key(k string) string {
	if l.prefix == "" {
		return "lock:" + k
	}
	return l.prefix + ":lock:" + k
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key(key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLock) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key(key)}, token).Err()
}

// RedisBreaker implements Breaker with an INCR+EXPIRE rolling counter.
type RedisBreaker struct {
	rdb       *redis.Client
	prefix    string
	threshold int
	window    time.Duration
}

func NewRedisBreaker(rdb *redis.Client, prefix string, threshold int, window time.Duration) *RedisBreaker {
	return &RedisBreaker{rdb: rdb, prefix: prefix, threshold: threshold, window: window}
}

func (b *RedisBreaker) key(class string) string {
	if b.prefix == "" {
		return "breaker:" + class
	}
	return b.prefix + ":breaker:" + class
}

func (b *RedisBreaker) Allow(ctx context.Context, class string) (bool, error) {
	count, err := b.rdb.Get(ctx, b.key(class)).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return true, err // fail open, the breaker is advisory
	}
	return count < b.threshold, nil
}

func (b *RedisBreaker) RecordFailure(ctx context.Context, class string) error {
	key := b.key(class)
	count, err := b.rdb.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return b.rdb.Expire(ctx, key, b.window).Err()
	}
	return nil
}
