package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis shares failure counts and blocks across server instances.
type Redis struct {
	client *redis.Client
	policy Policy
	prefix string
}

// NewRedis creates a Redis-backed limiter. Keys are namespaced by prefix.
func NewRedis(client *redis.Client, p Policy, prefix string) *Redis {
	if prefix == "" {
		prefix = "clawjobs:authlimit"
	}
	return &Redis{client: client, policy: p.normalize(), prefix: prefix}
}

// NewRedisFromURL parses a redis:// URL and creates the limiter.
func NewRedisFromURL(url string, p Policy) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), p, ""), nil
}

func (l *Redis) failKey(key string) string  { return l.prefix + ":fail:" + key }
func (l *Redis) blockKey(key string) string { return l.prefix + ":block:" + key }

// Allow implements Limiter.
func (l *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, l.blockKey(key)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("check block: %w", err)
	}
	// PTTL reports -2 for a missing key and -1 for a key without expiry.
	if ttl > 0 {
		return false, ttl, nil
	}
	return true, 0, nil
}

// Failure implements Limiter.
func (l *Redis) Failure(ctx context.Context, key string) (bool, time.Duration, error) {
	fk := l.failKey(key)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, fk)
	pipe.Expire(ctx, fk, l.policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("record failure: %w", err)
	}

	if incr.Val() < int64(l.policy.MaxFailures) {
		return false, 0, nil
	}

	pipe = l.client.TxPipeline()
	pipe.Set(ctx, l.blockKey(key), 1, l.policy.BlockFor)
	pipe.Del(ctx, fk)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("place block: %w", err)
	}
	return true, l.policy.BlockFor, nil
}

// Close releases the underlying client.
func (l *Redis) Close() error {
	return l.client.Close()
}
