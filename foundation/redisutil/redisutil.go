// Package redisutil provides the redis client and the small coordination
// primitives built on it: the per-contributor ingestion lock and the feed
// ETag cache used to skip unchanged polls.
package redisutil

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the required properties to use redis.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Open creates a redis client and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// LockName builds the name of the distributed lock serializing one task for
// one contributor.
func LockName(task, contributor string) string {
	return fmt.Sprintf("lock|%s|%s", task, contributor)
}

// AcquireLock takes the named lock for ttl, without waiting. Returns false
// when another holder has it; concurrent attempts for the same contributor
// must no-op rather than queue.
func AcquireLock(ctx context.Context, client *redis.Client, name string, ttl time.Duration) (bool, error) {
	return client.SetNX(ctx, name, "locked", ttl).Result()
}

// ReleaseLock drops the named lock.
func ReleaseLock(ctx context.Context, client *redis.Client, name string) {
	client.Del(ctx, name)
}

// ETagKey builds the cache key holding the last seen ETag of a contributor's
// feed.
func ETagKey(contributor string) string {
	return fmt.Sprintf("etag|%s", contributor)
}
