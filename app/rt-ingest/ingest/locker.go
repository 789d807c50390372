package ingest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opentransit/rtfusion/foundation/redisutil"
)

// Locker serializes ingestion per (task, contributor). Acquire returns
// ok=false without waiting when another holder has the lock; release is only
// valid when ok is true.
type Locker interface {
	Acquire(ctx context.Context, task, contributor string) (release func(), ok bool, err error)
}

// redisLocker implements Locker over the shared redis instance, so the
// serialization holds across processes.
type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// MakeRedisLocker builds a Locker with the given lock TTL.
func MakeRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{client: client, ttl: ttl}
}

func (l *redisLocker) Acquire(ctx context.Context, task, contributor string) (func(), bool, error) {
	name := redisutil.LockName(task, contributor)
	ok, err := redisutil.AcquireLock(ctx, l.client, name, l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		redisutil.ReleaseLock(context.Background(), l.client, name)
	}
	return release, true, nil
}
