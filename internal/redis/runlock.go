package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock is an advisory per-date lock that keeps two concurrently fired
// triggers (a retried cron, a double-clicked HTTP trigger) from both
// executing a full batch for the same date. It is an optimization only:
// the instance store's uniqueness constraint keeps a duplicate run
// correct, just wasteful.
type RunLock interface {
	// TryAcquire attempts to take the lock for date. Returns false when
	// another holder already owns it.
	TryAcquire(ctx context.Context, date time.Time) (bool, error)
	// Release frees the lock if this instance still owns it.
	Release(ctx context.Context, date time.Time) error
}

type runLock struct {
	client  *redis.Client
	ownerID string
	ttl     time.Duration
}

// NewRunLock returns a Redis-backed RunLock. ownerID identifies this
// process instance; ttl bounds how long a crashed holder can block
// subsequent triggers.
func NewRunLock(client *redis.Client, ownerID string, ttl time.Duration) RunLock {
	return &runLock{client: client, ownerID: ownerID, ttl: ttl}
}

func lockKey(date time.Time) string {
	return "materializer:run:" + date.Format("2006-01-02")
}

func (l *runLock) TryAcquire(ctx context.Context, date time.Time) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(date), l.ownerID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("run lock SetNX: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the key only if this instance owns it, so a slow
// run that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

func (l *runLock) Release(ctx context.Context, date time.Time) error {
	err := releaseScript.Run(ctx, l.client, []string{lockKey(date)}, l.ownerID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("run lock release: %w", err)
	}
	return nil
}
