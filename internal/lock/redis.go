// Package lock serializes capture work on a sheet across service instances.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired is returned when the lock is still held elsewhere after the wait.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld is returned when releasing a lock that expired or changed hands.
	ErrNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker holds SET NX locks with a random token per holder.
type RedisLocker struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
	Wait   time.Duration
	Logger *slog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{Client: client, Prefix: "payin:lock:", TTL: ttl, Wait: ttl, Logger: logger}
}

// Lock blocks with backoff until key is acquired or Wait elapses. The returned func releases it.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.Prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.Wait)
	backoff := 10 * time.Millisecond

	for {
		ok, err := l.Client.SetNX(ctx, lockKey, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}

	return func() {
		// The caller's context may already be done by the time we release.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.release(releaseCtx, lockKey, token); err != nil && l.Logger != nil {
			l.Logger.Warn("release lock", "key", lockKey, "err", err)
		}
	}, nil
}

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.Client, []string{key}, token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Local is used when no Redis is configured; the database row locks still apply.
type Local struct{}

func (Local) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}
