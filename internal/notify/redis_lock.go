package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a Locker shared by every process pointed at the same
// Redis. Acquire retries with backoff for up to wait.
type RedisLocker struct {
	rdb       redis.Cmdable
	keyPrefix string
	wait      time.Duration
	log       *zap.Logger
}

// NewRedisLocker creates a RedisLocker. An empty keyPrefix means "tether:lock:".
func NewRedisLocker(rdb redis.Cmdable, keyPrefix string, wait time.Duration, log *zap.Logger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "tether:lock:"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{rdb: rdb, keyPrefix: keyPrefix, wait: wait, log: log}
}

type redisLock struct {
	locker *RedisLocker
	key    string
	value  string
}

// TryAcquire makes a single attempt.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lockKey := l.keyPrefix + key
	value := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	l.log.Debug("acquired lock", zap.String("key", lockKey))
	return &redisLock{locker: l, key: lockKey, value: value}, nil
}

// Acquire retries TryAcquire with exponential backoff until it succeeds,
// wait elapses, or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	deadline := time.Now().Add(l.wait)
	backoff := 10 * time.Millisecond

	for {
		lock, err := l.TryAcquire(ctx, key, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) || !time.Now().Before(deadline) {
			return nil, err
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
}

func (lk *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lk.locker.rdb, []string{lk.key}, lk.value).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	lk.locker.log.Debug("released lock", zap.String("key", lk.key))
	return nil
}
