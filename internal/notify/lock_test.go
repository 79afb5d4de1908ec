package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializes(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := locker.Acquire(ctx, "k", time.Minute)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, lock.Release(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestMemoryLockerContextCancel(t *testing.T) {
	locker := NewMemoryLocker()
	held, err := locker.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "k", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Acquire(context.Background(), "other", 0)
	require.NoError(t, err)
	require.NoError(t, other.Release(context.Background()))

	require.NoError(t, held.Release(context.Background()))
	assert.ErrorIs(t, held.Release(context.Background()), ErrLockNotHeld)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisLocker(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(rdb, "", 0, nil)

	lock, err := locker.Acquire(ctx, LockKey("2026-06-15"), time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("tether:lock:notify:evaluate:2026-06-15"))

	_, err = locker.TryAcquire(ctx, LockKey("2026-06-15"), time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("tether:lock:notify:evaluate:2026-06-15"))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

func TestRedisLockerExpiry(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(rdb, "test:", 0, nil)

	stale, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, stale.Release(ctx), ErrLockNotHeld)
	require.NoError(t, fresh.Release(ctx))
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(rdb, "", 2*time.Second, nil)

	held, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		held.Release(ctx)
	}()

	next, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, next.Release(ctx))
}
