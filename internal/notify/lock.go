package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrLockNotAcquired is returned when another pass holds the lock.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or
	// belongs to someone else.
	ErrLockNotHeld = errors.New("lock not held")
)

// Lock is a held single-flight lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes scheduler passes that share a key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// LockKey is the single-flight key for a calendar day.
func LockKey(day string) string { return "notify:evaluate:" + day }

// MemoryLocker is an in-process keyed mutex. Acquire waits for the holder
// to release, or for ctx to end. The ttl is ignored.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]chan struct{})}
}

// Acquire blocks until key is free.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	for {
		m.mu.Lock()
		wait, busy := m.held[key]
		if !busy {
			done := make(chan struct{})
			m.held[key] = done
			m.mu.Unlock()
			return &memoryLock{owner: m, key: key, done: done}, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

type memoryLock struct {
	owner *MemoryLocker
	key   string
	done  chan struct{}
	once  sync.Once
}

func (l *memoryLock) Release(context.Context) error {
	err := ErrLockNotHeld
	l.once.Do(func() {
		l.owner.mu.Lock()
		defer l.owner.mu.Unlock()
		if l.owner.held[l.key] == l.done {
			delete(l.owner.held, l.key)
		}
		close(l.done)
		err = nil
	})
	return err
}
