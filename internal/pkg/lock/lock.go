// Package lock provides keyed in-process mutual exclusion.
//
// Database row locks guard balances and inventory. Keyed locks cover the cases a
// row lock cannot: serialising one profile's withdrawal batch across the
// marketplace round trip, and keeping a background job from overlapping itself.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a key cannot be acquired within the timeout.
var ErrLockTimeout = errors.New("lock acquisition timeout")

// entry is a mutex with a reference count so idle keys can be dropped.
type entry struct {
	mu   chan struct{}
	refs int
}

// Keyed hands out one mutex per key.
type Keyed[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// New creates an empty Keyed lock.
func New[K comparable]() *Keyed[K] {
	return &Keyed[K]{entries: make(map[K]*entry)}
}

func (k *Keyed[K]) acquire(key K) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{mu: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed[K]) release(key K, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Lock blocks until the key is held.
func (k *Keyed[K]) Lock(key K) {
	e := k.acquire(key)
	e.mu <- struct{}{}
}

// Unlock releases the key. Unlocking a key that is not held panics.
func (k *Keyed[K]) Unlock(key K) {
	k.mu.Lock()
	e, ok := k.entries[key]
	k.mu.Unlock()
	if !ok {
		panic("lock: unlock of unlocked key")
	}
	select {
	case <-e.mu:
	default:
		panic("lock: unlock of unlocked key")
	}
	k.release(key, e)
}

// TryLock acquires the key without blocking.
func (k *Keyed[K]) TryLock(key K) bool {
	e := k.acquire(key)
	select {
	case e.mu <- struct{}{}:
		return true
	default:
		k.release(key, e)
		return false
	}
}

// LockContext waits for the key until ctx is done or timeout elapses.
func (k *Keyed[K]) LockContext(ctx context.Context, key K, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e := k.acquire(key)
	select {
	case e.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, e)
		if ctx.Err() == context.DeadlineExceeded {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

// WithLock runs fn while holding the key.
func (k *Keyed[K]) WithLock(key K, fn func() error) error {
	k.Lock(key)
	defer k.Unlock(key)
	return fn()
}

// WithLockContext runs fn while holding the key, giving up after timeout.
func (k *Keyed[K]) WithLockContext(ctx context.Context, key K, timeout time.Duration, fn func() error) error {
	if err := k.LockContext(ctx, key, timeout); err != nil {
		return err
	}
	defer k.Unlock(key)
	return fn()
}

// IsLocked reports whether the key is currently held.
// The answer may be stale by the time the caller reads it.
func (k *Keyed[K]) IsLocked(key K) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	return ok && len(e.mu) == 1
}

// Len returns the number of keys currently tracked.
func (k *Keyed[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
