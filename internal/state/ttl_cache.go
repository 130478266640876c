package state

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches a fresh value for a TTLCache.
type Loader[T any] func(ctx context.Context) (T, error)

// TTLCache holds one lazily loaded value with an optional time-to-live.
// A zero TTL keeps the first loaded value for the life of the process.
// Concurrent misses share a single load.
type TTLCache[T any] struct {
	ttl  time.Duration
	now  func() time.Time
	load Loader[T]

	mu       sync.RWMutex
	value    T
	loadedAt time.Time
	ok       bool

	group singleflight.Group
}

// NewTTLCache creates a cache around load.
func NewTTLCache[T any](ttl time.Duration, load Loader[T]) *TTLCache[T] {
	return &TTLCache[T]{ttl: ttl, now: time.Now, load: load}
}

// WithClock replaces the time source. Intended for tests.
func (c *TTLCache[T]) WithClock(now func() time.Time) *TTLCache[T] {
	c.now = now
	return c
}

// Peek returns the cached value without loading, and whether it is fresh.
func (c *TTLCache[T]) Peek() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.ok && !c.expiredLocked()
}

// Get returns the cached value, loading it when absent or expired.
// The load is detached from ctx so one caller giving up neither cancels it for
// the others nor caches its failure; Get itself still returns when ctx is done.
func (c *TTLCache[T]) Get(ctx context.Context) (T, error) {
	if v, ok := c.Peek(); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("load", func() (any, error) {
		// Another caller may have finished loading while we waited.
		if v, ok := c.Peek(); ok {
			return v, nil
		}
		v, err := c.load(loadCtx)
		if err != nil {
			return v, err
		}
		c.Set(v)
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Set stores v as the fresh value.
func (c *TTLCache[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.loadedAt = c.now()
	c.ok = true
}

// Invalidate drops the cached value so the next Get reloads it.
func (c *TTLCache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.ok = false
}

// LoadedAt returns when the current value was stored.
func (c *TTLCache[T]) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

func (c *TTLCache[T]) expiredLocked() bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(c.loadedAt) >= c.ttl
}
