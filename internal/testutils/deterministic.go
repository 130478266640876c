// Package testutils provides deterministic generators and fake upstream servers for gaiachat testing.
// These utilities ensure consistent test output while exercising the real HTTP clients.
package testutils

import (
	"fmt"
	"sync"
	"time"
)

// Epoch is the first instant handed out by a default Clock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a deterministic time source. Each call to Now returns a time that is
// one step later than the previous call.
type Clock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewClock creates a clock starting at start and advancing by step per reading.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{next: start, step: step}
}

// NewDefaultClock starts at Epoch and advances one second per reading.
func NewDefaultClock() *Clock {
	return NewClock(Epoch, time.Second)
}

// Now returns the current reading and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.next.Add(d)
}

// IDSequence generates deterministic ids that keep the UUID v4 layout.
type IDSequence struct {
	mu sync.Mutex
	n  uint64
}

// Next returns ids like 00000001-0000-4000-8000-000000000001.
func (s *IDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.n++
	// Format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", s.n, s.n)
}

