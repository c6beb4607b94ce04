package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a DeterministicClock.
var Epoch = time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

// DeterministicClock provides a thread-safe wall clock for tests.
//
// Every call to Now advances the clock by Step, starting at Epoch, so ledger
// timestamps, history file names and manifests are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	next time.Time
	Step time.Duration
}

// NewDeterministicClock creates a clock whose first Now() returns Epoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{next: Epoch, Step: time.Second}
}

// NewFrozenClock creates a clock that always returns Epoch.
func NewFrozenClock() *DeterministicClock {
	return &DeterministicClock{next: Epoch}
}

// Now returns the current instant and advances the clock by Step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.Step)
	return t
}

// Current returns what the next call to Now will return, without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
