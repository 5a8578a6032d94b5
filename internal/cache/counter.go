// Package cache provides the ephemeral counter store backing the rate
// limiter: per-key integer counters with a TTL that starts at the first
// increment of a window and resets implicitly on expiry.
package cache

import (
	"sync"
	"time"
)

// Counter is the contract the rate limiter needs from a cache backend.
// Implementations must make CheckAndIncr atomic per key: the read of the
// current count and the conditional increment may not interleave with
// another caller's.
type Counter interface {
	// Get returns the current count for key, or 0 if absent or expired.
	Get(key string) int64
	// CheckAndIncr increments key's counter and returns the new count,
	// unless the current count already reached limit, in which case the
	// counter is left untouched and ok is false. The TTL starts when the
	// counter is created and is not extended by later increments.
	CheckAndIncr(key string, limit int64, ttl time.Duration) (count int64, ok bool)
	// Reset removes the counter for key.
	Reset(key string)
}

type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounter is an in-process Counter. A janitor goroutine drops expired
// windows so idle keys do not accumulate.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window

	stopOnce sync.Once
	stop     chan struct{}

	// now is swappable for tests.
	now func() time.Time
}

// NewMemoryCounter creates a MemoryCounter and starts its janitor, which
// sweeps expired windows every cleanupInterval (1m if zero).
func NewMemoryCounter(cleanupInterval time.Duration) *MemoryCounter {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	c := &MemoryCounter{
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go c.janitor(cleanupInterval)
	return c
}

// Get returns the live count for key.
func (c *MemoryCounter) Get(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || c.now().After(w.expiresAt) {
		return 0
	}
	return w.count
}

// CheckAndIncr implements the atomic check-then-increment. An expired window
// is treated as absent, so the first increment after expiry opens a fresh
// window with a fresh TTL.
func (c *MemoryCounter) CheckAndIncr(key string, limit int64, ttl time.Duration) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &window{expiresAt: now.Add(ttl)}
		c.windows[key] = w
	}

	if limit > 0 && w.count >= limit {
		return w.count, false
	}
	w.count++
	return w.count, true
}

// Reset removes the counter for key.
func (c *MemoryCounter) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
}

// Stop terminates the janitor goroutine.
func (c *MemoryCounter) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryCounter) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, w := range c.windows {
				if now.After(w.expiresAt) {
					delete(c.windows, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
