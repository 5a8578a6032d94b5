// Package ratelimit implements the per-connection fixed-window request
// limiter. Each connection has an independent budget; the window opens at
// the first counted request and expires 60 seconds later, so windows slide
// with traffic rather than aligning to wall-clock minutes.
package ratelimit

import (
	"errors"
	"strconv"
	"time"

	"github.com/zapgate/zapgate/internal/cache"
)

// ErrRateLimited is returned when a connection's window budget is spent.
var ErrRateLimited = errors.New("rate limit exceeded")

// Window is the fixed-window duration.
const Window = 60 * time.Second

// Limiter enforces per-connection request budgets on top of a cache
// counter. Requests over the limit are rejected without incrementing the
// counter, so abuse cannot grow the window count past the limit.
type Limiter struct {
	counter cache.Counter
	window  time.Duration
}

// New creates a Limiter with the standard 60s window.
func New(counter cache.Counter) *Limiter {
	return &Limiter{counter: counter, window: Window}
}

// Allow records one request for the connection if the window budget
// permits, returning ErrRateLimited otherwise. The check and the increment
// are atomic in the counter store.
func (l *Limiter) Allow(connectionID int64, limit int) error {
	if limit <= 0 {
		return nil // unlimited
	}
	if _, ok := l.counter.CheckAndIncr(key(connectionID), int64(limit), l.window); !ok {
		return ErrRateLimited
	}
	return nil
}

// Current returns the live count in the connection's window.
func (l *Limiter) Current(connectionID int64) int64 {
	return l.counter.Get(key(connectionID))
}

func key(connectionID int64) string {
	return "rl:conn:" + strconv.FormatInt(connectionID, 10)
}
