package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/zapgate/zapgate/internal/cache"
)

func TestAllowUpToLimitThenReject(t *testing.T) {
	counter := cache.NewMemoryCounter(time.Hour)
	defer counter.Stop()
	l := New(counter)

	const limit = 5
	for i := 1; i <= limit; i++ {
		if err := l.Allow(1, limit); err != nil {
			t.Fatalf("request %d: expected allowed, got %v", i, err)
		}
	}

	if err := l.Allow(1, limit); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request %d: expected ErrRateLimited, got %v", limit+1, err)
	}

	// Rejected requests do not count toward the window.
	if got := l.Current(1); got != limit {
		t.Errorf("window count after rejection: got %d, want %d", got, limit)
	}
}

func TestBudgetsAreIndependentPerConnection(t *testing.T) {
	counter := cache.NewMemoryCounter(time.Hour)
	defer counter.Stop()
	l := New(counter)

	if err := l.Allow(1, 1); err != nil {
		t.Fatalf("conn 1 first request: %v", err)
	}
	if err := l.Allow(1, 1); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("conn 1 second request: expected ErrRateLimited, got %v", err)
	}
	if err := l.Allow(2, 1); err != nil {
		t.Errorf("conn 2 must have its own budget, got %v", err)
	}
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	counter := cache.NewMemoryCounter(time.Hour)
	defer counter.Stop()
	l := New(counter)

	for i := 0; i < 500; i++ {
		if err := l.Allow(7, 0); err != nil {
			t.Fatalf("unlimited connection rejected at request %d: %v", i+1, err)
		}
	}
}
