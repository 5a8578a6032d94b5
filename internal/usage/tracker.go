// Package usage asynchronously bumps per-connection usage counters after
// responses are delivered, so metering never adds latency to the caller.
// Delivery is at-least-once within the process; an increment lost to a
// crash between response and drain is tolerated, this is not the billing
// system of record.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store is what the tracker needs from the persistence layer.
type Store interface {
	TouchConnectionUsage(ctx context.Context, connectionID int64) error
}

// Tracker drains recorded connection ids on a background worker, writing
// each as a single atomic UPDATE.
type Tracker struct {
	store  Store
	logger *slog.Logger
	queue  chan int64

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewTracker creates a Tracker with the given queue depth (1024 if zero)
// and starts its worker.
func NewTracker(store Store, logger *slog.Logger, queueSize int) *Tracker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	t := &Tracker{
		store:  store,
		logger: logger,
		queue:  make(chan int64, queueSize),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.worker()
	return t
}

// recordWait is how long Record waits for queue space before dropping the
// increment. Long enough to ride out a request burst outpacing the worker,
// short enough that a stalled database cannot pile up callers.
const recordWait = 250 * time.Millisecond

// Record enqueues a usage increment for the connection. The happy path
// never blocks; on a full queue it waits briefly for the worker to catch
// up, and only then drops the increment with a warning.
func (t *Tracker) Record(connectionID int64) {
	select {
	case t.queue <- connectionID:
		return
	default:
	}
	select {
	case t.queue <- connectionID:
	case <-time.After(recordWait):
		t.logger.Warn("usage queue full, increment dropped", "connection_id", connectionID)
	}
}

// Shutdown stops the worker after draining whatever is already queued.
func (t *Tracker) Shutdown() {
	t.stopOnce.Do(func() { close(t.done) })
	t.wg.Wait()
}

func (t *Tracker) worker() {
	defer t.wg.Done()

	for {
		select {
		case id := <-t.queue:
			t.flush(id)
		case <-t.done:
			// Drain what is already enqueued, then exit.
			for {
				select {
				case id := <-t.queue:
					t.flush(id)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracker) flush(connectionID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.store.TouchConnectionUsage(ctx, connectionID); err != nil {
		t.logger.Error("usage increment failed", "connection_id", connectionID, "error", err)
	}
}
