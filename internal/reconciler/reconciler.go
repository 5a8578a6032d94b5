// Package reconciler keeps connected resources consistent with billing
// entitlement. Billing webhook events and a scheduled sweep both converge
// on one idempotent operation: deauthorizing a tenant that lost
// entitlement.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zapgate/zapgate/internal/audit"
	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/provider"
	"github.com/zapgate/zapgate/internal/store"
)

// DefaultBackoff is the between-attempt schedule for failed deauthorization
// tasks: the task is tried at most len(DefaultBackoff)+1 times.
var DefaultBackoff = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// Reconciler executes tenant deauthorization with retry and exposes the
// webhook and sweep entry points that trigger it.
type Reconciler struct {
	store    *store.Store
	provider *provider.Client
	pool     *provider.Pool
	logger   *slog.Logger

	backoff []time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// New creates a Reconciler with the default retry schedule.
func New(st *store.Store, client *provider.Client, pool *provider.Pool, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:    st,
		provider: client,
		pool:     pool,
		logger:   logger,
		backoff:  DefaultBackoff,
		now:      time.Now,
	}
}

// SetBackoff overrides the retry schedule; emptying it means a single
// attempt. Used by fast tests.
func (r *Reconciler) SetBackoff(backoff []time.Duration) {
	r.backoff = backoff
}

// Result summarizes one deauthorization run.
type Result struct {
	TenantID  int64 `json:"tenant_id"`
	Skipped   bool  `json:"skipped"` // entitlement present at execution time
	Processed int   `json:"processed"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
}

// Deauthorize tears down a tenant's connected resources. Idempotent and
// safe to run repeatedly:
//
//  1. Entitlement is re-verified first; a tenant whose entitlement was
//     restored between trigger and execution is left untouched.
//  2. Every connected connection is torn down independently: the upstream
//     disconnect is attempted, then the local safety state (disconnected,
//     API disabled) is applied regardless of the upstream outcome.
//  3. The tenant is marked inactive.
func (r *Reconciler) Deauthorize(ctx context.Context, tenantID int64) (*Result, error) {
	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %d: %w", tenantID, err)
	}

	if tenant.Entitled(r.now()) {
		r.logger.Info("deauthorization skipped, entitlement present", "tenant_id", tenantID)
		return &Result{TenantID: tenantID, Skipped: true}, nil
	}

	conns, err := r.store.ListConnectedByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list connected connections: %w", err)
	}

	rec := audit.NewRecorder(r.store, r.logger)
	rec.StartTimer()

	result := &Result{TenantID: tenantID}
	for i := range conns {
		conn := &conns[i]
		result.Processed++

		if err := r.disconnectUpstream(ctx, rec, conn); err != nil {
			result.Failed++
			r.logger.Warn("upstream disconnect failed",
				"tenant_id", tenantID, "connection_id", conn.ID, "error", err)
		} else {
			result.Succeeded++
		}

		// Local safety state must not depend on a flaky upstream.
		if err := r.store.DeauthorizeConnection(ctx, conn.ID); err != nil {
			r.logger.Error("local deauthorize failed",
				"tenant_id", tenantID, "connection_id", conn.ID, "error", err)
		}
	}

	if err := r.store.SetTenantActive(ctx, tenantID, false); err != nil {
		return result, fmt.Errorf("deactivate tenant %d: %w", tenantID, err)
	}

	r.logger.Info("tenant deauthorized",
		"tenant_id", tenantID,
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}

func (r *Reconciler) disconnectUpstream(ctx context.Context, rec *audit.Recorder, conn *model.Connection) error {
	acct, err := r.pool.Get(conn.ProviderAccount)
	if err != nil {
		return err
	}
	return r.provider.Disconnect(ctx, rec, acct, conn)
}

// Enqueue schedules a deauthorization as a detached background task with
// retry. It never blocks the caller and never panics the consumer.
func (r *Reconciler) Enqueue(tenantID int64) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runWithRetry(tenantID)
	}()
}

// Wait blocks until all enqueued tasks have finished. Used on shutdown.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// runWithRetry attempts the deauthorization up to len(backoff)+1 times.
// Terminal failure is recorded for operator visibility but does not crash
// anything.
func (r *Reconciler) runWithRetry(tenantID int64) {
	attempts := len(r.backoff) + 1
	for attempt := 1; ; attempt++ {
		_, err := r.Deauthorize(context.Background(), tenantID)
		if err == nil {
			return
		}
		if attempt >= attempts {
			r.logger.Error("deauthorization failed after all retries",
				"tenant_id", tenantID, "attempts", attempts, "error", err)
			return
		}
		delay := r.backoff[attempt-1]
		r.logger.Warn("deauthorization attempt failed, retrying",
			"tenant_id", tenantID, "attempt", attempt, "retry_in", delay, "error", err)
		time.Sleep(delay)
	}
}
