package reconciler

import (
	"context"
	"fmt"

	"github.com/zapgate/zapgate/internal/model"
)

// SweepOptions scope one reconciliation sweep.
type SweepOptions struct {
	// TenantID restricts the sweep to one tenant when non-zero.
	TenantID int64
	// DryRun reports findings without executing teardown.
	DryRun bool
}

// SweepReport is the structured outcome of one sweep.
type SweepReport struct {
	Examined int      `json:"examined"`
	Entitled int      `json:"entitled"`
	Flagged  []int64  `json:"flagged_tenant_ids"`
	Results  []Result `json:"results,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Sweep enumerates active tenants that still have connected connections and
// re-checks each one's entitlement. Tenants failing the check are
// deauthorized (or only reported, under DryRun). One tenant's failure
// never blocks the rest; failures land in the report, not in the returned
// error, which covers only the enumeration itself.
func (r *Reconciler) Sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	var candidates []model.Tenant
	if opts.TenantID != 0 {
		tenant, err := r.store.GetTenant(ctx, opts.TenantID)
		if err != nil {
			return nil, fmt.Errorf("load tenant %d: %w", opts.TenantID, err)
		}
		candidates = []model.Tenant{*tenant}
	} else {
		var err error
		candidates, err = r.store.ListTenantsWithConnectedConnections(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate sweep candidates: %w", err)
		}
	}

	report := &SweepReport{}
	now := r.now()

	for _, tenant := range candidates {
		report.Examined++

		if tenant.Entitled(now) {
			report.Entitled++
			continue
		}

		report.Flagged = append(report.Flagged, tenant.ID)
		if opts.DryRun {
			r.logger.Info("dry run: tenant would be deauthorized",
				"tenant_id", tenant.ID, "subscription_status", tenant.SubscriptionStatus)
			continue
		}

		result, err := r.Deauthorize(ctx, tenant.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("tenant %d: %v", tenant.ID, err))
			r.logger.Error("sweep deauthorization failed", "tenant_id", tenant.ID, "error", err)
			continue
		}
		report.Results = append(report.Results, *result)
	}

	return report, nil
}
