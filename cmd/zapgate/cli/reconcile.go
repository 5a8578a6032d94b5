package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zapgate/zapgate/internal/provider"
	"github.com/zapgate/zapgate/internal/reconciler"
)

func newReconcileCmd() *cobra.Command {
	var (
		tenantID int64
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Sweep tenants and deauthorize lapsed subscriptions",
		Long: `Enumerate active tenants holding connected instances and tear down access
for any whose subscription no longer grants entitlement. Intended to run
periodically (cron) as a safety net behind billing webhooks.`,
		Example: `  zapgate reconcile
  zapgate reconcile --dry-run
  zapgate reconcile --tenant 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, tenantID, dryRun)
		},
	}

	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "Restrict the sweep to one tenant ID")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be deauthorized without acting")

	return cmd
}

func runReconcile(cmd *cobra.Command, tenantID int64, dryRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	client := provider.NewClient()
	pool := provider.NewPool(cfg.Provider.Accounts, st)
	rc := reconciler.New(st, client, pool, logger)

	report, err := rc.Sweep(context.Background(), reconciler.SweepOptions{
		TenantID: tenantID,
		DryRun:   dryRun,
	})
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "examined: %d\n", report.Examined)
	fmt.Fprintf(out, "entitled: %d\n", report.Entitled)
	fmt.Fprintf(out, "flagged:  %d\n", len(report.Flagged))
	if dryRun {
		for _, id := range report.Flagged {
			fmt.Fprintf(out, "  tenant %d: would deauthorize\n", id)
		}
	}
	for _, res := range report.Results {
		fmt.Fprintf(out, "  tenant %d: processed=%d succeeded=%d failed=%d\n",
			res.TenantID, res.Processed, res.Succeeded, res.Failed)
	}
	// Per-tenant failures are reported, not fatal: the sweep completed.
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
	return nil
}
