package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zapgate/zapgate/internal/model"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
		Long:  "Create and list the tenants the gateway serves.",
	}

	cmd.AddCommand(newTenantCreateCmd())
	cmd.AddCommand(newTenantListCmd())

	return cmd
}

// ---------- tenant create ----------

func newTenantCreateCmd() *cobra.Command {
	var (
		name       string
		billingRef string
		status     string
		trialDays  int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant",
		Example: `  zapgate tenant create --name "Acme Corp" --billing-ref cus_123
  zapgate tenant create --name "Trial Co" --status trialing --trial-days 14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantCreate(cmd, name, billingRef, status, trialDays)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Tenant display name (required)")
	cmd.Flags().StringVar(&billingRef, "billing-ref", "", "Billing provider customer id")
	cmd.Flags().StringVar(&status, "status", model.SubTrialing, "Initial subscription status")
	cmd.Flags().IntVar(&trialDays, "trial-days", 0, "Days until the trial window closes")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runTenantCreate(cmd *cobra.Command, name, billingRef, status string, trialDays int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	tenant := &model.Tenant{
		Name:               name,
		IsActive:           true,
		BillingRef:         billingRef,
		SubscriptionStatus: status,
	}
	if trialDays > 0 {
		ends := time.Now().UTC().AddDate(0, 0, trialDays)
		tenant.TrialEndsAt = &ends
	}
	if err := st.CreateTenant(context.Background(), tenant); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created tenant %q (id %d)\n", tenant.Name, tenant.ID)
	return nil
}

// ---------- tenant list ----------

func newTenantListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runTenantList(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	tenants, err := st.ListTenants(context.Background())
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tenants)
	}

	fmt.Fprintf(out, "%-5s %-30s %-12s %-20s %s\n", "ID", "NAME", "ACTIVE", "SUBSCRIPTION", "BILLING REF")
	for _, t := range tenants {
		fmt.Fprintf(out, "%-5d %-30s %-12v %-20s %s\n",
			t.ID, t.Name, t.IsActive, t.SubscriptionStatus, t.BillingRef)
	}
	return nil
}
