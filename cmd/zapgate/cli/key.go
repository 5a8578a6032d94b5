package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zapgate/zapgate/internal/auth"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage connection API keys",
		Long:  "Issue and revoke the API keys gateway clients authenticate with.",
	}

	cmd.AddCommand(newKeyIssueCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key issue ----------

func newKeyIssueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue <connection-id>",
		Short: "Issue a new API key for a connection",
		Long:  "Generate a fresh API key, replacing any previous one. The raw key is shown once and cannot be retrieved again.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid connection id: %q", args[0])
			}
			return runKeyIssue(cmd, id)
		},
	}
	return cmd
}

func runKeyIssue(cmd *cobra.Command, connectionID int64) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	resolver := auth.NewResolver(st)
	raw, err := resolver.IssueKey(context.Background(), connectionID)
	if err != nil {
		return fmt.Errorf("issue key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API key for connection %d:\n\n  %s\n\n", connectionID, raw)
	fmt.Fprintln(out, "Store it now; only a hash is kept on the server.")
	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <connection-id>",
		Short: "Disable API access for a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid connection id: %q", args[0])
			}
			return runKeyRevoke(cmd, id)
		},
	}
	return cmd
}

func runKeyRevoke(cmd *cobra.Command, connectionID int64) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.DeauthorizeConnection(context.Background(), connectionID); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Disabled API access for connection %d\n", connectionID)
	return nil
}
