package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofatutor/campaign-edge/internal/admin"
	"github.com/sofatutor/campaign-edge/internal/api"
	"github.com/sofatutor/campaign-edge/internal/config"
)

func newRateLimitsCmd() *cobra.Command {
	var adminURL string
	cmd := &cobra.Command{
		Use:   "ratelimits",
		Short: "Inspect and reset rate limit ledger entries",
		Long:  `Operate the rate limit ledger through the admin API.`,
	}
	cmd.PersistentFlags().StringVar(&adminURL, "admin-url", config.EnvOrDefault("ADMIN_URL", "http://localhost:8081"), "Admin API base URL")
	cmd.PersistentFlags().String("management-token", "", "Management token (defaults to MANAGEMENT_TOKEN)")

	newClient := func(cmd *cobra.Command) (*admin.APIClient, error) {
		token, err := api.GetManagementToken(cmd)
		if err != nil {
			return nil, err
		}
		return admin.NewAPIClient(adminURL, token), nil
	}

	var prefix string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List live ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			list, err := c.ListRateLimits(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tCOUNT\tRESETS AT")
			for _, e := range list.Entries {
				fmt.Fprintf(w, "%s\t%d\t%s\n", e.Key, e.Count, e.ResetAt.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries\n", list.Count)
			return nil
		},
	}
	listCmd.Flags().StringVar(&prefix, "prefix", "", "Only list keys with this prefix (e.g. chat:)")

	resetCmd := &cobra.Command{
		Use:   "reset <key>",
		Short: "Delete the ledger entry for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.ResetRateLimit(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", args[0])
			return nil
		},
	}

	policiesCmd := &cobra.Command{
		Use:   "policies",
		Short: "Show the rate limit policy of every endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			policies, err := c.GetPolicies(cmd.Context())
			if err != nil {
				return err
			}
			names := make([]string, 0, len(policies))
			for name := range policies {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tENABLED\tWINDOW\tANONYMOUS\tAUTHENTICATED")
			for _, name := range names {
				p := policies[name]
				fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%d\n", name, p.Enabled, p.Window, p.Anonymous, p.Authenticated)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(listCmd, resetCmd, policiesCmd)
	return cmd
}
