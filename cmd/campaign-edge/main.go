package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/sofatutor/campaign-edge/internal/server"
)

// For testing
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "campaign-edge",
		Short:         "Edge proxies for the campaign website",
		Long:          `Run and operate the chat and scheduling proxies that back the campaign website.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServerCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newCalendlyCmd())
	root.AddCommand(newRateLimitsCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "campaign-edge %s\n", server.Version)
		},
	})
	return root
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
