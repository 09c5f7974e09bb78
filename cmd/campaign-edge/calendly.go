package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sofatutor/campaign-edge/internal/client"
	"github.com/sofatutor/campaign-edge/internal/config"
)

func newCalendlyCmd() *cobra.Command {
	var proxyURL, token string
	cmd := &cobra.Command{
		Use:   "calendly <action> [key=value ...]",
		Short: "Invoke a scheduling proxy action",
		Long: `Invoke one action on the scheduling proxy and print its data.

Examples:
  campaign-edge calendly getEventTypes
  campaign-edge calendly getAvailableTimes event_type=<uri> start_time=2025-06-02T00:00:00Z end_time=2025-06-09T00:00:00Z`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			data, err := client.NewSchedulingClient(proxyURL, token).Invoke(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, data, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(data)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&proxyURL, "proxy", config.EnvOrDefault("EDGE_URL", "http://localhost:8080"), "Edge proxy URL")
	cmd.Flags().StringVar(&token, "token", config.EnvOrDefault("EDGE_USER_TOKEN", ""), "User access token")
	return cmd
}

// parseParams turns key=value arguments into action parameters.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}
