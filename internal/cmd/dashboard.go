package cmd

import (
	"time"

	"github.com/Iron-Ham/apihub/internal/dashboard"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live view of a running server",
	Long: `Poll a running apihub server and show every API's circuit state, health,
remaining tokens, and request counters.

Keys: up/down select, x resets the selected circuit, r refreshes, q quits.`,
	RunE: runDashboard,
}

var dashboardInterval time.Duration

func init() {
	dashboardCmd.Flags().DurationVar(&dashboardInterval, "interval", dashboard.DefaultInterval, "polling interval")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	client, err := newServerClient()
	if err != nil {
		return err
	}
	// Fail fast instead of opening an empty screen.
	if err := client.Healthz(cmd.Context()); err != nil {
		return err
	}
	return dashboard.Run(client, client.BaseURL(), dashboardInterval)
}
