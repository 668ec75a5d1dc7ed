package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/dashboard"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/server"
	"github.com/spf13/cobra"
)

const requestTimeout = 10 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status [api...]",
	Short: "Show rate limit, circuit, and health state of a running server",
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

func newServerClient() (*server.Client, error) {
	url, err := serverURL()
	if err != nil {
		return nil, err
	}
	return server.NewClient(url, &http.Client{Timeout: requestTimeout}), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newServerClient()
	if err != nil {
		return err
	}

	export, err := client.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	if len(args) > 0 {
		if export, err = filterExport(export, args); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(export)
	}
	_, err = fmt.Fprint(out, dashboard.Render(export, isTerminal(out)))
	return err
}

// filterExport keeps only the named APIs. Every name must be present.
func filterExport(export coordination.Export, names []string) (coordination.Export, error) {
	filtered := coordination.Export{
		Timestamp: export.Timestamp,
		APIs:      make(map[string]coordination.APISnapshot, len(names)),
	}
	for _, name := range names {
		s, ok := export.APIs[name]
		if !ok {
			return coordination.Export{}, errors.NewUnregisteredError(name)
		}
		filtered.APIs[name] = s
	}
	return filtered, nil
}

var resetCmd = &cobra.Command{
	Use:   "reset <api>",
	Short: "Force an API's circuit breaker closed on a running server",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	client, err := newServerClient()
	if err != nil {
		return err
	}
	if err := client.Reset(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Circuit for %s reset to CLOSED\n", args[0])
	return nil
}
