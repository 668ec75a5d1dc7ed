package cmd

import (
	"fmt"
	"io"
	"slices"

	"github.com/Iron-Ham/apihub/internal/daemon"
	"github.com/Iron-Ham/apihub/internal/dashboard"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/prober"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe [api...]",
	Short: "Probe configured APIs once through a local hub",
	Long: `Probe every API with a probe_url once, or only the named APIs, through
a hub built from the config file. Probes run concurrently, up to
probe.concurrency at a time.

Exits non-zero when any probe fails.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	d, err := daemon.New(cfg, daemon.WithLogger(logger))
	if err != nil {
		return err
	}

	targets := daemon.ProbeTargets(cfg)
	if len(args) > 0 {
		for _, name := range args {
			if _, ok := cfg.APIs[name]; !ok {
				return errors.NewUnregisteredError(name)
			}
		}
		targets = slices.DeleteFunc(targets, func(t prober.Target) bool {
			return !slices.Contains(args, t.API)
		})
	}
	if len(targets) == 0 {
		return fmt.Errorf("no APIs with a probe_url to probe")
	}

	p := prober.New(d.Hub(),
		prober.WithTimeout(cfg.Probe.Timeout),
		prober.WithBus(d.Bus()),
		prober.WithLogger(logger),
	)
	results := p.ProbeAll(cmd.Context(), targets, cfg.Probe.Concurrency)

	out := cmd.OutOrStdout()
	styled := isTerminal(out)
	failed := printProbeResults(out, results, styled)
	fmt.Fprintln(out)
	fmt.Fprint(out, dashboard.Render(d.Hub().ExportMetrics(), styled))

	if failed > 0 {
		return fmt.Errorf("%d of %d probes failed", failed, len(results))
	}
	return nil
}

// printProbeResults writes one line per result and returns the failures.
func printProbeResults(w io.Writer, results []prober.Result, styled bool) int {
	okStyle := lipgloss.NewStyle()
	failStyle := lipgloss.NewStyle()
	if styled {
		okStyle = okStyle.Foreground(dashboard.GreenColor)
		failStyle = failStyle.Foreground(dashboard.RedColor)
	}

	failed := 0
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(w, "%s   %s %d in %s\n", okStyle.Render("ok"), r.API, r.StatusCode, dashboard.FormatLatency(r.Latency))
			continue
		}
		failed++
		detail := fmt.Sprintf("status %d", r.StatusCode)
		if r.Err != nil {
			detail = r.Err.Error()
		}
		fmt.Fprintf(w, "%s %s %s\n", failStyle.Render("FAIL"), r.API, detail)
	}
	return failed
}
