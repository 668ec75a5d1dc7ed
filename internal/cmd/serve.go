package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/apihub/internal/daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a coordination hub with an HTTP surface",
	Long: `Run a coordination hub for every API under apis in the config file.

The server exposes:
  GET  /metrics                Prometheus metrics
  GET  /snapshot               JSON snapshot of every API
  GET  /snapshot/{api}         JSON snapshot of one API
  POST /apis/{api}/reset       force an API's circuit breaker closed
  GET  /healthz                liveness

APIs with a probe_url are probed periodically through the hub. When
telemetry.redis.enabled is set, snapshots are also published to Redis.
Changes to the config file are applied without a restart.`,
	RunE: runServe,
}

var serveNoWatch bool

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not reload the config file when it changes")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	opts := []daemon.Option{daemon.WithLogger(logger)}
	if path := viper.ConfigFileUsed(); path != "" && !serveNoWatch {
		if _, err := os.Stat(path); err == nil {
			opts = append(opts, daemon.WithConfigPath(path))
		}
	}

	d, err := daemon.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		select {
		case <-d.Ready():
			fmt.Fprintf(cmd.OutOrStdout(), "apihub serving %d APIs on %s\n", len(cfg.APIs), d.Addr())
		case <-ctx.Done():
		}
	}()

	return d.Run(ctx)
}
