package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/apihub/internal/config"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "apihub",
	Short: "Rate limiting and circuit breaking for outbound API calls",
	Long: `apihub coordinates calls to external APIs. Each registered API gets a
token bucket rate limiter, a circuit breaker, and a rolling health score.

Run 'apihub serve' to host a hub configured from config.yaml, then inspect
it with 'apihub status' or 'apihub dashboard'.`,
	SilenceUsage: true,
}

// configErr holds the error from reading an explicitly named config file.
var configErr error

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/apihub/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "URL of a running apihub server (default derived from server.addr)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, or error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	configErr = nil

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	cfgFile := viper.GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/apihub")
		viper.AddConfigPath(".")
	}

	config.BindEnv(viper.GetViper())

	// A missing default config file is fine; a missing explicit one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("failed to read config: %w", err)
		}
	}
}

// loadConfig returns the validated configuration for the current command.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serverURL returns the --server flag, APIHUB_SERVER_URL, or the URL of
// server.addr on this host.
func serverURL() (string, error) {
	if u := viper.GetString("server_url"); u != "" {
		return u, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Server.BaseURL(), nil
}

// newLogger builds the logger described by cfg. Without a log file it
// writes to stderr.
func newLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	if cfg.Logging.File == "" {
		return logging.NewWriterLogger(stderr, cfg.Logging.Level), nil
	}
	logger, err := logging.NewLoggerWithRotation(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Rotation())
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logger, nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
