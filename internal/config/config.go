package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/logging"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete apihub configuration
type Config struct {
	Logging   LoggingConfig        `mapstructure:"logging" yaml:"logging"`
	Health    HealthConfig         `mapstructure:"health" yaml:"health"`
	Server    ServerConfig         `mapstructure:"server" yaml:"server"`
	Probe     ProbeConfig          `mapstructure:"probe" yaml:"probe"`
	Telemetry TelemetryConfig      `mapstructure:"telemetry" yaml:"telemetry"`
	APIs      map[string]APIConfig `mapstructure:"apis" yaml:"apis"`
}

// LoggingConfig controls the structured log output
type LoggingConfig struct {
	// Level is the minimum level written: "debug", "info", "warn", or "error"
	Level string `mapstructure:"level" yaml:"level"`
	// File is the log file path. Empty means stderr.
	File string `mapstructure:"file" yaml:"file"`
	// MaxSizeMB is the size at which the log file is rotated
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is how many rotated files are kept
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Rotation returns the rotation settings for logging.NewLoggerWithRotation.
func (l LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
	}
}

// HealthConfig controls the per-API health window
type HealthConfig struct {
	// WindowSize is the number of most recent outcomes a health score covers
	WindowSize int `mapstructure:"window_size" yaml:"window_size"`
}

// ServerConfig controls the HTTP surface of `apihub serve`
type ServerConfig struct {
	// Addr is the listen address, e.g. ":9090"
	Addr string `mapstructure:"addr" yaml:"addr"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// BaseURL returns the URL clients use to reach a server listening on Addr.
func (s ServerConfig) BaseURL() string {
	addr := s.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// ProbeConfig controls the endpoint prober
type ProbeConfig struct {
	// Interval is used for APIs that set no probe_interval
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Timeout bounds a single probe request
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Concurrency bounds how many probes `apihub probe` runs at once
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// TelemetryConfig controls metric export
type TelemetryConfig struct {
	// Namespace prefixes every Prometheus metric name
	Namespace string      `mapstructure:"namespace" yaml:"namespace"`
	Redis     RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig controls publishing hub snapshots to Redis
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	// Key receives the latest snapshot JSON
	Key string `mapstructure:"key" yaml:"key"`
	// Channel receives every snapshot as a pub/sub message. Empty disables it.
	Channel string `mapstructure:"channel" yaml:"channel"`
	// TTL expires Key when publishing stops. Zero means no expiry.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
	// PublishInterval is how often a snapshot is published
	PublishInterval time.Duration `mapstructure:"publish_interval" yaml:"publish_interval"`
}

// APIConfig is one entry under apis.<name>. Zero hub fields take the hub's
// defaults at registration.
type APIConfig struct {
	RateLimit               int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	TimeWindow              time.Duration `mapstructure:"time_window" yaml:"time_window"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`
	Timeout                 time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SuccessThreshold        int           `mapstructure:"success_threshold" yaml:"success_threshold"`
	Priority                int           `mapstructure:"priority" yaml:"priority"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries              int           `mapstructure:"max_retries" yaml:"max_retries"`

	// ProbeURL, when set, is fetched periodically by the prober
	ProbeURL string `mapstructure:"probe_url" yaml:"probe_url,omitempty"`
	// ProbeInterval overrides probe.interval for this API
	ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"probe_interval,omitempty"`
}

// HubConfig converts a to the configuration the hub registers.
func (a APIConfig) HubConfig() coordination.APIConfig {
	return coordination.APIConfig{
		RateLimit:               a.RateLimit,
		TimeWindow:              a.TimeWindow,
		CircuitBreakerThreshold: a.CircuitBreakerThreshold,
		Timeout:                 a.Timeout,
		SuccessThreshold:        a.SuccessThreshold,
		Priority:                a.Priority,
		RequestTimeout:          a.RequestTimeout,
		MaxRetries:              a.MaxRetries,
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Health: HealthConfig{
			WindowSize: 20,
		},
		Server: ServerConfig{
			Addr:            ":9090",
			ShutdownTimeout: 5 * time.Second,
		},
		Probe: ProbeConfig{
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			Concurrency: 4,
		},
		Telemetry: TelemetryConfig{
			Namespace: "apihub",
			Redis: RedisConfig{
				Enabled:         false,
				Addr:            "localhost:6379",
				Key:             "apihub:metrics",
				Channel:         "apihub:metrics",
				TTL:             time.Minute,
				PublishInterval: 10 * time.Second,
			},
		},
		APIs: map[string]APIConfig{},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)

	// Health defaults
	v.SetDefault("health.window_size", defaults.Health.WindowSize)

	// Server defaults
	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)

	// Probe defaults
	v.SetDefault("probe.interval", defaults.Probe.Interval)
	v.SetDefault("probe.timeout", defaults.Probe.Timeout)
	v.SetDefault("probe.concurrency", defaults.Probe.Concurrency)

	// Telemetry defaults
	v.SetDefault("telemetry.namespace", defaults.Telemetry.Namespace)
	v.SetDefault("telemetry.redis.enabled", defaults.Telemetry.Redis.Enabled)
	v.SetDefault("telemetry.redis.addr", defaults.Telemetry.Redis.Addr)
	v.SetDefault("telemetry.redis.password", defaults.Telemetry.Redis.Password)
	v.SetDefault("telemetry.redis.db", defaults.Telemetry.Redis.DB)
	v.SetDefault("telemetry.redis.key", defaults.Telemetry.Redis.Key)
	v.SetDefault("telemetry.redis.channel", defaults.Telemetry.Redis.Channel)
	v.SetDefault("telemetry.redis.ttl", defaults.Telemetry.Redis.TTL)
	v.SetDefault("telemetry.redis.publish_interval", defaults.Telemetry.Redis.PublishInterval)
}

// EnvPrefix prefixes environment overrides, e.g. APIHUB_SERVER_ADDR for
// server.addr and APIHUB_APIS_GITHUB_RATE_LIMIT for apis.github.rate_limit.
const EnvPrefix = "APIHUB"

// BindEnv makes v consult APIHUB_* environment variables for every key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return load(viper.GetViper())
}

// LoadFile reads and validates the config file at path without touching the
// global viper instance. Environment overrides apply as they do for Load.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	BindEnv(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.APIs == nil {
		cfg.APIs = map[string]APIConfig{}
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// APINames returns the configured API names, sorted.
func (c *Config) APINames() []string {
	return slices.Sorted(maps.Keys(c.APIs))
}

// ProbeIntervalFor returns the probe interval for the named API.
func (c *Config) ProbeIntervalFor(name string) time.Duration {
	if api, ok := c.APIs[name]; ok && api.ProbeInterval > 0 {
		return api.ProbeInterval
	}
	return c.Probe.Interval
}

// ChangedAPIs returns the names whose configuration differs between prev and
// next, including names only present in next, sorted. Names only present in
// prev are returned separately as removed.
func ChangedAPIs(prev, next map[string]APIConfig) (changed, removed []string) {
	for _, name := range slices.Sorted(maps.Keys(next)) {
		if old, ok := prev[name]; !ok || old != next[name] {
			changed = append(changed, name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(prev)) {
		if _, ok := next[name]; !ok {
			removed = append(removed, name)
		}
	}
	return changed, removed
}

// configHeader is prepended to files written by WriteFile.
const configHeader = `# apihub configuration
#
# Every key can be overridden with an APIHUB_ environment variable,
# e.g. APIHUB_SERVER_ADDR for server.addr.
#
# Each entry under apis registers one API with the hub. Zero values take
# the hub defaults (rate_limit 1000 per time_window 1h, breaker threshold 5,
# breaker timeout 30s, success_threshold 2, request_timeout 30s, max_retries 3).

`

// WriteFile writes cfg to path as YAML, creating parent directories.
// It refuses to overwrite an existing file.
func WriteFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Example returns the default configuration with one sample API, as written
// by `apihub config init`.
func Example() *Config {
	cfg := Default()
	cfg.APIs["github"] = APIConfig{
		RateLimit:               5000,
		TimeWindow:              time.Hour,
		CircuitBreakerThreshold: 5,
		Timeout:                 30 * time.Second,
		SuccessThreshold:        2,
		RequestTimeout:          30 * time.Second,
		MaxRetries:              3,
		ProbeURL:                "https://api.github.com/zen",
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "apihub")
	}
	// Fall back to ~/.config/apihub
	home, err := os.UserHomeDir()
	if err != nil {
		return ".apihub"
	}
	return filepath.Join(home, ".config", "apihub")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
