package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/apihub/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "apis.github.rate_limit")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

var (
	// apiNameRegex validates the keys under apis
	apiNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	// metricNamespaceRegex matches a valid Prometheus metric name prefix
	metricNamespaceRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

const (
	maxLogSizeMB       = 1000 // 1GB
	maxHealthWindow    = 10000
	maxProbeWorkers    = 64
	minProbeInterval   = time.Second
	minPublishInterval = 100 * time.Millisecond
)

// validLogLevels returns the logging levels in the lowercase form the
// config file uses.
func validLogLevels() []string {
	levels := logging.ValidLevels()
	for i, l := range levels {
		levels[i] = strings.ToLower(l)
	}
	return levels
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateHealth()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateProbe()...)
	errors = append(errors, c.validateTelemetry()...)
	errors = append(errors, c.validateAPIs()...)

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(validLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateHealth validates the HealthConfig
func (c *Config) validateHealth() []ValidationError {
	var errors []ValidationError

	if c.Health.WindowSize <= 0 || c.Health.WindowSize > maxHealthWindow {
		errors = append(errors, ValidationError{
			Field:   "health.window_size",
			Value:   c.Health.WindowSize,
			Message: fmt.Sprintf("must be between 1 and %d", maxHealthWindow),
		})
	}

	return errors
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Server.Addr) == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "cannot be empty",
		})
	}

	if c.Server.ShutdownTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_timeout",
			Value:   c.Server.ShutdownTimeout,
			Message: "must be positive",
		})
	}

	return errors
}

// validateProbe validates the ProbeConfig
func (c *Config) validateProbe() []ValidationError {
	var errors []ValidationError

	if c.Probe.Interval < minProbeInterval {
		errors = append(errors, ValidationError{
			Field:   "probe.interval",
			Value:   c.Probe.Interval,
			Message: fmt.Sprintf("must be at least %s", minProbeInterval),
		})
	}

	if c.Probe.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "probe.timeout",
			Value:   c.Probe.Timeout,
			Message: "must be positive",
		})
	}

	if c.Probe.Concurrency <= 0 || c.Probe.Concurrency > maxProbeWorkers {
		errors = append(errors, ValidationError{
			Field:   "probe.concurrency",
			Value:   c.Probe.Concurrency,
			Message: fmt.Sprintf("must be between 1 and %d", maxProbeWorkers),
		})
	}

	return errors
}

// validateTelemetry validates the TelemetryConfig
func (c *Config) validateTelemetry() []ValidationError {
	var errors []ValidationError

	if !metricNamespaceRegex.MatchString(c.Telemetry.Namespace) {
		errors = append(errors, ValidationError{
			Field:   "telemetry.namespace",
			Value:   c.Telemetry.Namespace,
			Message: "must start with a letter or underscore and contain only letters, digits, and underscores",
		})
	}

	r := c.Telemetry.Redis
	if !r.Enabled {
		return errors
	}

	if strings.TrimSpace(r.Addr) == "" {
		errors = append(errors, ValidationError{
			Field:   "telemetry.redis.addr",
			Value:   r.Addr,
			Message: "cannot be empty when redis is enabled",
		})
	}

	if strings.TrimSpace(r.Key) == "" {
		errors = append(errors, ValidationError{
			Field:   "telemetry.redis.key",
			Value:   r.Key,
			Message: "cannot be empty when redis is enabled",
		})
	}

	if r.DB < 0 {
		errors = append(errors, ValidationError{
			Field:   "telemetry.redis.db",
			Value:   r.DB,
			Message: "must be non-negative",
		})
	}

	if r.PublishInterval < minPublishInterval {
		errors = append(errors, ValidationError{
			Field:   "telemetry.redis.publish_interval",
			Value:   r.PublishInterval,
			Message: fmt.Sprintf("must be at least %s", minPublishInterval),
		})
	}

	if r.TTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "telemetry.redis.ttl",
			Value:   r.TTL,
			Message: "must be non-negative",
		})
	} else if r.TTL > 0 && r.TTL < r.PublishInterval {
		// The key would expire between publishes.
		errors = append(errors, ValidationError{
			Field:   "telemetry.redis.ttl",
			Value:   r.TTL,
			Message: "must be zero or at least publish_interval",
		})
	}

	return errors
}

// validateAPIs validates every entry under apis, in name order
func (c *Config) validateAPIs() []ValidationError {
	var errors []ValidationError

	for _, name := range c.APINames() {
		api := c.APIs[name]
		prefix := "apis." + name

		if !apiNameRegex.MatchString(name) {
			errors = append(errors, ValidationError{
				Field:   prefix,
				Value:   name,
				Message: "name must start with a letter or digit and contain only letters, digits, '.', '_', and '-'",
			})
		}

		ints := []struct {
			field string
			value int
		}{
			{"rate_limit", api.RateLimit},
			{"circuit_breaker_threshold", api.CircuitBreakerThreshold},
			{"success_threshold", api.SuccessThreshold},
		}
		for _, f := range ints {
			if f.value < 0 {
				errors = append(errors, ValidationError{
					Field:   prefix + "." + f.field,
					Value:   f.value,
					Message: "must be non-negative (0 uses the default)",
				})
			}
		}

		durations := []struct {
			field string
			value time.Duration
		}{
			{"time_window", api.TimeWindow},
			{"timeout", api.Timeout},
			{"request_timeout", api.RequestTimeout},
			{"probe_interval", api.ProbeInterval},
		}
		for _, f := range durations {
			if f.value < 0 {
				errors = append(errors, ValidationError{
					Field:   prefix + "." + f.field,
					Value:   f.value,
					Message: "must be non-negative (0 uses the default)",
				})
			}
		}

		if api.ProbeInterval > 0 && api.ProbeInterval < minProbeInterval {
			errors = append(errors, ValidationError{
				Field:   prefix + ".probe_interval",
				Value:   api.ProbeInterval,
				Message: fmt.Sprintf("must be at least %s", minProbeInterval),
			})
		}

		if api.ProbeURL != "" {
			if err := validateProbeURL(api.ProbeURL); err != "" {
				errors = append(errors, ValidationError{
					Field:   prefix + ".probe_url",
					Value:   api.ProbeURL,
					Message: err,
				})
			}
		}
	}

	return errors
}

// validateProbeURL returns a description of what is wrong with raw, or ""
func validateProbeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "must be a valid URL"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "must use http or https"
	}
	if u.Host == "" {
		return "must include a host"
	}
	return ""
}
