package coordination

import (
	"time"

	"github.com/Iron-Ham/apihub/internal/circuit"
)

// Default APIConfig values.
const (
	DefaultRateLimit               = 1000
	DefaultTimeWindow              = time.Hour
	DefaultCircuitBreakerThreshold = 5
	DefaultTimeout                 = 30 * time.Second
	DefaultSuccessThreshold        = 2
	DefaultRequestTimeout          = 30 * time.Second
	DefaultMaxRetries              = 3
)

// APIConfig is the per-API configuration supplied at registration.
// Zero-valued fields take their defaults.
type APIConfig struct {
	// RateLimit is both the bucket capacity and the number of requests
	// admitted per TimeWindow.
	RateLimit int `json:"rate_limit"`
	// TimeWindow is the span over which RateLimit applies. The refill rate
	// is RateLimit/TimeWindow tokens per second.
	TimeWindow time.Duration `json:"time_window"`

	// CircuitBreakerThreshold is the failure count that opens the breaker.
	CircuitBreakerThreshold int `json:"circuit_breaker_threshold"`
	// Timeout is how long an open breaker waits before admitting a trial.
	Timeout time.Duration `json:"timeout"`
	// SuccessThreshold is the number of trial successes that close a
	// half-open breaker.
	SuccessThreshold int `json:"success_threshold"`

	// Priority is advisory metadata; the hub does not act on it.
	Priority int `json:"priority"`
	// RequestTimeout is advisory: callers apply it to each attempt.
	RequestTimeout time.Duration `json:"request_timeout"`
	// MaxRetries is advisory: callers use it to bound their own retries.
	// A negative value disables retries.
	MaxRetries int `json:"max_retries"`
}

// DefaultAPIConfig returns an APIConfig with every field at its default.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		RateLimit:               DefaultRateLimit,
		TimeWindow:              DefaultTimeWindow,
		CircuitBreakerThreshold: DefaultCircuitBreakerThreshold,
		Timeout:                 DefaultTimeout,
		SuccessThreshold:        DefaultSuccessThreshold,
		RequestTimeout:          DefaultRequestTimeout,
		MaxRetries:              DefaultMaxRetries,
	}
}

// withDefaults returns c with zero fields filled from DefaultAPIConfig.
func (c APIConfig) withDefaults() APIConfig {
	def := DefaultAPIConfig()
	if c.RateLimit <= 0 {
		c.RateLimit = def.RateLimit
	}
	if c.TimeWindow <= 0 {
		c.TimeWindow = def.TimeWindow
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = def.CircuitBreakerThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	return c
}

// Retries returns the number of retries a caller should attempt,
// treating a negative MaxRetries as zero.
func (c APIConfig) Retries() int {
	return max(c.MaxRetries, 0)
}

func (c APIConfig) breakerConfig() circuit.Config {
	return circuit.Config{
		FailureThreshold: c.CircuitBreakerThreshold,
		Timeout:          c.Timeout,
		SuccessThreshold: c.SuccessThreshold,
	}
}
