package coordination

import (
	"time"

	"github.com/Iron-Ham/apihub/internal/event"
	"github.com/Iron-Ham/apihub/internal/health"
	"github.com/Iron-Ham/apihub/internal/logging"
)

// hubConfig holds optional configuration for a Hub.
type hubConfig struct {
	now          func() time.Time
	healthWindow int
	logger       *logging.Logger
	bus          *event.Bus
}

func defaultHubConfig() hubConfig {
	return hubConfig{
		now:          time.Now,
		healthWindow: health.DefaultWindowSize,
		logger:       logging.NopLogger(),
	}
}

// Option configures a Hub.
type Option func(*hubConfig)

// WithClock sets the time source shared by every bucket, breaker, and
// latency measurement the hub owns. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *hubConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithHealthWindow sets the number of samples each health monitor keeps.
// A non-positive value uses health.DefaultWindowSize.
func WithHealthWindow(n int) Option {
	return func(c *hubConfig) {
		if n > 0 {
			c.healthWindow = n
		}
	}
}

// WithLogger sets the logger. The hub only logs at DEBUG.
func WithLogger(logger *logging.Logger) Option {
	return func(c *hubConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBus sets the event bus the hub publishes lifecycle events to.
// Without a bus, no events are published.
func WithBus(bus *event.Bus) Option {
	return func(c *hubConfig) { c.bus = bus }
}
