// Package daemon runs a coordination hub as a long-lived process: it serves
// the HTTP surface, probes configured APIs, publishes snapshots to Redis,
// and applies config file changes while running.
package daemon

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Iron-Ham/apihub/internal/circuit"
	"github.com/Iron-Ham/apihub/internal/config"
	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/event"
	"github.com/Iron-Ham/apihub/internal/logging"
	"github.com/Iron-Ham/apihub/internal/prober"
	"github.com/Iron-Ham/apihub/internal/server"
	"github.com/Iron-Ham/apihub/internal/telemetry"
	"github.com/sourcegraph/conc"
)

const readHeaderTimeout = 10 * time.Second

// Daemon owns a hub and the background work around it.
type Daemon struct {
	logger     *logging.Logger
	bus        *event.Bus
	hub        *coordination.Hub
	configPath string

	mu  sync.Mutex
	cfg *config.Config

	probeMu     sync.Mutex
	probeCancel context.CancelFunc
	probeDone   chan struct{}

	addr  string
	ready chan struct{}
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logging.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithConfigPath enables hot reload of the config file at path.
func WithConfigPath(path string) Option {
	return func(d *Daemon) {
		d.configPath = path
	}
}

// New creates a Daemon and registers every API in cfg.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		logger: logging.NopLogger(),
		cfg:    cfg,
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.bus = event.NewBus(event.WithLogger(d.logger))
	d.subscribe()
	d.hub = coordination.NewHub(
		coordination.WithBus(d.bus),
		coordination.WithLogger(d.logger),
		coordination.WithHealthWindow(cfg.Health.WindowSize),
	)
	for _, name := range cfg.APINames() {
		if err := d.hub.RegisterAPI(name, cfg.APIs[name].HubConfig()); err != nil {
			return nil, errors.Wrapf(err, "register %s", name)
		}
	}
	return d, nil
}

// Hub returns the hub the daemon serves.
func (d *Daemon) Hub() *coordination.Hub { return d.hub }

// Bus returns the bus hub and prober events are published on.
func (d *Daemon) Bus() *event.Bus { return d.bus }

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Ready is closed once the HTTP listener is bound.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Addr returns the bound listen address. It is empty until Ready is closed.
func (d *Daemon) Addr() string {
	select {
	case <-d.ready:
		return d.addr
	default:
		return ""
	}
}

func (d *Daemon) subscribe() {
	event.On(d.bus, event.TypeAPIRegistered, func(ev event.APIRegisteredEvent) {
		d.logger.Info("api registered",
			"api", ev.API,
			"rate_limit", ev.RateLimit,
			"time_window", ev.TimeWindow.String(),
			"replaced", ev.Replaced)
	})
	event.On(d.bus, event.TypeCircuitStateChanged, func(ev event.CircuitStateChangedEvent) {
		if ev.To == circuit.StateOpen.String() {
			d.logger.Warn("circuit opened", "api", ev.API, "from", ev.From)
			return
		}
		d.logger.Info("circuit state changed", "api", ev.API, "from", ev.From, "to", ev.To)
	})
	event.On(d.bus, event.TypeRequestRejected, func(ev event.RequestRejectedEvent) {
		d.logger.Info("request rejected",
			"api", ev.API,
			"reason", ev.Reason,
			"retry_after", ev.RetryAfter.String())
	})
}

// Run serves until ctx is done, then shuts down gracefully within
// server.shutdown_timeout.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.Config()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.Server.Addr)
	}
	d.addr = ln.Addr().String()
	close(d.ready)

	srv := &http.Server{
		Handler: server.NewHandler(d.hub,
			server.WithLogger(d.logger),
			server.WithNamespace(cfg.Telemetry.Namespace),
			server.WithRuntimeMetrics(),
		),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	if cfg.Telemetry.Redis.Enabled {
		pub := d.redisPublisher(cfg)
		defer func() { _ = pub.Close() }()
		if err := pub.Ping(runCtx); err != nil {
			d.logger.Warn("redis unreachable, will keep retrying", "addr", cfg.Telemetry.Redis.Addr, "error", err.Error())
		}
		wg.Go(func() {
			pub.Run(runCtx, d.hub, cfg.Telemetry.Redis.PublishInterval)
		})
	}

	d.restartProbes(runCtx, cfg)

	var watcher *config.Watcher
	if d.configPath != "" {
		watcher, err = config.NewWatcher(d.configPath,
			func(next *config.Config) { d.Reload(runCtx, next) },
			func(err error) { d.logger.Warn("config reload failed", "error", err.Error()) },
		)
		if err != nil {
			d.logger.Warn("config hot reload disabled", "path", d.configPath, "error", err.Error())
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	d.logger.Info("serving", "addr", d.addr, "apis", len(cfg.APIs))

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = errors.Wrap(err, "serve")
	}

	if watcher != nil {
		watcher.Stop()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = errors.Wrap(err, "shutdown")
	}

	cancel()
	d.stopProbes()
	wg.Wait()
	d.logger.Info("stopped")
	return runErr
}

func (d *Daemon) redisPublisher(cfg *config.Config) *telemetry.RedisPublisher {
	r := cfg.Telemetry.Redis
	return telemetry.NewRedisPublisher(telemetry.RedisConfig{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Key:      r.Key,
		Channel:  r.Channel,
		TTL:      r.TTL,
	}, d.logger.WithComponent("telemetry"))
}

// Reload applies next. APIs whose settings changed, and new APIs, are
// re-registered, which resets their state. APIs missing from next stay
// registered until restart. It returns the re-registered names.
func (d *Daemon) Reload(ctx context.Context, next *config.Config) []string {
	d.mu.Lock()
	prev := d.cfg
	d.cfg = next
	d.mu.Unlock()

	changed, removed := config.ChangedAPIs(prev.APIs, next.APIs)
	applied := make([]string, 0, len(changed))
	for _, name := range changed {
		if err := d.hub.RegisterAPI(name, next.APIs[name].HubConfig()); err != nil {
			d.logger.Warn("re-register failed", "api", name, "error", err.Error())
			continue
		}
		applied = append(applied, name)
	}
	for _, name := range removed {
		d.logger.Warn("api removed from config stays registered until restart", "api", name)
	}

	if len(changed) > 0 || len(removed) > 0 || prev.Probe != next.Probe {
		d.restartProbes(ctx, next)
	}
	if prev.Server != next.Server || prev.Logging != next.Logging ||
		prev.Health != next.Health || prev.Telemetry != next.Telemetry {
		d.logger.Warn("settings outside apis and probe apply after restart")
	}

	d.logger.Info("config reloaded", "changed", applied, "removed", removed)
	d.bus.Publish(event.NewConfigReloadedEvent(d.configPath, applied))
	return applied
}

// ProbeTargets returns a target for every API in cfg with a probe URL.
func ProbeTargets(cfg *config.Config) []prober.Target {
	var targets []prober.Target
	for _, name := range cfg.APINames() {
		api := cfg.APIs[name]
		if api.ProbeURL == "" {
			continue
		}
		targets = append(targets, prober.Target{
			API:      name,
			URL:      api.ProbeURL,
			Interval: cfg.ProbeIntervalFor(name),
		})
	}
	return targets
}

func (d *Daemon) restartProbes(ctx context.Context, cfg *config.Config) {
	d.stopProbes()

	targets := ProbeTargets(cfg)
	if len(targets) == 0 || ctx.Err() != nil {
		return
	}
	p := prober.New(d.hub,
		prober.WithTimeout(cfg.Probe.Timeout),
		prober.WithBus(d.bus),
		prober.WithLogger(d.logger),
	)

	probeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.probeMu.Lock()
	d.probeCancel, d.probeDone = cancel, done
	d.probeMu.Unlock()

	go func() {
		defer close(done)
		p.Run(probeCtx, targets)
	}()
}

func (d *Daemon) stopProbes() {
	d.probeMu.Lock()
	cancel, done := d.probeCancel, d.probeDone
	d.probeCancel, d.probeDone = nil, nil
	d.probeMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
