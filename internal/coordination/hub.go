package coordination

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/apihub/internal/circuit"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/event"
	"github.com/Iron-Ham/apihub/internal/health"
	"github.com/Iron-Ham/apihub/internal/logging"
	"github.com/Iron-Ham/apihub/internal/ratelimit"
)

// Hub coordinates outbound calls to named APIs. It owns one token bucket,
// circuit breaker, health monitor, and metrics ledger per registered name.
// It is safe for concurrent use.
type Hub struct {
	mu   sync.RWMutex
	apis map[string]*apiEntry

	now          func() time.Time
	healthWindow int
	logger       *logging.Logger
	bus          *event.Bus
}

// apiEntry is everything the hub owns for one API. The bucket, breaker, and
// monitor guard themselves; mu guards metrics and latencyTotal.
type apiEntry struct {
	name    string
	cfg     APIConfig
	bucket  *ratelimit.Bucket
	breaker *circuit.Breaker
	monitor *health.Monitor

	mu           sync.Mutex
	metrics      Metrics
	latencyTotal time.Duration
}

// NewHub creates an empty Hub.
func NewHub(opts ...Option) *Hub {
	hc := defaultHubConfig()
	for _, opt := range opts {
		opt(&hc)
	}

	return &Hub{
		apis:         make(map[string]*apiEntry),
		now:          hc.now,
		healthWindow: hc.healthWindow,
		logger:       hc.logger.WithComponent("hub"),
		bus:          hc.bus,
	}
}

// RegisterAPI registers name with cfg, filling zero fields from
// DefaultAPIConfig. Registering a name again replaces its configuration and
// resets its bucket, breaker, health window, and metrics. Calls already in
// flight finish against the previous state.
func (h *Hub) RegisterAPI(name string, cfg APIConfig) error {
	if name == "" {
		return errors.NewValidationError("api name cannot be empty").WithField("name").WithValue(name)
	}
	cfg = cfg.withDefaults()

	entry := &apiEntry{
		name:    name,
		cfg:     cfg,
		bucket:  ratelimit.NewForWindow(cfg.RateLimit, cfg.TimeWindow, ratelimit.WithClock(h.now)),
		monitor: health.NewMonitor(h.healthWindow),
	}
	entry.breaker = circuit.New(cfg.breakerConfig(),
		circuit.WithClock(h.now),
		circuit.WithStateChange(func(from, to circuit.State) {
			h.onStateChange(entry, from, to)
		}),
	)

	h.mu.Lock()
	_, replaced := h.apis[name]
	h.apis[name] = entry
	h.mu.Unlock()

	h.logger.Debug("api registered",
		"api", name,
		"rate_limit", cfg.RateLimit,
		"time_window", cfg.TimeWindow.String(),
		"replaced", replaced,
	)
	h.bus.Publish(event.NewAPIRegisteredEvent(h.now(), name, cfg.RateLimit, cfg.TimeWindow, replaced))
	return nil
}

func (h *Hub) onStateChange(entry *apiEntry, from, to circuit.State) {
	// Transitions of a replaced registration are no longer observable.
	if cur, ok := h.entry(entry.name); !ok || cur != entry {
		return
	}
	h.logger.Debug("circuit state changed", "api", entry.name, "from", from.String(), "to", to.String())
	h.bus.Publish(event.NewCircuitStateChangedEvent(h.now(), entry.name, from.String(), to.String()))
}

func (h *Hub) entry(name string) (*apiEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.apis[name]
	return e, ok
}

func (h *Hub) lookup(name string) (*apiEntry, error) {
	if e, ok := h.entry(name); ok {
		return e, nil
	}
	return nil, errors.NewUnregisteredError(name)
}

// entries returns the registered entries sorted by name.
func (h *Hub) entries() []*apiEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*apiEntry, 0, len(h.apis))
	for _, name := range sortedKeys(h.apis) {
		out = append(out, h.apis[name])
	}
	return out
}

// Execute runs fn under name's admission control and records the outcome.
//
// It returns an Unregistered error when name is unknown, a CircuitOpen
// error when the breaker denies the call, and a RateLimited error when the
// bucket has no token; in each case fn is not invoked. Otherwise it returns
// exactly what fn returned.
func (h *Hub) Execute(name string, fn func() (any, error)) (any, error) {
	return Call(h, name, fn)
}

// admit runs the breaker and bucket checks, counting the attempt and any
// rejection. A nil error means the caller must run the call and report it
// through complete with the returned breaker generation.
func (h *Hub) admit(e *apiEntry) (uint64, error) {
	e.mu.Lock()
	e.metrics.TotalRequests++
	e.mu.Unlock()

	gen, ok := e.breaker.Allow()
	if !ok {
		retry := e.breaker.RetryAfter()
		e.mu.Lock()
		e.metrics.CircuitOpenRequests++
		e.mu.Unlock()
		h.rejected(e.name, errors.KindCircuitOpen, retry)
		return 0, errors.NewCircuitOpenError(e.name, retry)
	}

	if !e.bucket.Consume(1) {
		// A half-open trial slot claimed above was never used.
		e.breaker.Release(gen)
		retry := e.bucket.TimeUntil(1)
		e.mu.Lock()
		e.metrics.RateLimitedRequests++
		e.mu.Unlock()
		h.rejected(e.name, errors.KindRateLimited, retry)
		return 0, errors.NewRateLimitError(e.name, retry)
	}
	return gen, nil
}

// complete records the outcome of a call admitted under breaker generation
// gen. Metrics and health always count it; the breaker ignores it when it
// has changed state since admission.
func (h *Hub) complete(e *apiEntry, gen uint64, start time.Time, err error) {
	end := h.now()
	latency := end.Sub(start)

	if err != nil {
		e.breaker.RecordFailure(gen)
		e.monitor.Record(false, latency)
		e.mu.Lock()
		e.metrics.FailedRequests++
		e.mu.Unlock()
		return
	}

	e.breaker.RecordSuccess(gen)
	e.monitor.Record(true, latency)
	e.mu.Lock()
	e.metrics.SuccessfulRequests++
	e.latencyTotal += latency
	e.metrics.AverageLatency = e.latencyTotal / time.Duration(e.metrics.SuccessfulRequests)
	e.metrics.LastRequestTime = end
	e.mu.Unlock()
}

func (h *Hub) rejected(name string, kind errors.Kind, retry time.Duration) {
	h.logger.Debug("request rejected", "api", name, "reason", kind.String(), "retry_after", retry.String())
	h.bus.Publish(event.NewRequestRejectedEvent(h.now(), name, kind.String(), retry))
}

// Metrics returns a copy of name's metrics.
func (h *Hub) Metrics(name string) (Metrics, error) {
	e, err := h.lookup(name)
	if err != nil {
		return Metrics{}, err
	}
	return e.snapshotMetrics(), nil
}

func (e *apiEntry) snapshotMetrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// AllMetrics returns a copy of every registered API's metrics.
func (h *Hub) AllMetrics() map[string]Metrics {
	entries := h.entries()
	out := make(map[string]Metrics, len(entries))
	for _, e := range entries {
		out[e.name] = e.snapshotMetrics()
	}
	return out
}

// CircuitState returns name's breaker state.
func (h *Hub) CircuitState(name string) (circuit.State, error) {
	e, err := h.lookup(name)
	if err != nil {
		return circuit.StateClosed, err
	}
	return e.breaker.State(), nil
}

// HealthStatus returns name's health classification.
func (h *Hub) HealthStatus(name string) (health.Status, error) {
	e, err := h.lookup(name)
	if err != nil {
		return health.StatusUnknown, err
	}
	return e.monitor.Status(), nil
}

// HealthScore returns name's success ratio over its health window.
func (h *Hub) HealthScore(name string) (float64, error) {
	e, err := h.lookup(name)
	if err != nil {
		return 0, err
	}
	return e.monitor.Score(), nil
}

// Config returns the effective configuration name was registered with.
func (h *Hub) Config(name string) (APIConfig, error) {
	e, err := h.lookup(name)
	if err != nil {
		return APIConfig{}, err
	}
	return e.cfg, nil
}

// APIs returns the registered API names, sorted.
func (h *Hub) APIs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.apis)
}

// ResetCircuitBreaker forces name's breaker CLOSED. It reports false when
// name is not registered.
func (h *Hub) ResetCircuitBreaker(name string) bool {
	e, ok := h.entry(name)
	if !ok {
		return false
	}
	e.breaker.Reset()
	h.logger.Debug("circuit breaker reset", "api", name)
	return true
}

// Snapshot returns a point-in-time view of name.
func (h *Hub) Snapshot(name string) (APISnapshot, error) {
	e, err := h.lookup(name)
	if err != nil {
		return APISnapshot{}, err
	}
	return e.snapshot(), nil
}

func (e *apiEntry) snapshot() APISnapshot {
	return APISnapshot{
		Name:            e.name,
		Metrics:         e.snapshotMetrics(),
		CircuitState:    e.breaker.State(),
		HealthStatus:    e.monitor.Status(),
		HealthScore:     e.monitor.Score(),
		AvailableTokens: e.bucket.Available(),
		Capacity:        e.bucket.Capacity(),
		Priority:        e.cfg.Priority,

		RecentLatencySeconds: e.monitor.AverageLatency().Seconds(),
	}
}

// ExportMetrics returns a timestamped snapshot of every registered API.
func (h *Hub) ExportMetrics() Export {
	entries := h.entries()
	out := Export{
		Timestamp: h.now(),
		APIs:      make(map[string]APISnapshot, len(entries)),
	}
	for _, e := range entries {
		out.APIs[e.name] = e.snapshot()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
