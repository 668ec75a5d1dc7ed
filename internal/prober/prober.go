// Package prober issues periodic GET requests to each API's probe URL
// through the coordination hub, so an idle API still accumulates health
// samples and a tripped breaker gets its half-open trials.
package prober

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Iron-Ham/apihub/internal/apiclient"
	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/event"
	"github.com/Iron-Ham/apihub/internal/logging"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
)

// DefaultTimeout bounds a single probe when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Target is one API to probe.
type Target struct {
	API      string
	URL      string
	Interval time.Duration
}

// Result is the outcome of one probe.
type Result struct {
	API        string
	URL        string
	Success    bool
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Prober probes targets through a hub.
type Prober struct {
	hub     *coordination.Hub
	http    *http.Client
	timeout time.Duration
	bus     *event.Bus
	logger  *logging.Logger
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*apiclient.Client
}

// Option configures a Prober.
type Option func(*Prober)

// WithHTTPClient sets the HTTP client used for probes.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Prober) { p.http = hc }
}

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithBus publishes a ProbeCompletedEvent after every probe.
func WithBus(bus *event.Bus) Option {
	return func(p *Prober) { p.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock sets the time source used to measure probe latency.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a Prober for APIs registered with hub.
func New(hub *coordination.Hub, opts ...Option) *Prober {
	p := &Prober{
		hub:     hub,
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  logging.NopLogger(),
		now:     time.Now,
		clients: make(map[string]*apiclient.Client),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("prober")
	return p
}

func (p *Prober) client(api string) (*apiclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[api]; ok {
		return c, nil
	}
	c, err := apiclient.New(p.hub, api,
		apiclient.WithHTTPClient(p.http),
		apiclient.WithLogger(p.logger),
	)
	if err != nil {
		return nil, err
	}
	p.clients[api] = c
	return c, nil
}

// Probe issues one coordinated GET to t.URL. Probes are never retried; a
// rejection by the hub is reported as an unsuccessful result.
func (p *Prober) Probe(ctx context.Context, t Target) Result {
	res := Result{API: t.API, URL: t.URL}

	c, err := p.client(t.API)
	if err != nil {
		res.Err = err
		p.report(res)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := p.now()
	resp, err := c.Once(ctx, http.MethodGet, t.URL)
	res.Latency = p.now().Sub(start)
	if resp != nil {
		res.StatusCode = resp.StatusCode
	}
	res.Err = err
	res.Success = err == nil && resp.StatusCode < 400

	p.report(res)
	return res
}

func (p *Prober) report(res Result) {
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}

	switch {
	case res.Success:
		p.logger.Debug("probe succeeded", "api", res.API, "status", res.StatusCode, "latency", res.Latency.String())
	case errors.KindOf(res.Err) != errors.KindUpstream:
		p.logger.Debug("probe rejected by hub", "api", res.API, "error", errMsg)
	default:
		p.logger.Log(severityLevel(errors.GetSeverity(res.Err)), "probe failed",
			"api", res.API, "status", res.StatusCode, "error", errMsg)
	}
	p.bus.Publish(event.NewProbeCompletedEvent(res.API, res.Success, res.Latency, errMsg))
}

// severityLevel maps an error severity to the log level it is reported at.
func severityLevel(s errors.Severity) string {
	switch s {
	case errors.SeverityDebug:
		return logging.LevelDebug
	case errors.SeverityInfo:
		return logging.LevelInfo
	case errors.SeverityWarning:
		return logging.LevelWarn
	default:
		return logging.LevelError
	}
}

// ProbeAll probes every target once, at most concurrency at a time, and
// returns the results in target order.
func (p *Prober) ProbeAll(ctx context.Context, targets []Target, concurrency int) []Result {
	results := make([]Result, len(targets))
	workers := pool.New().WithMaxGoroutines(max(concurrency, 1))
	for i, t := range targets {
		workers.Go(func() {
			results[i] = p.Probe(ctx, t)
		})
	}
	workers.Wait()
	return results
}

// Run probes each target immediately and then every target's Interval until
// ctx is done. Targets with no interval are probed once.
func (p *Prober) Run(ctx context.Context, targets []Target) {
	var wg conc.WaitGroup
	for _, t := range targets {
		wg.Go(func() {
			p.loop(ctx, t)
		})
	}
	wg.Wait()
}

func (p *Prober) loop(ctx context.Context, t Target) {
	p.Probe(ctx, t)
	if t.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx, t)
		}
	}
}
