package prober

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/apihub/internal/apiclient"
	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/event"
	"github.com/Iron-Ham/apihub/internal/logging"
)

func newServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, http.StatusText(status))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newHub(t *testing.T, cfgs map[string]coordination.APIConfig) *coordination.Hub {
	t.Helper()
	hub := coordination.NewHub()
	for name, cfg := range cfgs {
		if err := hub.RegisterAPI(name, cfg); err != nil {
			t.Fatal(err)
		}
	}
	return hub
}

// recorder collects ProbeCompletedEvents.
type recorder struct {
	mu     sync.Mutex
	events []event.ProbeCompletedEvent
}

func (r *recorder) handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.(event.ProbeCompletedEvent))
}

func (r *recorder) all() []event.ProbeCompletedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.ProbeCompletedEvent(nil), r.events...)
}

func newRecordingBus() (*event.Bus, *recorder) {
	bus := event.NewBus()
	rec := &recorder{}
	bus.Subscribe(event.TypeProbeCompleted, rec.handle)
	return bus, rec
}

func TestProbe_Success(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, http.StatusOK, &hits)
	hub := newHub(t, map[string]coordination.APIConfig{"github": {}})
	bus, rec := newRecordingBus()

	p := New(hub, WithBus(bus))
	res := p.Probe(context.Background(), Target{API: "github", URL: srv.URL})

	if !res.Success || res.Err != nil {
		t.Fatalf("Probe() = %+v, want success", res)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}

	m, _ := hub.Metrics("github")
	if m.SuccessfulRequests != 1 {
		t.Errorf("SuccessfulRequests = %d, want 1", m.SuccessfulRequests)
	}

	events := rec.all()
	if len(events) != 1 || events[0].API != "github" || !events[0].Success || events[0].Error != "" {
		t.Errorf("events = %+v, want one successful github probe", events)
	}
}

func TestProbe_UpstreamFailure(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, http.StatusServiceUnavailable, &hits)
	hub := newHub(t, map[string]coordination.APIConfig{"github": {MaxRetries: 3}})
	bus, rec := newRecordingBus()

	res := New(hub, WithBus(bus)).Probe(context.Background(), Target{API: "github", URL: srv.URL})

	if res.Success {
		t.Fatal("Probe() should fail on 503")
	}
	var statusErr *apiclient.StatusError
	if !errors.As(res.Err, &statusErr) {
		t.Fatalf("Err = %v, want *StatusError", res.Err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 (probes never retry)", hits.Load())
	}

	m, _ := hub.Metrics("github")
	if m.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", m.FailedRequests)
	}
	if events := rec.all(); len(events) != 1 || events[0].Success || events[0].Error == "" {
		t.Errorf("events = %+v, want one failed probe with an error", events)
	}
}

func TestProbe_FailureLogLevel(t *testing.T) {
	var hits atomic.Int32
	down := newServer(t, http.StatusServiceUnavailable, &hits)
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	tests := []struct {
		name      string
		url       string
		wantLevel string
	}{
		{"upstream status", down.URL, `"level":"WARN"`},
		{"transport error", closed.URL, `"level":"ERROR"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			hub := newHub(t, map[string]coordination.APIConfig{"github": {}})
			p := New(hub, WithLogger(logging.NewWriterLogger(&buf, logging.LevelDebug)))

			if res := p.Probe(context.Background(), Target{API: "github", URL: tt.url}); res.Success {
				t.Fatalf("Probe() = %+v, want failure", res)
			}
			var line string
			for _, l := range strings.Split(buf.String(), "\n") {
				if strings.Contains(l, `"msg":"probe failed"`) {
					line = l
				}
			}
			if !strings.Contains(line, tt.wantLevel) {
				t.Errorf("failure log = %q, want %s", line, tt.wantLevel)
			}
		})
	}
}

func TestSeverityLevel(t *testing.T) {
	tests := map[errors.Severity]string{
		errors.SeverityDebug:   logging.LevelDebug,
		errors.SeverityInfo:    logging.LevelInfo,
		errors.SeverityWarning: logging.LevelWarn,
		errors.SeverityError:   logging.LevelError,
		errors.Severity(42):    logging.LevelError,
	}
	for in, want := range tests {
		if got := severityLevel(in); got != want {
			t.Errorf("severityLevel(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestProbe_ClientErrorIsUnsuccessful(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, http.StatusNotFound, &hits)
	hub := newHub(t, map[string]coordination.APIConfig{"github": {}})

	res := New(hub).Probe(context.Background(), Target{API: "github", URL: srv.URL})
	if res.Success || res.Err != nil {
		t.Errorf("Probe() = %+v, want unsuccessful with no error", res)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", res.StatusCode)
	}
}

func TestProbe_Unregistered(t *testing.T) {
	hub := newHub(t, nil)
	bus, rec := newRecordingBus()

	res := New(hub, WithBus(bus)).Probe(context.Background(), Target{API: "ghost", URL: "http://127.0.0.1:1"})
	if errors.KindOf(res.Err) != errors.KindUnregistered {
		t.Errorf("Err = %v, want unregistered", res.Err)
	}
	if len(rec.all()) != 1 {
		t.Error("an unregistered probe should still be reported")
	}
}

func TestProbe_CircuitOpen(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, http.StatusInternalServerError, &hits)
	hub := newHub(t, map[string]coordination.APIConfig{"github": {CircuitBreakerThreshold: 1}})
	p := New(hub)
	target := Target{API: "github", URL: srv.URL}

	p.Probe(context.Background(), target)
	res := p.Probe(context.Background(), target)

	if errors.KindOf(res.Err) != errors.KindCircuitOpen {
		t.Errorf("Err = %v, want circuit open", res.Err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestProbeAll_OrderAndConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	names := []string{"a", "b", "c", "d", "e"}
	cfgs := make(map[string]coordination.APIConfig)
	var targets []Target
	for _, n := range names {
		cfgs[n] = coordination.APIConfig{}
		targets = append(targets, Target{API: n, URL: srv.URL + "/" + n})
	}
	hub := newHub(t, cfgs)

	results := New(hub).ProbeAll(context.Background(), targets, 2)

	if len(results) != len(names) {
		t.Fatalf("got %d results, want %d", len(results), len(names))
	}
	for i, res := range results {
		if res.API != names[i] {
			t.Errorf("results[%d].API = %q, want %q", i, res.API, names[i])
		}
		if !res.Success {
			t.Errorf("results[%d] = %+v, want success", i, res)
		}
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", got)
	}
}

func TestRun_RepeatsUntilCanceled(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, http.StatusOK, &hits)
	hub := newHub(t, map[string]coordination.APIConfig{"github": {}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(hub).Run(ctx, []Target{{API: "github", URL: srv.URL, Interval: 10 * time.Millisecond}})
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for hits.Load() < 3 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("only %d probes ran", hits.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_ZeroIntervalProbesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, http.StatusOK, &hits)
	hub := newHub(t, map[string]coordination.APIConfig{"a": {}, "b": {}})

	New(hub).Run(context.Background(), []Target{
		{API: "a", URL: srv.URL},
		{API: "b", URL: srv.URL},
	})

	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}
