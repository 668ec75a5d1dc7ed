// Package server exposes a running hub over HTTP: Prometheus metrics, JSON
// snapshots, and administrative circuit resets. Client is the matching
// caller used by the CLI and the dashboard.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Iron-Ham/apihub/internal/circuit"
	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/logging"
	"github.com/Iron-Ham/apihub/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route paths.
const (
	PathMetrics  = "/metrics"
	PathSnapshot = "/snapshot"
	PathHealthz  = "/healthz"
)

// ResetResponse is the body returned by a successful reset.
type ResetResponse struct {
	API          string        `json:"api"`
	CircuitState circuit.State `json:"circuit_state"`
}

// ErrorResponse is the body returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

type options struct {
	logger        *logging.Logger
	namespace     string
	runtimeMetric bool
}

// Option configures the handler.
type Option func(*options)

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNamespace sets the Prometheus metric namespace. Defaults to "apihub".
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithRuntimeMetrics adds the Go runtime and process collectors to /metrics.
func WithRuntimeMetrics() Option {
	return func(o *options) { o.runtimeMetric = true }
}

type handler struct {
	hub    *coordination.Hub
	logger *logging.Logger
}

// NewHandler returns the HTTP handler for hub.
func NewHandler(hub *coordination.Hub, opts ...Option) http.Handler {
	o := options{logger: logging.NopLogger(), namespace: "apihub"}
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(telemetry.NewCollector(hub, o.namespace))
	if o.runtimeMetric {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	h := &handler{hub: hub, logger: o.logger.WithComponent("http")}

	mux := http.NewServeMux()
	mux.Handle("GET "+PathMetrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET "+PathSnapshot, h.snapshot)
	mux.HandleFunc("GET "+PathSnapshot+"/{name}", h.snapshotOne)
	mux.HandleFunc("POST /apis/{name}/reset", h.reset)
	mux.HandleFunc("GET "+PathHealthz, h.healthz)
	return h.logRequests(mux)
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.ExportMetrics())
}

func (h *handler) snapshotOne(w http.ResponseWriter, r *http.Request) {
	snap, err := h.hub.Snapshot(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.hub.ResetCircuitBreaker(name) {
		writeError(w, errors.NewUnregisteredError(name))
		return
	}
	h.logger.Info("circuit breaker reset via api", "api", name)
	writeJSON(w, http.StatusOK, ResetResponse{API: name, CircuitState: circuit.StateClosed})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.logger.Enabled(logging.LevelDebug) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.KindOf(err) == errors.KindUnregistered {
		status = http.StatusNotFound
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
