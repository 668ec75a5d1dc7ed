package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/apihub/internal/circuit"
	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type staticSource coordination.Export

func (s staticSource) ExportMetrics() coordination.Export { return coordination.Export(s) }

func testExport() coordination.Export {
	return coordination.Export{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		APIs: map[string]coordination.APISnapshot{
			"github": {
				Name: "github",
				Metrics: coordination.Metrics{
					TotalRequests:       10,
					SuccessfulRequests:  6,
					FailedRequests:      2,
					RateLimitedRequests: 1,
					CircuitOpenRequests: 1,
					AverageLatency:      250 * time.Millisecond,
					LastRequestTime:     time.Unix(1700000000, 0),
				},
				CircuitState:    circuit.StateOpen,
				HealthStatus:    health.StatusUnhealthy,
				HealthScore:     0.75,
				AvailableTokens: 42,
				Capacity:        5000,

				RecentLatencySeconds: 0.5,
			},
			"stripe": {
				Name:            "stripe",
				CircuitState:    circuit.StateClosed,
				HealthStatus:    health.StatusUnknown,
				AvailableTokens: 100,
				Capacity:        100,
			},
		},
	}
}

func TestCollector_Registers(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector(staticSource(testExport()), "apihub")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
}

func TestCollector_SeriesPerAPI(t *testing.T) {
	c := NewCollector(staticSource(testExport()), "apihub")

	tests := []struct {
		metric string
		want   int
	}{
		{"apihub_attempts_total", 2},
		{"apihub_requests_total", 8}, // four outcomes per API
		{"apihub_average_latency_seconds", 2},
		{"apihub_recent_latency_seconds", 2},
		{"apihub_last_success_timestamp_seconds", 1}, // stripe has never succeeded
		{"apihub_circuit_state", 2},
		{"apihub_health_score", 2},
		{"apihub_available_tokens", 2},
		{"apihub_bucket_capacity", 2},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			if got := testutil.CollectAndCount(c, tt.metric); got != tt.want {
				t.Errorf("CollectAndCount(%s) = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestCollector_Values(t *testing.T) {
	c := NewCollector(staticSource(testExport()), "apihub")

	expected := `
# HELP apihub_requests_total Calls through the hub by outcome.
# TYPE apihub_requests_total counter
apihub_requests_total{api="github",outcome="circuit_open"} 1
apihub_requests_total{api="github",outcome="failure"} 2
apihub_requests_total{api="github",outcome="rate_limited"} 1
apihub_requests_total{api="github",outcome="success"} 6
apihub_requests_total{api="stripe",outcome="circuit_open"} 0
apihub_requests_total{api="stripe",outcome="failure"} 0
apihub_requests_total{api="stripe",outcome="rate_limited"} 0
apihub_requests_total{api="stripe",outcome="success"} 0
# HELP apihub_circuit_state Circuit breaker state: 0 closed, 1 open, 2 half-open.
# TYPE apihub_circuit_state gauge
apihub_circuit_state{api="github"} 1
apihub_circuit_state{api="stripe"} 0
# HELP apihub_average_latency_seconds Mean latency of successful calls.
# TYPE apihub_average_latency_seconds gauge
apihub_average_latency_seconds{api="github"} 0.25
apihub_average_latency_seconds{api="stripe"} 0
# HELP apihub_recent_latency_seconds Mean latency of all calls in the API's health window.
# TYPE apihub_recent_latency_seconds gauge
apihub_recent_latency_seconds{api="github"} 0.5
apihub_recent_latency_seconds{api="stripe"} 0
# HELP apihub_last_success_timestamp_seconds Unix time the last successful call completed.
# TYPE apihub_last_success_timestamp_seconds gauge
apihub_last_success_timestamp_seconds{api="github"} 1.7e+09
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"apihub_requests_total",
		"apihub_circuit_state",
		"apihub_average_latency_seconds",
		"apihub_recent_latency_seconds",
		"apihub_last_success_timestamp_seconds",
	)
	if err != nil {
		t.Error(err)
	}
}

func TestCollector_Namespace(t *testing.T) {
	c := NewCollector(staticSource(testExport()), "edge")
	if got := testutil.CollectAndCount(c, "edge_health_score"); got != 2 {
		t.Errorf("CollectAndCount(edge_health_score) = %d, want 2", got)
	}
	if got := testutil.CollectAndCount(c, "apihub_health_score"); got != 0 {
		t.Errorf("CollectAndCount(apihub_health_score) = %d, want 0", got)
	}
}

func TestCollector_ReadsLiveHub(t *testing.T) {
	hub := coordination.NewHub()
	if err := hub.RegisterAPI("github", coordination.APIConfig{RateLimit: 10, TimeWindow: time.Minute}); err != nil {
		t.Fatal(err)
	}
	c := NewCollector(hub, "apihub")

	if got := testutil.CollectAndCount(c, "apihub_requests_total"); got != 4 {
		t.Fatalf("CollectAndCount() = %d, want 4", got)
	}

	if _, err := hub.Execute("github", func() (any, error) { return nil, nil }); err != nil {
		t.Fatal(err)
	}

	expected := `
# HELP apihub_attempts_total Calls attempted through the hub, admitted or not.
# TYPE apihub_attempts_total counter
apihub_attempts_total{api="github"} 1
# HELP apihub_bucket_capacity Token bucket capacity.
# TYPE apihub_bucket_capacity gauge
apihub_bucket_capacity{api="github"} 10
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"apihub_attempts_total", "apihub_bucket_capacity"); err != nil {
		t.Error(err)
	}
}
