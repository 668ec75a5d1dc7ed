package telemetry

import (
	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/prometheus/client_golang/prometheus"
)

// Source yields hub snapshots. *coordination.Hub satisfies it.
type Source interface {
	ExportMetrics() coordination.Export
}

// Request outcome label values.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
	OutcomeCircuitOpen = "circuit_open"
)

// Collector is a prometheus.Collector that reads a fresh snapshot from its
// Source on every scrape, so exported values never drift from the hub's own.
type Collector struct {
	source Source

	attempts        *prometheus.Desc
	requests        *prometheus.Desc
	averageLatency  *prometheus.Desc
	recentLatency   *prometheus.Desc
	lastSuccess     *prometheus.Desc
	circuitState    *prometheus.Desc
	healthScore     *prometheus.Desc
	availableTokens *prometheus.Desc
	capacity        *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector exporting src under namespace.
func NewCollector(src Source, namespace string) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		source:          src,
		attempts:        desc("attempts_total", "Calls attempted through the hub, admitted or not.", "api"),
		requests:        desc("requests_total", "Calls through the hub by outcome.", "api", "outcome"),
		averageLatency:  desc("average_latency_seconds", "Mean latency of successful calls.", "api"),
		recentLatency:   desc("recent_latency_seconds", "Mean latency of all calls in the API's health window.", "api"),
		lastSuccess:     desc("last_success_timestamp_seconds", "Unix time the last successful call completed.", "api"),
		circuitState:    desc("circuit_state", "Circuit breaker state: 0 closed, 1 open, 2 half-open.", "api"),
		healthScore:     desc("health_score", "Success ratio over the API's health window.", "api"),
		availableTokens: desc("available_tokens", "Tokens currently in the API's bucket.", "api"),
		capacity:        desc("bucket_capacity", "Token bucket capacity.", "api"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.attempts
	ch <- c.requests
	ch <- c.averageLatency
	ch <- c.recentLatency
	ch <- c.lastSuccess
	ch <- c.circuitState
	ch <- c.healthScore
	ch <- c.availableTokens
	ch <- c.capacity
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	export := c.source.ExportMetrics()
	for _, name := range export.Names() {
		snap := export.APIs[name]
		m := snap.Metrics

		ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(m.TotalRequests), name)
		outcomes := []struct {
			label string
			count int64
		}{
			{OutcomeSuccess, m.SuccessfulRequests},
			{OutcomeFailure, m.FailedRequests},
			{OutcomeRateLimited, m.RateLimitedRequests},
			{OutcomeCircuitOpen, m.CircuitOpenRequests},
		}
		for _, o := range outcomes {
			ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(o.count), name, o.label)
		}

		ch <- prometheus.MustNewConstMetric(c.averageLatency, prometheus.GaugeValue, m.AverageLatency.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.recentLatency, prometheus.GaugeValue, snap.RecentLatencySeconds, name)
		if !m.LastRequestTime.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastSuccess, prometheus.GaugeValue,
				float64(m.LastRequestTime.UnixNano())/1e9, name)
		}
		ch <- prometheus.MustNewConstMetric(c.circuitState, prometheus.GaugeValue, float64(snap.CircuitState), name)
		ch <- prometheus.MustNewConstMetric(c.healthScore, prometheus.GaugeValue, snap.HealthScore, name)
		ch <- prometheus.MustNewConstMetric(c.availableTokens, prometheus.GaugeValue, snap.AvailableTokens, name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(snap.Capacity), name)
	}
}
