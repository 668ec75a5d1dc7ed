package coordination

import (
	"encoding/json"
	"time"

	"github.com/Iron-Ham/apihub/internal/circuit"
	"github.com/Iron-Ham/apihub/internal/health"
)

// Metrics is the usage ledger the hub keeps for one API.
//
// Every Execute against a registered API increments TotalRequests once and
// then exactly one of the four outcome counters, so once no calls are in
// flight TotalRequests equals their sum.
type Metrics struct {
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	RateLimitedRequests int64
	CircuitOpenRequests int64

	// AverageLatency is the running mean over successful calls.
	AverageLatency time.Duration
	// LastRequestTime is when the most recent successful call completed.
	LastRequestTime time.Time
}

type metricsJSON struct {
	TotalRequests         int64      `json:"total_requests"`
	SuccessfulRequests    int64      `json:"successful_requests"`
	FailedRequests        int64      `json:"failed_requests"`
	RateLimitedRequests   int64      `json:"rate_limited_requests"`
	CircuitOpenRequests   int64      `json:"circuit_open_requests"`
	AverageLatencySeconds float64    `json:"average_latency_seconds"`
	LastRequestTime       *time.Time `json:"last_request_time,omitempty"`
}

// MarshalJSON encodes latency in seconds and omits an unset LastRequestTime.
func (m Metrics) MarshalJSON() ([]byte, error) {
	out := metricsJSON{
		TotalRequests:         m.TotalRequests,
		SuccessfulRequests:    m.SuccessfulRequests,
		FailedRequests:        m.FailedRequests,
		RateLimitedRequests:   m.RateLimitedRequests,
		CircuitOpenRequests:   m.CircuitOpenRequests,
		AverageLatencySeconds: m.AverageLatency.Seconds(),
	}
	if !m.LastRequestTime.IsZero() {
		t := m.LastRequestTime
		out.LastRequestTime = &t
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	var in metricsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Metrics{
		TotalRequests:       in.TotalRequests,
		SuccessfulRequests:  in.SuccessfulRequests,
		FailedRequests:      in.FailedRequests,
		RateLimitedRequests: in.RateLimitedRequests,
		CircuitOpenRequests: in.CircuitOpenRequests,
		AverageLatency:      time.Duration(in.AverageLatencySeconds * float64(time.Second)),
	}
	if in.LastRequestTime != nil {
		m.LastRequestTime = *in.LastRequestTime
	}
	return nil
}

// SuccessRate returns SuccessfulRequests/TotalRequests, or 0 before any request.
func (m Metrics) SuccessRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.SuccessfulRequests) / float64(m.TotalRequests)
}

// APISnapshot is a point-in-time view of one API.
type APISnapshot struct {
	Name            string        `json:"name"`
	Metrics         Metrics       `json:"metrics"`
	CircuitState    circuit.State `json:"circuit_state"`
	HealthStatus    health.Status `json:"health_status"`
	HealthScore     float64       `json:"health_score"`
	AvailableTokens float64       `json:"available_tokens"`
	Capacity        int           `json:"capacity"`
	Priority        int           `json:"priority"`

	// RecentLatencySeconds is the mean latency of every call, successful or
	// not, in the health window.
	RecentLatencySeconds float64 `json:"recent_latency_seconds"`
}

// RecentLatency returns RecentLatencySeconds as a Duration.
func (s APISnapshot) RecentLatency() time.Duration {
	return time.Duration(s.RecentLatencySeconds * float64(time.Second))
}

// Export is a timestamped snapshot of every registered API.
type Export struct {
	Timestamp time.Time              `json:"timestamp"`
	APIs      map[string]APISnapshot `json:"apis"`
}

// Names returns the API names in the export, sorted.
func (e Export) Names() []string {
	return sortedKeys(e.APIs)
}
