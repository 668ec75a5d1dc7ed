// Package health tracks per-API success rate over a sliding window of recent calls.
//
// A Monitor is purely observational. It never rejects a call; it lets
// operators see an API that is degrading but has not yet tripped its breaker.
package health

import (
	"sync"
	"time"
)

// DefaultWindowSize is the number of samples kept when none is configured.
const DefaultWindowSize = 20

// Status thresholds on the success ratio.
const (
	HealthyThreshold  = 0.95
	DegradedThreshold = 0.80
)

// Status classifies a health score.
type Status int

const (
	// StatusUnknown means no samples have been recorded.
	StatusUnknown Status = iota
	// StatusHealthy means the score is at least HealthyThreshold.
	StatusHealthy
	// StatusDegraded means the score is in [DegradedThreshold, HealthyThreshold).
	StatusDegraded
	// StatusUnhealthy means the score is below DegradedThreshold.
	StatusUnhealthy
)

// String returns the canonical status name.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusDegraded:
		return "DEGRADED"
	case StatusUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognized names
// decode as StatusUnknown.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "HEALTHY":
		*s = StatusHealthy
	case "DEGRADED":
		*s = StatusDegraded
	case "UNHEALTHY":
		*s = StatusUnhealthy
	default:
		*s = StatusUnknown
	}
	return nil
}

// Classify maps a score to a Status. Callers with an empty window should
// use StatusUnknown directly; Classify(0) reports StatusUnhealthy.
func Classify(score float64) Status {
	switch {
	case score >= HealthyThreshold:
		return StatusHealthy
	case score >= DegradedThreshold:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

type sample struct {
	success bool
	latency time.Duration
}

// Monitor keeps the last windowSize samples in a ring buffer.
// It is safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	window    []sample
	next      int
	count     int
	successes int
	latency   time.Duration
}

// NewMonitor creates a Monitor holding at most windowSize samples.
// A non-positive size uses DefaultWindowSize.
func NewMonitor(windowSize int) *Monitor {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Monitor{window: make([]sample, windowSize)}
}

// Record appends a sample, evicting the oldest once the window is full.
func (m *Monitor) Record(success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == len(m.window) {
		old := m.window[m.next]
		if old.success {
			m.successes--
		}
		m.latency -= old.latency
	} else {
		m.count++
	}

	m.window[m.next] = sample{success: success, latency: latency}
	m.next = (m.next + 1) % len(m.window)
	if success {
		m.successes++
	}
	m.latency += latency
}

// Score returns successes divided by samples, or 0 for an empty window.
func (m *Monitor) Score() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoreLocked()
}

// Status classifies the current score.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 {
		return StatusUnknown
	}
	return Classify(m.scoreLocked())
}

// AverageLatency returns the mean latency over the window.
func (m *Monitor) AverageLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 {
		return 0
	}
	return m.latency / time.Duration(m.count)
}

// Len returns the number of samples currently in the window.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// WindowSize returns the window capacity.
func (m *Monitor) WindowSize() int {
	return len(m.window)
}

func (m *Monitor) scoreLocked() float64 {
	if m.count == 0 {
		return 0
	}
	return float64(m.successes) / float64(m.count)
}
