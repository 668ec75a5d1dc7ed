// Package event defines event types published by the coordination hub and
// the components around it. Subscribers such as the CLI logger or the
// dashboard observe hub activity without the hub depending on them.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "api.registered", "circuit.state_changed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeAPIRegistered       = "api.registered"
	TypeCircuitStateChanged = "circuit.state_changed"
	TypeRequestRejected     = "request.rejected"
	TypeConfigReloaded      = "config.reloaded"
	TypeProbeCompleted      = "probe.completed"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string, at time.Time) baseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return baseEvent{
		eventType: eventType,
		timestamp: at,
	}
}

// -----------------------------------------------------------------------------
// Hub Events
// -----------------------------------------------------------------------------

// APIRegisteredEvent is emitted when an API is registered with a hub.
type APIRegisteredEvent struct {
	baseEvent
	API        string        // Registered API name
	RateLimit  int           // Requests admitted per TimeWindow
	TimeWindow time.Duration // Window over which RateLimit applies
	Replaced   bool          // True when an existing registration was reset
}

// NewAPIRegisteredEvent creates an APIRegisteredEvent stamped at.
// A zero at uses the current time.
func NewAPIRegisteredEvent(at time.Time, api string, rateLimit int, window time.Duration, replaced bool) APIRegisteredEvent {
	return APIRegisteredEvent{
		baseEvent:  newBaseEvent(TypeAPIRegistered, at),
		API:        api,
		RateLimit:  rateLimit,
		TimeWindow: window,
		Replaced:   replaced,
	}
}

// CircuitStateChangedEvent is emitted on every circuit breaker transition,
// including administrative resets.
type CircuitStateChangedEvent struct {
	baseEvent
	API  string // API whose breaker changed
	From string // Previous state (CLOSED, OPEN, HALF_OPEN)
	To   string // New state
}

// NewCircuitStateChangedEvent creates a CircuitStateChangedEvent.
func NewCircuitStateChangedEvent(at time.Time, api, from, to string) CircuitStateChangedEvent {
	return CircuitStateChangedEvent{
		baseEvent: newBaseEvent(TypeCircuitStateChanged, at),
		API:       api,
		From:      from,
		To:        to,
	}
}

// RequestRejectedEvent is emitted when the hub refuses a call without
// invoking it.
type RequestRejectedEvent struct {
	baseEvent
	API        string        // API the call was issued against
	Reason     string        // "rate_limited" or "circuit_open"
	RetryAfter time.Duration // Hint carried by the returned error
}

// NewRequestRejectedEvent creates a RequestRejectedEvent.
func NewRequestRejectedEvent(at time.Time, api, reason string, retryAfter time.Duration) RequestRejectedEvent {
	return RequestRejectedEvent{
		baseEvent:  newBaseEvent(TypeRequestRejected, at),
		API:        api,
		Reason:     reason,
		RetryAfter: retryAfter,
	}
}

// -----------------------------------------------------------------------------
// Runtime Events
// -----------------------------------------------------------------------------

// ConfigReloadedEvent is emitted by serve after a watched config file change
// has been applied.
type ConfigReloadedEvent struct {
	baseEvent
	Path    string   // Config file that changed
	Changed []string // APIs re-registered because their settings differ
}

// NewConfigReloadedEvent creates a ConfigReloadedEvent.
func NewConfigReloadedEvent(path string, changed []string) ConfigReloadedEvent {
	return ConfigReloadedEvent{
		baseEvent: newBaseEvent(TypeConfigReloaded, time.Time{}),
		Path:      path,
		Changed:   changed,
	}
}

// ProbeCompletedEvent is emitted by the prober after each probe.
type ProbeCompletedEvent struct {
	baseEvent
	API     string
	Success bool
	Latency time.Duration
	Error   string // Empty on success
}

// NewProbeCompletedEvent creates a ProbeCompletedEvent.
func NewProbeCompletedEvent(api string, success bool, latency time.Duration, errMsg string) ProbeCompletedEvent {
	return ProbeCompletedEvent{
		baseEvent: newBaseEvent(TypeProbeCompleted, time.Time{}),
		API:       api,
		Success:   success,
		Latency:   latency,
		Error:     errMsg,
	}
}
