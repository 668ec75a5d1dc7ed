// Package event provides a pub-sub event bus for decoupled communication
// between the coordination hub and the components that observe it.
//
// The hub publishes lifecycle events without knowing who consumes them; the
// CLI logs them, and tests assert on them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//   - [On]: Subscribes a handler typed to one concrete event
//
// # Event Categories
//
// Hub:
//   - [APIRegisteredEvent]: An API was registered or re-registered
//   - [CircuitStateChangedEvent]: A circuit breaker changed state
//   - [RequestRejectedEvent]: A call was refused by the rate limiter or breaker
//
// Runtime:
//   - [ConfigReloadedEvent]: serve applied a config file change
//   - [ProbeCompletedEvent]: the prober finished one probe
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and are protected against
// panics. Handlers must not call back into the publisher while it holds
// its own locks; the hub never publishes with a lock held.
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	event.On(bus, event.TypeCircuitStateChanged, func(e event.CircuitStateChangedEvent) {
//	    logger.Warn("circuit changed", "api", e.API, "to", e.To)
//	})
//
//	hub := coordination.NewHub(coordination.WithBus(bus))
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - api.registered
//   - circuit.state_changed
//   - request.rejected
//   - config.reloaded
//   - probe.completed
package event
