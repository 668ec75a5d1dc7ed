// Package coordination provides the Hub every outbound call to a named
// remote API passes through.
//
// For each registered API the Hub owns:
//
//   - a token bucket (admission control, refill = RateLimit/TimeWindow)
//   - a circuit breaker (failure isolation)
//   - a health monitor (observability only)
//   - a metrics ledger
//
// A call flows through them in a fixed order:
//
//	Execute → breaker.Allow → bucket.Consume → fn() → record outcome
//
// A breaker denial fails fast without touching the bucket. A bucket denial
// hands back any half-open trial slot the breaker granted. Errors returned
// by fn are recorded and then returned unchanged; the hub's own failures
// (Unregistered, RateLimited, CircuitOpen) are raised instead of calling fn.
//
// The hub never retries, blocks, or persists state. Different APIs never
// contend on a shared lock: the registry lock is held only for lookups.
//
// Usage:
//
//	hub := coordination.NewHub(coordination.WithBus(bus))
//	if err := hub.RegisterAPI("github", coordination.APIConfig{
//	    RateLimit:  5000,
//	    TimeWindow: time.Hour,
//	}); err != nil {
//	    return err
//	}
//
//	issues, err := coordination.Call(hub, "github", func() ([]Issue, error) {
//	    return client.ListIssues(ctx)
//	})
//	switch errors.KindOf(err) {
//	case errors.KindRateLimited:
//	    wait, _ := errors.RetryAfter(err)
//	    ...
//	}
package coordination
