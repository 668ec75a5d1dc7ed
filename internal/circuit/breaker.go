// Package circuit provides the per-API circuit breaker used for failure isolation.
//
// A Breaker is a three-state machine:
//
//	CLOSED ──(FailureThreshold failures)──▶ OPEN
//	OPEN ──(Timeout elapsed since last failure, on next admission check)──▶ HALF_OPEN
//	HALF_OPEN ──(SuccessThreshold successes)──▶ CLOSED
//	HALF_OPEN ──(any failure)──▶ OPEN
//
// While CLOSED, each success decays the failure count by one, so a
// partially-tripped breaker heals gradually instead of all at once.
//
// Every transition starts a new generation. Allow hands the caller the
// generation it was admitted under, and a result reported with an older
// generation is discarded, so a slow call admitted while CLOSED never counts
// as a HALF_OPEN trial.
package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Call when the breaker denies the invocation.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen rejects every call until the timeout elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of trial calls.
	StateHalfOpen
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler so snapshots serialize by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "CLOSED":
		*s = StateClosed
	case "OPEN":
		*s = StateOpen
	case "HALF_OPEN":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown circuit state %q", text)
	}
	return nil
}

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the failure count that trips a closed breaker.
	FailureThreshold int
	// Timeout is how long an open breaker waits after its last failure
	// before admitting a trial call.
	Timeout time.Duration
	// SuccessThreshold is the number of trial successes that close a
	// half-open breaker. It also bounds the trials admitted while half-open.
	SuccessThreshold int
}

// DefaultConfig returns the default breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Counts is a point-in-time view of the breaker counters.
type Counts struct {
	State           State     `json:"state"`
	Failures        int       `json:"failures"`
	Successes       int       `json:"successes"`
	Trials          int       `json:"trials"`
	Generation      uint64    `json:"generation"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

// Breaker is a circuit breaker. It is safe for concurrent use.
type Breaker struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	onStateChange func(from, to State)

	state       State
	generation  uint64
	failures    int
	successes   int
	trials      int
	lastFailure time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithStateChange registers a callback invoked after every state transition.
// The callback runs without the breaker lock held.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// New creates a closed breaker. Non-positive thresholds fall back to
// DefaultConfig values.
func New(cfg Config, opts ...Option) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}

	b := &Breaker{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed and, if so, claims an admission
// slot and returns the generation to pass to RecordSuccess, RecordFailure,
// or Release. An open breaker whose timeout has elapsed moves to HALF_OPEN
// and the caller becomes its first trial. A caller that is admitted but then
// does not invoke the protected call must hand the slot back with Release.
func (b *Breaker) Allow() (uint64, bool) {
	b.mu.Lock()
	var from, to State
	transitioned := false

	allowed := false
	switch b.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if b.now().Sub(b.lastFailure) > b.cfg.Timeout {
			from, to, transitioned = b.state, StateHalfOpen, true
			b.setState(StateHalfOpen)
			b.successes = 0
			b.trials = 1
			allowed = true
		}
	case StateHalfOpen:
		if b.trials < b.cfg.SuccessThreshold {
			b.trials++
			allowed = true
		}
	}
	gen := b.generation
	b.mu.Unlock()

	if transitioned {
		b.notify(from, to)
	}
	return gen, allowed
}

// Release returns an admission slot claimed by Allow without recording a
// result. It only has an effect while the breaker is still HALF_OPEN in the
// generation the slot was claimed in.
func (b *Breaker) Release(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen == b.generation && b.state == StateHalfOpen && b.trials > 0 {
		b.trials--
	}
}

// setState moves to state and starts a new generation. b.mu must be held.
func (b *Breaker) setState(state State) {
	b.state = state
	b.generation++
}

// RecordSuccess records a successful call admitted in generation gen.
// Results from an earlier generation are ignored.
func (b *Breaker) RecordSuccess(gen uint64) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}
	var from, to State
	transitioned := false

	switch b.state {
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			from, to, transitioned = b.state, StateClosed, true
			b.setState(StateClosed)
			b.failures = 0
			b.successes = 0
			b.trials = 0
		}
	}
	b.mu.Unlock()

	if transitioned {
		b.notify(from, to)
	}
}

// RecordFailure records a failed call admitted in generation gen.
// Results from an earlier generation are ignored, so they never extend an
// open period or end a half-open one.
func (b *Breaker) RecordFailure(gen uint64) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}
	var from, to State
	transitioned := false

	switch b.state {
	case StateClosed:
		b.failures++
		b.lastFailure = b.now()
		if b.failures >= b.cfg.FailureThreshold {
			from, to, transitioned = b.state, StateOpen, true
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.lastFailure = b.now()
		from, to, transitioned = b.state, StateOpen, true
		b.setState(StateOpen)
		b.successes = 0
		b.trials = 0
	}
	b.mu.Unlock()

	if transitioned {
		b.notify(from, to)
	}
}

// Call invokes fn if the breaker admits it and records the outcome.
// A nil error is a success and any non-nil error a failure. When the breaker
// denies the call, fn is not invoked and ErrOpen is returned.
func (b *Breaker) Call(fn func() error) error {
	gen, ok := b.Allow()
	if !ok {
		return ErrOpen
	}

	if err := fn(); err != nil {
		b.RecordFailure(gen)
		return err
	}
	b.RecordSuccess(gen)
	return nil
}

// State returns the current state. It does not advance an expired OPEN
// breaker; that happens on the next admission check.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Generation returns the current generation.
func (b *Breaker) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Counts returns a snapshot of the breaker counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Counts{
		State:           b.state,
		Failures:        b.failures,
		Successes:       b.successes,
		Trials:          b.trials,
		Generation:      b.generation,
		LastFailureTime: b.lastFailure,
	}
}

// RetryAfter returns how long until an OPEN breaker admits a trial call.
// Returns 0 in any other state.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return 0
	}
	remaining := b.cfg.Timeout - b.now().Sub(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Config returns the breaker thresholds.
func (b *Breaker) Config() Config {
	return b.cfg
}

// Reset forces the breaker CLOSED and zeroes every counter. Calls admitted
// before the reset no longer affect the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.setState(StateClosed)
	b.failures = 0
	b.successes = 0
	b.trials = 0
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
