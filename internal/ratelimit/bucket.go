// Package ratelimit provides the per-API token bucket used for admission control.
//
// Refill is lazy and exact: every access advances the token count by the time
// elapsed since the previous access, clamped to capacity. There is no
// background goroutine, and the clock is injectable so tests can drive time
// deterministically.
package ratelimit

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a token bucket with a fixed capacity and refill rate.
// It is safe for concurrent use: the underlying limiter serializes every
// grant, so concurrent callers can never be granted the same token.
type Bucket struct {
	limiter    *rate.Limiter
	capacity   int
	refillRate float64
	now        func() time.Time
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a full bucket holding capacity tokens and refilling at
// refillRate tokens per second.
func New(capacity int, refillRate float64, opts ...Option) *Bucket {
	if capacity < 0 {
		capacity = 0
	}
	if refillRate < 0 {
		refillRate = 0
	}

	b := &Bucket{
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.limiter = rate.NewLimiter(rate.Limit(refillRate), capacity)
	// rate.NewLimiter starts full but anchors its accounting lazily on the
	// first call; pin it to the injected clock so elapsed time is measured
	// from construction.
	b.limiter.SetLimitAt(b.now(), rate.Limit(refillRate))
	return b
}

// NewForWindow creates a bucket that admits limit requests per window:
// capacity is limit and the refill rate is limit/window.
func NewForWindow(limit int, window time.Duration, opts ...Option) *Bucket {
	var refill float64
	if window > 0 {
		refill = float64(limit) / window.Seconds()
	}
	return New(limit, refill, opts...)
}

// Consume takes n tokens if at least n are available after refill.
// Returns false and leaves the bucket unchanged otherwise.
func (b *Bucket) Consume(n int) bool {
	if n <= 0 {
		return true
	}
	return b.limiter.AllowN(b.now(), n)
}

// Available returns the current token count after refill, in [0, capacity].
func (b *Bucket) Available() float64 {
	tokens := b.limiter.TokensAt(b.now())
	return math.Max(0, math.Min(tokens, float64(b.capacity)))
}

// TimeUntil returns how long until n tokens will be available.
// Returns 0 when they already are. When the bucket can never hold n tokens
// (n exceeds capacity, or the refill rate is zero and tokens are short)
// the result is math.MaxInt64 nanoseconds.
func (b *Bucket) TimeUntil(n int) time.Duration {
	missing := float64(n) - b.Available()
	if missing <= 0 {
		return 0
	}
	if n > b.capacity || b.refillRate == 0 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(missing / b.refillRate * float64(time.Second))
}

// Capacity returns the maximum number of tokens the bucket can hold.
func (b *Bucket) Capacity() int {
	return b.capacity
}

// RefillRate returns the refill rate in tokens per second.
func (b *Bucket) RefillRate() float64 {
	return b.refillRate
}
