package ratelimit

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBucket_StartsFull(t *testing.T) {
	clock := newFakeClock()
	b := New(10, 1, WithClock(clock.Now))

	if got := b.Available(); got != 10 {
		t.Errorf("Available() = %v, want 10", got)
	}
	if b.Capacity() != 10 {
		t.Errorf("Capacity() = %d, want 10", b.Capacity())
	}
	if b.RefillRate() != 1 {
		t.Errorf("RefillRate() = %v, want 1", b.RefillRate())
	}
}

func TestBucket_ConsumeUntilEmpty(t *testing.T) {
	clock := newFakeClock()
	b := New(5, 1, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		if !b.Consume(1) {
			t.Fatalf("Consume(1) #%d = false, want true", i+1)
		}
	}
	if b.Consume(1) {
		t.Error("Consume(1) on empty bucket = true, want false")
	}
	if got := b.Available(); got != 0 {
		t.Errorf("Available() = %v, want 0", got)
	}
}

func TestBucket_DeniedConsumeLeavesTokens(t *testing.T) {
	clock := newFakeClock()
	b := New(10, 1, WithClock(clock.Now))

	if !b.Consume(7) {
		t.Fatal("Consume(7) = false, want true")
	}
	if b.Consume(4) {
		t.Fatal("Consume(4) with 3 available = true, want false")
	}
	if got := b.Available(); got != 3 {
		t.Errorf("Available() after denial = %v, want 3", got)
	}
	if !b.Consume(3) {
		t.Error("Consume(3) with 3 available = false, want true")
	}
}

func TestBucket_RefillsLazily(t *testing.T) {
	clock := newFakeClock()
	b := New(10, 5, WithClock(clock.Now))

	if !b.Consume(10) {
		t.Fatal("Consume(10) = false, want true")
	}

	clock.Advance(time.Second)
	if got := b.Available(); got != 5 {
		t.Errorf("Available() after 1s = %v, want 5", got)
	}

	clock.Advance(10 * time.Second)
	if got := b.Available(); got != 10 {
		t.Errorf("Available() after 11s = %v, want capacity 10", got)
	}
}

func TestBucket_RefillIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	b := New(100, 3, WithClock(clock.Now))
	b.Consume(100)

	prev := b.Available()
	for i := 0; i < 50; i++ {
		clock.Advance(250 * time.Millisecond)
		got := b.Available()
		if got < prev {
			t.Fatalf("Available() decreased from %v to %v without consumption", prev, got)
		}
		want := math.Min(100, float64(i+1)*0.25*3)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("Available() after %d steps = %v, want %v", i+1, got, want)
		}
		prev = got
	}
}

func TestBucket_CapacityInvariant(t *testing.T) {
	clock := newFakeClock()
	b := New(20, 4, WithClock(clock.Now))
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		if rng.Intn(3) == 0 {
			clock.Advance(time.Duration(rng.Intn(2000)) * time.Millisecond)
		}
		b.Consume(rng.Intn(5) + 1)

		if got := b.Available(); got < 0 || got > 20 {
			t.Fatalf("Available() = %v, outside [0, 20]", got)
		}
	}
}

func TestBucket_TimeUntil(t *testing.T) {
	clock := newFakeClock()
	b := New(5, 2, WithClock(clock.Now))

	if got := b.TimeUntil(1); got != 0 {
		t.Errorf("TimeUntil(1) on full bucket = %v, want 0", got)
	}

	b.Consume(5)
	if got := b.TimeUntil(1); got != 500*time.Millisecond {
		t.Errorf("TimeUntil(1) on empty bucket = %v, want 500ms", got)
	}
	if got := b.TimeUntil(4); got != 2*time.Second {
		t.Errorf("TimeUntil(4) on empty bucket = %v, want 2s", got)
	}

	clock.Advance(250 * time.Millisecond)
	if got := b.TimeUntil(1); got != 250*time.Millisecond {
		t.Errorf("TimeUntil(1) after 250ms = %v, want 250ms", got)
	}

	if got := b.TimeUntil(6); got != time.Duration(math.MaxInt64) {
		t.Errorf("TimeUntil(6) beyond capacity = %v, want max duration", got)
	}
}

func TestBucket_NonPositiveConsume(t *testing.T) {
	b := New(1, 1)
	if !b.Consume(0) {
		t.Error("Consume(0) = false, want true")
	}
	if got := b.Available(); got != 1 {
		t.Errorf("Available() after Consume(0) = %v, want 1", got)
	}
}

func TestNewForWindow(t *testing.T) {
	clock := newFakeClock()
	b := NewForWindow(5, time.Minute, WithClock(clock.Now))

	if b.Capacity() != 5 {
		t.Errorf("Capacity() = %d, want 5", b.Capacity())
	}
	if want := 5.0 / 60.0; math.Abs(b.RefillRate()-want) > 1e-12 {
		t.Errorf("RefillRate() = %v, want %v", b.RefillRate(), want)
	}

	for i := 0; i < 5; i++ {
		if !b.Consume(1) {
			t.Fatalf("Consume(1) #%d = false, want true", i+1)
		}
	}
	if b.Consume(1) {
		t.Error("6th Consume(1) = true, want false")
	}

	clock.Advance(13 * time.Second)
	if !b.Consume(1) {
		t.Error("Consume(1) after one refill interval = false, want true")
	}
}

func TestNewForWindow_ZeroWindow(t *testing.T) {
	clock := newFakeClock()
	b := NewForWindow(2, 0, WithClock(clock.Now))

	if b.RefillRate() != 0 {
		t.Errorf("RefillRate() = %v, want 0", b.RefillRate())
	}
	b.Consume(1)
	b.Consume(1)
	clock.Advance(time.Hour)
	if b.Consume(1) {
		t.Error("Consume(1) on non-refilling empty bucket = true, want false")
	}
}

func TestBucket_ConcurrentConsumeConservesTokens(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int64
	}{
		{name: "enough tokens", capacity: 100, want: 50},
		{name: "contended", capacity: 20, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			b := New(tt.capacity, 1, WithClock(clock.Now))

			var granted atomic.Int64
			var wg sync.WaitGroup
			for w := 0; w < 5; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 10; i++ {
						if b.Consume(1) {
							granted.Add(1)
						}
					}
				}()
			}
			wg.Wait()

			if got := granted.Load(); got != tt.want {
				t.Errorf("granted = %d, want %d", got, tt.want)
			}
			if got, want := b.Available(), float64(tt.capacity)-float64(tt.want); got != want {
				t.Errorf("Available() = %v, want %v", got, want)
			}
		})
	}
}
