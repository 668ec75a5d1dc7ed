package event

import (
	"bytes"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/apihub/internal/logging"
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func opened(api string) CircuitStateChangedEvent {
	return NewCircuitStateChangedEvent(testTime, api, "CLOSED", "OPEN")
}

func TestBus_DeliversByType(t *testing.T) {
	bus := NewBus()

	var changed []string
	var rejected []string
	bus.Subscribe(TypeCircuitStateChanged, func(e Event) {
		changed = append(changed, e.(CircuitStateChangedEvent).API)
	})
	bus.Subscribe(TypeRequestRejected, func(e Event) {
		rejected = append(rejected, e.(RequestRejectedEvent).Reason)
	})

	bus.Publish(opened("github"))
	bus.Publish(NewRequestRejectedEvent(testTime, "github", "circuit_open", time.Second))
	bus.Publish(NewAPIRegisteredEvent(testTime, "stripe", 10, time.Second, false))

	if !slices.Equal(changed, []string{"github"}) {
		t.Errorf("circuit handler saw %v, want [github]", changed)
	}
	if !slices.Equal(rejected, []string{"circuit_open"}) {
		t.Errorf("rejection handler saw %v, want [circuit_open]", rejected)
	}
}

func TestBus_DeliveryOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "all") })
	bus.Subscribe(TypeCircuitStateChanged, func(e Event) { order = append(order, "first") })
	bus.Subscribe(TypeCircuitStateChanged, func(e Event) { order = append(order, "second") })

	bus.Publish(opened("github"))

	if want := []string{"first", "second", "all"}; !slices.Equal(order, want) {
		t.Errorf("delivery order = %v, want %v", order, want)
	}
}

func TestOn(t *testing.T) {
	bus := NewBus()

	var got []RequestRejectedEvent
	On(bus, TypeRequestRejected, func(e RequestRejectedEvent) {
		got = append(got, e)
	})

	bus.Publish(NewRequestRejectedEvent(testTime, "github", "rate_limited", 250*time.Millisecond))
	// Same type string, different concrete type: skipped.
	bus.Publish(newBaseEvent(TypeRequestRejected, testTime))

	if len(got) != 1 {
		t.Fatalf("typed handler called %d times, want 1", len(got))
	}
	if got[0].API != "github" || got[0].RetryAfter != 250*time.Millisecond {
		t.Errorf("event = %+v", got[0])
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	tests := []struct {
		name string
		id   func(bus *Bus) string
		want bool
	}{
		{"existing", func(bus *Bus) string { return bus.Subscribe(TypeAPIRegistered, func(Event) {}) }, true},
		{"unknown", func(*Bus) string { return "999" }, false},
		{"malformed", func(*Bus) string { return "sub-1" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus()
			if got := bus.Unsubscribe(tt.id(bus)); got != tt.want {
				t.Errorf("Unsubscribe() = %v, want %v", got, tt.want)
			}
			if bus.Len() != 0 {
				t.Errorf("Len() = %d, want 0", bus.Len())
			}
		})
	}
}

func TestBus_UnsubscribeKeepsOthers(t *testing.T) {
	bus := NewBus()

	var calls []string
	a := bus.Subscribe(TypeProbeCompleted, func(Event) { calls = append(calls, "a") })
	bus.Subscribe(TypeProbeCompleted, func(Event) { calls = append(calls, "b") })

	if !bus.Unsubscribe(a) {
		t.Fatal("Unsubscribe() = false")
	}
	if bus.Unsubscribe(a) {
		t.Error("second Unsubscribe() should report false")
	}
	bus.Publish(NewProbeCompletedEvent("github", true, time.Millisecond, ""))

	if !slices.Equal(calls, []string{"b"}) {
		t.Errorf("calls = %v, want [b]", calls)
	}
	if bus.Len() != 1 {
		t.Errorf("Len() = %d, want 1", bus.Len())
	}
}

func TestBus_HandlerPanic(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(WithLogger(logging.NewWriterLogger(&buf, logging.LevelInfo)))

	delivered := false
	bus.Subscribe(TypeCircuitStateChanged, func(Event) { panic("boom") })
	bus.Subscribe(TypeCircuitStateChanged, func(Event) { delivered = true })

	bus.Publish(opened("github"))

	if !delivered {
		t.Error("a panicking handler should not stop delivery")
	}
	logged := buf.String()
	for _, want := range []string{"event handler panicked", "boom", TypeCircuitStateChanged} {
		if !strings.Contains(logged, want) {
			t.Errorf("log missing %q: %s", want, logged)
		}
	}
}

func TestBus_NilPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(opened("github"))
}

func TestBus_Concurrent(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	seen := 0
	bus.Subscribe(TypeCircuitStateChanged, func(Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			bus.Publish(opened("github"))
		})
		wg.Go(func() {
			id := bus.Subscribe(TypeRequestRejected, func(Event) {})
			bus.Unsubscribe(id)
		})
	}
	wg.Wait()

	if seen != 50 {
		t.Errorf("handler saw %d events, want 50", seen)
	}
	if bus.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after concurrent subscribe/unsubscribe", bus.Len())
	}
}

func TestEventConstructors(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		wantType string
		wantAt   bool
	}{
		{"registered", NewAPIRegisteredEvent(testTime, "github", 5, time.Minute, false), TypeAPIRegistered, true},
		{"state changed", NewCircuitStateChangedEvent(testTime, "github", "OPEN", "HALF_OPEN"), TypeCircuitStateChanged, true},
		{"rejected", NewRequestRejectedEvent(testTime, "github", "rate_limited", time.Second), TypeRequestRejected, true},
		{"reloaded", NewConfigReloadedEvent("/tmp/config.yaml", []string{"github"}), TypeConfigReloaded, false},
		{"probed", NewProbeCompletedEvent("github", true, time.Millisecond, ""), TypeProbeCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.EventType(); got != tt.wantType {
				t.Errorf("EventType() = %q, want %q", got, tt.wantType)
			}
			if tt.wantAt && !tt.event.Timestamp().Equal(testTime) {
				t.Errorf("Timestamp() = %v, want %v", tt.event.Timestamp(), testTime)
			}
			if tt.event.Timestamp().IsZero() {
				t.Error("Timestamp() is zero")
			}
		})
	}
}
