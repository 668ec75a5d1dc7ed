package event

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/apihub/internal/logging"
)

// Handler receives published events.
type Handler func(Event)

// anyType is the key of handlers that receive every event.
const anyType = "*"

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus delivers events synchronously, on the publishing goroutine. Publishers
// such as the hub never block on a lock while handlers run.
type Bus struct {
	mu     sync.RWMutex
	byType map[string][]subscriber
	lastID atomic.Uint64
	logger *logging.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger *logging.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates an empty Bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		byType: make(map[string][]subscriber),
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("event")
	return b
}

// Subscribe calls handler for every event of eventType and returns an ID
// for Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	id := b.lastID.Add(1)

	b.mu.Lock()
	b.byType[eventType] = append(b.byType[eventType], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	return strconv.FormatUint(id, 10)
}

// SubscribeAll calls handler for every event.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(anyType, handler)
}

// On subscribes a handler typed to the concrete event published under
// eventType. Events of another concrete type are skipped.
func On[E Event](b *Bus, eventType string, handler func(E)) string {
	return b.Subscribe(eventType, func(e Event) {
		if typed, ok := e.(E); ok {
			handler(typed)
		}
	})
}

// Unsubscribe removes the subscription with id and reports whether it
// existed.
func (b *Bus) Unsubscribe(id string) bool {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for eventType, subs := range b.byType {
		for i, s := range subs {
			if s.id != n {
				continue
			}
			// Copy so a Publish holding the old slice is unaffected.
			b.byType[eventType] = append(subs[:i:i], subs[i+1:]...)
			if len(b.byType[eventType]) == 0 {
				delete(b.byType, eventType)
			}
			return true
		}
	}
	return false
}

// Publish delivers e to the handlers of its type in subscription order,
// then to SubscribeAll handlers. A handler that panics is logged and the
// remaining handlers still run. Publishing on a nil Bus does nothing.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	typed := b.byType[e.EventType()]
	all := b.byType[anyType]
	b.mu.RUnlock()

	for _, s := range typed {
		b.deliver(s.handler, e)
	}
	for _, s := range all {
		b.deliver(s.handler, e)
	}
}

func (b *Bus) deliver(handler Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", e.EventType(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	handler(e)
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.byType {
		n += len(subs)
	}
	return n
}
