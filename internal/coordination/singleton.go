package coordination

import "sync"

var (
	defaultOnce sync.Once
	defaultHub  *Hub
)

// Default returns the process-wide Hub, creating it with default options on
// first use. Independent hubs can still be created with NewHub.
func Default() *Hub {
	defaultOnce.Do(func() {
		defaultHub = NewHub()
	})
	return defaultHub
}
