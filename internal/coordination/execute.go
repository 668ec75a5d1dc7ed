package coordination

import "github.com/Iron-Ham/apihub/internal/errors"

// errCallPanicked is recorded as the outcome of a call whose function panicked.
var errCallPanicked = errors.New("coordinated call panicked")

// Call is the typed form of Hub.Execute: it runs fn under name's admission
// control and returns fn's result unchanged, or the zero T with a classified
// hub error when the call was not admitted.
func Call[T any](h *Hub, name string, fn func() (T, error)) (T, error) {
	var zero T

	e, err := h.lookup(name)
	if err != nil {
		return zero, err
	}
	gen, err := h.admit(e)
	if err != nil {
		return zero, err
	}

	start := h.now()
	done := false
	defer func() {
		if !done {
			h.complete(e, gen, start, errCallPanicked)
		}
	}()

	result, err := fn()
	done = true
	h.complete(e, gen, start, err)
	return result, err
}

// Coordinate returns fn wrapped so every invocation is routed through h
// under name.
//
//	fetch := coordination.Coordinate(hub, "github", client.FetchIssues)
//	issues, err := fetch()
func Coordinate[T any](h *Hub, name string, fn func() (T, error)) func() (T, error) {
	return func() (T, error) {
		return Call(h, name, fn)
	}
}

// Coordinate1 is Coordinate for functions taking one argument, such as a
// context.Context or a request value.
func Coordinate1[A, T any](h *Hub, name string, fn func(A) (T, error)) func(A) (T, error) {
	return func(a A) (T, error) {
		return Call(h, name, func() (T, error) { return fn(a) })
	}
}

// Coordinate2 is Coordinate for functions taking two arguments.
func Coordinate2[A, B, T any](h *Hub, name string, fn func(A, B) (T, error)) func(A, B) (T, error) {
	return func(a A, b B) (T, error) {
		return Call(h, name, func() (T, error) { return fn(a, b) })
	}
}
