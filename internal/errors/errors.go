// Package errors provides the failure taxonomy of the API coordination hub.
//
// The hub introduces exactly three failure kinds of its own, all raised instead
// of invoking the caller's function:
//   - Unregistered: the API name was never passed to RegisterAPI
//   - RateLimited: the token bucket denied admission
//   - CircuitOpen: the circuit breaker denied admission
//
// Any other error observed by a caller is an upstream failure returned unchanged
// by the hub; [KindOf] reports [KindUpstream] for it.
//
// # Usage
//
// Checking errors:
//
//	// Sentinel comparison
//	if errors.Is(err, errors.ErrRateLimited) { ... }
//
//	// Typed access to the retry hint
//	var hubErr *errors.HubError
//	if errors.As(err, &hubErr) {
//	    time.Sleep(hubErr.RetryAfter)
//	}
//
//	// Pattern match on the kind
//	switch errors.KindOf(err) {
//	case errors.KindRateLimited:
//	case errors.KindCircuitOpen:
//	case errors.KindUnregistered:
//	case errors.KindUpstream:
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Kind classifies the outcome of a coordinated call.
type Kind int

const (
	// KindUpstream marks an error raised by the wrapped call itself.
	KindUpstream Kind = iota
	// KindUnregistered marks a call against an API name that was never registered.
	KindUnregistered
	// KindRateLimited marks a call denied by the token bucket.
	KindRateLimited
	// KindCircuitOpen marks a call denied by the circuit breaker.
	KindCircuitOpen
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUpstream:
		return "upstream"
	case KindUnregistered:
		return "unregistered"
	case KindRateLimited:
		return "rate_limited"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnregistered indicates that the API name is not registered with the hub.
	ErrUnregistered = New("api not registered")
	// ErrRateLimited indicates that the API's token bucket denied the call.
	ErrRateLimited = New("rate limit exceeded")
	// ErrCircuitOpen indicates that the API's circuit breaker denied the call.
	ErrCircuitOpen = New("circuit breaker open")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// sentinelFor maps a hub-introduced kind to its sentinel.
func sentinelFor(k Kind) error {
	switch k {
	case KindUnregistered:
		return ErrUnregistered
	case KindRateLimited:
		return ErrRateLimited
	case KindCircuitOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// Classified is implemented by every error this package constructs.
type Classified interface {
	error

	// Kind reports which failure kind the error represents.
	Kind() Kind

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the caller may retry the operation,
	// possibly after waiting.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// -----------------------------------------------------------------------------
// Hub Errors
// -----------------------------------------------------------------------------

// HubError is a failure introduced by the hub itself. It is never combined
// with an upstream error: the hub raises it instead of calling the wrapped
// function.
//
// Example:
//
//	err := errors.NewRateLimitError("github", 1500*time.Millisecond)
//	fmt.Println(err) // "rate limit exceeded [api=github, retry_after=1.5s]"
type HubError struct {
	baseError
	kind Kind

	// API is the name the call was issued against.
	API string

	// RetryAfter is the earliest time at which a retry could be admitted.
	// Zero when no estimate exists.
	RetryAfter time.Duration
}

// NewUnregisteredError creates a HubError for an unknown API name.
func NewUnregisteredError(api string) *HubError {
	return &HubError{
		baseError: baseError{
			message:  ErrUnregistered.Error(),
			severity: SeverityError,
		},
		kind: KindUnregistered,
		API:  api,
	}
}

// NewRateLimitError creates a HubError for a call the token bucket denied.
// retryAfter is the time until the next token is available.
func NewRateLimitError(api string, retryAfter time.Duration) *HubError {
	return &HubError{
		baseError: baseError{
			message:   ErrRateLimited.Error(),
			severity:  SeverityWarning,
			retryable: true,
		},
		kind:       KindRateLimited,
		API:        api,
		RetryAfter: retryAfter,
	}
}

// NewCircuitOpenError creates a HubError for a call the circuit breaker denied.
// retryAfter is the time until the breaker admits a trial call.
func NewCircuitOpenError(api string, retryAfter time.Duration) *HubError {
	return &HubError{
		baseError: baseError{
			message:  ErrCircuitOpen.Error(),
			severity: SeverityWarning,
		},
		kind:       KindCircuitOpen,
		API:        api,
		RetryAfter: retryAfter,
	}
}

// Kind returns the failure kind.
func (e *HubError) Kind() Kind {
	return e.kind
}

// Error returns the formatted error message.
func (e *HubError) Error() string {
	var parts []string
	if e.API != "" {
		parts = append(parts, fmt.Sprintf("api=%s", e.API))
	}
	if e.RetryAfter > 0 {
		parts = append(parts, fmt.Sprintf("retry_after=%s", e.RetryAfter))
	}

	if len(parts) == 0 {
		return e.message
	}
	return fmt.Sprintf("%s [%s]", e.message, strings.Join(parts, ", "))
}

// Is reports whether target is the sentinel for this error's kind.
func (e *HubError) Is(target error) bool {
	if t, ok := target.(*HubError); ok {
		return t.kind == e.kind
	}
	if s := sentinelFor(e.kind); s != nil && target == s {
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Validation Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input, such as an empty API name.
//
// Example:
//
//	err := errors.NewValidationError("api name cannot be empty").WithField("name")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Kind returns KindUpstream; validation failures are not admission decisions.
func (e *ValidationError) Kind() Kind {
	return KindUpstream
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return target == ErrInvalidInput
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// KindOf classifies err. Errors that are not HubErrors, including nil,
// report KindUpstream.
func KindOf(err error) Kind {
	var hubErr *HubError
	if As(err, &hubErr) {
		return hubErr.kind
	}
	return KindUpstream
}

// RetryAfter returns the retry hint carried by a HubError.
// The boolean is false when err carries no hint.
func RetryAfter(err error) (time.Duration, bool) {
	var hubErr *HubError
	if As(err, &hubErr) && hubErr.RetryAfter > 0 {
		return hubErr.RetryAfter, true
	}
	return 0, false
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. Any error in the chain exposing
// IsRetryable() bool is consulted, so upstream error types can opt in.
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    wait, _ := errors.RetryAfter(err)
//	    time.Sleep(wait)
//	    return retry(operation)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r interface{ IsRetryable() bool }
	if As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// GetSeverity returns the severity level of the error. Any error in the
// chain with a Severity() Severity method is consulted, so upstream error
// types can declare their own. Other errors are SeverityError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var s interface{ Severity() Severity }
	if As(err, &s) {
		return s.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to publish snapshot")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
