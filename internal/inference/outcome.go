package inference

import "time"

// Status is the terminal state of an invocation.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFallback Status = "fallback"
)

// Reason explains why an invocation fell back.
type Reason string

const (
	ReasonTimeout        Reason = "timeout"
	ReasonTransportError Reason = "transport_error"
	ReasonParseError     Reason = "parse_error"
	ReasonShapeMismatch  Reason = "shape_mismatch"
)

// Request is one prepared call. Temperature and MaxOutputTokens are passed to
// the provider untouched; nil and zero leave the provider defaults in place.
type Request[T any] struct {
	Operation       string
	System          string
	User            string
	MaxOutputTokens int
	Temperature     *float64
	Shape           Shape
	Fallback        T
	RequestID       string
}

// Outcome always carries a usable Value. When Status is StatusFallback the
// value is the request's Fallback and Reason names the cause.
type Outcome[T any] struct {
	Value   T
	Status  Status
	Reason  Reason
	Latency time.Duration
	// Err is the underlying cause of a fallback, kept for diagnostics only.
	Err error
}

// Degraded reports whether the fallback was served.
func (o Outcome[T]) Degraded() bool {
	return o.Status == StatusFallback
}
