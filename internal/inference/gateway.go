package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/careerlens/careerlens/internal/inference/driver"
)

// DefaultDeadline applies when neither the call nor the gateway sets one.
const DefaultDeadline = 30 * time.Second

// maxEventError bounds the error text copied into events.
const maxEventError = 512

var (
	errNoDriver       = errors.New("no inference driver configured")
	errPacingDeadline = errors.New("provider pacing would exceed deadline")
)

// Gateway performs one bounded provider exchange per call and always yields a
// value of the caller's type. It never retries.
type Gateway struct {
	Driver          driver.Driver
	Model           string
	Sink            Sink
	Pacer           *rate.Limiter
	DefaultDeadline time.Duration
	Clock           func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSink sets the event sink.
func WithSink(sink Sink) Option {
	return func(g *Gateway) { g.Sink = sink }
}

// WithPacer limits outbound provider calls to rps with the given burst.
// Waiting for a token counts against the call deadline.
func WithPacer(rps float64, burst int) Option {
	return func(g *Gateway) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.Pacer = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithDefaultDeadline sets the deadline used when a call passes zero.
func WithDefaultDeadline(d time.Duration) Option {
	return func(g *Gateway) { g.DefaultDeadline = d }
}

// NewGateway creates a gateway for drv using model for every request.
func NewGateway(drv driver.Driver, model string, opts ...Option) *Gateway {
	g := &Gateway{Driver: drv, Model: model}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the driver name, or "" when unconfigured.
func (g *Gateway) Provider() string {
	if g == nil || g.Driver == nil {
		return ""
	}
	return g.Driver.Name()
}

// Invoke runs req under deadline and returns the validated result, or the
// request's fallback with the reason it was used. It never returns an error.
func Invoke[T any](ctx context.Context, g *Gateway, req Request[T], deadline time.Duration) Outcome[T] {
	start := time.Now()
	value, reason, err := invoke(ctx, g, req, deadline)

	out := Outcome[T]{Value: value, Status: StatusSuccess, Latency: time.Since(start)}
	if reason != "" {
		out = Outcome[T]{
			Value:   req.Fallback,
			Status:  StatusFallback,
			Reason:  reason,
			Latency: out.Latency,
			Err:     err,
		}
	}

	g.record(ctx, req.Operation, req.RequestID, out.Status, out.Reason, out.Latency, err)
	return out
}

func invoke[T any](ctx context.Context, g *Gateway, req Request[T], deadline time.Duration) (value T, reason Reason, err error) {
	if g == nil || g.Driver == nil {
		return value, ReasonTransportError, errNoDriver
	}

	if deadline <= 0 {
		deadline = g.DefaultDeadline
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resp, err := g.dispatch(callCtx, driverRequest(g.Model, req))
	if err != nil {
		return value, classify(callCtx, err), err
	}
	if resp == nil {
		return value, ReasonParseError, errEmptyResponse
	}

	cleaned, obj, err := parseObject(resp.Text)
	if err != nil {
		return value, ReasonParseError, err
	}
	if err := req.Shape.Validate(obj); err != nil {
		return value, ReasonShapeMismatch, err
	}
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		var zero T
		return zero, ReasonShapeMismatch, fmt.Errorf("decode result: %w", err)
	}
	return value, "", nil
}

func driverRequest[T any](model string, req Request[T]) *driver.Request {
	out := &driver.Request{
		Model:          model,
		Operation:      req.Operation,
		RequestID:      req.RequestID,
		ResponseFormat: &driver.ResponseFormat{Type: "json_object"},
	}
	if req.System != "" {
		out.Messages = append(out.Messages, driver.Message{Role: driver.RoleSystem, Content: req.System})
	}
	out.Messages = append(out.Messages, driver.Message{Role: driver.RoleUser, Content: req.User})

	if req.Temperature != nil {
		temperature := *req.Temperature
		out.Temperature = &temperature
	}
	if req.MaxOutputTokens > 0 {
		maxTokens := req.MaxOutputTokens
		out.MaxTokens = &maxTokens
	}
	return out
}

// dispatch calls the driver and abandons it at the deadline even when the
// driver ignores ctx. Driver panics are reported as errors.
func (g *Gateway) dispatch(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if g.Pacer != nil {
		if err := g.Pacer.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", errPacingDeadline, err)
		}
	}

	type result struct {
		resp *driver.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("driver panic: %v", r)}
			}
		}()
		resp, err := g.Driver.Complete(ctx, req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func classify(ctx context.Context, err error) Reason {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, errPacingDeadline):
		return ReasonTimeout
	default:
		return ReasonTransportError
	}
}

func (g *Gateway) record(ctx context.Context, operation, requestID string, status Status, reason Reason, latency time.Duration, err error) {
	if g == nil || g.Sink == nil {
		return
	}

	ev := Event{
		Operation: operation,
		Outcome:   status,
		Reason:    reason,
		LatencyMs: latency.Milliseconds(),
		Provider:  g.Provider(),
		Model:     g.Model,
		RequestID: requestID,
		At:        g.now(),
	}
	if err != nil {
		ev.Error = clipError(err.Error())
	}

	defer func() { _ = recover() }()
	_ = g.Sink.Record(context.WithoutCancel(ctx), ev)
}

// clipError bounds msg to maxEventError bytes without splitting a rune.
func clipError(msg string) string {
	if len(msg) <= maxEventError {
		return msg
	}
	cut := maxEventError
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func (g *Gateway) now() time.Time {
	if g != nil && g.Clock != nil {
		return g.Clock()
	}
	return time.Now().UTC()
}
