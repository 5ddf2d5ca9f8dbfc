package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Event is the diagnostic record emitted once per invocation.
type Event struct {
	Operation string    `json:"operation"`
	Outcome   Status    `json:"outcome"`
	Reason    Reason    `json:"reason,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Sink consumes invocation events. Implementations used directly by a
// Gateway must not block; wrap slow sinks in an AsyncSink.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Record(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes one structured log line per event.
type LogSink struct {
	Logger *logging.Logger
}

// NewLogSink returns a sink writing to logger.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Record(_ context.Context, ev Event) error {
	if s == nil || s.Logger == nil {
		return nil
	}

	fields := []zap.Field{
		zap.String("operation", ev.Operation),
		zap.String("outcome", string(ev.Outcome)),
		zap.Int64("latency_ms", ev.LatencyMs),
	}
	if ev.Provider != "" {
		fields = append(fields, zap.String("provider", ev.Provider))
	}
	if ev.Model != "" {
		fields = append(fields, zap.String("model", ev.Model))
	}
	if ev.RequestID != "" {
		fields = append(fields, zap.String("request_id", ev.RequestID))
	}

	if ev.Outcome == StatusSuccess {
		s.Logger.Info("Inference completed", fields...)
		return nil
	}

	fields = append(fields, zap.String("reason", string(ev.Reason)))
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}
	s.Logger.Warn("Inference degraded to fallback", fields...)
	return nil
}

// AsyncSink hands events to a single background worker through a bounded
// queue. Record never blocks: when the queue is full the event is dropped.
type AsyncSink struct {
	next   Sink
	logger *logging.Logger
	queue  chan Event
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewAsyncSink starts the worker. buffer <= 0 uses 256.
func NewAsyncSink(next Sink, buffer int, logger *logging.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		next:   next,
		logger: logger,
		queue:  make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Record enqueues ev without waiting.
func (s *AsyncSink) Record(_ context.Context, ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return nil
	}
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Dropped returns how many events were discarded.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		s.deliver(ev)
	}
}

func (s *AsyncSink) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("Inference sink panicked", zap.Any("panic", r), zap.String("operation", ev.Operation))
		}
	}()

	if s.next == nil {
		return
	}
	if err := s.next.Record(context.Background(), ev); err != nil && s.logger != nil {
		s.logger.Warn("Inference sink failed",
			zap.String("operation", ev.Operation),
			zap.Error(err))
	}
}
