package admission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// statsWriteTimeout bounds each write made by the AsyncStats worker.
const statsWriteTimeout = 250 * time.Millisecond

// StatsEvent describes one admission decision for reporting.
type StatsEvent struct {
	Key       string
	Operation string
	Allowed   bool
	At        time.Time
}

// StatsRecorder receives admission decisions. Recording never affects the
// decision itself.
type StatsRecorder interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// RedisStats aggregates allowed/denied counters in Redis hashes: a running
// total, one bucket per minute and one hash per operation. Window state is
// never stored here.
type RedisStats struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

// RedisStatsOption configures RedisStats.
type RedisStatsOption func(*RedisStats)

// WithStatsPrefix overrides the key prefix (default "careerlens:admission").
func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL sets the expiry of minute buckets and per-key hashes.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

// WithStatsTrackKeys also counts decisions per caller key.
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStats) { s.trackKeys = track }
}

// NewRedisStats creates a recorder on top of an existing client.
func NewRedisStats(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		rdb:    rdb,
		prefix: "careerlens:admission",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record increments the counters for ev in a single pipeline.
func (s *RedisStats) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if op := strings.TrimSpace(ev.Operation); op != "" {
		pipe.HIncrBy(ctx, s.prefix+":operation", op+":"+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(ev.Key); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record admission stats: %w", err)
	}
	return nil
}

// Totals returns the cumulative allowed/denied counters.
func (s *RedisStats) Totals(ctx context.Context) (allowed, denied int64, err error) {
	if s == nil || s.rdb == nil {
		return 0, 0, nil
	}
	values, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read admission totals: %w", err)
	}
	_, _ = fmt.Sscan(values["allowed"], &allowed)
	_, _ = fmt.Sscan(values["denied"], &denied)
	return allowed, denied, nil
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// AsyncStats moves stats writes off the request path. Record enqueues and
// returns; a single worker writes to next with a bounded timeout. Events are
// dropped and counted when the queue is full.
type AsyncStats struct {
	next   StatsRecorder
	logger *logging.Logger
	queue  chan StatsEvent
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewAsyncStats starts the worker. buffer <= 0 uses 1024.
func NewAsyncStats(next StatsRecorder, buffer int, logger *logging.Logger) *AsyncStats {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &AsyncStats{
		next:   next,
		logger: logger,
		queue:  make(chan StatsEvent, buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Record enqueues ev without waiting.
func (s *AsyncStats) Record(_ context.Context, ev StatsEvent) error {
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
func (s *AsyncStats) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (s *AsyncStats) Close(ctx context.Context) error {
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

func (s *AsyncStats) run() {
	defer close(s.done)
	for ev := range s.queue {
		s.write(ev)
	}
}

func (s *AsyncStats) write(ev StatsEvent) {
	if s.next == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statsWriteTimeout)
	defer cancel()

	if err := s.next.Record(ctx, ev); err != nil && s.logger != nil {
		s.logger.Debug("Admission stats not recorded",
			zap.String("operation", ev.Operation),
			zap.Error(err))
	}
}
