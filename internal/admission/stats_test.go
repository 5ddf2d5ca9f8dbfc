package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStats(t *testing.T, opts ...RedisStatsOption) (*RedisStats, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStats(rdb, opts...), mr
}

func TestRedisStatsRecordsCounters(t *testing.T) {
	stats, mr := newMiniredisStats(t,
		WithStatsPrefix("cl:adm:"),
		WithStatsTTL(time.Hour),
		WithStatsTrackKeys(true),
	)
	ctx := context.Background()
	at := time.Date(2025, 3, 4, 10, 15, 30, 0, time.UTC)

	require.NoError(t, stats.Record(ctx, StatsEvent{Key: "alice:parse-cv", Operation: "parse-cv", Allowed: true, At: at}))
	require.NoError(t, stats.Record(ctx, StatsEvent{Key: "alice:parse-cv", Operation: "parse-cv", Allowed: true, At: at}))
	require.NoError(t, stats.Record(ctx, StatsEvent{Key: "alice:parse-cv", Operation: "parse-cv", Allowed: false, At: at}))
	require.NoError(t, stats.Record(ctx, StatsEvent{Key: "bob:match-job", Operation: "match-job", Allowed: true, At: at.Add(time.Minute)}))

	assert.Equal(t, "3", mr.HGet("cl:adm:total", "allowed"))
	assert.Equal(t, "1", mr.HGet("cl:adm:total", "denied"))

	bucket := "cl:adm:minute:202503041015"
	assert.Equal(t, "2", mr.HGet(bucket, "allowed"))
	assert.Equal(t, "1", mr.HGet(bucket, "denied"))
	assert.Equal(t, time.Hour, mr.TTL(bucket))
	assert.Equal(t, "1", mr.HGet("cl:adm:minute:202503041016", "allowed"))

	assert.Equal(t, "2", mr.HGet("cl:adm:operation", "parse-cv:allowed"))
	assert.Equal(t, "1", mr.HGet("cl:adm:operation", "parse-cv:denied"))
	assert.Equal(t, "1", mr.HGet("cl:adm:operation", "match-job:allowed"))

	assert.Equal(t, "1", mr.HGet("cl:adm:key:alice:parse-cv", "denied"))
	assert.Equal(t, time.Hour, mr.TTL("cl:adm:key:alice:parse-cv"))

	allowed, denied, err := stats.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), allowed)
	assert.Equal(t, int64(1), denied)
}

func TestRedisStatsSkipsKeysUnlessTracked(t *testing.T) {
	stats, mr := newMiniredisStats(t)

	require.NoError(t, stats.Record(context.Background(), StatsEvent{Key: "alice", Operation: "parse-cv", Allowed: true}))

	assert.Equal(t, "1", mr.HGet("careerlens:admission:total", "allowed"))
	assert.False(t, mr.Exists("careerlens:admission:key:alice"))
}

func TestRedisStatsReportsUnreachableServer(t *testing.T) {
	stats, mr := newMiniredisStats(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Error(t, stats.Record(ctx, StatsEvent{Operation: "parse-cv", Allowed: true}))
	_, _, err := stats.Totals(ctx)
	require.Error(t, err)
}

type blockingStats struct {
	mu      sync.Mutex
	release chan struct{}
	events  []StatsEvent
	err     error
}

func (b *blockingStats) Record(_ context.Context, ev StatsEvent) error {
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return b.err
}

func (b *blockingStats) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func TestAsyncStatsDoesNotWaitForSlowRecorder(t *testing.T) {
	next := &blockingStats{release: make(chan struct{})}
	async := NewAsyncStats(next, 2, nil)

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, async.Record(context.Background(), StatsEvent{Operation: "parse-cv", Allowed: true}))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	// One event is held by the worker and two fill the queue.
	assert.GreaterOrEqual(t, async.Dropped(), int64(7))

	close(next.release)
	require.NoError(t, async.Close(context.Background()))
	assert.Equal(t, int64(10), int64(next.count())+async.Dropped())
}

func TestAsyncStatsDrainsOnClose(t *testing.T) {
	next := &blockingStats{err: errors.New("redis down")}
	async := NewAsyncStats(next, 16, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, async.Record(context.Background(), StatsEvent{Operation: "match-job"}))
	}
	require.NoError(t, async.Close(context.Background()))
	assert.Equal(t, 5, next.count())
	assert.Zero(t, async.Dropped())

	require.NoError(t, async.Record(context.Background(), StatsEvent{}))
	assert.Equal(t, int64(1), async.Dropped())
}
