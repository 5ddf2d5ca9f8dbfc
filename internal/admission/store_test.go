package admission

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreEvictsLongExpiredWindows(t *testing.T) {
	store := NewMemoryStore(WithEvictAfter(3))
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	store.Increment("stale", 5, time.Minute, start)
	store.Increment("recent", 5, time.Minute, start.Add(2*time.Minute))
	require.Equal(t, 2, store.Len())

	removed := store.Evict(start.Add(3 * time.Minute))
	require.Equal(t, 1, removed)

	_, ok := store.Get("stale")
	require.False(t, ok)
	_, ok = store.Get("recent")
	require.True(t, ok)
}

func TestMemoryStoreGetReturnsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, ok := store.Get("missing")
	require.False(t, ok)

	store.Increment("k", 3, time.Hour, now)
	store.Increment("k", 3, time.Hour, now)

	state, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, state.Count)
	assert.Equal(t, now, state.WindowStart)
	assert.Equal(t, time.Hour, state.Window)
}

func TestMemoryStoreEvictionRacesWithIncrement(t *testing.T) {
	store := NewMemoryStore(WithEvictAfter(1))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				store.Increment(fmt.Sprintf("k-%d", j%16), 1000, time.Millisecond, now.Add(time.Duration(j)*time.Millisecond))
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			store.Evict(now.Add(time.Duration(j*4) * time.Millisecond))
		}
	}()
	wg.Wait()

	require.LessOrEqual(t, store.Len(), 16)
}

func TestSweeperRunOnceUsesControllerClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ctrl, clock := newTestController(start)
	ctrl.Check("a", 1, time.Minute)
	ctrl.Check("b", 1, time.Minute)

	sweeper := NewSweeper(ctrl, "", nil)
	require.Equal(t, 0, sweeper.RunOnce())

	clock.Advance(10 * time.Minute)
	require.Equal(t, 2, sweeper.RunOnce())
}

func TestSweeperStartAndStop(t *testing.T) {
	ctrl := New(nil)
	sweeper := NewSweeper(ctrl, "@every 1h", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sweeper.Start(ctx))
	require.NotNil(t, sweeper.NextRun())

	sweeper.Stop()
	require.Nil(t, sweeper.NextRun())
}

func TestSweeperRejectsInvalidSchedule(t *testing.T) {
	sweeper := NewSweeper(New(nil), "not a schedule", nil)
	err := sweeper.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid sweep schedule")
}

func TestRedisStatsNilClientIsNoop(t *testing.T) {
	var stats *RedisStats
	require.NoError(t, stats.Record(context.Background(), StatsEvent{Key: "k", Allowed: true}))

	allowed, denied, err := stats.Totals(context.Background())
	require.NoError(t, err)
	require.Zero(t, allowed)
	require.Zero(t, denied)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient("not-a-url")
	require.Error(t, err)
}
