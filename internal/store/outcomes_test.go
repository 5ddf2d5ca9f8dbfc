package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerlens/careerlens/internal/config"
	"github.com/careerlens/careerlens/internal/inference"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.StoreConfig{Driver: DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()), "migrations are idempotent")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *Store, base time.Time) {
	t.Helper()
	events := []inference.Event{
		{Operation: "parse-cv", Outcome: inference.StatusSuccess, LatencyMs: 120, Provider: "openai", Model: "m", RequestID: "r1", At: base},
		{Operation: "parse-cv", Outcome: inference.StatusFallback, Reason: inference.ReasonTimeout, LatencyMs: 30000, Error: "deadline", At: base.Add(time.Minute)},
		{Operation: "match-job", Outcome: inference.StatusFallback, Reason: inference.ReasonShapeMismatch, LatencyMs: 900, At: base.Add(2 * time.Minute)},
		{Operation: "parse-cv", Outcome: inference.StatusSuccess, LatencyMs: 150, At: base.Add(3 * time.Minute)},
	}
	for _, ev := range events {
		require.NoError(t, s.RecordOutcome(context.Background(), ev))
	}
}

func TestRecordAndListOutcomes(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, base)

	all, err := s.ListOutcomes(context.Background(), OutcomeQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, base.Add(3*time.Minute), all[0].At, "newest first")
	assert.Equal(t, base, all[3].At)
	assert.Equal(t, "r1", all[3].RequestID)
	assert.Equal(t, "openai", all[3].Provider)

	fallbacks, err := s.ListOutcomes(context.Background(), OutcomeQuery{Operation: "parse-cv", Outcome: "fallback"})
	require.NoError(t, err)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "timeout", fallbacks[0].Reason)
	assert.Equal(t, int64(30000), fallbacks[0].LatencyMs)
	assert.Equal(t, "deadline", fallbacks[0].Error)

	limited, err := s.ListOutcomes(context.Background(), OutcomeQuery{Limit: 2, Since: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "parse-cv", limited[0].Operation)
	assert.Equal(t, "match-job", limited[1].Operation)
}

func TestCountOutcomes(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	counts, err := s.CountOutcomes(context.Background(), OutcomeQuery{})
	require.NoError(t, err)
	assert.Equal(t, []OutcomeCount{
		{Operation: "match-job", Outcome: "fallback", Count: 1},
		{Operation: "parse-cv", Outcome: "fallback", Count: 1},
		{Operation: "parse-cv", Outcome: "success", Count: 2},
	}, counts)
}

func TestPruneOutcomes(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, base)

	removed, err := s.PruneOutcomes(context.Background(), base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rest, err := s.ListOutcomes(context.Background(), OutcomeQuery{})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestOutcomeSinkWritesThroughAsyncSink(t *testing.T) {
	s := openTestStore(t)
	async := inference.NewAsyncSink(s.OutcomeSink(), 8, nil)

	require.NoError(t, async.Record(context.Background(), inference.Event{Operation: "rewrite-cv", Outcome: inference.StatusSuccess, LatencyMs: 10}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, async.Close(ctx))

	got, err := s.ListOutcomes(context.Background(), OutcomeQuery{Operation: "rewrite-cv"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].At.IsZero())
}

func TestRetentionRunOnce(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seed(t, s, base)

	r := NewRetention(s, 90*time.Second, "", nil)
	r.clock = func() time.Time { return base.Add(3 * time.Minute) }

	removed, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestRetentionStartValidates(t *testing.T) {
	s := openTestStore(t)

	err := NewRetention(s, 0, "", nil).Start(context.Background())
	require.ErrorContains(t, err, "retention must be positive")

	err = NewRetention(s, time.Hour, "not a schedule", nil).Start(context.Background())
	require.ErrorContains(t, err, "invalid retention schedule")

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetention(s, time.Hour, "@hourly", nil)
	require.NoError(t, r.Start(ctx))
	cancel()
	r.Stop()
}
