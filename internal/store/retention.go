package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/careerlens/careerlens/internal/metrics"
)

// DefaultRetentionSchedule prunes once a day.
const DefaultRetentionSchedule = "@daily"

// Retention prunes outcomes older than a fixed age on a cron schedule.
type Retention struct {
	store    *Store
	maxAge   time.Duration
	schedule string
	logger   *logging.Logger
	clock    func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewRetention creates a retention job. An empty schedule uses
// DefaultRetentionSchedule.
func NewRetention(store *Store, maxAge time.Duration, schedule string, logger *logging.Logger) *Retention {
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	return &Retention{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
		cron:     cron.New(),
	}
}

// Start schedules pruning and stops it when ctx is cancelled.
func (r *Retention) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if r.maxAge <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if _, err := cron.ParseStandard(r.schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.schedule, err)
	}
	if _, err := r.cron.AddFunc(r.schedule, func() {
		_, _ = r.RunOnce(context.WithoutCancel(ctx))
	}); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}

	r.cron.Start()
	r.running = true
	if r.logger != nil {
		r.logger.Info("Outcome retention started",
			zap.String("schedule", r.schedule),
			zap.Duration("max_age", r.maxAge))
	}

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// RunOnce prunes outcomes older than the retention age.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.clock().Add(-r.maxAge)
	removed, err := r.store.PruneOutcomes(ctx, cutoff)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("Outcome retention failed", zap.Error(err))
		}
		return 0, err
	}
	metrics.RecordPruned(removed)
	if r.logger != nil && removed > 0 {
		r.logger.Info("Pruned expired outcomes",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// Stop halts the schedule and waits for a running prune to finish.
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
}
