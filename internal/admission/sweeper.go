package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSchedule runs the eviction sweep every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// Sweeper periodically evicts expired windows from a controller's store.
type Sweeper struct {
	controller *Controller
	schedule   string
	logger     *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper for controller. An empty schedule uses
// DefaultSweepSchedule.
func NewSweeper(controller *Controller, schedule string, logger *logging.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		controller: controller,
		schedule:   schedule,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start schedules the sweep and stops it when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.controller == nil {
		return fmt.Errorf("sweeper has no controller")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce() }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	if s.logger != nil {
		s.logger.Info("Admission sweeper started", zap.String("schedule", s.schedule))
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce performs a single sweep and returns the number of evicted keys.
func (s *Sweeper) RunOnce() int {
	start := time.Now()
	removed := s.controller.Sweep()

	if s.logger != nil && removed > 0 {
		s.logger.Debug("Admission sweep evicted expired windows",
			zap.Int("evicted", removed),
			zap.Duration("duration", time.Since(start)))
	}
	return removed
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	done := s.cron.Stop()
	<-done.Done()
	s.running = false

	if s.logger != nil {
		s.logger.Info("Admission sweeper stopped")
	}
}

// NextRun returns the next scheduled sweep, or nil when not running.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
