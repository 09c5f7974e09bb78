package ratelimit

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Sweeper periodically drops ended windows from a MemoryStore so the ledger
// does not grow with every distinct caller seen.
type Sweeper struct {
	scheduler gocron.Scheduler
	store     *MemoryStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewSweeper schedules a sweep of store every interval. Call Start to begin.
func NewSweeper(store *MemoryStore, interval time.Duration, logger *zap.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	sw := &Sweeper{scheduler: s, store: store, logger: logger, now: time.Now}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { sw.Run() }),
		gocron.WithName("ratelimit-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}
	return sw, nil
}

// Start begins running scheduled sweeps.
func (s *Sweeper) Start() {
	s.scheduler.Start()
}

// Run performs one sweep and returns the number of removed entries.
func (s *Sweeper) Run() int {
	removed := s.store.Sweep(s.now())
	if removed > 0 {
		s.logger.Debug("Swept rate limit ledger",
			zap.Int("removed", removed),
			zap.Int("remaining", s.store.Len()))
	}
	return removed
}

// Stop shuts the scheduler down and waits for a running sweep to finish.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}
