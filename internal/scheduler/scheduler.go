package scheduler

import (
	"context"
	"log/slog"
	"time"

	"feeds_reader/internal/session"
)

// Updater refreshes every subscription and flushes pending writes.
type Updater interface {
	UpdateAll(ctx context.Context) []session.UpdateReport
	Save(ctx context.Context) error
}

// Scheduler periodically updates all feeds.
type Scheduler struct {
	updater Updater
	log     *slog.Logger
	tick    time.Duration
}

// New creates a Scheduler running every interval.
func New(updater Updater, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Scheduler{
		updater: updater,
		log:     log,
		tick:    interval,
	}
}

// SetTickInterval overrides the update interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled. Pending
// writes are flushed before it returns.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.flush()

	s.updateAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateAll(ctx)
		}
	}
}

func (s *Scheduler) updateAll(ctx context.Context) {
	start := time.Now()
	reports := s.updater.UpdateAll(ctx)

	added, failed := 0, 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
			continue
		}
		added += r.Added
	}
	s.log.Debug("scheduled update done",
		"feeds", len(reports), "added", added, "failed", failed, "took", time.Since(start))
}

func (s *Scheduler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.updater.Save(ctx); err != nil {
		s.log.Error("flush pending writes", "error", err)
	}
}
