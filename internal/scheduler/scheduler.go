package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// DefaultInterval is used when no sweep interval is configured.
const DefaultInterval = 5 * time.Minute

// Sweeper removes idle sessions.
type Sweeper interface {
	Sweep(now time.Time, maxIdle time.Duration) int
}

// Scheduler periodically evicts sessions that have been idle too long.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sessions  Sweeper
	idleTTL   time.Duration
	interval  time.Duration
	now       func() time.Time
}

// New creates a new Scheduler.
func New(sessions Sweeper, idleTTL, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		sessions:  sessions,
		idleTTL:   idleTTL,
		interval:  interval,
		now:       time.Now,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.idleTTL <= 0 {
		log.WithField("event", "scheduler").Info("session idle ttl disabled; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	_, err := s.scheduler.Every(interval).Do(s.sweepOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) sweepOnce() int {
	removed := s.sessions.Sweep(s.now(), s.idleTTL)
	if removed > 0 {
		log.WithFields(log.Fields{
			"event":   "session_sweep",
			"removed": removed,
		}).Info("evicted idle sessions")
	}
	return removed
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
