// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the session sweep every fifteen minutes.
const DefaultSweepSchedule = "@every 15m"

// SessionSweeper forgets import sessions older than its retention period.
type SessionSweeper interface {
	ExpireSessions(now time.Time) int
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  SessionSweeper
	schedule string
	now      func() time.Time
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler. An empty schedule uses
// DefaultSweepSchedule.
func NewScheduler(sweeper SessionSweeper, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:     c,
		sweeper:  sweeper,
		schedule: schedule,
		now:      time.Now,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweepSessions); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("schedule", s.schedule),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs the session sweep synchronously and returns how many sessions
// it removed.
func (s *Scheduler) RunNow() int {
	return s.sweep()
}

func (s *Scheduler) sweepSessions() {
	s.sweep()
}

func (s *Scheduler) sweep() int {
	started := s.now()
	removed := s.sweeper.ExpireSessions(started)
	s.logger.Debug("import session sweep completed",
		slog.Int("sessions_removed", removed),
		slog.Duration("took", time.Since(started)),
	)
	return removed
}
