// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs the upload prune daily at 3:00 AM.
const DefaultPruneSchedule = "0 3 * * *"

// Pruner removes archived files older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	uploads   Pruner
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewScheduler creates a scheduler that prunes uploads older than retention.
func NewScheduler(uploads Pruner, retention time.Duration, logger *slog.Logger) *Scheduler {
	// Standard 5-field format, seconds disabled
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:      c,
		uploads:   uploads,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Start registers the jobs and begins running them. An empty schedule uses
// DefaultPruneSchedule.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.pruneUploads); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("prune_schedule", schedule),
		slog.Duration("retention", s.retention),
	)
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers the upload prune in the background.
func (s *Scheduler) RunNow() {
	go s.pruneUploads()
}

func (s *Scheduler) pruneUploads() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.retention)
	removed, err := s.uploads.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to prune uploads",
			slog.Time("cutoff", cutoff),
			slog.Int("removed", removed),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Info("upload prune completed",
		slog.Time("cutoff", cutoff),
		slog.Int("removed", removed),
	)
}
