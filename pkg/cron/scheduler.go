// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DocumentSweeper removes document uploads left pending past a grace period.
type DocumentSweeper interface {
	SweepOrphanedDocuments(ctx context.Context, grace time.Duration) (int, error)
}

// Config controls the document sweep job.
type Config struct {
	// SweepSchedule is a standard 5-field cron spec.
	SweepSchedule string
	SweepGrace    time.Duration
	// SweepTimeout bounds a single run.
	SweepTimeout time.Duration
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	sweeper DocumentSweeper
	cfg     Config
	logger  *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(sweeper DocumentSweeper, cfg Config, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "*/30 * * * *"
	}
	if cfg.SweepGrace <= 0 {
		cfg.SweepGrace = time.Hour
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 10 * time.Minute
	}

	return &Scheduler{
		cron:    c,
		sweeper: sweeper,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweepOrphanedDocuments)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("sweep_schedule", s.cfg.SweepSchedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the document sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepOrphanedDocuments()
}

func (s *Scheduler) sweepOrphanedDocuments() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepTimeout)
	defer cancel()

	start := time.Now()
	removed, err := s.sweeper.SweepOrphanedDocuments(ctx, s.cfg.SweepGrace)
	if err != nil {
		s.logger.Error("orphaned document sweep failed",
			slog.Int("removed", removed),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Debug("orphaned document sweep completed",
		slog.Int("removed", removed),
		slog.Duration("duration", time.Since(start)),
	)
}
