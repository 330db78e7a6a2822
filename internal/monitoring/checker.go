// Package monitoring watches for batch jobs stuck in processing.
package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/internal/store"
)

// Config tunes the stale-job checker.
type Config struct {
	// StaleAfter is how long a job may stay in processing before it is
	// reported. Runs are sequential and never retried, so anything older
	// than this is almost certainly a crashed run.
	StaleAfter time.Duration
	// Interval between checks.
	Interval time.Duration
}

// Checker periodically scans for processing jobs older than a threshold and
// logs them. It never mutates job state: a stale job is an operator signal,
// not something the checker can safely finalize.
type Checker struct {
	store store.Store
	cfg   Config
	now   func() time.Time
}

// NewChecker creates a stale-job checker.
func NewChecker(st store.Store, cfg Config) *Checker {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Checker{store: st, cfg: cfg, now: time.Now}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting stale job checker",
		zap.Duration("interval", c.cfg.Interval),
		zap.Duration("stale_after", c.cfg.StaleAfter),
	)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stale job checker stopped")
			return
		case <-ticker.C:
			if _, err := c.Check(ctx); err != nil {
				log.Error("monitoring: stale job check failed", zap.Error(err))
			}
		}
	}
}

// Check scans once and returns the stale jobs found.
func (c *Checker) Check(ctx context.Context) ([]model.BatchJob, error) {
	jobs, err := c.store.ListJobs(ctx, store.JobFilter{Status: model.JobStatusProcessing})
	if err != nil {
		return nil, err
	}

	cutoff := c.now().UTC().Add(-c.cfg.StaleAfter)
	var stale []model.BatchJob
	for _, j := range jobs {
		if j.CreatedAt.Before(cutoff) {
			stale = append(stale, j)
			zap.L().Warn("monitoring: stale batch job",
				zap.String("job_id", j.ID),
				zap.String("provider", string(j.Provider)),
				zap.Int("processed", j.Processed),
				zap.Int("total", j.Total),
				zap.Time("created_at", j.CreatedAt),
			)
		}
	}
	return stale, nil
}
