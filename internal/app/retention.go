/**
 * @description
 * Cron scheduler for the email retention job. Forwarded and failed messages
 * older than the configured retention window are purged on a schedule.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/keepsafe/keepsafe-api/internal/store"
)

// Retention runs the periodic purge of processed emails.
type Retention struct {
	cron     *cron.Cron
	repo     store.Repository
	logger   *slog.Logger
	days     int
	schedule string
}

// NewRetention creates the retention scheduler. A days value of zero or less
// disables purging entirely; Start becomes a no-op.
func NewRetention(repo store.Repository, logger *slog.Logger, days int, schedule string) *Retention {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Retention{
		cron:     c,
		repo:     repo,
		logger:   logger,
		days:     days,
		schedule: schedule,
	}
}

// Start registers the purge job and starts the scheduler.
func (r *Retention) Start() {
	if r.days <= 0 {
		r.logger.Info("email retention disabled")
		return
	}
	if _, err := r.cron.AddFunc(r.schedule, r.RunOnce); err != nil {
		r.logger.Error("failed to schedule email retention job", "error", err, "schedule", r.schedule)
		return
	}
	r.logger.Info("scheduled email retention job", "schedule", r.schedule, "retention_days", r.days)
	r.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce executes a single purge pass.
func (r *Retention) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -r.days)
	deleted, err := r.repo.DeleteEmailsProcessedBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("email retention purge failed", "error", err)
		return
	}
	if deleted > 0 {
		r.logger.Info("purged processed emails", "deleted", deleted, "cutoff", cutoff)
	}
}
