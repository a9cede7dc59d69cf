// Package cronrestart implements the cron_restart restart source
// (spec.md §4 supplemented feature): a standard 5-field cron expression
// that triggers a Restart intent on every fire. Grounded directly on the
// teacher's internal/cronjob.CronJob, which wraps the same
// github.com/robfig/cron/v3 scheduler; simplified to a single restart
// callback instead of the teacher's job-history/concurrency-policy engine,
// since a supervised process is a long-running singleton, not a
// fire-and-forget batch job.
package cronrestart

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/velos-sh/velos/internal/proc"
)

// Restarter is the narrow capability this package needs from the
// Supervisor, kept separate to avoid an import cycle.
type Restarter interface {
	Restart(id uint32) (proc.Summary, error)
}

// Start schedules schedule (standard 5-field cron) to call Restart(id) on
// every fire. The returned cancel func stops the scheduler without
// waiting for any in-flight job.
func Start(id uint32, schedule string, r Restarter) (func(), error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(schedule, func() {
		if _, err := r.Restart(id); err != nil {
			slog.Warn("cronrestart: restart failed", "id", id, "schedule", schedule, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	scheduler.Start()

	return func() {
		scheduler.Stop()
	}, nil
}
