package supervisor

import (
	"log/slog"

	"github.com/velos-sh/velos/internal/cronrestart"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/watch"
)

// armSources starts rec's restart sources (file watch, cron) after a
// successful spawn. Both stopLocked (via Record.StopSources) and a
// give-up in handleUnplannedExit cancel these, so Start and Restart are
// the only two callers that need to (re-)arm them; an auto-restart after
// a crash leaves a still-running watcher/scheduler untouched.
func (s *Supervisor) armSources(rec *proc.Record) {
	spec := rec.Spec()

	if spec.Watch && len(spec.WatchPaths) > 0 {
		cancel, err := watch.Start(s.ctx, rec.ID(), spec.WatchPaths, spec.WatchIgnore, spec.WatchDelayMs, s)
		if err != nil {
			slog.Warn("supervisor: failed to start file watcher", "name", rec.Name(), "id", rec.ID(), "error", err)
		} else {
			rec.SetWatcherCancel(cancel)
		}
	}

	if spec.CronRestart != "" {
		cancel, err := cronrestart.Start(rec.ID(), spec.CronRestart, s)
		if err != nil {
			slog.Warn("supervisor: failed to schedule cron restart", "name", rec.Name(), "id", rec.ID(), "error", err)
		} else {
			rec.SetCronCancel(cancel)
		}
	}
}
