package supervisor

import (
	"log/slog"
	"time"

	"github.com/velos-sh/velos/internal/history"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/runner"
)

// Restart stops id's child (if running) and starts it again under the
// same id, without touching consecutive_crashes: this path is for
// operator-requested restarts, never for the crash-retry policy
// (handleUnplannedExit owns that).
func (s *Supervisor) Restart(id uint32) (proc.Summary, error) {
	return s.restart(id, history.EventRestart)
}

func (s *Supervisor) restart(id uint32, evType history.EventType) (proc.Summary, error) {
	rec, ok := s.Table.Get(id)
	if !ok {
		return proc.Summary{}, notFound(id)
	}
	mu := s.idMutex(id)
	mu.Lock()
	defer mu.Unlock()
	s.wakeRestart(id)

	if rec.Status().HasPID() {
		if err := s.stopLocked(rec, pendingRestart); err != nil {
			return rec.Summary(), err
		}
	}

	rec.IncRestart()
	env := s.MergeEnv(rec.Spec())
	err := s.Runner.Spawn(s.ctx, rec, env)
	if err == nil {
		s.armStabilityTimer(rec)
		s.armSources(rec)
	}
	s.logHistory(eventFrom(evType, rec, errString(err)))
	return rec.Summary(), err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// armStabilityTimer implements invariant 4: once an online child survives
// min_uptime_ms, its consecutive-crash counter resets, so a later crash is
// treated as a fresh failure rather than a continuation of an old streak.
func (s *Supervisor) armStabilityTimer(rec *proc.Record) {
	spec := rec.Spec()
	if spec.MinUptimeMs == 0 {
		return
	}
	id, startedAt := rec.ID(), rec.StartedAt()
	go func() {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(time.Duration(spec.MinUptimeMs) * time.Millisecond):
		}
		cur, ok := s.Table.Get(id)
		if !ok || !cur.StartedAt().Equal(startedAt) {
			return // restarted or deleted since this timer was armed
		}
		if cur.Status().HasPID() {
			cur.ResetConsecutiveCrashes()
		}
	}()
}

// handleUnplannedExit applies the restart policy (spec.md §4.5/§8) to a
// child that exited without an in-flight Stop/Delete/Restart intent:
// exponential backoff via Spec.RestartDelay, a hard ceiling at
// max_restarts, and Errored as the terminal state when giving up. The
// per-id mutex is held only for the bookkeeping around the sleep, never
// for the sleep itself (which can run up to 60s under exp_backoff) --
// otherwise an operator Stop/Delete/Restart for this id, and shutdown's
// per-child Stop, would block for the rest of the backoff window. Instead
// a wake channel (armRestartWake/wakeRestart) lets those intents interrupt
// the sleep early.
func (s *Supervisor) handleUnplannedExit(rec *proc.Record, ev runner.ExitEvent) {
	mu := s.idMutex(rec.ID())
	mu.Lock()

	rec.CloseLogClosers()

	spec := rec.Spec()
	crashed := ev.ExitCode != 0 || ev.Signal != 0

	if !spec.AutoRestart {
		if crashed {
			rec.MarkErrored()
			s.logHistory(eventFrom(history.EventCrash, rec, "auto_restart disabled"))
		} else {
			rec.MarkStopped()
			s.logHistory(eventFrom(history.EventStop, rec, "exited cleanly, auto_restart disabled"))
		}
		rec.StopSources()
		mu.Unlock()
		return
	}

	if spec.MaxRestarts >= 0 && rec.RestartCount() >= int(spec.MaxRestarts) {
		rec.MarkErrored()
		rec.StopSources()
		s.logHistory(eventFrom(history.EventCrash, rec, "max_restarts reached"))
		slog.Warn("giving up on restarts: max_restarts reached",
			"name", rec.Name(), "id", rec.ID(), "max_restarts", spec.MaxRestarts)
		mu.Unlock()
		return
	}

	prevCrashes := rec.ConsecutiveCrashes()
	rec.IncConsecutiveCrashes()
	delay := spec.RestartDelay(prevCrashes)
	rec.MarkStopped()
	wake := s.armRestartWake(rec.ID())
	mu.Unlock()

	select {
	case <-s.ctx.Done():
		s.clearRestartWake(rec.ID())
		return
	case <-wake:
		// A Stop/Delete/Restart intent took over id while we were backing
		// off; it owns whatever happens to this record from here.
		return
	case <-time.After(delay):
		s.clearRestartWake(rec.ID())
	}

	mu.Lock()
	defer mu.Unlock()

	// Re-check: a Stop/Delete may have raced in while we slept.
	if rec.PendingIntent() != "" {
		return
	}
	if _, ok := s.Table.Get(rec.ID()); !ok {
		return
	}

	rec.IncRestart()
	env := s.MergeEnv(rec.Spec())
	if err := s.Runner.Spawn(s.ctx, rec, env); err != nil {
		slog.Warn("auto-restart failed to spawn", "name", rec.Name(), "id", rec.ID(), "error", err)
		s.logHistory(eventFrom(history.EventCrash, rec, "auto-restart spawn failed: "+err.Error()))
		return
	}
	s.armStabilityTimer(rec)
	s.logHistory(eventFrom(history.EventCrash, rec, "auto-restarted after crash"))
}
