package supervisor

import (
	"encoding/json"
	"log/slog"
	"syscall"
	"time"

	"github.com/velos-sh/velos/internal/history"
	"github.com/velos-sh/velos/internal/hooks"
	"github.com/velos-sh/velos/internal/proc"
)

// defaultKillTimeout is used when a Spec never set kill_timeout_ms
// (Spec.WithDefaults already fills this in, but Stop tolerates a bare Spec).
const defaultKillTimeout = 5 * time.Second

// Stop signals id's child with SIGTERM, escalating to SIGKILL after
// kill_timeout_ms, and blocks until the child has been reaped. Grounded on
// teacher Process.Stop's SIGTERM-then-SIGKILL escalation, adapted to the
// Supervisor's single exit-event channel instead of a per-process waitDone.
func (s *Supervisor) Stop(id uint32) error {
	rec, ok := s.Table.Get(id)
	if !ok {
		return notFound(id)
	}
	mu := s.idMutex(id)
	mu.Lock()
	defer mu.Unlock()
	return s.stopLocked(rec, pendingStop)
}

// stopLocked performs the actual signal-and-wait; callers must already
// hold rec's id mutex. intent marks PendingIntent so watchExits defers
// the resulting exit event to whichever caller is waiting here.
func (s *Supervisor) stopLocked(rec *proc.Record, intent string) error {
	s.wakeRestart(rec.ID())
	if !rec.Status().HasPID() {
		rec.MarkStopped()
		return nil
	}

	rec.SetPendingIntent(intent)
	spec := rec.Spec()
	pid := rec.PID()
	rec.MarkStopping()

	if err := hooks.Run(s.ctx, rec, hooks.PhasePreStop); err != nil {
		slog.Warn("pre_stop hook failed, stopping anyway", "name", rec.Name(), "id", rec.ID(), "error", err)
	}

	// shutdown_with_message replaces the initial SIGTERM with a stdin line
	// (spec.md §4.5): only fall back to a signal here if the write itself
	// never went out. Either way, a lingering child still earns the normal
	// kill_timeout_ms grace period before SIGKILL below.
	messageSent := false
	if spec.ShutdownWithMessage {
		if w := rec.Stdin(); w != nil {
			line, err := json.Marshal(map[string]string{"type": "shutdown"})
			if err == nil {
				line = append(line, '\n')
				if _, err := w.Write(line); err == nil {
					messageSent = true
				}
			}
		}
	}

	done := s.registerWaiter(rec.ID())
	if !messageSent {
		_ = syscall.Kill(-pid, syscall.SIGTERM)
	}

	timeout := time.Duration(spec.KillTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultKillTimeout
	}

	select {
	case <-done:
	case <-time.After(timeout):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			// best-effort: proceed even if the kernel hasn't reaped it yet.
		}
	}

	rec.CloseLogClosers()
	rec.StopSources()
	rec.MarkStopped()
	rec.SetPendingIntent("")
	if err := hooks.Run(s.ctx, rec, hooks.PhasePostStop); err != nil {
		slog.Warn("post_stop hook failed", "name", rec.Name(), "id", rec.ID(), "error", err)
	}
	s.logHistory(eventFrom(history.EventStop, rec, intent))
	return nil
}

// Delete stops id's child (if running) and removes it from the Process
// Table. The id is never reused (spec.md invariant 1).
func (s *Supervisor) Delete(id uint32) error {
	rec, ok := s.Table.Get(id)
	if !ok {
		return notFound(id)
	}
	mu := s.idMutex(id)
	mu.Lock()
	if err := s.stopLocked(rec, pendingDelete); err != nil {
		mu.Unlock()
		return err
	}
	s.Table.Delete(id)
	s.Logs.Close(id)
	mu.Unlock()
	s.dropIDMutex(id)
	return nil
}
