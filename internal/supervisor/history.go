package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/velos-sh/velos/internal/history"
	"github.com/velos-sh/velos/internal/proc"
)

const historySendTimeout = 2 * time.Second

// logHistory fans e out to the configured audit sink, if any. It never
// blocks a lifecycle transition: the send runs in its own goroutine and a
// failure is only logged, matching spec.md's framing of history as an
// append-only log of past events, never a gate on present ones.
func (s *Supervisor) logHistory(e history.Event) {
	if s.History == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historySendTimeout)
		defer cancel()
		if err := s.History.Send(ctx, e); err != nil {
			slog.Warn("supervisor: history sink send failed", "type", e.Type, "id", e.ProcessID, "error", err)
		}
	}()
}

func eventFrom(evType history.EventType, rec *proc.Record, reason string) history.Event {
	return history.Event{
		Type: evType, OccurredAtMs: time.Now().UnixMilli(),
		ProcessID: rec.ID(), Name: rec.Name(), PID: rec.PID(),
		Status: rec.Status().String(), Reason: reason,
	}
}
