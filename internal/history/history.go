// Package history implements the supplemented audit-trail sink: every
// committed lifecycle transition (start, stop, crash, restart) is fanned
// out, best-effort and non-blocking, to a pluggable backend selected by
// DSN. Grounded near-verbatim on the teacher's internal/history package,
// adapted from its store.Record vocabulary to Velos's own proc.Record
// fields.
package history

import "context"

// EventType tags which lifecycle transition produced an Event.
type EventType string

const (
	EventStart         EventType = "start"
	EventStop          EventType = "stop"
	EventCrash         EventType = "crash"
	EventRestart       EventType = "restart"
	EventMemoryRestart EventType = "memory_restart"
)

// Event is one committed lifecycle transition, in the vocabulary of
// proc.Record rather than a raw database row.
type Event struct {
	Type         EventType
	OccurredAtMs int64
	ProcessID    uint32
	Name         string
	PID          int
	Status       string
	ExitCode     int
	Signal       int
	Reason       string
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use; the Supervisor never blocks a lifecycle transition
// on a slow sink (spec.md: history is an append-only log of past events,
// never a gate on present ones).
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
