// Package supervisor implements the Supervisor Loop (spec.md §4.5): the
// sole mutator of process lifecycle state. Intents (Start/Stop/Restart/
// Delete) and child-exit events are each serialized per process id, while
// independent ids proceed concurrently. Grounded on the teacher's
// internal/process.Process (per-process mutex, stopping flag, monitor
// goroutine), generalized from the teacher's name-keyed single-process
// model to the monotonic-id Process Table.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/velos-sh/velos/internal/history"
	"github.com/velos-sh/velos/internal/hooks"
	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/runner"
	"github.com/velos-sh/velos/internal/wire"
)

// memoryWatchInterval matches the Child Runner's RSS sampling cadence.
const memoryWatchInterval = 2 * time.Second

// pendingStop/pendingDelete mark a record's PendingIntent so that an exit
// observed by watchExits is recognized as planned rather than a crash.
const (
	pendingStop    = "stop"
	pendingDelete  = "delete"
	pendingRestart = "restart"
)

// Supervisor owns the Process Table and drives every lifecycle transition.
type Supervisor struct {
	Table  *proc.Table
	Runner *runner.Runner
	Logs   *logsink.Manager

	// History is the optional audit sink (internal/history); nil disables
	// history logging entirely.
	History history.Sink

	// MergeEnv builds a child's final environment from its Spec. Defaults
	// to appending Spec.Env over the daemon's own environment; replaced by
	// the Supervisor's owner once internal/env provides global var expansion.
	MergeEnv func(proc.Spec) []string

	ctx    context.Context
	cancel context.CancelFunc

	locksMu sync.Mutex
	locks   map[uint32]*sync.Mutex

	waitersMu sync.Mutex
	waiters   map[uint32]chan struct{}

	restartWakeMu sync.Mutex
	restartWake   map[uint32]chan struct{}
}

func New(table *proc.Table, r *runner.Runner, logs *logsink.Manager) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		Table: table, Runner: r, Logs: logs,
		MergeEnv: defaultMergeEnv,
		ctx:      ctx, cancel: cancel,
		locks:       make(map[uint32]*sync.Mutex),
		waiters:     make(map[uint32]chan struct{}),
		restartWake: make(map[uint32]chan struct{}),
	}
	go s.watchExits()
	go s.watchMemory()
	return s
}

// Close stops the background watchers. In-flight intents are left to
// finish; it does not itself stop any running child.
func (s *Supervisor) Close() { s.cancel() }

func (s *Supervisor) idMutex(id uint32) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

func (s *Supervisor) dropIDMutex(id uint32) {
	s.locksMu.Lock()
	delete(s.locks, id)
	s.locksMu.Unlock()
}

// registerWaiter arms a one-shot channel that watchExits closes the moment
// id's child is reaped, letting Stop/Delete/Restart block on the real exit
// instead of guessing at a sleep duration.
func (s *Supervisor) registerWaiter(id uint32) chan struct{} {
	ch := make(chan struct{})
	s.waitersMu.Lock()
	s.waiters[id] = ch
	s.waitersMu.Unlock()
	return ch
}

func (s *Supervisor) notifyExit(id uint32) {
	s.waitersMu.Lock()
	ch, ok := s.waiters[id]
	delete(s.waiters, id)
	s.waitersMu.Unlock()
	if ok {
		close(ch)
	}
}

// armRestartWake registers a one-shot channel that wakeRestart closes to
// interrupt a handleUnplannedExit backoff sleep early, so a Stop/Delete/
// Restart intent is never left waiting out the rest of a (possibly 60s)
// exponential-backoff delay for the same id.
func (s *Supervisor) armRestartWake(id uint32) chan struct{} {
	ch := make(chan struct{})
	s.restartWakeMu.Lock()
	s.restartWake[id] = ch
	s.restartWakeMu.Unlock()
	return ch
}

func (s *Supervisor) clearRestartWake(id uint32) {
	s.restartWakeMu.Lock()
	delete(s.restartWake, id)
	s.restartWakeMu.Unlock()
}

// wakeRestart interrupts id's in-flight backoff sleep, if any. A no-op when
// handleUnplannedExit isn't currently backing off id.
func (s *Supervisor) wakeRestart(id uint32) {
	s.restartWakeMu.Lock()
	ch, ok := s.restartWake[id]
	delete(s.restartWake, id)
	s.restartWakeMu.Unlock()
	if ok {
		close(ch)
	}
}

func notFound(id uint32) error {
	return &wire.ProcessNotFoundError{Ref: fmt.Sprintf("%d", id)}
}

// Start creates a record and spawns its child, blocking until the child
// reaches a terminal starting state (Online or Errored) per spec.md §4.5:
// "the terminal response is only emitted once the state transition has
// committed to the Process Table". A Spec with instances > 1 fans out into
// N records named "<name>:0".."<name>:N-1" (spec.md §4.6, invariant 3); the
// returned Summary is always instance 0's, since the wire response carries
// only a single record.
func (s *Supervisor) Start(spec proc.Spec, name string) (proc.Summary, error) {
	spec = spec.WithDefaults()
	if spec.Instances <= 1 {
		return s.startOne(spec, name)
	}

	base := name
	if spec.ClusterBaseName != "" {
		base = spec.ClusterBaseName
	}

	var first proc.Summary
	var errs []string
	for k := 0; k < spec.Instances; k++ {
		inst := spec
		inst.Instances = 1
		inst.ClusterBaseName = base
		sum, err := s.startOne(inst, proc.InstanceName(base, k, spec.Instances))
		if err != nil {
			errs = append(errs, fmt.Sprintf("instance %d: %v", k, err))
			continue
		}
		if k == 0 {
			first = sum
		}
	}
	if len(errs) > 0 {
		return first, fmt.Errorf("supervisor: %d of %d instances failed to start: %s", len(errs), spec.Instances, strings.Join(errs, "; "))
	}
	return first, nil
}

// startOne creates a single record and spawns its child. It is Start's
// single-instance path, also used once per member of a fanned-out group.
func (s *Supervisor) startOne(spec proc.Spec, name string) (proc.Summary, error) {
	rec, err := s.Table.Create(spec, name)
	if err != nil {
		return proc.Summary{}, err
	}
	mu := s.idMutex(rec.ID())
	mu.Lock()
	defer mu.Unlock()

	if err := hooks.Run(s.ctx, rec, hooks.PhasePreStart); err != nil {
		rec.MarkErrored()
		s.logHistory(eventFrom(history.EventStart, rec, err.Error()))
		return rec.Summary(), err
	}

	env := s.MergeEnv(rec.Spec())
	spawnErr := s.Runner.Spawn(s.ctx, rec, env)
	if spawnErr == nil {
		s.armStabilityTimer(rec)
		s.armSources(rec)
		s.logHistory(eventFrom(history.EventStart, rec, ""))
		if err := hooks.Run(s.ctx, rec, hooks.PhasePostStart); err != nil {
			slog.Warn("post_start hook failed", "name", rec.Name(), "id", rec.ID(), "error", err)
		}
	} else {
		s.logHistory(eventFrom(history.EventStart, rec, spawnErr.Error()))
	}
	return rec.Summary(), spawnErr
}

// watchExits is the sole consumer of Runner.Exits. It unblocks any Stop/
// Delete/Restart waiting on this id first (so escalation timers resolve
// promptly), then -- for exits nobody was expecting -- hands off to the
// restart policy in its own goroutine so a single slow restart can never
// stall the delivery of other children's exit events.
func (s *Supervisor) watchExits() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.Runner.Exits:
			if !ok {
				return
			}
			s.notifyExit(ev.ID)

			rec, exists := s.Table.Get(ev.ID)
			if !exists {
				continue
			}
			switch rec.PendingIntent() {
			case pendingStop, pendingDelete, pendingRestart:
				// The intent handler owns the rest of this transition.
			default:
				go s.handleUnplannedExit(rec, ev)
			}
		}
	}
}
