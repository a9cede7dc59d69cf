// Package runner implements the Child Runner (spec.md §4.3): spawns a
// single child, owns its pipes, tags output into the Log Sink, and
// samples RSS. Grounded on the teacher's internal/process Manager.Start /
// configureCmd, generalized from the teacher's name-keyed single-process
// model to operate on one proc.Record at a time.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
)

// ReadySentinel is the single line a child prints on stdout to signal
// readiness when wait_ready is enabled (spec.md §4.3, Open Question 1).
const ReadySentinel = "VELOS_READY"

// memorySampleInterval is the fixed RSS sampling cadence (spec.md §4.3 step 6).
const memorySampleInterval = 2 * time.Second

// ExitEvent reports a child's terminal exit, the async "SIGCHLD-equivalent"
// of spec.md §4.5 event source 2.
type ExitEvent struct {
	ID       uint32
	PID      int
	ExitCode int
	Signal   int
}

// Runner spawns and supervises the I/O of a single child process.
type Runner struct {
	logs *logsink.Manager
	// Exits receives one ExitEvent per child that terminates, observed
	// exactly once (spec.md §5 ordering guarantee).
	Exits chan ExitEvent
}

func New(logs *logsink.Manager) *Runner {
	return &Runner{logs: logs, Exits: make(chan ExitEvent, 64)}
}

// Spawn implements spec.md §4.3 steps 1-4: resolves the command line,
// wires pipes, starts the child, and returns once the process has been
// started (not once it is Online — callers handle wait_ready separately).
func (r *Runner) Spawn(ctx context.Context, rec *proc.Record, mergedEnv []string) error {
	spec := rec.Spec()
	cmd := spec.BuildCommand()
	if spec.Cwd != "" {
		cmd.Dir = spec.Cwd
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	sink, err := r.logs.Open(rec.ID(), rec.Name())
	if err != nil {
		return fmt.Errorf("runner: open log sink: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("runner: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("runner: stderr pipe: %w", err)
	}

	var stdin io.WriteCloser
	if spec.ShutdownWithMessage {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("runner: stdin pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		rec.MarkErrored()
		sink.Append(logsink.Entry{
			TimestampMs: time.Now().UnixMilli(), Stream: logsink.StreamErr,
			Line: fmt.Sprintf("failed to start: %v", err),
		})
		return err
	}

	rec.SetStarting(cmd)
	rec.SetLogClosers(stdout, stderr)
	if stdin != nil {
		rec.SetStdin(stdin)
	}

	readyCh := make(chan struct{}, 1)
	go r.pump(sink, stdout, logsink.StreamOut, spec.WaitReady, readyCh)
	go r.pump(sink, stderr, logsink.StreamErr, false, nil)
	go r.waitExit(ctx, rec, cmd)
	go r.sampleMemory(ctx, rec)

	if spec.WaitReady {
		r.awaitReady(rec, readyCh, time.Duration(spec.ListenTimeoutMs)*time.Millisecond)
	} else {
		rec.MarkOnline()
	}
	return nil
}

// pump reads one stream line-by-line (lossy UTF-8 decoding is implicit:
// bufio.Scanner over arbitrary bytes, matching spec.md §4.3 step 5), tags
// each line, and appends it to sink. A read error terminates this reader
// without killing the child (spec.md §7).
func (r *Runner) pump(sink *logsink.Sink, rc io.Reader, stream logsink.Stream, watchReady bool, readyCh chan struct{}) {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if watchReady && line == ReadySentinel {
			select {
			case readyCh <- struct{}{}:
			default:
			}
			continue
		}
		sink.Append(logsink.Entry{
			TimestampMs: time.Now().UnixMilli(),
			Stream:      stream,
			Level:       logsink.LevelInfo,
			Line:        line,
		})
	}
}

// awaitReady blocks Online until the readiness sentinel arrives or
// listen_timeout_ms elapses (spec.md §4.3 wait_ready).
func (r *Runner) awaitReady(rec *proc.Record, readyCh chan struct{}, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-readyCh:
		rec.MarkOnline()
	case <-time.After(timeout):
		// Conservative default (spec.md §9 Open Question 3): a readiness
		// timeout never kills the child, even under shutdown_with_message;
		// it is marked Online optimistically.
		slog.Warn("readiness timeout, marking online optimistically", "name", rec.Name(), "timeout", timeout)
		rec.MarkOnline()
	}
}

// waitExit reaps the child and reports its terminal state exactly once.
func (r *Runner) waitExit(ctx context.Context, rec *proc.Record, cmd *exec.Cmd) {
	err := cmd.Wait()
	rec.CloseLogClosers()
	exitCode, sig := interpretWaitError(err)
	select {
	case r.Exits <- ExitEvent{ID: rec.ID(), PID: cmd.Process.Pid, ExitCode: exitCode, Signal: sig}:
	case <-ctx.Done():
	}
}

func interpretWaitError(err error) (exitCode, signal int) {
	if err == nil {
		return 0, 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return -1, int(ws.Signal())
			}
			return ws.ExitStatus(), 0
		}
		return ee.ExitCode(), 0
	}
	return -1, 0
}

// sampleMemory periodically records RSS via gopsutil, feeding the
// max_memory_restart trigger (spec.md §4.5).
func (r *Runner) sampleMemory(ctx context.Context, rec *proc.Record) {
	t := time.NewTicker(memorySampleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pid := rec.PID()
			if pid == 0 {
				return
			}
			p, err := gopsproc.NewProcess(int32(pid))
			if err != nil {
				continue
			}
			mi, err := p.MemoryInfo()
			if err != nil || mi == nil {
				continue
			}
			rec.SetMemoryBytes(mi.RSS)
			if !rec.Status().HasPID() {
				return
			}
		}
	}
}
