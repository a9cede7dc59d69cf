// Package hooks runs a process's lifecycle hooks (a supplemented feature,
// see SPEC_FULL.md): operator-configured commands fired around Start/Stop,
// never populated from the wire protocol itself. Grounded on the teacher's
// internal/manager.ManagedProcess.executeLifecycleHooks/executeHook,
// simplified to the blocking-only, Ignore/Fail failure modes already
// carried by internal/proc.Hook (no RunMode, no retry).
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/velos-sh/velos/internal/proc"
)

// Phase names a lifecycle point a group of hooks runs at. Exported for the
// VELOS_HOOK_PHASE environment variable exposed to hook commands.
type Phase string

const (
	PhasePreStart  Phase = "pre_start"
	PhasePostStart Phase = "post_start"
	PhasePreStop   Phase = "pre_stop"
	PhasePostStop  Phase = "post_stop"
)

func forPhase(lh proc.LifecycleHooks, phase Phase) []proc.Hook {
	switch phase {
	case PhasePreStart:
		return lh.PreStart
	case PhasePostStart:
		return lh.PostStart
	case PhasePreStop:
		return lh.PreStop
	case PhasePostStop:
		return lh.PostStop
	default:
		return nil
	}
}

// Run executes every hook configured for phase, in order, against rec.
// A hook whose FailureMode is "fail" (the default) aborts the remaining
// hooks in this phase and returns its error; one with "ignore" only logs
// a warning and continues. Run never runs hooks of other phases and never
// blocks the caller beyond each hook's own Timeout.
func Run(ctx context.Context, rec *proc.Record, phase Phase) error {
	spec := rec.Spec()
	hooks := forPhase(spec.Hooks, phase)
	if len(hooks) == 0 {
		return nil
	}

	slog.Info("running lifecycle hooks", "name", rec.Name(), "id", rec.ID(), "phase", phase, "count", len(hooks))
	for _, h := range hooks {
		h = h.WithDefaults()
		if err := runOne(ctx, rec, spec, h, phase); err != nil {
			if h.FailureMode == proc.FailureModeIgnore {
				slog.Warn("hook failed, continuing (failure_mode=ignore)",
					"name", rec.Name(), "id", rec.ID(), "phase", phase, "hook", h.Name, "error", err)
				continue
			}
			return fmt.Errorf("hook %q (%s) failed: %w", h.Name, phase, err)
		}
		slog.Debug("hook completed", "name", rec.Name(), "id", rec.ID(), "phase", phase, "hook", h.Name)
	}
	return nil
}

func runOne(ctx context.Context, rec *proc.Record, spec proc.Spec, h proc.Hook, phase Phase) error {
	hctx := ctx
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	// #nosec G204 -- hook.Command is operator-supplied daemon configuration.
	cmd := exec.CommandContext(hctx, "/bin/sh", "-c", h.Command)
	if h.WorkDir != "" {
		cmd.Dir = h.WorkDir
	} else {
		cmd.Dir = spec.Cwd
	}

	env := append([]string(nil), spec.Env...)
	env = append(env, h.Env...)
	env = append(env,
		"VELOS_PROCESS_NAME="+rec.Name(),
		"VELOS_HOOK_NAME="+h.Name,
		"VELOS_HOOK_PHASE="+string(phase),
	)
	cmd.Env = env

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}
	return nil
}
