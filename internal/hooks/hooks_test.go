package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/velos-sh/velos/internal/proc"
)

func newRecord(t *testing.T, lh proc.LifecycleHooks) *proc.Record {
	t.Helper()
	table := proc.NewTable()
	rec, err := table.Create(proc.Spec{Hooks: lh}.WithDefaults(), "hooktest")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

func TestRunExecutesHooksInOrder(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "order.txt")

	lh := proc.LifecycleHooks{
		PreStart: []proc.Hook{
			{Name: "first", Command: "echo one >> " + out},
			{Name: "second", Command: "echo two >> " + out},
		},
	}
	rec := newRecord(t, lh)

	if err := Run(context.Background(), rec, PhasePreStart); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got, want := string(data), "one\ntwo\n"; got != want {
		t.Fatalf("hook order = %q, want %q", got, want)
	}
}

func TestRunIgnoreFailureModeContinues(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "ran.txt")

	lh := proc.LifecycleHooks{
		PreStop: []proc.Hook{
			{Name: "bad", Command: "exit 1", FailureMode: proc.FailureModeIgnore},
			{Name: "good", Command: "echo ran >> " + out},
		},
	}
	rec := newRecord(t, lh)

	if err := Run(context.Background(), rec, PhasePreStop); err != nil {
		t.Fatalf("Run returned error despite failure_mode=ignore: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected hook after the ignored failure to still run: %v", err)
	}
}

func TestRunFailureModeFailAbortsRemainingHooks(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "never.txt")

	lh := proc.LifecycleHooks{
		PostStart: []proc.Hook{
			{Name: "bad", Command: "exit 1", FailureMode: proc.FailureModeFail},
			{Name: "never", Command: "echo nope >> " + out},
		},
	}
	rec := newRecord(t, lh)

	if err := Run(context.Background(), rec, PhasePostStart); err == nil {
		t.Fatal("expected Run to return an error")
	}
	if _, err := os.Stat(out); err == nil {
		t.Fatal("hook after a fail-mode failure must not run")
	}
}

func TestRunHonorsTimeout(t *testing.T) {
	lh := proc.LifecycleHooks{
		PostStop: []proc.Hook{
			{Name: "slow", Command: "sleep 5", Timeout: 50 * time.Millisecond},
		},
	}
	rec := newRecord(t, lh)

	start := time.Now()
	err := Run(context.Background(), rec, PhasePostStop)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("Run did not honor hook timeout, took %v", time.Since(start))
	}
}

func TestRunNoHooksIsNoop(t *testing.T) {
	rec := newRecord(t, proc.LifecycleHooks{})
	if err := Run(context.Background(), rec, PhasePreStart); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
