package supervisor

import (
	"testing"
	"time"

	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/runner"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	table := proc.NewTable()
	logs := logsink.NewManager(t.TempDir())
	r := runner.New(logs)
	s := New(table, r, logs)
	t.Cleanup(s.Close)
	return s
}

func waitForStatus(t *testing.T, table *proc.Table, id uint32, want proc.Status, within time.Duration) proc.Summary {
	t.Helper()
	deadline := time.Now().Add(within)
	var sum proc.Summary
	for time.Now().Before(deadline) {
		rec, ok := table.Get(id)
		if !ok {
			t.Fatalf("record %d vanished", id)
		}
		sum = rec.Summary()
		if sum.Status == want {
			return sum
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s, last seen %+v", want, sum)
	return sum
}

func TestStartReachesOnline(t *testing.T) {
	s := newTestSupervisor(t)
	sum, err := s.Start(proc.Spec{Name: "sleeper", Script: "sleep 2"}, "sleeper")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sum.Status != proc.Online {
		t.Fatalf("expected Online, got %s", sum.Status)
	}
	if err := s.Stop(sum.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStopEscalatesToSigkill(t *testing.T) {
	s := newTestSupervisor(t)
	sum, err := s.Start(proc.Spec{
		Name: "trap", Script: "trap '' TERM; sleep 5",
		KillTimeoutMs: 200,
	}, "trap")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	start := time.Now()
	if err := s.Stop(sum.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Fatalf("expected stop to wait out kill_timeout_ms before escalating, took %s", elapsed)
	}
	rec, _ := s.Table.Get(sum.ID)
	if rec.Status() != proc.Stopped {
		t.Fatalf("expected Stopped after SIGKILL reap, got %s", rec.Status())
	}
}

func TestAutoRestartOnCrash(t *testing.T) {
	s := newTestSupervisor(t)
	sum, err := s.Start(proc.Spec{
		Name: "crasher", Script: "exit 1",
		AutoRestart: true, MaxRestarts: -1, RestartDelayMs: 20,
	}, "crasher")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForStatus(t, s.Table, sum.ID, proc.Stopped, 2*time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, _ := s.Table.Get(sum.ID)
		if rec.RestartCount() >= 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected at least one auto-restart after the crash")
}

func TestAutoRestartStopsAtMaxRestarts(t *testing.T) {
	s := newTestSupervisor(t)
	sum, err := s.Start(proc.Spec{
		Name: "alwayscrash", Script: "exit 1",
		AutoRestart: true, MaxRestarts: 1, RestartDelayMs: 20,
	}, "alwayscrash")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, _ := s.Table.Get(sum.ID)
		if rec.Status() == proc.Errored && rec.RestartCount() >= 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, _ := s.Table.Get(sum.ID)
	t.Fatalf("expected Errored terminal state after hitting max_restarts, got %+v", rec.Summary())
}

func TestStartFansOutInstances(t *testing.T) {
	s := newTestSupervisor(t)
	sum, err := s.Start(proc.Spec{Name: "api", Script: "sleep 2", Instances: 2}, "api")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sum.Name != "api:0" {
		t.Fatalf("expected instance 0 named \"api:0\", got %q", sum.Name)
	}

	ids := s.Table.ByBaseName("api")
	if len(ids) != 2 {
		t.Fatalf("expected 2 records for base \"api\", got %d: %+v", len(ids), ids)
	}
	names := make(map[string]bool)
	for _, id := range ids {
		rec, ok := s.Table.Get(id)
		if !ok {
			t.Fatalf("record %d vanished", id)
		}
		names[rec.Name()] = true
	}
	if !names["api:0"] || !names["api:1"] {
		t.Fatalf("expected records named api:0 and api:1, got %v", names)
	}
}

func TestAutoRestartBackoffInterruptedByDelete(t *testing.T) {
	s := newTestSupervisor(t)
	sum, err := s.Start(proc.Spec{
		Name: "slowback", Script: "exit 1",
		AutoRestart: true, MaxRestarts: -1, RestartDelayMs: 60000, ExpBackoff: false,
	}, "slowback")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForStatus(t, s.Table, sum.ID, proc.Stopped, 2*time.Second)

	done := make(chan error, 1)
	go func() { done <- s.Delete(sum.ID) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Delete blocked on the crashed child's 60s restart backoff instead of being interrupted")
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := newTestSupervisor(t)
	sum, err := s.Start(proc.Spec{Name: "short", Script: "sleep 2"}, "short")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Delete(sum.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Table.Get(sum.ID); ok {
		t.Fatal("expected record to be removed from the table")
	}
}
