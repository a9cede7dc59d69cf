package cluster

import (
	"testing"

	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/runner"
	"github.com/velos-sh/velos/internal/supervisor"
)

func newTestCluster(t *testing.T) *Manager {
	t.Helper()
	table := proc.NewTable()
	logs := logsink.NewManager(t.TempDir())
	r := runner.New(logs)
	super := supervisor.New(table, r, logs)
	t.Cleanup(super.Close)
	return New(table, super, logs)
}

func TestParseTargetAbsoluteAndRelative(t *testing.T) {
	cases := []struct {
		expr    string
		current int
		want    int
	}{
		{"3", 1, 3},
		{"+2", 1, 3},
		{"-2", 1, 0},
		{"-1", 3, 2},
	}
	for _, c := range cases {
		got, err := ParseTarget(c.expr, c.current)
		if err != nil {
			t.Fatalf("ParseTarget(%q, %d): %v", c.expr, c.current, err)
		}
		if got != c.want {
			t.Fatalf("ParseTarget(%q, %d) = %d, want %d", c.expr, c.current, got, c.want)
		}
	}
}

func TestParseTargetMaxUsesNumCPU(t *testing.T) {
	got, err := ParseTarget("max", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got <= 0 {
		t.Fatalf("expected a positive CPU count, got %d", got)
	}
}

func TestScaleUpCreatesIndexedInstances(t *testing.T) {
	m := newTestCluster(t)
	spec := proc.Spec{Name: "api", Script: "sleep 2"}

	res, err := m.Scale("api", spec, "3")
	if err != nil {
		t.Fatalf("scale: %v", err)
	}
	if len(res.Started) != 3 {
		t.Fatalf("expected 3 instances started, got %+v", res)
	}

	ids := m.Current("api")
	if len(ids) != 3 {
		t.Fatalf("expected 3 current instances, got %d", len(ids))
	}
	rec0, _ := m.Table.Get(ids[0])
	rec2, _ := m.Table.Get(ids[2])
	if rec0.Name() != "api:0" {
		t.Fatalf("expected instance 0 named \"api:0\", got %q", rec0.Name())
	}
	if rec2.Name() != "api:2" {
		t.Fatalf("expected instance 2 named \"api:2\", got %q", rec2.Name())
	}
}

func TestScaleDownStopsHighestIndexFirst(t *testing.T) {
	m := newTestCluster(t)
	spec := proc.Spec{Name: "worker", Script: "sleep 2"}

	if _, err := m.Scale("worker", spec, "3"); err != nil {
		t.Fatalf("scale up: %v", err)
	}
	res, err := m.Scale("worker", spec, "1")
	if err != nil {
		t.Fatalf("scale down: %v", err)
	}
	if len(res.Stopped) != 2 {
		t.Fatalf("expected 2 instances stopped, got %+v", res)
	}

	ids := m.Current("worker")
	if len(ids) != 1 {
		t.Fatalf("expected 1 surviving instance, got %d", len(ids))
	}
	rec, _ := m.Table.Get(ids[0])
	if rec.Name() != "worker" {
		t.Fatalf("expected surviving instance to be index 0, got %q", rec.Name())
	}
}
