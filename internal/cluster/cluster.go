// Package cluster implements the Cluster Manager (spec.md §4.6): grouping
// instances of one base Spec under a bare "base" (instances = 1) or
// "base:0".."base:N-1" (instances >= 2) naming scheme and scaling the group
// up or down. Grounded on the teacher's Manager.StartN/StopAll
// (prefix-based instance handling), generalized from the teacher's "-N"
// suffix and flat Start/Stop loop to spec's "base:k" scheme, explicit
// target expressions, and LIFO scale-down.
package cluster

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/supervisor"
)

// Result reports what a Scale call actually did. Scale is best-effort:
// a failure partway through still returns every instance that did start
// or stop (spec.md §4.6 "partial failure is reported, not rolled back").
type Result struct {
	Started []uint32
	Stopped []uint32
	Errors  []error
}

// Manager scales named instance groups via the Supervisor.
type Manager struct {
	Table *proc.Table
	Super *supervisor.Supervisor
	Logs  *logsink.Manager
}

func New(table *proc.Table, s *supervisor.Supervisor, logs *logsink.Manager) *Manager {
	return &Manager{Table: table, Super: s, Logs: logs}
}

// renameRecord renames id in both the Process Table and, if it already has
// an open Sink, its on-disk log files, so a renamed record's logs keep
// following it across the bare/"base:k" boundary (spec.md §4.4).
func (m *Manager) renameRecord(id uint32, newName string) error {
	if err := m.Table.Rename(id, newName); err != nil {
		return err
	}
	if m.Logs != nil {
		return m.Logs.Rename(id, newName)
	}
	return nil
}

func instanceIndex(name, base string) int {
	if name == base {
		return 0
	}
	k, err := strconv.Atoi(strings.TrimPrefix(name, base+":"))
	if err != nil {
		return 0
	}
	return k
}

// Current returns base's instance ids ordered by instance index 0..N-1.
func (m *Manager) Current(base string) []uint32 {
	ids := m.Table.ByBaseName(base)
	sort.Slice(ids, func(i, j int) bool {
		ri, _ := m.Table.Get(ids[i])
		rj, _ := m.Table.Get(ids[j])
		return instanceIndex(ri.Name(), base) < instanceIndex(rj.Name(), base)
	})
	return ids
}

// ParseTarget resolves a scale expression against the current count:
// an absolute non-negative integer, "+K"/"-K" relative to current (never
// below 0), or "max" for runtime.NumCPU() (spec.md §4.6).
func ParseTarget(expr string, current int) (int, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "max":
		return runtime.NumCPU(), nil
	case strings.HasPrefix(expr, "+"):
		n, err := strconv.Atoi(expr[1:])
		if err != nil {
			return 0, fmt.Errorf("cluster: bad scale target %q: %w", expr, err)
		}
		return current + n, nil
	case strings.HasPrefix(expr, "-"):
		n, err := strconv.Atoi(expr[1:])
		if err != nil {
			return 0, fmt.Errorf("cluster: bad scale target %q: %w", expr, err)
		}
		if target := current - n; target > 0 {
			return target, nil
		}
		return 0, nil
	default:
		n, err := strconv.Atoi(expr)
		if err != nil {
			return 0, fmt.Errorf("cluster: bad scale target %q: %w", expr, err)
		}
		if n < 0 {
			n = 0
		}
		return n, nil
	}
}

// Scale grows or shrinks base's instance group to targetExpr, resolved
// against the current count. Growth starts new instances at the next free
// index; shrinkage stops the highest-numbered instances first (LIFO), so
// surviving instances always occupy a contiguous 0..target-1 range.
func (m *Manager) Scale(base string, spec proc.Spec, targetExpr string) (Result, error) {
	ids := m.Current(base)
	target, err := ParseTarget(targetExpr, len(ids))
	if err != nil {
		return Result{}, err
	}

	var res Result
	switch {
	case target > len(ids):
		res = m.growTo(base, spec, ids, target)
	case target < len(ids):
		res = m.shrinkTo(base, ids, target)
	}
	return res, nil
}

// growTo starts new instances up to target. Crossing from a single bare-
// named record to a multi-instance group renumbers that survivor to
// "base:0" first, since a bare name is only legal while instances = 1
// (spec.md §3 invariant 3).
func (m *Manager) growTo(base string, spec proc.Spec, ids []uint32, target int) Result {
	var res Result
	if len(ids) == 1 && target > 1 {
		if rec, ok := m.Table.Get(ids[0]); ok && rec.Name() == base {
			if err := m.renameRecord(ids[0], proc.InstanceName(base, 0, target)); err != nil {
				res.Errors = append(res.Errors, err)
			}
		}
	}
	for k := len(ids); k < target; k++ {
		inst := spec
		inst.Instances = 1
		inst.ClusterBaseName = base
		sum, err := m.Super.Start(inst, proc.InstanceName(base, k, target))
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Started = append(res.Started, sum.ID)
	}
	return res
}

// shrinkTo stops the highest-numbered instances first (LIFO). When the
// group collapses back down to a single survivor, that record is
// renumbered back to the bare base name for the same reason growTo
// renumbers it away from one.
func (m *Manager) shrinkTo(base string, ids []uint32, target int) Result {
	var res Result
	toStop := ids[target:]
	for i := len(toStop) - 1; i >= 0; i-- {
		id := toStop[i]
		if err := m.Super.Delete(id); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Stopped = append(res.Stopped, id)
	}
	if target == 1 && len(ids) > 0 {
		survivor := ids[0]
		if rec, ok := m.Table.Get(survivor); ok && rec.Name() != base {
			if err := m.renameRecord(survivor, base); err != nil {
				res.Errors = append(res.Errors, err)
			}
		}
	}
	return res
}
