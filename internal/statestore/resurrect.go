package statestore

import "github.com/velos-sh/velos/internal/proc"

// Starter is the subset of Supervisor's API Resurrect needs, kept narrow
// so this package doesn't import internal/supervisor (it would otherwise
// be the only consumer-side import cycle risk in the daemon's wiring).
type Starter interface {
	Start(spec proc.Spec, name string) (proc.Summary, error)
}

// Resurrect loads the dump and starts every entry in ascending Priority
// order (supplemented feature, spec.md §9), returning the number started.
// A single entry's failure does not abort the rest.
func (s *Store) Resurrect(starter Starter) (int, error) {
	entries, err := s.Load()
	if err != nil {
		return 0, err
	}
	started := 0
	for _, e := range entries {
		if _, err := starter.Start(e.Spec, e.Name); err == nil {
			started++
		}
	}
	return started, nil
}
