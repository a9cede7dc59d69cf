// Package statestore implements the State Store (spec.md §4.7): a single
// flat binary dump of every managed Spec, written atomically and replayed
// on resurrect. Grounded on the general tmp-then-rename discipline the
// teacher applies to its history/sqlite migrations, adapted here to plain
// file I/O over internal/wire's own primitives rather than a SQL table --
// spec.md §4.7 calls for a flat-file dump, not a store with a schema.
package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/wire"
)

// dumpMagic tags the file so Resurrect refuses to replay something that
// isn't a Velos dump.
const dumpMagic = "VELOSDMP"

// Entry is one resurrectable process: its Spec plus the display name it
// held in the Process Table (Spec.Name may differ once cluster reshaping
// has renamed an instance).
type Entry struct {
	Name     string
	Spec     proc.Spec
	Priority int32
}

// Store persists the Process Table to a single file under path (spec.md
// §6: ~/.velos/dump.bin).
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Save atomically writes every record's Spec to the dump file: write to a
// temp file in the same directory, fsync, then rename over the target, so
// a crash mid-write never leaves a half-written dump (spec.md §4.7).
func (s *Store) Save(table *proc.Table) error {
	return s.saveEncoded(collect(table))
}

// saveEncoded serializes entries and performs the write-tmp/fsync/rename.
func (s *Store) saveEncoded(entries []Entry) error {
	w := wire.NewWriter()
	w.Str(dumpMagic)
	w.U32(uint32(len(entries)))
	for _, e := range entries {
		w.Str(e.Name)
		w.I32(e.Priority)
		body := e.Spec.ToStartPayload().Encode()
		w.U32(uint32(len(body)))
		w.Raw(body)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("statestore: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".dump-*.tmp")
	if err != nil {
		return fmt.Errorf("statestore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(w.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statestore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statestore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("statestore: rename into place: %w", err)
	}
	return nil
}

func collect(table *proc.Table) []Entry {
	var out []Entry
	for _, sum := range table.List() {
		rec, ok := table.Get(sum.ID)
		if !ok {
			continue
		}
		spec := rec.Spec()
		out = append(out, Entry{Name: rec.Name(), Spec: spec, Priority: int32(spec.Priority)})
	}
	return out
}

// Load reads and decodes the dump file, returning its entries sorted by
// ascending Spec.Priority -- the order Resurrect starts them in (spec.md
// §9 supplemented feature: priority-ordered bulk start).
func (s *Store) Load() ([]Entry, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("statestore: read %s: %w", s.path, err)
	}
	r := wire.NewReader(raw)
	magic, err := r.Str()
	if err != nil || magic != dumpMagic {
		return nil, fmt.Errorf("statestore: not a velos dump file: %s", s.path)
	}
	count, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("statestore: truncated dump: %w", err)
	}
	out := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.Str()
		if err != nil {
			return nil, fmt.Errorf("statestore: truncated dump at entry %d: %w", i, err)
		}
		priority, err := r.I32()
		if err != nil {
			return nil, fmt.Errorf("statestore: truncated dump at entry %d: %w", i, err)
		}
		bodyLen, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("statestore: truncated dump at entry %d: %w", i, err)
		}
		body, err := r.Take(int(bodyLen))
		if err != nil {
			return nil, fmt.Errorf("statestore: truncated dump at entry %d: %w", i, err)
		}
		payload, err := wire.DecodeStartPayload(body)
		if err != nil {
			return nil, fmt.Errorf("statestore: bad entry %d: %w", i, err)
		}
		spec := proc.SpecFromStartPayload(payload)
		out = append(out, Entry{Name: name, Spec: spec, Priority: priority})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}
