package proc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Table is the Process Table (spec.md §4.2): the exclusive owner of every
// Record, keyed by a monotonically increasing id. Mutations are expected
// to be serialised by a single caller (the Supervisor Loop, see
// internal/supervisor); Table itself only guards its own index structures
// so List/Detail reads never race with Create/Delete.
type Table struct {
	mu     sync.RWMutex
	nextID uint32
	byID   map[uint32]*Record
	byName map[string]uint32
}

func NewTable() *Table {
	return &Table{byID: make(map[uint32]*Record), byName: make(map[string]uint32)}
}

// Create assigns the next id and registers a new record. Returns an error
// if name is already in use by a live record.
func (t *Table) Create(spec Spec, name string) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byName[name]; exists {
		return nil, fmt.Errorf("proc: name %q already in use", name)
	}
	t.nextID++
	id := t.nextID
	rec := newRecord(id, name, spec)
	t.byID[id] = rec
	t.byName[name] = id
	return rec, nil
}

// Delete removes the record, freeing its name for reuse. The id itself is
// never reused (invariant 1).
func (t *Table) Delete(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	if t.byName[rec.Name()] == id {
		delete(t.byName, rec.Name())
	}
}

func (t *Table) Get(id uint32) (*Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.byID[id]
	return rec, ok
}

// ByName resolves an exact name match only (no colon-suffix matching),
// so "api" never resolves to "api-v2" (spec.md §4.2 guarantee).
func (t *Table) ByName(name string) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	return id, ok
}

// ByBaseName matches base exactly and base:k for any k, the cluster naming
// scheme of spec.md §3 invariant 3.
func (t *Table) ByBaseName(base string) []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []uint32
	prefix := base + ":"
	for name, id := range t.byName {
		if name == base {
			out = append(out, id)
			continue
		}
		if strings.HasPrefix(name, prefix) {
			suffix := name[len(prefix):]
			if _, err := strconv.Atoi(suffix); err == nil {
				out = append(out, id)
			}
		}
	}
	return out
}

// InstanceName names the k'th member of a total-sized instance group
// (spec.md §3 invariant 3: the bare base name is legal only when
// instances = 1). A singleton keeps the bare base name; any group of two
// or more always numbers every member, including index 0, as "base:k".
func InstanceName(base string, k, total int) string {
	if total <= 1 {
		return base
	}
	return fmt.Sprintf("%s:%d", base, k)
}

// Rename updates the name index, used by cluster scale-up and scale-down
// reshaping. Returns an error if the new name collides with a different
// live record.
func (t *Table) Rename(id uint32, newName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("proc: unknown id %d", id)
	}
	if existing, exists := t.byName[newName]; exists && existing != id {
		return fmt.Errorf("proc: name %q already in use", newName)
	}
	delete(t.byName, rec.Name())
	rec.SetName(newName)
	t.byName[newName] = id
	return nil
}

// List returns summaries for every record, in id order.
func (t *Table) List() []Summary {
	t.mu.RLock()
	ids := make([]uint32, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		if rec, ok := t.Get(id); ok {
			out = append(out, rec.Summary())
		}
	}
	return out
}
