package logsink

import "sync"

// Manager owns one Sink per process id, rooted at a single log directory
// (spec.md §6: ~/.velos/logs/).
type Manager struct {
	dir string

	mu    sync.Mutex
	sinks map[uint32]*Sink
}

func NewManager(dir string) *Manager {
	return &Manager{dir: dir, sinks: make(map[uint32]*Sink)}
}

// Open returns the Sink for id, creating it (and its on-disk files) under
// name on first use.
func (m *Manager) Open(id uint32, name string) (*Sink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sinks[id]; ok {
		return s, nil
	}
	s, err := New(m.dir, name)
	if err != nil {
		return nil, err
	}
	m.sinks[id] = s
	return s, nil
}

func (m *Manager) Get(id uint32) (*Sink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sinks[id]
	return s, ok
}

// Rename follows a process rename (cluster scale reshaping) so file
// handles track the new name (spec.md §4.4).
func (m *Manager) Rename(id uint32, newName string) error {
	m.mu.Lock()
	s, ok := m.sinks[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Rename(newName)
}

func (m *Manager) Close(id uint32) {
	m.mu.Lock()
	s, ok := m.sinks[id]
	delete(m.sinks, id)
	m.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}
