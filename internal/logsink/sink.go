package logsink

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
	defaultMaxAgeDays = 7
)

// Sink is the per-process Log Sink: an in-memory ring plus two rotating
// on-disk files. Grounded on the teacher's logger.Config.Writers, which
// builds one *lumberjack.Logger per stream.
type Sink struct {
	dir  string
	name string

	mu   sync.Mutex
	ring *ring
	out  *lj.Logger
	err  *lj.Logger

	subMu sync.Mutex
	subs  map[chan Entry]struct{}
}

// New creates a Sink writing to <dir>/<name>-out.log and <dir>/<name>-err.log.
func New(dir, name string) (*Sink, error) {
	if dir == "" {
		return nil, fmt.Errorf("logsink: empty log directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("logsink: mkdir %s: %w", dir, err)
	}
	s := &Sink{dir: dir, name: name, ring: newRing(), subs: make(map[chan Entry]struct{})}
	s.out, s.err = s.newWriters(name)
	return s, nil
}

func (s *Sink) newWriters(name string) (*lj.Logger, *lj.Logger) {
	out := &lj.Logger{
		Filename:   filepath.Join(s.dir, name+"-out.log"),
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAgeDays,
	}
	errW := &lj.Logger{
		Filename:   filepath.Join(s.dir, name+"-err.log"),
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAgeDays,
	}
	return out, errW
}

// Append writes e to the ring, to the appropriate on-disk file (buffered,
// flushed on each full line since lumberjack.Write is one call per line),
// and fans it out to any live LogStream subscribers.
func (s *Sink) Append(e Entry) {
	s.ring.append(e)

	s.mu.Lock()
	w := s.out
	if e.Stream == StreamErr {
		w = s.err
	}
	s.mu.Unlock()
	if w != nil {
		line := e.Line
		if len(line) == 0 || line[len(line)-1] != '\n' {
			line += "\n"
		}
		_, _ = w.Write([]byte(line))
	}

	s.subMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- e:
		default: // slow subscriber; drop rather than block the writer
		}
	}
	s.subMu.Unlock()
}

// LastLines returns the most recent n entries across both streams,
// ordered by timestamp then stream id as tie-break (spec.md §4.4).
func (s *Sink) LastLines(n int) []Entry {
	out := s.ring.last(n)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TimestampMs != out[j].TimestampMs {
			return out[i].TimestampMs < out[j].TimestampMs
		}
		return out[i].Stream < out[j].Stream
	})
	return out
}

// Subscribe registers a channel that receives every new Entry until
// Unsubscribe is called. Used by LogStream (spec.md §4.4).
func (s *Sink) Subscribe() chan Entry {
	ch := make(chan Entry, 64)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

func (s *Sink) Unsubscribe(ch chan Entry) {
	s.subMu.Lock()
	delete(s.subs, ch)
	s.subMu.Unlock()
	close(ch)
}

// Rename points future writes at the new process name, keeping the ring
// (and its history) intact. Used by cluster scale reshaping (spec.md §4.4).
func (s *Sink) Rename(newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.out.Close(); err != nil {
		return err
	}
	if err := s.err.Close(); err != nil {
		return err
	}
	s.name = newName
	s.out, s.err = s.newWriters(newName)
	return nil
}

// Flush truncates the on-disk files but preserves the in-memory ring
// (spec.md §4.4: "does not clear the in-memory ring").
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.out.Rotate(); err != nil {
		return err
	}
	return s.err.Rotate()
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err1 := s.out.Close()
	err2 := s.err.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
