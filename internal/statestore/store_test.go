package statestore

import (
	"path/filepath"
	"testing"

	"github.com/velos-sh/velos/internal/proc"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	table := proc.NewTable()
	_, err := table.Create(proc.Spec{Name: "api", Script: "serve", Priority: 5}.WithDefaults(), "api")
	if err != nil {
		t.Fatal(err)
	}
	_, err = table.Create(proc.Spec{Name: "worker", Script: "work", Priority: 1}.WithDefaults(), "worker")
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "dump.bin")
	store := New(path)
	if err := store.Save(table); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "worker" || entries[1].Name != "api" {
		t.Fatalf("expected priority-ascending order worker,api; got %+v", entries)
	}
	if entries[1].Spec.Script != "serve" {
		t.Fatalf("expected Spec fields to round-trip, got %+v", entries[1].Spec)
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	entries, err := store.Load()
	if err != nil {
		t.Fatalf("expected no error for a missing dump, got %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

type stubStarter struct{ started []string }

func (s *stubStarter) Start(spec proc.Spec, name string) (proc.Summary, error) {
	s.started = append(s.started, name)
	return proc.Summary{}, nil
}

func TestResurrectStartsInPriorityOrder(t *testing.T) {
	table := proc.NewTable()
	_, _ = table.Create(proc.Spec{Name: "b", Script: "b", Priority: 2}.WithDefaults(), "b")
	_, _ = table.Create(proc.Spec{Name: "a", Script: "a", Priority: 1}.WithDefaults(), "a")

	path := filepath.Join(t.TempDir(), "dump.bin")
	store := New(path)
	if err := store.Save(table); err != nil {
		t.Fatal(err)
	}

	starter := &stubStarter{}
	n, err := store.Resurrect(starter)
	if err != nil {
		t.Fatalf("resurrect: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 started, got %d", n)
	}
	if len(starter.started) != 2 || starter.started[0] != "a" || starter.started[1] != "b" {
		t.Fatalf("expected start order [a, b], got %+v", starter.started)
	}
}
