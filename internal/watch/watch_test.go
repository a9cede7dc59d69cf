package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/velos-sh/velos/internal/proc"
)

type countingRestarter struct {
	mu    sync.Mutex
	count int
}

func (c *countingRestarter) Restart(id uint32) (proc.Summary, error) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return proc.Summary{ID: id}, nil
}

func (c *countingRestarter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestWatchDebouncesBurstIntoOneRestart(t *testing.T) {
	dir := t.TempDir()
	r := &countingRestarter{}

	cancel, err := Start(context.Background(), 1, []string{dir}, nil, 50, r)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer cancel()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	if got := r.Count(); got != 1 {
		t.Fatalf("expected exactly 1 debounced restart, got %d", got)
	}
}

func TestWatchIgnoresMatchingPaths(t *testing.T) {
	dir := t.TempDir()
	r := &countingRestarter{}

	cancel, err := Start(context.Background(), 1, []string{dir}, []string{"*.log"}, 50, r)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer cancel()

	if err := os.WriteFile(filepath.Join(dir, "noisy.log"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := r.Count(); got != 0 {
		t.Fatalf("expected ignored path to trigger no restart, got %d", got)
	}
}
