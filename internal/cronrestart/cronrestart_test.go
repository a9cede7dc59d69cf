package cronrestart

import (
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

func TestStartFiresOnSchedule(t *testing.T) {
	r := &countingRestarter{}
	cancel, err := Start(1, "@every 1s", r)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer cancel()

	time.Sleep(1200 * time.Millisecond)
	if r.Count() < 1 {
		t.Fatalf("expected at least 1 scheduled restart, got %d", r.Count())
	}
}

func TestRejectsInvalidSchedule(t *testing.T) {
	r := &countingRestarter{}
	_, err := Start(1, "not a schedule", r)
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}
