package supervisor

import (
	"time"

	"github.com/velos-sh/velos/internal/history"
	"github.com/velos-sh/velos/internal/proc"
)

// watchMemory polls each Online record's last-sampled RSS and issues a
// Restart when max_memory_restart is exceeded (spec.md §4.5). Unlike a
// crash, a memory-triggered restart never touches consecutive_crashes --
// it is operator policy, not a failure signal.
func (s *Supervisor) watchMemory() {
	t := time.NewTicker(memoryWatchInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			s.sweepMemory()
		}
	}
}

func (s *Supervisor) sweepMemory() {
	for _, sum := range s.Table.List() {
		if sum.Status != proc.Online {
			continue
		}
		rec, ok := s.Table.Get(sum.ID)
		if !ok {
			continue
		}
		spec := rec.Spec()
		if spec.MaxMemoryRestart == 0 || rec.MemoryBytes() <= spec.MaxMemoryRestart {
			continue
		}
		if rec.PendingIntent() != "" {
			continue // a stop/delete/restart is already in flight for this id
		}
		go func(id uint32) { _, _ = s.restart(id, history.EventMemoryRestart) }(sum.ID)
	}
}
