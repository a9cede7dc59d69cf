// Package watch implements the file-watch restart source (spec.md §4
// supplemented feature: watch_paths/watch_ignore/watch_delay_ms). A single
// fsnotify watcher per process id debounces bursts of filesystem events
// into one Restart intent, fired watch_delay_ms after the last event.
//
// No teacher analogue watches the filesystem for restarts; fsnotify itself
// is the teacher's own transitive dependency (pulled in via viper), and the
// debounce idiom -- a timer reset on every event, fired once it goes quiet
// -- is grounded on the single-flight goroutine shape of the teacher's
// internal/cron.Scheduler.runJob.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/velos-sh/velos/internal/proc"
)

// Restarter is the narrow capability this package needs from the
// Supervisor, kept separate to avoid an import cycle.
type Restarter interface {
	Restart(id uint32) (proc.Summary, error)
}

const defaultDebounce = 200 * time.Millisecond

// Start watches paths for changes and debounces them into Restart(id)
// calls, skipping any event whose path matches one of the ignore globs.
// It returns a cancel func that stops the watcher; a non-nil error means
// the watcher could not be created and no goroutine was started.
func Start(ctx context.Context, id uint32, paths, ignore []string, delayMs uint32, r Restarter) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			slog.Warn("watch: add path failed", "id", id, "path", p, "error", err)
		}
	}

	debounce := time.Duration(delayMs) * time.Millisecond
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	runCtx, cancel := context.WithCancel(ctx)
	go run(runCtx, w, id, ignore, debounce, r)

	return func() {
		cancel()
		_ = w.Close()
	}, nil
}

func run(ctx context.Context, w *fsnotify.Watcher, id uint32, ignore []string, debounce time.Duration, r Restarter) {
	defer func() { _ = w.Close() }()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("watch: fsnotify error", "id", id, "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if isIgnored(ev.Name, ignore) {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			pending = true
			timer.Reset(debounce)
		case <-timer.C:
			if pending {
				pending = false
				if _, err := r.Restart(id); err != nil {
					slog.Warn("watch: restart failed", "id", id, "error", err)
				}
			}
		}
	}
}

func isIgnored(path string, ignore []string) bool {
	base := filepath.Base(path)
	for _, pat := range ignore {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, path); ok {
			return true
		}
		if strings.Contains(path, pat) {
			return true
		}
	}
	return false
}
