// Package watch reruns generation for a library whenever its source file
// changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nimp/internal/logging"
)

// DefaultDebounce is how long a file must be quiet before it is rerun.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc regenerates one library.
type RunFunc func(ctx context.Context, lib string) error

// Stats counts watcher activity.
type Stats struct {
	Events        int
	Runs          int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher watches library source files. Editors that save by renaming
// replace the inode, so the parent directories are watched and events are
// filtered by path.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	run         RunFunc
	libs        map[string]string // cleaned source path -> library identifier
	pending     map[string]time.Time
	debounceDur time.Duration
	stats       Stats
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// New creates a watcher. sources maps each library identifier to its source file.
func New(sources map[string]string, run RunFunc, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		watcher:     fw,
		run:         run,
		libs:        make(map[string]string, len(sources)),
		pending:     make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for lib, path := range sources {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		w.libs[filepath.Clean(abs)] = lib
	}
	return w, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs := make(map[string]bool)
	for path := range w.libs {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			w.watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		logging.Watch("watching %s", dir)
	}

	go w.loop(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("closing watcher: %v", err)
	}
	logging.Watch("stopped")
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.libs[path]; !ok {
		return
	}
	logging.WatchDebug("%s %s", event.Op, path)
	w.stats.Events++
	w.stats.LastEventPath = path
	w.stats.LastEventTime = time.Now()
	w.pending[path] = time.Now()
}

// flush reruns every library whose file has been quiet for the debounce window.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var due []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounceDur {
			due = append(due, w.libs[path])
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, lib := range due {
		logging.Watch("rerunning %s", lib)
		err := w.run(ctx, lib)

		w.mu.Lock()
		w.stats.Runs++
		if err != nil {
			w.stats.Errors++
		}
		w.mu.Unlock()

		if err != nil {
			logging.Get(logging.CategoryWatch).Error("rerun of %s failed: %v", lib, err)
		}
	}
}
